package types

import (
	"fmt"
	"strings"
)

// Namespaces with storage meaning
const (
	NSMain     = 0
	NSCategory = 14
	NSProperty = 102
	NSConcept  = 108
)

var namespacePrefixes = map[int]string{
	NSCategory: "Category",
	NSProperty: "Property",
	NSConcept:  "Concept",
}

// NamespacePrefix returns the display prefix of ns, if it has one
func NamespacePrefix(ns int) (string, bool) {
	prefix, ok := namespacePrefixes[ns]
	return prefix, ok
}

// EntityRef identifies a page-like object. It is an immutable, comparable key.
type EntityRef struct {
	Title     string `json:"title" yaml:"title"`
	Namespace int    `json:"namespace" yaml:"namespace"`
	Interwiki string `json:"interwiki,omitempty" yaml:"interwiki,omitempty"`
	Subobject string `json:"subobject,omitempty" yaml:"subobject,omitempty"`
}

// NewPage returns a reference to title in namespace ns.
// Titles are stored in key form: trimmed, spaces replaced by underscores.
func NewPage(title string, ns int) EntityRef {
	return EntityRef{Title: NormalizeTitle(title), Namespace: ns}
}

// NormalizeTitle converts a display title into key form
func NormalizeTitle(title string) string {
	return strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
}

// Key is the canonical string form used for caching and hashing
func (r EntityRef) Key() string {
	return fmt.Sprintf("%s#%d#%s#%s", r.Title, r.Namespace, r.Interwiki, r.Subobject)
}

// Base returns the owning page of a subobject (or r itself)
func (r EntityRef) Base() EntityRef {
	r.Subobject = ""
	return r
}

// WithSubobject returns the reference of subobject name under r's page
func (r EntityRef) WithSubobject(name string) EntityRef {
	r.Subobject = name
	return r
}

// IsSubobject reports whether r names a subobject
func (r EntityRef) IsSubobject() bool {
	return r.Subobject != ""
}

// IsEmpty reports whether r has no title
func (r EntityRef) IsEmpty() bool {
	return r.Title == ""
}

// DefaultSortkey derives the sortkey from the title
func (r EntityRef) DefaultSortkey() string {
	return strings.ReplaceAll(r.Title, "_", " ")
}

// String renders the reference for humans: "Category:Cities#sub"
func (r EntityRef) String() string {
	var b strings.Builder
	if r.Interwiki != "" {
		b.WriteString(r.Interwiki)
		b.WriteByte(':')
	}
	if prefix, ok := namespacePrefixes[r.Namespace]; ok {
		b.WriteString(prefix)
		b.WriteByte(':')
	} else if r.Namespace != NSMain {
		fmt.Fprintf(&b, "%d:", r.Namespace)
	}
	b.WriteString(r.DefaultSortkey())
	if r.Subobject != "" {
		b.WriteByte('#')
		b.WriteString(r.Subobject)
	}
	return b.String()
}
