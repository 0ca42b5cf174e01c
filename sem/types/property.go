package types

import "strings"

// Predefined property keys. Keys starting with '_' are reserved.
const (
	PropType       = "_TYPE" // declared type
	PropURI        = "_URI"  // equivalent URI
	PropInstance   = "_INST" // category membership
	PropRedirect   = "_REDI" // redirect target
	PropSubprop    = "_SUBP" // subproperty of
	PropSubcat     = "_SUBC" // subcategory of
	PropConcept    = "_CONC" // concept description
	PropSortkey    = "_SKEY" // explicit sortkey, never stored as a row
	PropErrorProp  = "_ERRP" // has improper value for
	PropModified   = "_MDAT" // modification date
	PropSubobjects = "_SOBJ" // has subobject
)

var predefinedKinds = map[string]Kind{
	PropType:       KindURI,
	PropURI:        KindURI,
	PropInstance:   KindWikiPage,
	PropRedirect:   KindWikiPage,
	PropSubprop:    KindProperty,
	PropSubcat:     KindWikiPage,
	PropConcept:    KindConcept,
	PropSortkey:    KindBlob,
	PropErrorProp:  KindProperty,
	PropModified:   KindTime,
	PropSubobjects: KindWikiPage,
}

// PredefinedKind returns the kind of a predefined property
func PredefinedKind(key string) (Kind, bool) {
	k, ok := predefinedKinds[key]
	return k, ok
}

// Property identifies a property by key. Inverse is only meaningful in
// query conditions ("pages that are the value of P on the subject").
type Property struct {
	Key     string `json:"key" yaml:"key"`
	Inverse bool   `json:"inverse,omitempty" yaml:"inverse,omitempty"`
}

// NewProperty returns the property with key in normalized form
func NewProperty(key string) Property {
	return Property{Key: NormalizeTitle(key)}
}

// IsPredefined reports whether the key is reserved
func (p Property) IsPredefined() bool {
	return strings.HasPrefix(p.Key, "_")
}

// IsUserDefined reports whether the property has its own page
func (p Property) IsUserDefined() bool {
	return !p.IsPredefined()
}

// Page returns the entity the property's id is attached to
func (p Property) Page() EntityRef {
	return EntityRef{Title: p.Key, Namespace: NSProperty}
}

// Label returns a display name
func (p Property) Label() string {
	label := strings.ReplaceAll(p.Key, "_", " ")
	if p.IsPredefined() {
		label = p.Key
	}
	if p.Inverse {
		return "-" + label
	}
	return label
}
