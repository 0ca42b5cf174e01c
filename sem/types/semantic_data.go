package types

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/teranos/semstore/errors"
)

// SemanticData is the fact set of one subject: property to ordered,
// deduplicated values, plus nested fact sets for the subject's subobjects.
// It is request scoped and never persisted directly.
type SemanticData struct {
	subject    EntityRef
	order      []string
	properties map[string]Property
	values     map[string][]DataItem
	seen       map[string]map[string]struct{}
	subobjects map[string]*SemanticData
}

// NewSemanticData returns an empty fact set for subject
func NewSemanticData(subject EntityRef) *SemanticData {
	return &SemanticData{
		subject:    subject,
		properties: make(map[string]Property),
		values:     make(map[string][]DataItem),
		seen:       make(map[string]map[string]struct{}),
		subobjects: make(map[string]*SemanticData),
	}
}

// Subject returns the entity the facts belong to
func (d *SemanticData) Subject() EntityRef {
	return d.subject
}

// AddValue appends item to p's values unless an equal item is present.
// Container values register their data as a subobject of this subject.
func (d *SemanticData) AddValue(p Property, item DataItem) {
	if item == nil {
		return
	}
	if c, ok := item.(Container); ok && c.Data != nil && c.Data.subject.IsSubobject() {
		_ = d.AddSubobject(c.Data)
	}
	if _, ok := d.properties[p.Key]; !ok {
		d.properties[p.Key] = p
		d.order = append(d.order, p.Key)
		d.seen[p.Key] = make(map[string]struct{})
	}
	h := strconv.Itoa(int(item.Kind())) + ":" + item.Hash()
	if _, dup := d.seen[p.Key][h]; dup {
		return
	}
	d.seen[p.Key][h] = struct{}{}
	d.values[p.Key] = append(d.values[p.Key], item)
}

// RemoveProperty drops every value of p
func (d *SemanticData) RemoveProperty(p Property) {
	if _, ok := d.properties[p.Key]; !ok {
		return
	}
	delete(d.properties, p.Key)
	delete(d.values, p.Key)
	delete(d.seen, p.Key)
	for i, k := range d.order {
		if k == p.Key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// AddSubobject attaches sub as a subobject. The subject of sub must be a
// subobject of this page. Adding a subobject twice merges the values.
func (d *SemanticData) AddSubobject(sub *SemanticData) error {
	ref := sub.Subject()
	if !ref.IsSubobject() || ref.Base() != d.subject.Base() {
		return errors.NewInvalidRequestError("%s is not a subobject of %s", ref, d.subject)
	}
	existing, ok := d.subobjects[ref.Subobject]
	if !ok {
		d.subobjects[ref.Subobject] = sub
		return nil
	}
	if existing == sub {
		return nil
	}
	for _, p := range sub.Properties() {
		for _, v := range sub.Values(p) {
			existing.AddValue(p, v)
		}
	}
	return nil
}

// Properties returns the properties in insertion order
func (d *SemanticData) Properties() []Property {
	out := make([]Property, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.properties[k])
	}
	return out
}

// HasProperty reports whether p has at least one value
func (d *SemanticData) HasProperty(p Property) bool {
	_, ok := d.properties[p.Key]
	return ok
}

// Values returns p's values in insertion order
func (d *SemanticData) Values(p Property) []DataItem {
	vals := d.values[p.Key]
	out := make([]DataItem, len(vals))
	copy(out, vals)
	return out
}

// Subobject returns the subobject with the given name
func (d *SemanticData) Subobject(name string) (*SemanticData, bool) {
	sub, ok := d.subobjects[name]
	return sub, ok
}

// Subobjects returns the subobjects sorted by name
func (d *SemanticData) Subobjects() []*SemanticData {
	names := make([]string, 0, len(d.subobjects))
	for name := range d.subobjects {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*SemanticData, 0, len(names))
	for _, name := range names {
		out = append(out, d.subobjects[name])
	}
	return out
}

// IsEmpty reports whether there are neither values nor subobjects
func (d *SemanticData) IsEmpty() bool {
	return len(d.order) == 0 && len(d.subobjects) == 0
}

// Hash is an order-independent digest of the content (values and subobjects)
func (d *SemanticData) Hash() string {
	lines := make([]string, 0, len(d.order))
	for _, k := range d.order {
		for _, v := range d.values[k] {
			lines = append(lines, k+"\x00"+strconv.Itoa(int(v.Kind()))+"\x00"+v.Hash())
		}
	}
	for name, sub := range d.subobjects {
		lines = append(lines, "#"+name+"\x00"+sub.Hash())
	}
	sort.Strings(lines)
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(lines, "\n")), 16)
}

// Equal reports whether both fact sets have the same subject and content
func (d *SemanticData) Equal(other *SemanticData) bool {
	if other == nil {
		return false
	}
	return d.subject == other.subject && d.Hash() == other.Hash()
}
