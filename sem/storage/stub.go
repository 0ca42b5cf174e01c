package storage

import (
	"sort"
	"sync"

	"github.com/teranos/semstore/sem/handlers"
	"github.com/teranos/semstore/sem/types"
)

// propertyRows holds the raw rows of one property until they are expanded
type propertyRows struct {
	property types.Property
	sources  []rowSource

	once  sync.Once
	items []types.DataItem
}

type rowSource struct {
	handler handlers.Handler
	rows    []handlers.Row
}

// Stub is a lazily expanded fact set. Property keys are known as soon as
// the stub is read; values are reconstructed on first access to a property
// and memoized.
type Stub struct {
	subject types.EntityRef
	id      int64
	sortkey string

	props      map[string]*propertyRows
	subobjects map[string]*Stub

	mu     sync.Mutex
	errors []error
}

func newStub(subject types.EntityRef, id int64, sortkey string) *Stub {
	return &Stub{
		subject:    subject,
		id:         id,
		sortkey:    sortkey,
		props:      make(map[string]*propertyRows),
		subobjects: make(map[string]*Stub),
	}
}

func (s *Stub) addRows(p types.Property, h handlers.Handler, rows []handlers.Row) {
	pr, ok := s.props[p.Key]
	if !ok {
		pr = &propertyRows{property: p}
		s.props[p.Key] = pr
	}
	pr.sources = append(pr.sources, rowSource{handler: h, rows: rows})
}

// Subject returns the entity the stub was read for
func (s *Stub) Subject() types.EntityRef { return s.subject }

// ID returns the subject's id, 0 when the subject is unknown
func (s *Stub) ID() int64 { return s.id }

// Sortkey returns the stored sortkey
func (s *Stub) Sortkey() string { return s.sortkey }

// IsEmpty reports whether nothing is stored for the subject
func (s *Stub) IsEmpty() bool {
	return len(s.props) == 0 && len(s.subobjects) == 0
}

// Properties returns the stored properties sorted by key
func (s *Stub) Properties() []types.Property {
	out := make([]types.Property, 0, len(s.props))
	for _, pr := range s.props {
		out = append(out, pr.property)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// HasProperty reports whether p has stored rows
func (s *Stub) HasProperty(p types.Property) bool {
	_, ok := s.props[p.Key]
	return ok
}

// Expand reconstructs the values of p. Rows that cannot be reconstructed
// are dropped and recorded in Errors.
func (s *Stub) Expand(p types.Property) []types.DataItem {
	pr, ok := s.props[p.Key]
	if !ok {
		return nil
	}
	pr.once.Do(func() {
		seen := make(map[string]bool)
		for _, src := range pr.sources {
			for _, row := range src.rows {
				item, err := src.handler.FromRow(row)
				if err != nil {
					s.addError(err)
					continue
				}
				if c, ok := item.(types.Container); ok {
					if sub, found := s.subobjects[c.Data.Subject().Subobject]; found {
						item = types.Container{Data: sub.SemanticData()}
					}
				}
				key := item.Kind().String() + ":" + item.Hash()
				if seen[key] {
					continue
				}
				seen[key] = true
				pr.items = append(pr.items, item)
			}
		}
	})
	out := make([]types.DataItem, len(pr.items))
	copy(out, pr.items)
	return out
}

func (s *Stub) addError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

// Errors returns the soft errors recorded while expanding
func (s *Stub) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.errors))
	copy(out, s.errors)
	return out
}

// Subobject returns the nested stub of a subobject
func (s *Stub) Subobject(name string) (*Stub, bool) {
	sub, ok := s.subobjects[name]
	return sub, ok
}

// Subobjects returns the nested stubs sorted by name
func (s *Stub) Subobjects() []*Stub {
	names := make([]string, 0, len(s.subobjects))
	for name := range s.subobjects {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Stub, 0, len(names))
	for _, name := range names {
		out = append(out, s.subobjects[name])
	}
	return out
}

// SemanticData expands every property and subobject. An explicit sortkey
// is reported as _SKEY.
func (s *Stub) SemanticData() *types.SemanticData {
	data := types.NewSemanticData(s.subject)
	for _, p := range s.Properties() {
		for _, v := range s.Expand(p) {
			data.AddValue(p, v)
		}
	}
	for _, sub := range s.Subobjects() {
		_ = data.AddSubobject(sub.SemanticData())
	}
	if s.id != 0 && s.sortkey != "" && s.sortkey != s.subject.DefaultSortkey() {
		data.AddValue(types.Property{Key: types.PropSortkey}, types.Blob{Text: s.sortkey})
	}
	return data
}
