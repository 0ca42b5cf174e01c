package handlers

import (
	"context"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/types"
)

// pageHandler stores a single foreign id. It serves both page references and
// containers; a container's id is the id of its subobject.
type pageHandler struct {
	kind types.Kind
}

func (h pageHandler) Kind() types.Kind { return h.kind }

func (pageHandler) Fields() []Field { return []Field{{"o_id", FieldForeignID}} }

func (pageHandler) IndexField() string { return "o_id" }
func (pageHandler) LabelField() string { return "o_id" }

func (h pageHandler) target(item types.DataItem) (types.EntityRef, string, error) {
	switch v := item.(type) {
	case types.WikiPage:
		if h.kind == types.KindWikiPage {
			sortkey := v.Sortkey
			if sortkey == "" {
				sortkey = v.Ref.DefaultSortkey()
			}
			return v.Ref, sortkey, nil
		}
	case types.Container:
		if h.kind == types.KindContainer && v.Data != nil {
			ref := v.Data.Subject()
			return ref, ref.DefaultSortkey(), nil
		}
	}
	return types.EntityRef{}, "", wrongKind(h.kind, item)
}

func (h pageHandler) WhereConditions(ctx context.Context, ids IDLookup, item types.DataItem) (Row, error) {
	ref, _, err := h.target(item)
	if err != nil {
		return nil, err
	}
	id, err := ids.GetID(ctx, ref, h.kind == types.KindWikiPage)
	if err != nil {
		return nil, err
	}
	return Row{"o_id": id}, nil
}

func (h pageHandler) InsertValues(ctx context.Context, ids IDMaker, item types.DataItem) (Row, error) {
	ref, sortkey, err := h.target(item)
	if err != nil {
		return nil, err
	}
	// values pointing at a redirect source are stored against the target;
	// subobjects keep the sortkey their own fact set gave them
	id, err := ids.GetID(ctx, ref, h.kind == types.KindWikiPage)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		if id, err = ids.MakeID(ctx, ref, sortkey); err != nil {
			return nil, err
		}
	}
	return Row{"o_id": id}, nil
}

func (h pageHandler) FromRow(row Row) (types.DataItem, error) {
	ref, sortkey, err := RefFromRow(row, "o_id")
	if err != nil {
		return nil, err
	}
	if h.kind == types.KindContainer {
		if !ref.IsSubobject() {
			return nil, errors.DataCorruption("container value %s is not a subobject", ref)
		}
		return types.Container{Data: types.NewSemanticData(ref)}, nil
	}
	return types.WikiPage{Ref: ref, Sortkey: sortkey}, nil
}

// RefFromRow rebuilds the entity joined in for foreign column col
func RefFromRow(row Row, col string) (types.EntityRef, string, error) {
	title, ok := rowString(row, col+SuffixTitle)
	if !ok {
		return types.EntityRef{}, "", errors.DataCorruption("%s references an unknown id", col)
	}
	ns, err := rowInt(row, col+SuffixNamespace)
	if err != nil {
		return types.EntityRef{}, "", err
	}
	iw, _ := rowString(row, col+SuffixInterwiki)
	sub, _ := rowString(row, col+SuffixSubobject)
	sortkey, _ := rowString(row, col+SuffixSortkey)
	return types.EntityRef{Title: title, Namespace: int(ns), Interwiki: iw, Subobject: sub}, sortkey, nil
}

// propertyHandler stores the id of the property's page
type propertyHandler struct{}

func (propertyHandler) Kind() types.Kind { return types.KindProperty }

func (propertyHandler) Fields() []Field { return []Field{{"o_id", FieldForeignID}} }

func (propertyHandler) IndexField() string { return "o_id" }
func (propertyHandler) LabelField() string { return "o_id" }

func propertyPage(item types.DataItem) (types.EntityRef, error) {
	p, ok := item.(types.PropertyItem)
	if !ok {
		return types.EntityRef{}, wrongKind(types.KindProperty, item)
	}
	if p.Property.Inverse {
		return types.EntityRef{}, errors.DataCorruption("inverse property %s cannot be stored as a value", p.Property.Key)
	}
	return p.Property.Page(), nil
}

func (propertyHandler) WhereConditions(ctx context.Context, ids IDLookup, item types.DataItem) (Row, error) {
	ref, err := propertyPage(item)
	if err != nil {
		return nil, err
	}
	id, err := ids.GetID(ctx, ref, false)
	if err != nil {
		return nil, err
	}
	return Row{"o_id": id}, nil
}

func (propertyHandler) InsertValues(ctx context.Context, ids IDMaker, item types.DataItem) (Row, error) {
	ref, err := propertyPage(item)
	if err != nil {
		return nil, err
	}
	id, err := ids.MakeID(ctx, ref, ref.DefaultSortkey())
	if err != nil {
		return nil, err
	}
	return Row{"o_id": id}, nil
}

func (propertyHandler) FromRow(row Row) (types.DataItem, error) {
	ref, _, err := RefFromRow(row, "o_id")
	if err != nil {
		return nil, err
	}
	if ref.Namespace != types.NSProperty {
		return nil, errors.DataCorruption("property value %s is not in the property namespace", ref)
	}
	return types.PropertyItem{Property: types.Property{Key: ref.Title}}, nil
}

// conceptHandler stores the concept description and its cache metadata.
// A concept subject keeps exactly one row.
type conceptHandler struct{}

func (conceptHandler) Kind() types.Kind { return types.KindConcept }

func (conceptHandler) Fields() []Field {
	return []Field{
		{"concept_txt", FieldBlob},
		{"concept_docu", FieldBlob},
		{"concept_features", FieldInt},
		{"concept_size", FieldInt},
		{"concept_depth", FieldInt},
		{"cache_date", FieldInt},
		{"cache_count", FieldInt},
	}
}

func (conceptHandler) IndexField() string { return "concept_size" }
func (conceptHandler) LabelField() string { return "concept_size" }

func (h conceptHandler) WhereConditions(ctx context.Context, _ IDLookup, item types.DataItem) (Row, error) {
	return h.InsertValues(ctx, nil, item)
}

func (conceptHandler) InsertValues(_ context.Context, _ IDMaker, item types.DataItem) (Row, error) {
	c, ok := item.(types.Concept)
	if !ok {
		return nil, wrongKind(types.KindConcept, item)
	}
	return Row{
		"concept_txt":      []byte(c.Text),
		"concept_docu":     []byte(c.Doc),
		"concept_features": int64(c.Features),
		"concept_size":     int64(c.Size),
		"concept_depth":    int64(c.Depth),
		"cache_date":       c.CacheDate,
		"cache_count":      int64(c.CacheCount),
	}, nil
}

func (conceptHandler) FromRow(row Row) (types.DataItem, error) {
	text, ok := rowString(row, "concept_txt")
	if !ok {
		return nil, errors.DataCorruption("concept row without description")
	}
	doc, _ := rowString(row, "concept_docu")
	c := types.Concept{Text: text, Doc: doc}
	ints := []struct {
		col string
		dst *int
	}{
		{"concept_features", &c.Features},
		{"concept_size", &c.Size},
		{"concept_depth", &c.Depth},
		{"cache_count", &c.CacheCount},
	}
	for _, f := range ints {
		v, err := rowInt(row, f.col)
		if err != nil {
			return nil, err
		}
		*f.dst = int(v)
	}
	date, err := rowInt(row, "cache_date")
	if err != nil {
		return nil, err
	}
	c.CacheDate = date
	return c, nil
}
