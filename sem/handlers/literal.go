package handlers

import (
	"context"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/types"
)

func wrongKind(want types.Kind, item types.DataItem) error {
	if item == nil {
		return errors.DataCorruption("nil value where %s was expected", want)
	}
	return errors.DataCorruption("%s value handed to the %s handler", item.Kind(), want)
}

// numberHandler stores the serialization plus a float sortkey
type numberHandler struct{}

func (numberHandler) Kind() types.Kind { return types.KindNumber }

func (numberHandler) Fields() []Field {
	return []Field{{"o_serialized", FieldText}, {"o_sortkey", FieldFloat}}
}

func (numberHandler) IndexField() string { return "o_sortkey" }
func (numberHandler) LabelField() string { return "o_sortkey" }

func (h numberHandler) WhereConditions(ctx context.Context, _ IDLookup, item types.DataItem) (Row, error) {
	return h.InsertValues(ctx, nil, item)
}

func (numberHandler) InsertValues(_ context.Context, _ IDMaker, item types.DataItem) (Row, error) {
	n, ok := item.(types.Number)
	if !ok {
		return nil, wrongKind(types.KindNumber, item)
	}
	return Row{"o_serialized": n.Serialization(), "o_sortkey": n.Value}, nil
}

func (numberHandler) FromRow(row Row) (types.DataItem, error) {
	s, ok := rowString(row, "o_serialized")
	if !ok {
		return nil, errors.DataCorruption("number row without serialization")
	}
	return types.ParseNumber(s)
}

// blobHandler stores text as a bounded hash plus an overflow blob
type blobHandler struct{}

func (blobHandler) Kind() types.Kind { return types.KindBlob }

func (blobHandler) Fields() []Field {
	return []Field{{"o_blob", FieldBlob}, {"o_hash", FieldText}}
}

func (blobHandler) IndexField() string { return "o_hash" }
func (blobHandler) LabelField() string { return "o_hash" }

func (h blobHandler) WhereConditions(ctx context.Context, _ IDLookup, item types.DataItem) (Row, error) {
	return h.InsertValues(ctx, nil, item)
}

func (blobHandler) InsertValues(_ context.Context, _ IDMaker, item types.DataItem) (Row, error) {
	b, ok := item.(types.Blob)
	if !ok {
		return nil, wrongKind(types.KindBlob, item)
	}
	hash, overflow := boundedHash(b.Text)
	return Row{"o_hash": hash, "o_blob": nullableBlob(overflow)}, nil
}

func (blobHandler) FromRow(row Row) (types.DataItem, error) {
	if text, ok := rowString(row, "o_blob"); ok {
		return types.Blob{Text: text}, nil
	}
	hash, ok := rowString(row, "o_hash")
	if !ok {
		return nil, errors.DataCorruption("text row without content")
	}
	return types.Blob{Text: hash}, nil
}

// booleanHandler stores 0 or 1
type booleanHandler struct{}

func (booleanHandler) Kind() types.Kind { return types.KindBoolean }

func (booleanHandler) Fields() []Field { return []Field{{"o_value", FieldInt}} }

func (booleanHandler) IndexField() string { return "o_value" }
func (booleanHandler) LabelField() string { return "o_value" }

func (h booleanHandler) WhereConditions(ctx context.Context, _ IDLookup, item types.DataItem) (Row, error) {
	return h.InsertValues(ctx, nil, item)
}

func (booleanHandler) InsertValues(_ context.Context, _ IDMaker, item types.DataItem) (Row, error) {
	b, ok := item.(types.Boolean)
	if !ok {
		return nil, wrongKind(types.KindBoolean, item)
	}
	var v int64
	if b.Value {
		v = 1
	}
	return Row{"o_value": v}, nil
}

func (booleanHandler) FromRow(row Row) (types.DataItem, error) {
	v, err := rowInt(row, "o_value")
	if err != nil {
		return nil, err
	}
	if v != 0 && v != 1 {
		return nil, errors.DataCorruption("boolean column holds %d", v)
	}
	return types.Boolean{Value: v == 1}, nil
}

// uriHandler stores the URI like text: bounded serialization plus overflow
type uriHandler struct{}

func (uriHandler) Kind() types.Kind { return types.KindURI }

func (uriHandler) Fields() []Field {
	return []Field{{"o_blob", FieldBlob}, {"o_serialized", FieldText}}
}

func (uriHandler) IndexField() string { return "o_serialized" }
func (uriHandler) LabelField() string { return "o_serialized" }

func (h uriHandler) WhereConditions(ctx context.Context, _ IDLookup, item types.DataItem) (Row, error) {
	return h.InsertValues(ctx, nil, item)
}

func (uriHandler) InsertValues(_ context.Context, _ IDMaker, item types.DataItem) (Row, error) {
	u, ok := item.(types.URI)
	if !ok {
		return nil, wrongKind(types.KindURI, item)
	}
	hash, overflow := boundedHash(u.Value)
	return Row{"o_serialized": hash, "o_blob": nullableBlob(overflow)}, nil
}

func (uriHandler) FromRow(row Row) (types.DataItem, error) {
	if v, ok := rowString(row, "o_blob"); ok {
		return types.URI{Value: v}, nil
	}
	v, ok := rowString(row, "o_serialized")
	if !ok || v == "" {
		return nil, errors.DataCorruption("uri row without content")
	}
	return types.URI{Value: v}, nil
}

// timeHandler stores the serialization plus the julian day as sortkey
type timeHandler struct{}

func (timeHandler) Kind() types.Kind { return types.KindTime }

func (timeHandler) Fields() []Field {
	return []Field{{"o_serialized", FieldText}, {"o_sortkey", FieldFloat}}
}

func (timeHandler) IndexField() string { return "o_sortkey" }
func (timeHandler) LabelField() string { return "o_sortkey" }

func (h timeHandler) WhereConditions(ctx context.Context, _ IDLookup, item types.DataItem) (Row, error) {
	return h.InsertValues(ctx, nil, item)
}

func (timeHandler) InsertValues(_ context.Context, _ IDMaker, item types.DataItem) (Row, error) {
	t, ok := item.(types.Time)
	if !ok {
		return nil, wrongKind(types.KindTime, item)
	}
	return Row{"o_serialized": t.Serialization(), "o_sortkey": t.JulianDay()}, nil
}

func (timeHandler) FromRow(row Row) (types.DataItem, error) {
	s, ok := rowString(row, "o_serialized")
	if !ok {
		return nil, errors.DataCorruption("time row without serialization")
	}
	return types.ParseTime(s)
}

// geoHandler stores the serialization plus separate coordinates for range scans
type geoHandler struct{}

func (geoHandler) Kind() types.Kind { return types.KindGeo }

func (geoHandler) Fields() []Field {
	return []Field{{"o_serialized", FieldText}, {"o_lat", FieldFloat}, {"o_lon", FieldFloat}}
}

func (geoHandler) IndexField() string { return "o_serialized" }
func (geoHandler) LabelField() string { return "o_serialized" }

func (h geoHandler) WhereConditions(ctx context.Context, _ IDLookup, item types.DataItem) (Row, error) {
	return h.InsertValues(ctx, nil, item)
}

func (geoHandler) InsertValues(_ context.Context, _ IDMaker, item types.DataItem) (Row, error) {
	g, ok := item.(types.GeoCoord)
	if !ok {
		return nil, wrongKind(types.KindGeo, item)
	}
	return Row{"o_serialized": g.Serialization(), "o_lat": g.Lat, "o_lon": g.Lon}, nil
}

func (geoHandler) FromRow(row Row) (types.DataItem, error) {
	s, ok := rowString(row, "o_serialized")
	if !ok {
		return nil, errors.DataCorruption("coordinate row without serialization")
	}
	return types.ParseGeoCoord(s)
}
