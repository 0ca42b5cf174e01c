package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/teranos/semstore/errors"
)

// DataItem is an immutable typed value. Two items are equal when their
// hashes are equal.
type DataItem interface {
	Kind() Kind
	Hash() string
}

// Equal compares two items by hash
func Equal(a, b DataItem) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind() == b.Kind() && a.Hash() == b.Hash()
}

// Number is a numeric value
type Number struct {
	Value float64
}

func (Number) Kind() Kind { return KindNumber }

func (n Number) Hash() string { return n.Serialization() }

// Serialization is the lossless text form stored in the number table.
// Integral values below 1e21 are written without an exponent.
func (n Number) Serialization() string {
	if n.Value == math.Trunc(n.Value) && math.Abs(n.Value) < 1e21 {
		return strconv.FormatFloat(n.Value, 'f', -1, 64)
	}
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

// ParseNumber restores a Number from its serialization
func ParseNumber(s string) (Number, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Number{}, errors.DataCorruption("malformed number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}, errors.DataCorruption("non-finite number %q", s)
	}
	return Number{Value: v}, nil
}

// Blob is a text value of arbitrary length
type Blob struct {
	Text string
}

func (Blob) Kind() Kind { return KindBlob }

func (b Blob) Hash() string { return b.Text }

// Boolean is a truth value
type Boolean struct {
	Value bool
}

func (Boolean) Kind() Kind { return KindBoolean }

func (b Boolean) Hash() string {
	if b.Value {
		return "t"
	}
	return "f"
}

// URI is an absolute identifier (URL, URN, mailto, ...)
type URI struct {
	Value string
}

func (URI) Kind() Kind { return KindURI }

func (u URI) Hash() string { return u.Value }

// GeoCoord is a WGS84 coordinate
type GeoCoord struct {
	Lat float64
	Lon float64
}

func (GeoCoord) Kind() Kind { return KindGeo }

func (g GeoCoord) Hash() string { return g.Serialization() }

// Serialization is "lat,lon"
func (g GeoCoord) Serialization() string {
	return strconv.FormatFloat(g.Lat, 'g', -1, 64) + "," + strconv.FormatFloat(g.Lon, 'g', -1, 64)
}

// ParseGeoCoord restores a coordinate from its serialization
func ParseGeoCoord(s string) (GeoCoord, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return GeoCoord{}, errors.DataCorruption("malformed coordinate %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return GeoCoord{}, errors.DataCorruption("malformed latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return GeoCoord{}, errors.DataCorruption("malformed longitude %q", parts[1])
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return GeoCoord{}, errors.DataCorruption("coordinate out of range %q", s)
	}
	return GeoCoord{Lat: lat, Lon: lon}, nil
}

// WikiPage references another entity. Sortkey is informational and not
// part of the hash.
type WikiPage struct {
	Ref     EntityRef
	Sortkey string
}

// NewWikiPage is a shorthand for a page in namespace ns
func NewWikiPage(title string, ns int) WikiPage {
	return WikiPage{Ref: NewPage(title, ns)}
}

func (WikiPage) Kind() Kind { return KindWikiPage }

func (w WikiPage) Hash() string { return w.Ref.Key() }

// Container holds a nested fact set stored as a subobject of the subject
// it is attached to.
type Container struct {
	Data *SemanticData
}

func (Container) Kind() Kind { return KindContainer }

func (c Container) Hash() string {
	if c.Data == nil {
		return ""
	}
	return c.Data.Subject().Key() + "|" + c.Data.Hash()
}

// Concept is a stored query description plus cache metadata.
// The cache fields are maintained by the store and not part of the hash.
type Concept struct {
	Text     string
	Doc      string
	Features int
	Size     int
	Depth    int

	CacheDate  int64 // unix seconds, 0 when never cached
	CacheCount int
}

func (Concept) Kind() Kind { return KindConcept }

func (c Concept) Hash() string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%d\x00%d", c.Text, c.Doc, c.Features, c.Size, c.Depth)
}

// PropertyItem is a property used as a value (e.g. "subproperty of")
type PropertyItem struct {
	Property Property
}

func (PropertyItem) Kind() Kind { return KindProperty }

func (p PropertyItem) Hash() string {
	if p.Property.Inverse {
		return "-" + p.Property.Key
	}
	return p.Property.Key
}

// Error is a value that failed to parse. It is never stored.
type Error struct {
	Messages []string
}

func (Error) Kind() Kind { return KindError }

func (e Error) Hash() string { return strings.Join(e.Messages, "\x00") }
