// Package yamlio is the text boundary of the store. It parses user text
// into typed values (Codec), decodes YAML fact documents into
// SemanticData, and reads condition documents into query descriptions.
//
// Value syntax by kind:
//
//	number    2161000, -3.5, 1e6
//	text      any string
//	boolean   true/false, yes/no, 1/0
//	uri       https://example.org/x (a scheme is required)
//	time      1237, 1237-05, 1237-05-01, 1237-05-01T10:20:30; "-3000 JL" is Julian
//	geo       48.85,2.35
//	page      Paris, Category:City, Paris#census
//	property  population, -capital_of (inverse)
//	concept   the condition document of the concept
package yamlio

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/types"
)

// julianSuffix marks a Julian calendar date
const julianSuffix = "JL"

var namespaceByPrefix = map[string]int{
	"category": types.NSCategory,
	"property": types.NSProperty,
	"concept":  types.NSConcept,
}

// Codec implements types.ValueCodec for the syntax above
type Codec struct{}

var _ types.ValueCodec = Codec{}

// Parse converts text into a value for p. An unknown kind falls back to the
// predefined kind of p, then to a page reference.
func (Codec) Parse(p types.Property, kind types.Kind, text string) (types.DataItem, error) {
	if kind == types.KindUnknown {
		if k, ok := types.PredefinedKind(p.Key); ok {
			kind = k
		} else {
			kind = types.KindWikiPage
		}
	}
	text = strings.TrimSpace(text)
	if text == "" && kind != types.KindBlob {
		return nil, errors.NewInvalidRequestError("empty %s value for %s", kind, p.Key)
	}

	switch kind {
	case types.KindNumber:
		n, err := types.ParseNumber(text)
		if err != nil {
			return nil, errors.NewInvalidRequestError("%q is not a number", text)
		}
		return n, nil
	case types.KindBlob:
		return types.Blob{Text: text}, nil
	case types.KindBoolean:
		return parseBoolean(text)
	case types.KindURI:
		return parseURI(text)
	case types.KindTime:
		return ParseTime(text)
	case types.KindGeo:
		g, err := types.ParseGeoCoord(text)
		if err != nil {
			return nil, errors.NewInvalidRequestError("%q is not a coordinate", text)
		}
		return g, nil
	case types.KindWikiPage:
		ns := types.NSMain
		if p.Key == types.PropInstance || p.Key == types.PropSubcat {
			ns = types.NSCategory
		}
		return types.WikiPage{Ref: ParsePage(text, ns)}, nil
	case types.KindProperty:
		return types.PropertyItem{Property: ParseProperty(text)}, nil
	case types.KindConcept:
		return types.Concept{Text: text}, nil
	case types.KindContainer:
		return nil, errors.NewInvalidRequestError("%s holds records, write them as mappings", p.Key)
	}
	return nil, errors.NewInvalidRequestError("%s values cannot be written as text", kind)
}

// Format renders item in the syntax Parse accepts
func (Codec) Format(item types.DataItem) string {
	switch v := item.(type) {
	case nil:
		return ""
	case types.Number:
		return v.Serialization()
	case types.Blob:
		return v.Text
	case types.Boolean:
		return strconv.FormatBool(v.Value)
	case types.URI:
		return v.Value
	case types.Time:
		return FormatTime(v)
	case types.GeoCoord:
		return v.Serialization()
	case types.WikiPage:
		return v.Ref.String()
	case types.Container:
		if v.Data == nil {
			return ""
		}
		return v.Data.Subject().String()
	case types.Concept:
		return v.Text
	case types.PropertyItem:
		if v.Property.Inverse {
			return "-" + v.Property.Key
		}
		return v.Property.Key
	case types.Error:
		return strings.Join(v.Messages, "; ")
	}
	return item.Hash()
}

func parseBoolean(text string) (types.DataItem, error) {
	switch strings.ToLower(text) {
	case "true", "yes", "1":
		return types.Boolean{Value: true}, nil
	case "false", "no", "0":
		return types.Boolean{Value: false}, nil
	}
	return nil, errors.NewInvalidRequestError("%q is not a boolean", text)
}

func parseURI(text string) (types.DataItem, error) {
	u, err := url.Parse(text)
	if err != nil || u.Scheme == "" {
		return nil, errors.NewInvalidRequestError("%q is not an absolute URI", text)
	}
	return types.URI{Value: text}, nil
}

// ParsePage reads a page reference. A known namespace prefix ("Category:")
// overrides ns; "#name" selects a subobject.
func ParsePage(text string, ns int) types.EntityRef {
	text = strings.TrimSpace(text)
	var sub string
	if i := strings.LastIndexByte(text, '#'); i > 0 {
		text, sub = text[:i], strings.TrimSpace(text[i+1:])
	}
	if i := strings.IndexByte(text, ':'); i > 0 {
		if n, ok := namespaceByPrefix[strings.ToLower(text[:i])]; ok {
			ns, text = n, text[i+1:]
		}
	}
	return types.NewPage(text, ns).WithSubobject(sub)
}

// ParseProperty reads a property key; a leading '-' selects the inverse
func ParseProperty(text string) types.Property {
	text = strings.TrimSpace(text)
	inverse := strings.HasPrefix(text, "-")
	p := types.NewProperty(strings.TrimPrefix(text, "-"))
	p.Inverse = inverse
	return p
}

// ParseTime reads "[-]year[-month[-day[Thh:mm[:ss]]]]" with an optional
// trailing "JL" for the Julian calendar
func ParseTime(text string) (types.Time, error) {
	t := types.Time{Calendar: types.Gregorian}
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, julianSuffix) {
		t.Calendar = types.Julian
		text = strings.TrimSpace(strings.TrimSuffix(text, julianSuffix))
	}
	bad := errors.NewInvalidRequestError("%q is not a date", text)

	negative := strings.HasPrefix(text, "-")
	text = strings.TrimPrefix(text, "-")
	date, clock, hasClock := strings.Cut(strings.Replace(text, " ", "T", 1), "T")

	parts := strings.Split(date, "-")
	if len(parts) > 3 || parts[0] == "" {
		return types.Time{}, bad
	}
	nums := make([]int, len(parts))
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return types.Time{}, bad
		}
		nums[i] = n
	}
	t.Year = nums[0]
	if negative {
		t.Year = -t.Year
	}
	if len(nums) > 1 {
		t.Month = nums[1]
	}
	if len(nums) > 2 {
		t.Day = nums[2]
	}
	if t.Month < 0 || t.Month > 12 || t.Day < 0 || t.Day > 31 || (t.Day > 0 && t.Month == 0) {
		return types.Time{}, bad
	}

	if hasClock {
		if t.Day == 0 {
			return types.Time{}, bad
		}
		fields := strings.Split(strings.TrimSuffix(clock, "Z"), ":")
		if len(fields) < 2 || len(fields) > 3 {
			return types.Time{}, bad
		}
		var err error
		if t.Hour, err = strconv.Atoi(fields[0]); err != nil || t.Hour < 0 || t.Hour > 23 {
			return types.Time{}, bad
		}
		if t.Minute, err = strconv.Atoi(fields[1]); err != nil || t.Minute < 0 || t.Minute > 59 {
			return types.Time{}, bad
		}
		if len(fields) == 3 {
			if t.Second, err = strconv.ParseFloat(fields[2], 64); err != nil || t.Second < 0 || t.Second >= 61 {
				return types.Time{}, bad
			}
		}
	}
	return t, nil
}

// FormatTime renders t in the form ParseTime reads
func FormatTime(t types.Time) string {
	var b strings.Builder
	if t.Year < 0 {
		fmt.Fprintf(&b, "-%04d", -t.Year)
	} else {
		fmt.Fprintf(&b, "%04d", t.Year)
	}
	switch t.Precision() {
	case types.PrecisionMonth:
		fmt.Fprintf(&b, "-%02d", t.Month)
	case types.PrecisionDay:
		fmt.Fprintf(&b, "-%02d-%02d", t.Month, t.Day)
	case types.PrecisionTime:
		fmt.Fprintf(&b, "-%02d-%02dT%02d:%02d:%s", t.Month, t.Day, t.Hour, t.Minute,
			strconv.FormatFloat(t.Second, 'f', -1, 64))
	}
	if t.Calendar == types.Julian {
		b.WriteString(" " + julianSuffix)
	}
	return b.String()
}
