package types

// Kind identifies a DataItem variant. The set is closed; every kind has
// exactly one storage strategy in package handlers.
type Kind int

const (
	KindUnknown Kind = iota
	KindNumber
	KindBlob
	KindBoolean
	KindURI
	KindTime
	KindGeo
	KindWikiPage
	KindContainer
	KindConcept
	KindProperty
	KindError
)

var kindNames = map[Kind]string{
	KindNumber:    "number",
	KindBlob:      "text",
	KindBoolean:   "boolean",
	KindURI:       "uri",
	KindTime:      "time",
	KindGeo:       "geo",
	KindWikiPage:  "page",
	KindContainer: "record",
	KindConcept:   "concept",
	KindProperty:  "property",
	KindError:     "error",
}

// String returns the configuration name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a configuration type name to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUnknown, false
}

// AllKinds lists every kind in declaration order
func AllKinds() []Kind {
	return []Kind{
		KindNumber, KindBlob, KindBoolean, KindURI, KindTime, KindGeo,
		KindWikiPage, KindContainer, KindConcept, KindProperty, KindError,
	}
}
