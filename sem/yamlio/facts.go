package yamlio

import (
	"bytes"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/types"
)

// Kinds decides the storage kind of a property; *catalog.Catalog satisfies it
type Kinds interface {
	PropertyKind(p types.Property, hint types.Kind) types.Kind
}

// FactDocument is the YAML form of one subject:
//
//	subject: Paris
//	facts:
//	  population: 2161000
//	  located_in: [France, Europe]
//	  census:            # a record, stored as an anonymous subobject
//	    year: 2020
//	subobjects:
//	  visit:
//	    date: 2024-05-01
//
// A document with redirect set turns the subject into a redirect.
type FactDocument struct {
	Subject    string               `yaml:"subject"`
	Namespace  int                  `yaml:"namespace,omitempty"`
	Sortkey    string               `yaml:"sortkey,omitempty"`
	Redirect   string               `yaml:"redirect,omitempty"`
	Facts      yaml.Node            `yaml:"facts,omitempty"`
	Subobjects map[string]yaml.Node `yaml:"subobjects,omitempty"`
}

// Loader turns fact documents into SemanticData
type Loader struct {
	codec types.ValueCodec
	kinds Kinds
}

// NewLoader creates a loader. kinds may be nil, in which case the YAML tag
// of each value decides and untagged strings are page references.
func NewLoader(kinds Kinds) *Loader {
	return &Loader{codec: Codec{}, kinds: kinds}
}

// Decode reads every document of a YAML stream
func (l *Loader) Decode(in io.Reader) ([]*types.SemanticData, error) {
	dec := yaml.NewDecoder(in)
	var out []*types.SemanticData
	for {
		var doc FactDocument
		err := dec.Decode(&doc)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "decode fact document %d", len(out)+1)
		}
		data, err := l.Build(&doc)
		if err != nil {
			return nil, errors.Wrapf(err, "fact document %d", len(out)+1)
		}
		out = append(out, data)
	}
}

// DecodeBytes is Decode over an in-memory stream
func (l *Loader) DecodeBytes(b []byte) ([]*types.SemanticData, error) {
	return l.Decode(bytes.NewReader(b))
}

// Build converts one document. Values that do not parse become Error items,
// which the writer reports and drops.
func (l *Loader) Build(doc *FactDocument) (*types.SemanticData, error) {
	if doc.Subject == "" {
		return nil, errors.NewInvalidRequestError("fact document has no subject")
	}
	subject := ParsePage(doc.Subject, doc.Namespace)
	if doc.Namespace != 0 {
		subject.Namespace = doc.Namespace
	}
	if subject.IsSubobject() {
		return nil, errors.NewInvalidRequestError("subject %s must be a page", subject)
	}
	data := types.NewSemanticData(subject)

	if doc.Redirect != "" {
		data.AddValue(types.NewProperty(types.PropRedirect), types.WikiPage{Ref: ParsePage(doc.Redirect, subject.Namespace)})
	}
	if doc.Sortkey != "" {
		data.AddValue(types.NewProperty(types.PropSortkey), types.Blob{Text: doc.Sortkey})
	}
	if err := l.addFacts(data, &doc.Facts, true); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc.Subobjects))
	for name := range doc.Subobjects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		node := doc.Subobjects[name]
		sub := types.NewSemanticData(subject.WithSubobject(name))
		if err := l.addFacts(sub, &node, false); err != nil {
			return nil, errors.Wrapf(err, "subobject %s", name)
		}
		if err := data.AddSubobject(sub); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// addFacts reads a property mapping into data. Records are only allowed
// on the top level.
func (l *Loader) addFacts(data *types.SemanticData, node *yaml.Node, records bool) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return errors.NewInvalidRequestError("facts of %s must be a mapping (line %d)", data.Subject(), node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		p := types.NewProperty(node.Content[i].Value)
		if p.Key == "" {
			return errors.NewInvalidRequestError("empty property key (line %d)", node.Content[i].Line)
		}
		value := node.Content[i+1]
		items := []*yaml.Node{value}
		if value.Kind == yaml.SequenceNode {
			items = value.Content
		}
		for _, n := range items {
			item, err := l.value(data.Subject(), p, n, records)
			if err != nil {
				return err
			}
			data.AddValue(p, item)
		}
	}
	return nil
}

func (l *Loader) value(subject types.EntityRef, p types.Property, n *yaml.Node, records bool) (types.DataItem, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return l.scalar(p, n), nil
	case yaml.MappingNode:
		if !records {
			return types.Error{Messages: []string{p.Key + ": records cannot be nested"}}, nil
		}
		return l.record(subject, p, n)
	case yaml.AliasNode:
		return l.value(subject, p, n.Alias, records)
	}
	return nil, errors.NewInvalidRequestError("unsupported value for %s (line %d)", p.Key, n.Line)
}

func (l *Loader) scalar(p types.Property, n *yaml.Node) types.DataItem {
	kind := tagKind(n.Tag)
	if l.kinds != nil {
		kind = l.kinds.PropertyKind(p, kind)
	}
	item, err := l.codec.Parse(p, kind, n.Value)
	if err != nil {
		return types.Error{Messages: []string{err.Error()}}
	}
	return item
}

// record stores a mapping as a subobject named after its content, so that
// writing the same record again keeps the same subobject.
func (l *Loader) record(subject types.EntityRef, p types.Property, n *yaml.Node) (types.DataItem, error) {
	draft := types.NewSemanticData(subject.WithSubobject("_"))
	if err := l.addFacts(draft, n, false); err != nil {
		return nil, err
	}
	name := "_" + p.Key + "_" + shortHash(draft.Hash())
	sub := types.NewSemanticData(subject.WithSubobject(name))
	for _, prop := range draft.Properties() {
		for _, v := range draft.Values(prop) {
			sub.AddValue(prop, v)
		}
	}
	return types.Container{Data: sub}, nil
}

func shortHash(s string) string {
	const digits = "0123456789abcdef"
	h := xxhash.Sum64String(s)
	b := make([]byte, 8)
	for i := range b {
		b[i] = digits[h&0xf]
		h >>= 4
	}
	return string(b)
}

// tagKind maps resolved YAML tags to a value kind hint
func tagKind(tag string) types.Kind {
	switch tag {
	case "!!int", "!!float":
		return types.KindNumber
	case "!!bool":
		return types.KindBoolean
	case "!!timestamp":
		return types.KindTime
	}
	return types.KindUnknown
}

// FactsOf renders data as a document, the inverse of Build
func FactsOf(data *types.SemanticData) (*FactDocument, error) {
	codec := Codec{}
	subject := data.Subject()
	doc := &FactDocument{Subject: subject.String()}
	if _, named := types.NamespacePrefix(subject.Namespace); !named && subject.Namespace != types.NSMain {
		doc.Subject, doc.Namespace = subject.DefaultSortkey(), subject.Namespace
	}

	facts, err := factsNode(codec, data, true)
	if err != nil {
		return nil, err
	}
	for _, prop := range data.Properties() {
		switch prop.Key {
		case types.PropRedirect:
			for _, v := range data.Values(prop) {
				doc.Redirect = codec.Format(v)
			}
		case types.PropSortkey:
			for _, v := range data.Values(prop) {
				doc.Sortkey = codec.Format(v)
			}
		}
	}
	if len(facts.Content) > 0 {
		doc.Facts = *facts
	}

	for _, sub := range data.Subobjects() {
		if isRecord(data, sub) {
			continue
		}
		node, err := factsNode(codec, sub, false)
		if err != nil {
			return nil, err
		}
		if doc.Subobjects == nil {
			doc.Subobjects = make(map[string]yaml.Node)
		}
		doc.Subobjects[sub.Subject().Subobject] = *node
	}
	return doc, nil
}

// MarshalFacts renders data as YAML
func MarshalFacts(data *types.SemanticData) ([]byte, error) {
	doc, err := FactsOf(data)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// isRecord reports whether sub is the value of one of data's record properties
func isRecord(data *types.SemanticData, sub *types.SemanticData) bool {
	for _, p := range data.Properties() {
		for _, v := range data.Values(p) {
			if c, ok := v.(types.Container); ok && c.Data != nil && c.Data.Subject() == sub.Subject() {
				return true
			}
		}
	}
	return false
}

func factsNode(codec Codec, data *types.SemanticData, records bool) (*yaml.Node, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range data.Properties() {
		if p.Key == types.PropRedirect || p.Key == types.PropSortkey {
			continue
		}
		var values []*yaml.Node
		for _, v := range data.Values(p) {
			n, err := valueNode(codec, data, v, records)
			if err != nil {
				return nil, err
			}
			if n != nil {
				values = append(values, n)
			}
		}
		if len(values) == 0 {
			continue
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: p.Key}
		if len(values) == 1 {
			out.Content = append(out.Content, key, values[0])
			continue
		}
		out.Content = append(out.Content, key, &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle, Content: values})
	}
	return out, nil
}

func valueNode(codec Codec, data *types.SemanticData, v types.DataItem, records bool) (*yaml.Node, error) {
	switch v := v.(type) {
	case types.Number:
		if v.Value == math.Trunc(v.Value) && math.Abs(v.Value) < 1<<53 {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatFloat(v.Value, 'f', -1, 64)}, nil
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: v.Serialization()}, nil
	case types.Boolean:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: codec.Format(v)}, nil
	case types.Time:
		// plain dates read back as YAML timestamps; other precisions stay strings
		if v.Precision() == types.PrecisionDay && v.Calendar != types.Julian && v.Year >= 1000 && v.Year <= 9999 {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: codec.Format(v)}, nil
		}
	case types.Container:
		if !records || v.Data == nil {
			return nil, nil
		}
		sub := v.Data
		if stored, ok := data.Subobject(sub.Subject().Subobject); ok {
			sub = stored
		}
		return factsNode(codec, sub, false)
	case types.Error:
		return nil, nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: codec.Format(v)}, nil
}
