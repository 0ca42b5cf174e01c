package yamlio

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sem/ask"
	"github.com/teranos/semstore/sem/types"
)

// QueryDocument is the YAML form of a query:
//
//	where:
//	  and:
//	    - property: population
//	      value: ">>1000000"
//	    - category: City
//	sort:
//	  - property: population
//	    descending: true
//	limit: 10
//
// Conditions are mappings with one of the keys and, or, property (with
// value or where), page, category, namespace or concept. Several keys in
// one mapping form a conjunction, as does a sequence. "+" matches anything.
// Values take a comparator prefix: ! (not), << and >> (strictly less and
// greater), < and > (or equal), ~ and !~ (pattern with * and ?).
type QueryDocument struct {
	Where  yaml.Node     `yaml:"where"`
	Sort   []ask.SortKey `yaml:"sort,omitempty"`
	Random bool          `yaml:"random,omitempty"`
	Limit  int           `yaml:"limit,omitempty"`
	Offset int           `yaml:"offset,omitempty"`
}

// Parser reads condition documents. It implements ask.DescriptionParser,
// so concept texts are stored as condition documents.
type Parser struct {
	codec types.ValueCodec
	kinds Kinds
}

var _ ask.DescriptionParser = (*Parser)(nil)

// NewParser creates a parser; kinds may be nil
func NewParser(kinds Kinds) *Parser {
	return &Parser{codec: Codec{}, kinds: kinds}
}

// ParseDescription parses a condition document
func (p *Parser) ParseDescription(text string) (ask.Description, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "condition is not valid YAML"), errors.ErrInvalidRequest)
	}
	return p.Condition(&node)
}

// ParseQuery parses a query document
func (p *Parser) ParseQuery(b []byte) (ask.Query, error) {
	var doc QueryDocument
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return ask.Query{}, errors.Mark(errors.Wrap(err, "query is not valid YAML"), errors.ErrInvalidRequest)
	}
	desc, err := p.Condition(&doc.Where)
	if err != nil {
		return ask.Query{}, err
	}
	return ask.Query{
		Description: desc,
		Sort:        doc.Sort,
		Random:      doc.Random,
		Limit:       doc.Limit,
		Offset:      doc.Offset,
	}, nil
}

// Condition converts a YAML node into a description
func (p *Parser) Condition(n *yaml.Node) (ask.Description, error) {
	switch n.Kind {
	case 0:
		return ask.Thing{}, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return ask.Thing{}, nil
		}
		return p.Condition(n.Content[0])
	case yaml.AliasNode:
		return p.Condition(n.Alias)
	case yaml.ScalarNode:
		if isThing(n) {
			return ask.Thing{}, nil
		}
		return p.pageValue(n)
	case yaml.SequenceNode:
		parts, err := p.list(n)
		if err != nil {
			return nil, err
		}
		return ask.Conjunction{Parts: parts}, nil
	case yaml.MappingNode:
		return p.mapping(n)
	}
	return nil, invalid(n, "unsupported condition")
}

func (p *Parser) mapping(n *yaml.Node) (ask.Description, error) {
	fields := make(map[string]*yaml.Node, len(n.Content)/2)
	var keys []string
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i].Value
		if _, dup := fields[k]; dup {
			return nil, invalid(n.Content[i], "duplicate key %q", k)
		}
		fields[k] = n.Content[i+1]
		keys = append(keys, k)
	}

	var parts []ask.Description
	for _, k := range keys {
		v := fields[k]
		var (
			d   ask.Description
			err error
		)
		switch k {
		case "and", "or":
			var list []ask.Description
			if list, err = p.list(v); err != nil {
				return nil, err
			}
			if k == "and" {
				d = ask.Conjunction{Parts: list}
			} else {
				d = ask.Disjunction{Parts: list}
			}
		case "property":
			d, err = p.property(v, fields["value"], fields["where"])
		case "value", "where":
			if fields["property"] == nil {
				return nil, invalid(v, "%s needs a property", k)
			}
			continue
		case "page":
			d, err = p.pageValue(v)
		case "category":
			d, err = p.category(v)
		case "namespace":
			d, err = namespace(v)
		case "concept":
			if v.Kind != yaml.ScalarNode {
				return nil, invalid(v, "concept must be a name")
			}
			d = ask.ConceptRef{Concept: ParsePage(v.Value, types.NSConcept)}
		default:
			return nil, invalid(n, "unknown condition key %q", k)
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, d)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return ask.Conjunction{Parts: parts}, nil
}

func (p *Parser) list(n *yaml.Node) ([]ask.Description, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, invalid(n, "expected a list of conditions")
	}
	parts := make([]ask.Description, 0, len(n.Content))
	for _, c := range n.Content {
		d, err := p.Condition(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, d)
	}
	return parts, nil
}

// property builds a SomeProperty. value holds literal conditions (a list is
// a disjunction), where a nested condition on the referenced pages.
func (p *Parser) property(n, value, where *yaml.Node) (ask.Description, error) {
	if n.Kind != yaml.ScalarNode || strings.TrimSpace(n.Value) == "" {
		return nil, invalid(n, "property must be a name")
	}
	prop := ParseProperty(n.Value)
	if value != nil && where != nil {
		return nil, invalid(n, "property %s has both value and where", prop.Key)
	}

	switch {
	case where != nil:
		d, err := p.Condition(where)
		if err != nil {
			return nil, err
		}
		return ask.SomeProperty{Property: prop, Value: d}, nil
	case value == nil:
		return ask.SomeProperty{Property: prop}, nil
	case value.Kind == yaml.SequenceNode:
		var alts []ask.Description
		for _, c := range value.Content {
			v, err := p.propertyValue(prop, c)
			if err != nil {
				return nil, err
			}
			alts = append(alts, ask.SomeProperty{Property: prop, Value: v})
		}
		return ask.Disjunction{Parts: alts}, nil
	}
	v, err := p.propertyValue(prop, value)
	if err != nil {
		return nil, err
	}
	return ask.SomeProperty{Property: prop, Value: v}, nil
}

// propertyValue reads a literal condition. Unparsable values are kept as
// Error items so that the compiler reports them next to the results.
func (p *Parser) propertyValue(prop types.Property, n *yaml.Node) (ask.Description, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, invalid(n, "value of %s must be a scalar", prop.Key)
	}
	if isThing(n) {
		return nil, nil
	}
	cmp, text := ask.EQ, n.Value
	if n.Tag == "!!str" {
		cmp, text = ask.ParseComparator(n.Value)
	}
	kind := tagKind(n.Tag)
	if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil && kind == types.KindUnknown {
		kind = types.KindNumber
	}
	if p.kinds != nil {
		kind = p.kinds.PropertyKind(prop, kind)
	}
	if prop.Inverse {
		kind = types.KindWikiPage
	}
	item, err := p.codec.Parse(prop, kind, text)
	if err != nil {
		item = types.Error{Messages: []string{err.Error()}}
	}
	return ask.ValueDescription{Item: item, Comparator: cmp}, nil
}

func (p *Parser) pageValue(n *yaml.Node) (ask.Description, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, invalid(n, "page must be a title")
	}
	cmp, text := ask.ParseComparator(n.Value)
	if strings.TrimSpace(text) == "" {
		return nil, invalid(n, "page must be a title")
	}
	return ask.ValueDescription{Item: types.WikiPage{Ref: ParsePage(text, types.NSMain)}, Comparator: cmp}, nil
}

func (p *Parser) category(n *yaml.Node) (ask.Description, error) {
	names := []*yaml.Node{n}
	if n.Kind == yaml.SequenceNode {
		names = n.Content
	}
	var cats []types.EntityRef
	for _, c := range names {
		if c.Kind != yaml.ScalarNode || strings.TrimSpace(c.Value) == "" {
			return nil, invalid(c, "category must be a name")
		}
		cats = append(cats, ParsePage(c.Value, types.NSCategory))
	}
	return ask.ClassDescription{Categories: cats}, nil
}

func namespace(n *yaml.Node) (ask.Description, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, invalid(n, "namespace must be a number or a name")
	}
	if ns, err := strconv.Atoi(n.Value); err == nil {
		return ask.NamespaceDescription{Namespace: ns}, nil
	}
	if ns, ok := namespaceByPrefix[strings.ToLower(n.Value)]; ok {
		return ask.NamespaceDescription{Namespace: ns}, nil
	}
	if strings.EqualFold(n.Value, "main") {
		return ask.NamespaceDescription{Namespace: types.NSMain}, nil
	}
	return nil, invalid(n, "unknown namespace %q", n.Value)
}

func isThing(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && (n.Tag == "!!null" || strings.TrimSpace(n.Value) == "+")
}

func invalid(n *yaml.Node, format string, args ...interface{}) error {
	return errors.WithDetailf(errors.NewInvalidRequestError(format, args...), "line %d", n.Line)
}
