// Package schema models the document schema of the backing index and answers
// display, sorting, highlighting, and searchability questions about fields.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Kind is the data kind of an index field.
type Kind string

// Field kinds. Object and Nested are container kinds.
const (
	Text    Kind = "text"
	Keyword Kind = "keyword"
	Number  Kind = "number"
	Date    Kind = "date"
	Boolean Kind = "boolean"
	Object  Kind = "object"
	Nested  Kind = "nested"
)

// IsContainer reports whether the kind holds sub-fields.
func (k Kind) IsContainer() bool {
	return k == Object || k == Nested
}

// Field is per-field metadata derived once from the index mapping.
type Field struct {
	Name       string
	Kind       Kind
	Analyzer   string
	HasRaw     bool
	Properties []Field
}

// Mapping is the parsed document schema: top-level fields in name order.
type Mapping struct {
	fields []Field
	byName map[string]Field
}

// numericTypes are the index field types folded into the Number kind.
var numericTypes = map[string]struct{}{
	"long": {}, "integer": {}, "short": {}, "byte": {},
	"double": {}, "float": {}, "half_float": {}, "scaled_float": {},
}

// ParseMapping builds a Mapping from the "properties" object of an index
// mapping. Field order is normalized to name order since the wire form
// carries none.
func ParseMapping(properties map[string]interface{}) (*Mapping, error) {
	fields, err := parseProperties(properties)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	return &Mapping{fields: fields, byName: byName}, nil
}

func parseProperties(properties map[string]interface{}) ([]Field, error) {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		def, ok := properties[name].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %q: definition is not an object", name)
		}
		f, err := parseField(name, def)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseField(name string, def map[string]interface{}) (Field, error) {
	f := Field{Name: name}

	typ, _ := def["type"].(string)
	sub, hasProps := def["properties"].(map[string]interface{})

	switch {
	case typ == "nested":
		f.Kind = Nested
	case hasProps && (typ == "" || typ == "object"):
		f.Kind = Object
	case typ == "text" || typ == "string":
		f.Kind = Text
	case typ == "keyword":
		f.Kind = Keyword
	case typ == "date":
		f.Kind = Date
	case typ == "boolean":
		f.Kind = Boolean
	default:
		if _, ok := numericTypes[typ]; ok {
			f.Kind = Number
		} else if typ == "" {
			return Field{}, fmt.Errorf("field %q: missing type", name)
		} else {
			// Unknown scalar types behave like keywords: exact match, sortable.
			f.Kind = Keyword
		}
	}

	if analyzer, ok := def["analyzer"].(string); ok {
		f.Analyzer = analyzer
	}

	if multi, ok := def["fields"].(map[string]interface{}); ok {
		if raw, ok := multi["raw"].(map[string]interface{}); ok {
			if rawType, _ := raw["type"].(string); rawType == "keyword" || rawType == "string" {
				f.HasRaw = true
			}
		}
	}

	if f.Kind.IsContainer() && sub != nil {
		props, err := parseProperties(sub)
		if err != nil {
			return Field{}, fmt.Errorf("field %q: %w", name, err)
		}
		f.Properties = props
	}

	return f, nil
}

// Fields returns the top-level fields in name order.
func (m *Mapping) Fields() []Field { return m.fields }

// Field looks up a top-level field by name.
func (m *Mapping) Field(name string) (Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// FieldNames returns every top-level field name in order.
func (m *Mapping) FieldNames() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.Name
	}
	return names
}

// Overrides carries explicit per-field configuration that wins over
// mapping-derived answers.
type Overrides struct {
	Labels     map[string]string
	SortKeys   map[string]string
	Highlights map[string]string
	Searchable []string
}

// Introspector answers schema questions for one mapping, honoring overrides.
// Read-only after construction; safe for concurrent use.
type Introspector struct {
	mapping         *Mapping
	overrides       Overrides
	defaultAnalyzer string
}

// NewIntrospector creates an Introspector. defaultAnalyzer is the full-text
// analyzer that marks a field as keyword-searchable.
func NewIntrospector(m *Mapping, o Overrides, defaultAnalyzer string) *Introspector {
	return &Introspector{mapping: m, overrides: o, defaultAnalyzer: defaultAnalyzer}
}

// Label returns a human-readable label for the field. Trailing ".raw" is
// stripped before lookup.
func (in *Introspector) Label(name string) string {
	name = strings.TrimSuffix(name, ".raw")
	if label, ok := in.overrides.Labels[name]; ok {
		return label
	}
	return humanize(name)
}

func humanize(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	runes := []rune(s)
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}

// SortKey returns the field to sort on, or "" when the field is unsortable.
// ".raw"-suffixed names are already sort keys and pass through unchanged.
func (in *Introspector) SortKey(name string) string {
	if strings.HasSuffix(name, ".raw") {
		return name
	}
	if key, ok := in.overrides.SortKeys[name]; ok {
		return key
	}
	f, ok := in.mapping.Field(name)
	if !ok {
		return ""
	}
	switch {
	case f.Kind.IsContainer():
		return ""
	case f.Kind != Text:
		return name
	case f.HasRaw:
		return name + ".raw"
	default:
		// Analyzed text without an unanalyzed sibling cannot be sorted.
		return ""
	}
}

// HighlightTarget returns the highlight field or pattern for the field, or ""
// for unknown fields. Container fields expand to a wildcard over sub-fields.
func (in *Introspector) HighlightTarget(name string) string {
	if target, ok := in.overrides.Highlights[name]; ok {
		return target
	}
	f, ok := in.mapping.Field(name)
	if !ok {
		return ""
	}
	if f.Kind.IsContainer() {
		return name + ".*"
	}
	return name
}

// SearchableFields returns the full-text searchable fields: the explicit
// override list when configured, else every field (recursing through
// containers, dot-joined) analyzed with the default analyzer.
func (in *Introspector) SearchableFields() []string {
	if len(in.overrides.Searchable) > 0 {
		return in.overrides.Searchable
	}
	return collectSearchable(in.mapping.Fields(), "", in.defaultAnalyzer)
}

func collectSearchable(fields []Field, prefix, analyzer string) []string {
	var out []string
	for _, f := range fields {
		if f.Analyzer == analyzer && analyzer != "" {
			out = append(out, prefix+f.Name)
		}
		if len(f.Properties) > 0 {
			out = append(out, collectSearchable(f.Properties, prefix+f.Name+".", analyzer)...)
		}
	}
	return out
}
