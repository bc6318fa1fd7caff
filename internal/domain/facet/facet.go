// Package facet provides stateless facet descriptors: each facet knows how to
// filter a query by selected values, register its aggregation, extract its
// buckets from an executed result, and translate rule operators into queries.
package facet

import (
	"net/url"
	"strings"

	"github.com/olivere/elastic/v7"
)

// Operator is a leaf-rule comparison operator.
type Operator string

// Rule operators. Each facet kind supports a subset.
const (
	OpEqual          Operator = "equal"
	OpNotEqual       Operator = "not_equal"
	OpContains       Operator = "contains"
	OpBeginsWith     Operator = "begins_with"
	OpIn             Operator = "in"
	OpIsNull         Operator = "is_null"
	OpIsNotNull      Operator = "is_not_null"
	OpLess           Operator = "less"
	OpLessOrEqual    Operator = "less_or_equal"
	OpGreater        Operator = "greater"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpBetween        Operator = "between"
)

// Bucket is one facet value with its document count.
type Bucket struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// AggregationOptions narrows an aggregation; used by the typeahead lookup.
type AggregationOptions struct {
	// IncludePattern restricts terms buckets to values matching this
	// case-insensitive substring.
	IncludePattern string
}

// Facet describes one filterable, aggregatable dimension. Implementations are
// stateless and shared across requests; only selected values are request-scoped.
type Facet interface {
	Field() string
	Label() string
	Filter(values []string) elastic.Query
	Aggregation(opts AggregationOptions) elastic.Aggregation
	Extract(aggs elastic.Aggregations) []Bucket
	QueryFor(op Operator, value interface{}) (elastic.Query, error)
}

// Set is an ordered facet registry.
type Set struct {
	facets  []Facet
	byField map[string]Facet
}

// NewSet creates a facet registry preserving order.
func NewSet(facets ...Facet) *Set {
	byField := make(map[string]Facet, len(facets))
	for _, f := range facets {
		byField[f.Field()] = f
	}
	return &Set{facets: facets, byField: byField}
}

// All returns the facets in registration order.
func (s *Set) All() []Facet { return s.facets }

// ByField looks up a facet by its field name.
func (s *Set) ByField(field string) (Facet, bool) {
	f, ok := s.byField[field]
	return f, ok
}

// Lookup returns facets keyed by field, for the rule compiler.
func (s *Set) Lookup() map[string]Facet { return s.byField }

// Selection pairs one facet with its request-scoped selected values.
type Selection struct {
	Facet  Facet
	Values []string
}

// Selections maps every facet except exclude to its selected values:
// request-supplied values win, then initial defaults, then empty.
func (s *Set) Selections(params url.Values, initial map[string][]string, exclude string) []Selection {
	out := make([]Selection, 0, len(s.facets))
	for _, f := range s.facets {
		if f.Field() == exclude {
			continue
		}
		values := params[f.Field()]
		if len(values) == 0 {
			values = initial[f.Field()]
		}
		out = append(out, Selection{Facet: f, Values: values})
	}
	return out
}

// caseInsensitiveRegex expands a literal substring into a regex matching it in
// any case, with regex metacharacters escaped. The index's regexp engine has
// no inline flag syntax, so letters become character classes.
func caseInsensitiveRegex(s string) string {
	var b strings.Builder
	for _, r := range s {
		lower, upper := asciiLower(r), asciiUpper(r)
		switch {
		case lower != upper:
			b.WriteByte('[')
			b.WriteRune(lower)
			b.WriteRune(upper)
			b.WriteByte(']')
		case strings.ContainsRune(`.?+*|{}[]()"\#@&<>~`, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func asciiLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func asciiUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}
