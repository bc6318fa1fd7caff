package facet

import (
	"fmt"

	"github.com/olivere/elastic/v7"

	"github.com/openfacet/facetd/internal/domain"
)

const defaultTermsSize = 10

// TermsFacet buckets a keyword field by exact value.
type TermsFacet struct {
	field string
	label string
	size  int
}

// NewTerms creates a terms facet over the given field.
func NewTerms(field, label string) *TermsFacet {
	return &TermsFacet{field: field, label: label, size: defaultTermsSize}
}

// WithSize sets the maximum number of buckets returned.
func (f *TermsFacet) WithSize(size int) *TermsFacet {
	if size > 0 {
		f.size = size
	}
	return f
}

// Field returns the facet field.
func (f *TermsFacet) Field() string { return f.field }

// Label returns the display label.
func (f *TermsFacet) Label() string { return f.label }

// Filter builds the filter clause for the selected values.
func (f *TermsFacet) Filter(values []string) elastic.Query {
	if len(values) == 1 {
		return elastic.NewTermQuery(f.field, values[0])
	}
	vals := make([]interface{}, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return elastic.NewTermsQuery(f.field, vals...)
}

// Aggregation registers the terms aggregation, optionally narrowed to buckets
// matching a case-insensitive substring pattern.
func (f *TermsFacet) Aggregation(opts AggregationOptions) elastic.Aggregation {
	agg := elastic.NewTermsAggregation().Field(f.field).Size(f.size)
	if opts.IncludePattern != "" {
		agg = agg.Include(".*" + caseInsensitiveRegex(opts.IncludePattern) + ".*")
	}
	return agg
}

// Extract reads the terms buckets out of an executed result.
func (f *TermsFacet) Extract(aggs elastic.Aggregations) []Bucket {
	terms, ok := aggs.Terms(f.field)
	if !ok {
		return nil
	}
	out := make([]Bucket, 0, len(terms.Buckets))
	for _, b := range terms.Buckets {
		value := ""
		if b.KeyAsString != nil {
			value = *b.KeyAsString
		} else {
			value = fmt.Sprintf("%v", b.Key)
		}
		out = append(out, Bucket{Value: value, Count: b.DocCount})
	}
	return out
}

// QueryFor translates a leaf-rule operator into a query expression.
func (f *TermsFacet) QueryFor(op Operator, value interface{}) (elastic.Query, error) {
	switch op {
	case OpEqual:
		return elastic.NewTermQuery(f.field, value), nil
	case OpNotEqual:
		return elastic.NewBoolQuery().MustNot(elastic.NewTermQuery(f.field, value)), nil
	case OpContains:
		return elastic.NewWildcardQuery(f.field, "*"+fmt.Sprintf("%v", value)+"*"), nil
	case OpBeginsWith:
		return elastic.NewPrefixQuery(f.field, fmt.Sprintf("%v", value)), nil
	case OpIn:
		values, err := valueList(value)
		if err != nil {
			return nil, domain.NewUnsupportedOperator(f.field, string(op))
		}
		return elastic.NewTermsQuery(f.field, values...), nil
	case OpIsNull:
		return elastic.NewBoolQuery().MustNot(elastic.NewExistsQuery(f.field)), nil
	case OpIsNotNull:
		return elastic.NewExistsQuery(f.field), nil
	default:
		return nil, domain.NewUnsupportedOperator(f.field, string(op))
	}
}

// valueList coerces a rule value into a terms list.
func valueList(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		return v, nil
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("value list is empty")
	default:
		return []interface{}{v}, nil
	}
}
