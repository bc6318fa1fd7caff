package facet

import (
	"fmt"

	"github.com/olivere/elastic/v7"

	"github.com/openfacet/facetd/internal/domain"
)

// Range is one named numeric bucket. A nil bound is unbounded.
type Range struct {
	Key  string
	From *float64
	To   *float64
}

// RangeFacet buckets a numeric field into configured ranges.
type RangeFacet struct {
	field  string
	label  string
	ranges []Range
}

// NewRange creates a range facet over the given field.
func NewRange(field, label string, ranges []Range) *RangeFacet {
	return &RangeFacet{field: field, label: label, ranges: ranges}
}

// Field returns the facet field.
func (f *RangeFacet) Field() string { return f.field }

// Label returns the display label.
func (f *RangeFacet) Label() string { return f.label }

// Filter builds a clause matching any of the selected range keys.
func (f *RangeFacet) Filter(values []string) elastic.Query {
	selected := make(map[string]bool, len(values))
	for _, v := range values {
		selected[v] = true
	}
	var queries []elastic.Query
	for _, r := range f.ranges {
		if !selected[r.Key] {
			continue
		}
		q := elastic.NewRangeQuery(f.field)
		if r.From != nil {
			q = q.Gte(*r.From)
		}
		if r.To != nil {
			q = q.Lt(*r.To)
		}
		queries = append(queries, q)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return elastic.NewBoolQuery().Should(queries...)
}

// Aggregation registers the keyed range aggregation. A range with neither
// bound cannot be expressed as a bucket and is skipped.
func (f *RangeFacet) Aggregation(_ AggregationOptions) elastic.Aggregation {
	agg := elastic.NewRangeAggregation().Field(f.field)
	for _, r := range f.ranges {
		switch {
		case r.From == nil && r.To == nil:
			continue
		case r.From == nil:
			agg = agg.AddUnboundedFromWithKey(r.Key, *r.To)
		case r.To == nil:
			agg = agg.AddUnboundedToWithKey(r.Key, *r.From)
		default:
			agg = agg.AddRangeWithKey(r.Key, *r.From, *r.To)
		}
	}
	return agg
}

// Extract reads the range buckets out of an executed result.
func (f *RangeFacet) Extract(aggs elastic.Aggregations) []Bucket {
	ranges, ok := aggs.Range(f.field)
	if !ok {
		return nil
	}
	out := make([]Bucket, 0, len(ranges.Buckets))
	for _, b := range ranges.Buckets {
		out = append(out, Bucket{Value: b.Key, Count: b.DocCount})
	}
	return out
}

// QueryFor translates a leaf-rule operator into a query expression.
func (f *RangeFacet) QueryFor(op Operator, value interface{}) (elastic.Query, error) {
	switch op {
	case OpEqual:
		return elastic.NewTermQuery(f.field, value), nil
	case OpNotEqual:
		return elastic.NewBoolQuery().MustNot(elastic.NewTermQuery(f.field, value)), nil
	case OpLess:
		return elastic.NewRangeQuery(f.field).Lt(value), nil
	case OpLessOrEqual:
		return elastic.NewRangeQuery(f.field).Lte(value), nil
	case OpGreater:
		return elastic.NewRangeQuery(f.field).Gt(value), nil
	case OpGreaterOrEqual:
		return elastic.NewRangeQuery(f.field).Gte(value), nil
	case OpBetween:
		lo, hi, err := valuePair(value)
		if err != nil {
			return nil, domain.NewUnsupportedOperator(f.field, string(op))
		}
		return elastic.NewRangeQuery(f.field).Gte(lo).Lte(hi), nil
	case OpIsNull:
		return elastic.NewBoolQuery().MustNot(elastic.NewExistsQuery(f.field)), nil
	case OpIsNotNull:
		return elastic.NewExistsQuery(f.field), nil
	default:
		return nil, domain.NewUnsupportedOperator(f.field, string(op))
	}
}

// valuePair coerces a rule value into a two-element bound pair.
func valuePair(value interface{}) (interface{}, interface{}, error) {
	list, ok := value.([]interface{})
	if !ok || len(list) != 2 {
		return nil, nil, fmt.Errorf("between requires exactly two bounds")
	}
	return list[0], list[1], nil
}
