package facet

import (
	"time"

	"github.com/olivere/elastic/v7"

	"github.com/openfacet/facetd/internal/domain"
)

// Interval is a calendar bucketing interval for date histograms.
type Interval string

// Supported calendar intervals.
const (
	Yearly  Interval = "year"
	Monthly Interval = "month"
	Daily   Interval = "day"
)

// layout returns the Go time layout for bucket keys at this interval.
func (i Interval) layout() string {
	switch i {
	case Yearly:
		return "2006"
	case Daily:
		return "2006-01-02"
	default:
		return "2006-01"
	}
}

// keyFormat returns the index-side date format for bucket keys.
func (i Interval) keyFormat() string {
	switch i {
	case Yearly:
		return "yyyy"
	case Daily:
		return "yyyy-MM-dd"
	default:
		return "yyyy-MM"
	}
}

// next returns the start of the period following t.
func (i Interval) next(t time.Time) time.Time {
	switch i {
	case Yearly:
		return t.AddDate(1, 0, 0)
	case Daily:
		return t.AddDate(0, 0, 1)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// DateHistogramFacet buckets a date field by calendar period.
type DateHistogramFacet struct {
	field    string
	label    string
	interval Interval
}

// NewDateHistogram creates a date-histogram facet over the given field.
func NewDateHistogram(field, label string, interval Interval) *DateHistogramFacet {
	if interval == "" {
		interval = Monthly
	}
	return &DateHistogramFacet{field: field, label: label, interval: interval}
}

// Field returns the facet field.
func (f *DateHistogramFacet) Field() string { return f.field }

// Label returns the display label.
func (f *DateHistogramFacet) Label() string { return f.label }

// Filter builds a clause matching documents inside any selected period.
// Unparseable period keys are skipped.
func (f *DateHistogramFacet) Filter(values []string) elastic.Query {
	var queries []elastic.Query
	for _, v := range values {
		start, err := time.Parse(f.interval.layout(), v)
		if err != nil {
			continue
		}
		queries = append(queries, f.periodQuery(start))
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return elastic.NewBoolQuery().Should(queries...)
}

func (f *DateHistogramFacet) periodQuery(start time.Time) elastic.Query {
	end := f.interval.next(start)
	return elastic.NewRangeQuery(f.field).
		Gte(start.Format(time.RFC3339)).
		Lt(end.Format(time.RFC3339))
}

// Aggregation registers the calendar-interval date histogram.
func (f *DateHistogramFacet) Aggregation(_ AggregationOptions) elastic.Aggregation {
	return elastic.NewDateHistogramAggregation().
		Field(f.field).
		CalendarInterval(string(f.interval)).
		Format(f.interval.keyFormat()).
		MinDocCount(1)
}

// Extract reads the histogram buckets out of an executed result.
func (f *DateHistogramFacet) Extract(aggs elastic.Aggregations) []Bucket {
	hist, ok := aggs.DateHistogram(f.field)
	if !ok {
		return nil
	}
	out := make([]Bucket, 0, len(hist.Buckets))
	for _, b := range hist.Buckets {
		value := ""
		if b.KeyAsString != nil {
			value = *b.KeyAsString
		} else {
			value = time.UnixMilli(int64(b.Key)).UTC().Format(f.interval.layout())
		}
		out = append(out, Bucket{Value: value, Count: b.DocCount})
	}
	return out
}

// QueryFor translates a leaf-rule operator into a query expression.
// Equality on a period key expands to the period's half-open range.
func (f *DateHistogramFacet) QueryFor(op Operator, value interface{}) (elastic.Query, error) {
	switch op {
	case OpEqual:
		s, ok := value.(string)
		if ok {
			if start, err := time.Parse(f.interval.layout(), s); err == nil {
				return f.periodQuery(start), nil
			}
		}
		return elastic.NewTermQuery(f.field, value), nil
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
