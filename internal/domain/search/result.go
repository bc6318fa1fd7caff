package search

import (
	"context"

	"github.com/olivere/elastic/v7"
)

// Spec is one fully assembled index request: the compiled query plus its
// aggregations, sorting, highlighting, and result window.
type Spec struct {
	Query        elastic.Query
	Aggregations map[string]elastic.Aggregation
	Sorters      []elastic.Sorter
	Highlight    *elastic.Highlight
	From         int
	Size         int
}

// Hit is one matched document.
type Hit struct {
	ID        string
	Score     float64
	Source    map[string]interface{}
	Highlight map[string][]string
}

// Result is the executed form of a Spec.
type Result struct {
	Total        int64
	Hits         []Hit
	Aggregations elastic.Aggregations
}

// Stream is a lazy document sequence over an unpaged scan. Next returns
// io.EOF when the sequence is exhausted; callers control pacing.
type Stream interface {
	Next(ctx context.Context) (map[string]interface{}, error)
	Close() error
}
