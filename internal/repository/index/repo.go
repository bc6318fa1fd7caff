// Package index executes assembled search specs against an Elasticsearch
// index through the olivere client.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/olivere/elastic/v7"

	domsearch "github.com/openfacet/facetd/internal/domain/search"
)

const (
	defaultScrollSize = 500
	scrollKeepAlive   = "1m"
)

// Repo implements usecase/search.Index and usecase/export.Index over one
// index. The client is shared and safe for concurrent use; Repo holds no
// per-request state.
type Repo struct {
	client     *elastic.Client
	index      string
	scrollSize int
}

// New creates an index repository.
func New(client *elastic.Client, index string) *Repo {
	return &Repo{client: client, index: index, scrollSize: defaultScrollSize}
}

// Ping checks cluster reachability for health reporting.
func (r *Repo) Ping(ctx context.Context) error {
	if _, err := r.client.ClusterHealth().Index(r.index).Do(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", r.index, err)
	}
	return nil
}

// Count returns the number of documents matching query.
func (r *Repo) Count(ctx context.Context, query elastic.Query) (int64, error) {
	total, err := r.client.Count(r.index).Query(query).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.index, err)
	}
	return total, nil
}

// Search executes one assembled spec and decodes the hits.
func (r *Repo) Search(ctx context.Context, spec domsearch.Spec) (*domsearch.Result, error) {
	svc := r.client.Search(r.index).
		Query(spec.Query).
		From(spec.From).
		Size(spec.Size).
		TrackTotalHits(true)
	for name, agg := range spec.Aggregations {
		svc = svc.Aggregation(name, agg)
	}
	if len(spec.Sorters) > 0 {
		svc = svc.SortBy(spec.Sorters...)
	}
	if spec.Highlight != nil {
		svc = svc.Highlight(spec.Highlight)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.index, err)
	}

	hits := make([]domsearch.Hit, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		hit, err := decodeHit(h)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", r.index, err)
		}
		hits = append(hits, hit)
	}

	return &domsearch.Result{
		Total:        res.TotalHits(),
		Hits:         hits,
		Aggregations: res.Aggregations,
	}, nil
}

func decodeHit(h *elastic.SearchHit) (domsearch.Hit, error) {
	var source map[string]interface{}
	if len(h.Source) > 0 {
		if err := json.Unmarshal(h.Source, &source); err != nil {
			return domsearch.Hit{}, fmt.Errorf("decode hit %s: %w", h.Id, err)
		}
	}
	score := 0.0
	if h.Score != nil {
		score = *h.Score
	}
	return domsearch.Hit{
		ID:        h.Id,
		Score:     score,
		Source:    source,
		Highlight: h.Highlight,
	}, nil
}

// Mapping fetches the index mapping's properties object, for schema
// introspection at startup.
func (r *Repo) Mapping(ctx context.Context) (map[string]interface{}, error) {
	res, err := r.client.GetMapping().Index(r.index).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get mapping %s: %w", r.index, err)
	}
	// Keyed by the concrete index name, which may differ from an alias.
	for _, entry := range res {
		idx, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		mappings, _ := idx["mappings"].(map[string]interface{})
		if props, ok := mappings["properties"].(map[string]interface{}); ok {
			return props, nil
		}
	}
	return nil, fmt.Errorf("get mapping %s: no properties", r.index)
}

// Scroll opens an unpaged scan over every document matching query. No sort is
// applied; documents arrive in index-internal order.
func (r *Repo) Scroll(ctx context.Context, query elastic.Query) (domsearch.Stream, error) {
	scroll := r.client.Scroll(r.index).
		Query(query).
		Size(r.scrollSize).
		KeepAlive(scrollKeepAlive)
	return &scrollStream{scroll: scroll, index: r.index}, nil
}

// scrollStream adapts the scroll API to the Stream contract, buffering one
// scroll batch at a time.
type scrollStream struct {
	scroll  *elastic.ScrollService
	index   string
	pending []json.RawMessage
}

func (s *scrollStream) Next(ctx context.Context) (map[string]interface{}, error) {
	for len(s.pending) == 0 {
		res, err := s.scroll.Do(ctx)
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("scroll %s: %w", s.index, err)
		}
		if len(res.Hits.Hits) == 0 {
			return nil, io.EOF
		}
		for _, h := range res.Hits.Hits {
			s.pending = append(s.pending, h.Source)
		}
	}

	raw := s.pending[0]
	s.pending = s.pending[1:]
	var source map[string]interface{}
	if err := json.Unmarshal(raw, &source); err != nil {
		return nil, fmt.Errorf("scroll %s: decode hit: %w", s.index, err)
	}
	return source, nil
}

func (s *scrollStream) Close() error {
	return s.scroll.Clear(context.Background())
}
