// Package search orchestrates faceted searches: it assembles queries from
// keywords, facet selections, and compiled rule trees, executes them against
// the index, and shapes paged results with facet summaries.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/olivere/elastic/v7"

	"github.com/openfacet/facetd/internal/domain"
	"github.com/openfacet/facetd/internal/domain/column"
	"github.com/openfacet/facetd/internal/domain/facet"
	qstr "github.com/openfacet/facetd/internal/domain/query"
	"github.com/openfacet/facetd/internal/domain/rule"
	"github.com/openfacet/facetd/internal/domain/schema"
	domsearch "github.com/openfacet/facetd/internal/domain/search"
)

// Full-text query flavors for keyword searches.
const (
	QueryString       = "query_string"
	SimpleQueryString = "simple_query_string"
)

const defaultPageSize = 10

// Config carries the per-view search tuning.
type Config struct {
	PageSize        int
	DefaultOperator string // AND / OR, applied to keyword queries
	QueryType       string // QueryString or SimpleQueryString
	DefaultSorts    []string
	DefaultDisplay  []string
	// InitialFacets seeds facet selections applied when the request carries
	// none for a facet.
	InitialFacets map[string][]string

	HighlightEnabled bool
	// HighlightFields overrides the per-column highlight targets when set.
	HighlightFields  []string
	HighlightEncoder string // "" or "html"
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.DefaultOperator == "" {
		c.DefaultOperator = "AND"
	}
	if c.QueryType == "" {
		c.QueryType = QueryString
	}
	return c
}

// Service coordinates query assembly, execution, and result shaping.
type Service struct {
	index   Index
	intros  *schema.Introspector
	facets  *facet.Set
	columns *column.Resolver
	cfg     Config
}

// New creates a search service.
func New(index Index, in *schema.Introspector, facets *facet.Set, columns *column.Resolver, cfg Config) *Service {
	return &Service{
		index:   index,
		intros:  in,
		facets:  facets,
		columns: columns,
		cfg:     cfg.withDefaults(),
	}
}

// Page is one rendered result page. Querystring is the canonical form of the
// request minus paging; Reset additionally strips sort and recall keys, giving
// the link back to page 1 of the unsorted search.
type Page struct {
	Hits           []domsearch.Hit
	Number         int
	Size           int
	Total          int64
	Sort           string
	Columns        []column.Column
	Facets         map[string][]facet.Bucket
	SelectedFacets []string
	Querystring    string
	Reset          string
}

// Simple runs the querystring-driven search path: keywords plus facet
// selections, with every facet aggregated for sidebar counts.
func (s *Service) Simple(ctx context.Context, req domsearch.Request) (*Page, error) {
	selections := s.facets.Selections(req.Values, s.cfg.InitialFacets, "")
	query, aggs := s.BuildSearch(req.Keywords, selections, true)
	return s.Render(ctx, req, query, aggs, s.ResolveColumns(req.Display))
}

// advancedPayload is the POST body of the rule-tree search path. Query holds
// a JSON-encoded rule tree, doubly encoded by the caller.
type advancedPayload struct {
	Query   string   `json:"query"`
	Sorts   []string `json:"s"`
	Page    int      `json:"p"`
	Display []string `json:"d"`
}

// Advanced runs the rule-tree search path: the payload's query replaces
// keywords and facet selections entirely.
func (s *Service) Advanced(ctx context.Context, body []byte) (*Page, error) {
	var payload advancedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if payload.Query == "" {
		return nil, fmt.Errorf("%w: missing query", domain.ErrMalformedPayload)
	}

	node, err := rule.Parse([]byte(payload.Query))
	if err != nil {
		return nil, err
	}
	compiled, err := rule.Compile(node, s.facets.Lookup())
	if err != nil {
		return nil, err
	}

	req := domsearch.Request{
		Sorts:  payload.Sorts,
		Page:   payload.Page,
		Values: url.Values{},
	}
	if req.Page < 1 {
		req.Page = 1
	}
	return s.Render(ctx, req, compiled, s.aggregations(facet.AggregationOptions{}), s.ResolveColumns(payload.Display))
}

// BuildSearch assembles the query for keywords and facet selections. When
// aggregate is set, every facet's aggregation is attached regardless of
// selection so sidebar counts always reflect the filtered set.
func (s *Service) BuildSearch(keywords string, selections []facet.Selection, aggregate bool) (elastic.Query, map[string]elastic.Aggregation) {
	root := elastic.NewBoolQuery()
	empty := true
	if keywords != "" {
		root.Must(s.keywordQuery(keywords))
		empty = false
	}
	for _, sel := range selections {
		if len(sel.Values) == 0 {
			continue
		}
		root.Filter(sel.Facet.Filter(sel.Values))
		empty = false
	}

	var query elastic.Query = root
	if empty {
		query = elastic.NewMatchAllQuery()
	}

	var aggs map[string]elastic.Aggregation
	if aggregate {
		aggs = s.aggregations(facet.AggregationOptions{})
	}
	return query, aggs
}

// BuildSimple assembles the simple-path query without aggregations or
// execution; the export path reuses it for unpaged scans.
func (s *Service) BuildSimple(req domsearch.Request) elastic.Query {
	selections := s.facets.Selections(req.Values, s.cfg.InitialFacets, "")
	query, _ := s.BuildSearch(req.Keywords, selections, false)
	return query
}

// ResolveColumns binds the per-request column list for the requested display
// fields.
func (s *Service) ResolveColumns(display []string) []column.Column {
	return s.columns.Resolve(s.columns.DisplayFields(display, s.cfg.DefaultDisplay))
}

func (s *Service) aggregations(opts facet.AggregationOptions) map[string]elastic.Aggregation {
	all := s.facets.All()
	aggs := make(map[string]elastic.Aggregation, len(all))
	for _, f := range all {
		aggs[f.Field()] = f.Aggregation(opts)
	}
	return aggs
}

func (s *Service) keywordQuery(keywords string) elastic.Query {
	fields := s.intros.SearchableFields()
	if s.cfg.QueryType == SimpleQueryString {
		q := elastic.NewSimpleQueryStringQuery(keywords).DefaultOperator(s.cfg.DefaultOperator)
		for _, f := range fields {
			q = q.Field(f)
		}
		return q
	}
	q := elastic.NewQueryStringQuery(keywords).DefaultOperator(s.cfg.DefaultOperator)
	for _, f := range fields {
		q = q.Field(f)
	}
	return q
}

// Render executes the assembled query and shapes one result page. A count
// query runs first so stale page numbers self-heal back to page 1 instead of
// returning an empty window.
func (s *Service) Render(ctx context.Context, req domsearch.Request, query elastic.Query, aggs map[string]elastic.Aggregation, cols []column.Column) (*Page, error) {
	sorters, current := resolveSorts(req.Sorts, cols)
	if len(sorters) == 0 && req.Keywords == "" {
		// No usable sort and no relevance scores to fall back on.
		sorters, _ = resolveSorts(s.cfg.DefaultSorts, cols)
	}

	total, err := s.index.Count(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}

	page := req.Page
	offset := (page - 1) * s.cfg.PageSize
	if int64(offset) > total {
		page, offset = 1, 0
	}

	res, err := s.index.Search(ctx, domsearch.Spec{
		Query:        query,
		Aggregations: aggs,
		Sorters:      sorters,
		Highlight:    s.highlight(cols),
		From:         offset,
		Size:         s.cfg.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	summaries := make(map[string][]facet.Bucket)
	for _, f := range s.facets.All() {
		if buckets := f.Extract(res.Aggregations); buckets != nil {
			summaries[f.Field()] = buckets
		}
	}

	return &Page{
		Hits:           res.Hits,
		Number:         page,
		Size:           s.cfg.PageSize,
		Total:          total,
		Sort:           current,
		Columns:        cols,
		Facets:         summaries,
		SelectedFacets: req.SelectedFacets,
		Querystring:    qstr.Normalize(req.Values, "p"),
		Reset:          qstr.Normalize(req.Values, "p", "s", "saved_search"),
	}, nil
}

// FacetLookup runs the single-facet typeahead: aggregate the target facet's
// values matching the request pattern, constrained by every other active
// selection but never by the target's own.
func (s *Service) FacetLookup(ctx context.Context, req domsearch.Request) ([]facet.Bucket, error) {
	target, ok := s.facets.ByField(req.FacetLookup)
	if !ok {
		return nil, domain.NewUnknownField(req.FacetLookup)
	}

	selections := s.facets.Selections(req.Values, s.cfg.InitialFacets, target.Field())
	query, _ := s.BuildSearch(req.Keywords, selections, false)

	res, err := s.index.Search(ctx, domsearch.Spec{
		Query: query,
		Aggregations: map[string]elastic.Aggregation{
			target.Field(): target.Aggregation(facet.AggregationOptions{IncludePattern: req.FacetPattern}),
		},
		Size: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("facet lookup: %w", err)
	}
	return target.Extract(res.Aggregations), nil
}

// resolveSorts maps sort tokens onto column sort keys. Unknown or unsortable
// columns are skipped silently. The second return is the first usable token,
// kept for header toggling.
func resolveSorts(tokens []string, cols []column.Column) ([]elastic.Sorter, string) {
	byField := make(map[string]column.Column, len(cols))
	for _, c := range cols {
		byField[c.Field] = c
	}

	var sorters []elastic.Sorter
	current := ""
	for _, token := range tokens {
		name := strings.TrimPrefix(token, "-")
		c, ok := byField[name]
		if !ok || c.SortKey == "" {
			continue
		}
		sorters = append(sorters, elastic.SortInfo{
			Field:     c.SortKey,
			Ascending: !strings.HasPrefix(token, "-"),
		})
		if current == "" {
			current = token
		}
	}
	return sorters, current
}

func (s *Service) highlight(cols []column.Column) *elastic.Highlight {
	if !s.cfg.HighlightEnabled {
		return nil
	}
	fields := s.cfg.HighlightFields
	if len(fields) == 0 {
		for _, c := range cols {
			if c.Visible && c.Highlight != "" {
				fields = append(fields, c.Highlight)
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}

	hl := elastic.NewHighlight().NumOfFragments(0)
	if s.cfg.HighlightEncoder != "" {
		hl = hl.Encoder(s.cfg.HighlightEncoder)
	}
	for _, f := range fields {
		hl = hl.Field(f)
	}
	return hl
}
