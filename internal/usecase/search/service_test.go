package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/olivere/elastic/v7"

	"github.com/openfacet/facetd/internal/domain"
	"github.com/openfacet/facetd/internal/domain/column"
	"github.com/openfacet/facetd/internal/domain/facet"
	"github.com/openfacet/facetd/internal/domain/schema"
	domsearch "github.com/openfacet/facetd/internal/domain/search"
)

type fakeIndex struct {
	total     int64
	countErr  error
	result    *domsearch.Result
	searchErr error

	lastCountQuery elastic.Query
	lastSpec       domsearch.Spec
}

func (f *fakeIndex) Count(_ context.Context, query elastic.Query) (int64, error) {
	f.lastCountQuery = query
	return f.total, f.countErr
}

func (f *fakeIndex) Search(_ context.Context, spec domsearch.Spec) (*domsearch.Result, error) {
	f.lastSpec = spec
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domsearch.Result{Total: f.total}, nil
}

func newTestService(t *testing.T, index Index, cfg Config) *Service {
	t.Helper()
	m, err := schema.ParseMapping(map[string]interface{}{
		"title": map[string]interface{}{
			"type":     "text",
			"analyzer": "snowball",
			"fields": map[string]interface{}{
				"raw": map[string]interface{}{"type": "keyword"},
			},
		},
		"status":       map[string]interface{}{"type": "keyword"},
		"published_on": map[string]interface{}{"type": "date"},
	})
	if err != nil {
		t.Fatalf("ParseMapping: %v", err)
	}
	in := schema.NewIntrospector(m, schema.Overrides{}, "snowball")
	cache, err := column.NewFormatterCache(0)
	if err != nil {
		t.Fatalf("NewFormatterCache: %v", err)
	}
	resolver := column.NewResolver(in, m, column.Options{}, cache)
	facets := facet.NewSet(facet.NewTerms("status", "Status"))
	return New(index, in, facets, resolver, cfg)
}

func querySource(t *testing.T, q elastic.Query) string {
	t.Helper()
	src, err := q.Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	encoded, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("marshal source: %v", err)
	}
	return string(encoded)
}

func aggSource(t *testing.T, agg elastic.Aggregation) string {
	t.Helper()
	src, err := agg.Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	encoded, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("marshal source: %v", err)
	}
	return string(encoded)
}

func TestRender_PagingSelfHeals(t *testing.T) {
	index := &fakeIndex{total: 15}
	svc := newTestService(t, index, Config{PageSize: 10})

	req := domsearch.ParseRequest(url.Values{"p": {"1000"}})
	page, err := svc.Simple(context.Background(), req)
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if page.Number != 1 {
		t.Errorf("page = %d, want self-healed 1", page.Number)
	}
	if index.lastSpec.From != 0 {
		t.Errorf("offset = %d, want 0", index.lastSpec.From)
	}

	req = domsearch.ParseRequest(url.Values{"p": {"2"}})
	page, err = svc.Simple(context.Background(), req)
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if page.Number != 2 || index.lastSpec.From != 10 {
		t.Errorf("page = %d offset = %d, want 2/10", page.Number, index.lastSpec.From)
	}

	// Offset landing exactly on the total is still a valid (empty) window.
	index.total = 20
	req = domsearch.ParseRequest(url.Values{"p": {"3"}})
	page, err = svc.Simple(context.Background(), req)
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if page.Number != 3 || index.lastSpec.From != 20 {
		t.Errorf("page = %d offset = %d, want boundary page kept at 3/20", page.Number, index.lastSpec.From)
	}
}

func TestRender_SortResolution(t *testing.T) {
	index := &fakeIndex{total: 1}
	svc := newTestService(t, index, Config{})

	req := domsearch.ParseRequest(url.Values{"s": {"-title", "bogus", "published_on"}})
	page, err := svc.Simple(context.Background(), req)
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}

	want := []elastic.Sorter{
		elastic.SortInfo{Field: "title.raw", Ascending: false},
		elastic.SortInfo{Field: "published_on", Ascending: true},
	}
	if len(index.lastSpec.Sorters) != len(want) {
		t.Fatalf("got %d sorters, want %d", len(index.lastSpec.Sorters), len(want))
	}
	for i, s := range want {
		if index.lastSpec.Sorters[i] != s {
			t.Errorf("sorter[%d] = %+v, want %+v", i, index.lastSpec.Sorters[i], s)
		}
	}
	if page.Sort != "-title" {
		t.Errorf("current sort = %q, want -title", page.Sort)
	}
}

func TestRender_DefaultSortOnlyWithoutKeywords(t *testing.T) {
	index := &fakeIndex{total: 1}
	svc := newTestService(t, index, Config{DefaultSorts: []string{"status"}})

	// No keywords: default sort applies.
	if _, err := svc.Simple(context.Background(), domsearch.ParseRequest(url.Values{})); err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if len(index.lastSpec.Sorters) != 1 {
		t.Fatalf("got %d sorters, want default sort", len(index.lastSpec.Sorters))
	}

	// Keywords present: leave unsorted so relevance ordering applies.
	if _, err := svc.Simple(context.Background(), domsearch.ParseRequest(url.Values{"q": {"books"}})); err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if len(index.lastSpec.Sorters) != 0 {
		t.Errorf("got %d sorters with keywords, want none", len(index.lastSpec.Sorters))
	}
}

func TestBuildSearch(t *testing.T) {
	svc := newTestService(t, &fakeIndex{}, Config{DefaultOperator: "AND"})
	statusFacet, _ := svc.facets.ByField("status")

	t.Run("empty request is match_all", func(t *testing.T) {
		q, aggs := svc.BuildSearch("", nil, false)
		if got := querySource(t, q); !strings.Contains(got, "match_all") {
			t.Errorf("query = %s, want match_all", got)
		}
		if aggs != nil {
			t.Error("aggregations should be nil when aggregate is false")
		}
	})

	t.Run("keywords search the analyzed fields", func(t *testing.T) {
		q, _ := svc.BuildSearch("books", nil, false)
		got := querySource(t, q)
		if !strings.Contains(got, "query_string") {
			t.Errorf("query = %s, want query_string clause", got)
		}
		if !strings.Contains(got, "title") {
			t.Errorf("query = %s, want searchable field title", got)
		}
		if !strings.Contains(got, `"default_operator":"AND"`) {
			t.Errorf("query = %s, want default operator", got)
		}
	})

	t.Run("selections become filters", func(t *testing.T) {
		q, aggs := svc.BuildSearch("", []facet.Selection{{Facet: statusFacet, Values: []string{"open"}}}, true)
		got := querySource(t, q)
		if !strings.Contains(got, "filter") || !strings.Contains(got, `"status":"open"`) {
			t.Errorf("query = %s, want status filter", got)
		}
		if _, ok := aggs["status"]; !ok {
			t.Error("aggregate should attach every facet's aggregation")
		}
	})
}

func TestSimple_FacetSummaries(t *testing.T) {
	index := &fakeIndex{
		total: 2,
		result: &domsearch.Result{
			Total: 2,
			Aggregations: elastic.Aggregations{
				"status": json.RawMessage(`{"buckets":[{"key":"open","doc_count":2}]}`),
			},
		},
	}
	svc := newTestService(t, index, Config{})

	page, err := svc.Simple(context.Background(), domsearch.ParseRequest(url.Values{}))
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	buckets := page.Facets["status"]
	if len(buckets) != 1 || buckets[0].Value != "open" || buckets[0].Count != 2 {
		t.Errorf("facet summary = %+v, want open/2", buckets)
	}
}

func TestSimple_CanonicalQuerystring(t *testing.T) {
	svc := newTestService(t, &fakeIndex{total: 100}, Config{})

	values, _ := url.ParseQuery("status=open&q=books&p=1")
	page, err := svc.Simple(context.Background(), domsearch.ParseRequest(values))
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if page.Querystring != "q=books&status=open" {
		t.Errorf("querystring = %q, want q=books&status=open", page.Querystring)
	}
	if page.Reset != "q=books&status=open" {
		t.Errorf("reset = %q, want q=books&status=open", page.Reset)
	}

	// Paging never survives in either form; sort and recall markers survive
	// only in the bookmarkable form.
	values, _ = url.ParseQuery("status=open&q=books&p=3&s=-title&f=status&saved_search=7")
	page, err = svc.Simple(context.Background(), domsearch.ParseRequest(values))
	if err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if page.Querystring != "f=status&q=books&s=-title&saved_search=7&status=open" {
		t.Errorf("querystring = %q, want sort and facet keys kept, p dropped", page.Querystring)
	}
	if page.Reset != "f=status&q=books&status=open" {
		t.Errorf("reset = %q, want paging, sort, and recall keys dropped", page.Reset)
	}
	if len(page.SelectedFacets) != 1 || page.SelectedFacets[0] != "status" {
		t.Errorf("selected facets = %v, want [status]", page.SelectedFacets)
	}
}

func TestRender_Highlight(t *testing.T) {
	index := &fakeIndex{total: 1}
	svc := newTestService(t, index, Config{HighlightEnabled: true, HighlightEncoder: "html"})

	req := domsearch.ParseRequest(url.Values{"q": {"books"}, "d": {"title"}})
	if _, err := svc.Simple(context.Background(), req); err != nil {
		t.Fatalf("Simple: %v", err)
	}
	if index.lastSpec.Highlight == nil {
		t.Fatal("highlight should be requested")
	}
	src, err := index.lastSpec.Highlight.Source()
	if err != nil {
		t.Fatalf("highlight source: %v", err)
	}
	encoded, _ := json.Marshal(src)
	got := string(encoded)
	if !strings.Contains(got, "title") {
		t.Errorf("highlight = %s, want visible column target title", got)
	}
	if !strings.Contains(got, `"encoder":"html"`) {
		t.Errorf("highlight = %s, want html encoder", got)
	}
	if !strings.Contains(got, `"number_of_fragments":0`) {
		t.Errorf("highlight = %s, want full single-fragment mode", got)
	}
}

func TestAdvanced(t *testing.T) {
	index := &fakeIndex{total: 1}
	svc := newTestService(t, index, Config{})

	t.Run("malformed body", func(t *testing.T) {
		_, err := svc.Advanced(context.Background(), []byte(`{not json`))
		if !errors.Is(err, domain.ErrMalformedPayload) {
			t.Errorf("err = %v, want ErrMalformedPayload", err)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		_, err := svc.Advanced(context.Background(), []byte(`{"p": 1}`))
		if !errors.Is(err, domain.ErrMalformedPayload) {
			t.Errorf("err = %v, want ErrMalformedPayload", err)
		}
	})

	t.Run("unknown field in tree", func(t *testing.T) {
		body := `{"query": "{\"field\": \"ghost\", \"operator\": \"equal\", \"value\": \"x\"}"}`
		_, err := svc.Advanced(context.Background(), []byte(body))
		if !errors.Is(err, domain.ErrUnknownField) {
			t.Errorf("err = %v, want ErrUnknownField", err)
		}
	})

	t.Run("compiled tree replaces keywords and filters", func(t *testing.T) {
		body := `{"query": "{\"field\": \"status\", \"operator\": \"equal\", \"value\": \"open\"}", "p": 3}`
		page, err := svc.Advanced(context.Background(), []byte(body))
		if err != nil {
			t.Fatalf("Advanced: %v", err)
		}
		got := querySource(t, index.lastSpec.Query)
		if !strings.Contains(got, `"status":"open"`) {
			t.Errorf("query = %s, want compiled term", got)
		}
		// total=1 self-heals page 3 back to 1.
		if page.Number != 1 {
			t.Errorf("page = %d, want 1", page.Number)
		}
	})
}

func TestFacetLookup(t *testing.T) {
	index := &fakeIndex{
		result: &domsearch.Result{
			Aggregations: elastic.Aggregations{
				"status": json.RawMessage(`{"buckets":[{"key":"open","doc_count":4}]}`),
			},
		},
	}
	svc := newTestService(t, index, Config{})

	t.Run("unknown facet", func(t *testing.T) {
		req := domsearch.ParseRequest(url.Values{"_facet": {"ghost"}})
		_, err := svc.FacetLookup(context.Background(), req)
		if !errors.Is(err, domain.ErrUnknownField) {
			t.Errorf("err = %v, want ErrUnknownField", err)
		}
	})

	t.Run("pattern narrows buckets, own selection excluded", func(t *testing.T) {
		values, _ := url.ParseQuery("_facet=status&_query=op&status=closed")
		req := domsearch.ParseRequest(values)
		buckets, err := svc.FacetLookup(context.Background(), req)
		if err != nil {
			t.Fatalf("FacetLookup: %v", err)
		}
		if len(buckets) != 1 || buckets[0].Value != "open" {
			t.Errorf("buckets = %+v, want open", buckets)
		}
		if index.lastSpec.Size != 0 {
			t.Errorf("size = %d, want 0", index.lastSpec.Size)
		}
		agg := aggSource(t, index.lastSpec.Aggregations["status"])
		if !strings.Contains(agg, `.*[oO][pP].*`) {
			t.Errorf("aggregation = %s, want case-insensitive include pattern", agg)
		}
		// The facet's own selection must not constrain its lookup.
		if got := querySource(t, index.lastSpec.Query); strings.Contains(got, "closed") {
			t.Errorf("query = %s, should not filter on the target facet", got)
		}
	})
}

func TestRender_IndexErrorsPropagate(t *testing.T) {
	index := &fakeIndex{countErr: errors.New("index down")}
	svc := newTestService(t, index, Config{})

	_, err := svc.Simple(context.Background(), domsearch.ParseRequest(url.Values{}))
	if err == nil || !strings.Contains(err.Error(), "index down") {
		t.Errorf("err = %v, want wrapped index failure", err)
	}
}
