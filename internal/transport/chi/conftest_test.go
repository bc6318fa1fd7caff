package chi

import (
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/olivere/elastic/v7"
	"go.uber.org/zap"

	"github.com/openfacet/facetd/internal/domain"
	"github.com/openfacet/facetd/internal/domain/column"
	"github.com/openfacet/facetd/internal/domain/facet"
	domsaved "github.com/openfacet/facetd/internal/domain/saved"
	"github.com/openfacet/facetd/internal/domain/schema"
	domsearch "github.com/openfacet/facetd/internal/domain/search"
	exportuc "github.com/openfacet/facetd/internal/usecase/export"
	healthuc "github.com/openfacet/facetd/internal/usecase/health"
	saveduc "github.com/openfacet/facetd/internal/usecase/saved"
	searchuc "github.com/openfacet/facetd/internal/usecase/search"
)

// fakeIndex serves canned results for both search and scroll contracts.
type fakeIndex struct {
	total  int64
	result *domsearch.Result
	docs   []map[string]interface{}

	lastSpec domsearch.Spec
}

func (f *fakeIndex) Count(context.Context, elastic.Query) (int64, error) {
	return f.total, nil
}

func (f *fakeIndex) Search(_ context.Context, spec domsearch.Spec) (*domsearch.Result, error) {
	f.lastSpec = spec
	if f.result != nil {
		return f.result, nil
	}
	return &domsearch.Result{Total: f.total}, nil
}

func (f *fakeIndex) Scroll(context.Context, elastic.Query) (domsearch.Stream, error) {
	return &sliceStream{docs: f.docs}, nil
}

type sliceStream struct {
	docs []map[string]interface{}
	pos  int
}

func (s *sliceStream) Next(context.Context) (map[string]interface{}, error) {
	if s.pos >= len(s.docs) {
		return nil, io.EOF
	}
	doc := s.docs[s.pos]
	s.pos++
	return doc, nil
}

func (s *sliceStream) Close() error { return nil }

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

// memStore implements saveduc.Store in memory.
type memStore struct {
	searches map[string]domsaved.Search
	nextID   int
}

func newMemStore() *memStore {
	return &memStore{searches: make(map[string]domsaved.Search), nextID: 1}
}

func (m *memStore) Find(_ context.Context, url, id, user string) (domsaved.Search, error) {
	s, ok := m.searches[id]
	if !ok || s.URL != url || s.User != user {
		return domsaved.Search{}, domain.ErrSavedSearchNotFound
	}
	return s, nil
}

func (m *memStore) FindDefault(_ context.Context, url, user string) (domsaved.Search, bool, error) {
	for _, s := range m.searches {
		if s.URL == url && s.User == user && s.IsDefault {
			return s, true, nil
		}
	}
	return domsaved.Search{}, false, nil
}

func (m *memStore) ListForURL(_ context.Context, url, user string) ([]domsaved.Search, error) {
	var out []domsaved.Search
	for _, s := range m.searches {
		if s.URL == url && s.User == user {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, s domsaved.Search) (domsaved.Search, error) {
	s.ID = strconv.Itoa(m.nextID)
	m.nextID++
	m.searches[s.ID] = s
	return s, nil
}

func (m *memStore) Update(_ context.Context, s domsaved.Search) error {
	if _, ok := m.searches[s.ID]; !ok {
		return domain.ErrSavedSearchNotFound
	}
	m.searches[s.ID] = s
	return nil
}

func (m *memStore) Delete(ctx context.Context, url, id, user string) error {
	if _, err := m.Find(ctx, url, id, user); err != nil {
		return err
	}
	delete(m.searches, id)
	return nil
}

func newTestServer(t *testing.T, index *fakeIndex) (*Server, *memStore) {
	t.Helper()
	m, err := schema.ParseMapping(map[string]interface{}{
		"title": map[string]interface{}{
			"type":     "text",
			"analyzer": "snowball",
			"fields": map[string]interface{}{
				"raw": map[string]interface{}{"type": "keyword"},
			},
		},
		"status": map[string]interface{}{"type": "keyword"},
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

	searchSvc := searchuc.New(index, in, facets, resolver, searchuc.Config{PageSize: 10})
	exportSvc := exportuc.New(index, resolver, "books")
	store := newMemStore()
	savedSvc := saveduc.New(store)
	healthSvc := healthuc.New(&fakePinger{}, &fakePinger{})

	return NewServer(searchSvc, exportSvc, savedSvc, healthSvc, zap.NewNop()), store
}
