package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/olivere/elastic/v7"

	"github.com/openfacet/facetd/internal/domain/column"
	"github.com/openfacet/facetd/internal/domain/schema"
	domsearch "github.com/openfacet/facetd/internal/domain/search"
)

// lazyStream fabricates documents on demand; nothing is materialized up front.
type lazyStream struct {
	total  int
	served int
	closed bool
}

func (s *lazyStream) Next(context.Context) (map[string]interface{}, error) {
	if s.served >= s.total {
		return nil, io.EOF
	}
	s.served++
	return map[string]interface{}{
		"title": fmt.Sprintf("doc-%d", s.served),
		"tags":  []interface{}{"a", "b"},
	}, nil
}

func (s *lazyStream) Close() error {
	s.closed = true
	return nil
}

type fakeIndex struct {
	stream *lazyStream
}

func (f *fakeIndex) Scroll(context.Context, elastic.Query) (domsearch.Stream, error) {
	return f.stream, nil
}

// lineCounter verifies rows arrive one write at a time without buffering.
type lineCounter struct {
	lines        int
	maxWriteSize int
}

func (c *lineCounter) Write(p []byte) (int, error) {
	c.lines += strings.Count(string(p), "\n")
	if len(p) > c.maxWriteSize {
		c.maxWriteSize = len(p)
	}
	return len(p), nil
}

func testColumns(t *testing.T) (*column.Resolver, []column.Column) {
	t.Helper()
	m, err := schema.ParseMapping(map[string]interface{}{
		"title": map[string]interface{}{"type": "keyword"},
		"tags":  map[string]interface{}{"type": "keyword"},
	})
	if err != nil {
		t.Fatalf("ParseMapping: %v", err)
	}
	in := schema.NewIntrospector(m, schema.Overrides{}, "")
	cache, err := column.NewFormatterCache(0)
	if err != nil {
		t.Fatalf("NewFormatterCache: %v", err)
	}
	resolver := column.NewResolver(in, m, column.Options{}, cache)
	cols := resolver.Resolve([]string{"title", "tags"})
	return resolver, cols
}

func TestWriteCSV(t *testing.T) {
	stream := &lazyStream{total: 1}
	resolver, cols := testColumns(t)
	svc := New(&fakeIndex{stream: stream}, resolver, "books")

	var buf bytes.Buffer
	if err := svc.WriteCSV(context.Background(), &buf, elastic.NewMatchAllQuery(), cols); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	want := "\"Title\",\"Tags\"\n\"doc-1\",\"a; b\"\n"
	if buf.String() != want {
		t.Errorf("csv = %q, want %q", buf.String(), want)
	}
	if !stream.closed {
		t.Error("stream should be closed after export")
	}
}

func TestWriteCSV_QuoteEscaping(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"Alice", "a; b"}, "\"Alice\",\"a; b\"\n"},
		{[]string{`O"Brien`}, "\"O\"\"Brien\"\n"},
		{[]string{""}, "\"\"\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := writeRow(&buf, tt.in); err != nil {
			t.Fatalf("writeRow: %v", err)
		}
		if buf.String() != tt.want {
			t.Errorf("writeRow(%v) = %q, want %q", tt.in, buf.String(), tt.want)
		}
	}
}

func TestWriteCSV_StreamsWithoutBuffering(t *testing.T) {
	const total = 100000
	stream := &lazyStream{total: total}
	resolver, cols := testColumns(t)
	svc := New(&fakeIndex{stream: stream}, resolver, "books")

	counter := &lineCounter{}
	if err := svc.WriteCSV(context.Background(), counter, elastic.NewMatchAllQuery(), cols); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	if counter.lines != total+1 {
		t.Errorf("lines = %d, want %d rows plus header", counter.lines, total+1)
	}
	// One row per write: nothing accumulates between documents.
	if counter.maxWriteSize > 256 {
		t.Errorf("largest write = %d bytes, rows should flush individually", counter.maxWriteSize)
	}
}

func TestWriteCSV_SkipsHiddenAndNonExportable(t *testing.T) {
	stream := &lazyStream{total: 1}
	resolver, _ := testColumns(t)
	svc := New(&fakeIndex{stream: stream}, resolver, "books")

	cols := []column.Column{
		{Field: "title", Label: "Title", Export: true, Visible: true},
		{Field: "tags", Label: "Tags", Export: true, Visible: false},
		{Field: "title", Label: "Secret", Export: false, Visible: true},
	}
	var buf bytes.Buffer
	if err := svc.WriteCSV(context.Background(), &buf, elastic.NewMatchAllQuery(), cols); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if got := buf.String(); !strings.HasPrefix(got, "\"Title\"\n") {
		t.Errorf("header = %q, want only visible exportable columns", got)
	}
}

func TestFilename(t *testing.T) {
	svc := New(&fakeIndex{}, nil, "books")
	now := time.Date(2024, 3, 5, 14, 30, 9, 0, time.UTC)
	if got := svc.Filename(now); got != "books_03-05-2024_14-30-09.csv" {
		t.Errorf("Filename = %q", got)
	}

	svc = New(&fakeIndex{}, nil, "")
	if got := svc.Filename(now); got != "export_03-05-2024_14-30-09.csv" {
		t.Errorf("default Filename = %q", got)
	}
}
