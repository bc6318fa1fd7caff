// Package export streams search results as CSV. Rows are produced one at a
// time from an index scan so memory stays flat regardless of match count.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olivere/elastic/v7"

	"github.com/openfacet/facetd/internal/domain/column"
)

const defaultExportName = "export"

// Service streams CSV exports.
type Service struct {
	index   Index
	columns *column.Resolver
	name    string
}

// New creates an export service. name is the base of generated filenames.
func New(index Index, columns *column.Resolver, name string) *Service {
	if name == "" {
		name = defaultExportName
	}
	return &Service{index: index, columns: columns, name: name}
}

// Filename returns the attachment filename for an export started at now.
func (s *Service) Filename(now time.Time) string {
	return s.name + now.Format("_01-02-2006_15-04-05") + ".csv"
}

// WriteCSV scans every document matching query and writes one CSV row per
// document to w, headed by the visible exportable column labels. No sort is
// applied; documents arrive in index-internal order. Only one row is held in
// memory at a time.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, query elastic.Query, cols []column.Column) error {
	exportable := make([]column.Column, 0, len(cols))
	for _, c := range cols {
		if c.Visible && c.Export {
			exportable = append(exportable, c)
		}
	}

	header := make([]string, len(exportable))
	for i, c := range exportable {
		header[i] = c.Label
	}
	if err := writeRow(w, header); err != nil {
		return err
	}

	stream, err := s.index.Scroll(ctx, query)
	if err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	defer stream.Close()

	row := make([]string, len(exportable))
	for {
		source, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scroll next: %w", err)
		}
		for i, c := range exportable {
			row[i] = s.columns.ExportValue(c, source)
		}
		if err := writeRow(w, row); err != nil {
			return err
		}
	}
}

// writeRow emits one CSV record. Every value is quoted; internal quotes are
// doubled.
func writeRow(w io.Writer, values []string) error {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(v, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
