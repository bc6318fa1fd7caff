package search

import (
	"context"

	"github.com/olivere/elastic/v7"

	domsearch "github.com/openfacet/facetd/internal/domain/search"
)

// Index defines the read contract against the backing search index.
type Index interface {
	Count(ctx context.Context, query elastic.Query) (int64, error)
	Search(ctx context.Context, spec domsearch.Spec) (*domsearch.Result, error)
}
