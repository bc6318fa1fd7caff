package export

import (
	"context"

	"github.com/olivere/elastic/v7"

	domsearch "github.com/openfacet/facetd/internal/domain/search"
)

// Index defines the unpaged scan contract against the backing search index.
type Index interface {
	Scroll(ctx context.Context, query elastic.Query) (domsearch.Stream, error)
}
