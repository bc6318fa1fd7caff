package saved

import (
	"context"

	domsaved "github.com/openfacet/facetd/internal/domain/saved"
)

// Store defines the persistence contract for saved searches.
type Store interface {
	// Find returns the search with the given id scoped to url and user, or
	// domain.ErrSavedSearchNotFound.
	Find(ctx context.Context, url, id, user string) (domsaved.Search, error)
	// FindDefault returns the user's default search for the view url; the
	// second return reports whether one exists.
	FindDefault(ctx context.Context, url, user string) (domsaved.Search, bool, error)
	// ListForURL returns every search the user persisted for the view url.
	ListForURL(ctx context.Context, url, user string) ([]domsaved.Search, error)
	// Create persists a new search and returns it with its assigned id.
	Create(ctx context.Context, s domsaved.Search) (domsaved.Search, error)
	// Update rewrites an existing search in place.
	Update(ctx context.Context, s domsaved.Search) error
	// Delete removes the search scoped to url and user, or
	// domain.ErrSavedSearchNotFound.
	Delete(ctx context.Context, url, id, user string) error
}
