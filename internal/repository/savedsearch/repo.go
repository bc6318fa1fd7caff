// Package savedsearch persists saved searches as JSON blobs keyed by id, with
// a per-view membership set for listing.
package savedsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/openfacet/facetd/internal/db"
	"github.com/openfacet/facetd/internal/domain"
	domsaved "github.com/openfacet/facetd/internal/domain/saved"
)

const (
	keyPrefix  = "facetd:saved:"
	counterKey = keyPrefix + "next_id"
)

// store is the consumer interface for saved-search persistence (ISP).
type store interface {
	db.KVStore
	db.SetStore
}

// Repo implements usecase/saved.Store.
type Repo struct {
	store store
}

// New creates a saved-search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func searchKey(id string) string {
	return keyPrefix + id
}

func viewKey(url, user string) string {
	return keyPrefix + "view:" + url + ":" + user
}

// Find returns the search with the given id, scoped to url and user.
func (r *Repo) Find(ctx context.Context, url, id, user string) (domsaved.Search, error) {
	data, err := r.store.Get(ctx, searchKey(id))
	if errors.Is(err, db.ErrKeyNotFound) {
		return domsaved.Search{}, domain.ErrSavedSearchNotFound
	}
	if err != nil {
		return domsaved.Search{}, fmt.Errorf("get saved search %s: %w", id, err)
	}

	var s domsaved.Search
	if err := json.Unmarshal(data, &s); err != nil {
		return domsaved.Search{}, fmt.Errorf("decode saved search %s: %w", id, err)
	}
	// Scoping failures read as absence, never as a permission error.
	if s.URL != url || s.User != user {
		return domsaved.Search{}, domain.ErrSavedSearchNotFound
	}
	return s, nil
}

// FindDefault returns the user's default search for the view url, if any.
func (r *Repo) FindDefault(ctx context.Context, url, user string) (domsaved.Search, bool, error) {
	searches, err := r.ListForURL(ctx, url, user)
	if err != nil {
		return domsaved.Search{}, false, err
	}
	for _, s := range searches {
		if s.IsDefault {
			return s, true, nil
		}
	}
	return domsaved.Search{}, false, nil
}

// ListForURL returns every search the user persisted for the view url.
func (r *Repo) ListForURL(ctx context.Context, url, user string) ([]domsaved.Search, error) {
	ids, err := r.store.SMembers(ctx, viewKey(url, user))
	if err != nil {
		return nil, fmt.Errorf("list saved searches: %w", err)
	}

	searches := make([]domsaved.Search, 0, len(ids))
	for _, id := range ids {
		s, err := r.Find(ctx, url, id, user)
		if errors.Is(err, domain.ErrSavedSearchNotFound) {
			// Stale membership entry; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		searches = append(searches, s)
	}
	return searches, nil
}

// Create persists a new search under a freshly assigned id.
func (r *Repo) Create(ctx context.Context, s domsaved.Search) (domsaved.Search, error) {
	next, err := r.store.Incr(ctx, counterKey)
	if err != nil {
		return domsaved.Search{}, fmt.Errorf("assign saved search id: %w", err)
	}
	s.ID = strconv.FormatInt(next, 10)

	if err := r.write(ctx, s); err != nil {
		return domsaved.Search{}, err
	}
	if err := r.store.SAdd(ctx, viewKey(s.URL, s.User), s.ID); err != nil {
		return domsaved.Search{}, fmt.Errorf("register saved search %s: %w", s.ID, err)
	}
	return s, nil
}

// Delete removes the search and its membership entry, scoped to url and user.
func (r *Repo) Delete(ctx context.Context, url, id, user string) error {
	if _, err := r.Find(ctx, url, id, user); err != nil {
		return err
	}
	if err := r.store.Del(ctx, searchKey(id)); err != nil {
		return fmt.Errorf("delete saved search %s: %w", id, err)
	}
	if err := r.store.SRem(ctx, viewKey(url, user), id); err != nil {
		return fmt.Errorf("deregister saved search %s: %w", id, err)
	}
	return nil
}

// Update rewrites an existing search in place.
func (r *Repo) Update(ctx context.Context, s domsaved.Search) error {
	if _, err := r.Find(ctx, s.URL, s.ID, s.User); err != nil {
		return err
	}
	return r.write(ctx, s)
}

func (r *Repo) write(ctx context.Context, s domsaved.Search) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode saved search %s: %w", s.ID, err)
	}
	if err := r.store.Set(ctx, searchKey(s.ID), data); err != nil {
		return fmt.Errorf("store saved search %s: %w", s.ID, err)
	}
	return nil
}
