// Package saved manages persisted searches on top of a narrow store
// contract: create, recall, delete, and four independent default/saved
// toggles.
package saved

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/openfacet/facetd/internal/domain"
	qstr "github.com/openfacet/facetd/internal/domain/query"
	domsaved "github.com/openfacet/facetd/internal/domain/saved"
)

// Service handles saved-search operations.
type Service struct {
	store Store
	now   func() time.Time
}

// New creates a saved-search service.
func New(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create persists a new saved search for the given view url. The name is
// required; the querystring is stored in canonical form.
func (s *Service) Create(ctx context.Context, viewURL, user, name string, params url.Values) (domsaved.Search, error) {
	if name == "" {
		return domsaved.Search{}, fmt.Errorf("%w: missing name", domain.ErrMalformedPayload)
	}
	now := s.now()
	created, err := s.store.Create(ctx, domsaved.Search{
		User:        user,
		URL:         viewURL,
		Name:        name,
		Querystring: qstr.Normalize(params, "p", "saved_search"),
		IsSaved:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domsaved.Search{}, fmt.Errorf("create saved search: %w", err)
	}
	return created, nil
}

// Get returns one saved search by id, scoped to the view url and user.
func (s *Service) Get(ctx context.Context, viewURL, id, user string) (domsaved.Search, error) {
	found, err := s.store.Find(ctx, viewURL, id, user)
	if err != nil {
		return domsaved.Search{}, fmt.Errorf("find saved search: %w", err)
	}
	return found, nil
}

// Delete removes one saved search by id, scoped to the view url and user.
func (s *Service) Delete(ctx context.Context, viewURL, id, user string) error {
	if err := s.store.Delete(ctx, viewURL, id, user); err != nil {
		return fmt.Errorf("delete saved search: %w", err)
	}
	return nil
}

// Default returns the user's default search for the view url, if any.
func (s *Service) Default(ctx context.Context, viewURL, user string) (domsaved.Search, bool, error) {
	found, ok, err := s.store.FindDefault(ctx, viewURL, user)
	if err != nil {
		return domsaved.Search{}, false, fmt.Errorf("find default search: %w", err)
	}
	return found, ok, nil
}

// List returns the user's saved searches for the view url.
func (s *Service) List(ctx context.Context, viewURL, user string) ([]domsaved.Search, error) {
	searches, err := s.store.ListForURL(ctx, viewURL, user)
	if err != nil {
		return nil, fmt.Errorf("list saved searches: %w", err)
	}
	return searches, nil
}

// Match finds the user's saved search equivalent to the current parameters.
// Two searches are the same iff their canonical querystrings are byte-equal
// after dropping paging and recall parameters.
func (s *Service) Match(ctx context.Context, viewURL, user string, params url.Values) (domsaved.Search, bool, error) {
	searches, err := s.store.ListForURL(ctx, viewURL, user)
	if err != nil {
		return domsaved.Search{}, false, fmt.Errorf("list saved searches: %w", err)
	}
	for _, candidate := range searches {
		if candidate.IsSaved && qstr.SameSearch(candidate.Querystring, params.Encode()) {
			return candidate, true, nil
		}
	}
	return domsaved.Search{}, false, nil
}

// MarkDefault makes the search the user's single default for its view url.
// Any other default for the same url and user is cleared first.
func (s *Service) MarkDefault(ctx context.Context, viewURL, id, user string) error {
	target, err := s.store.Find(ctx, viewURL, id, user)
	if err != nil {
		return fmt.Errorf("find saved search: %w", err)
	}

	others, err := s.store.ListForURL(ctx, viewURL, user)
	if err != nil {
		return fmt.Errorf("list saved searches: %w", err)
	}
	for _, other := range others {
		if other.ID == target.ID || !other.IsDefault {
			continue
		}
		other.IsDefault = false
		other.UpdatedAt = s.now()
		if err := s.store.Update(ctx, other); err != nil {
			return fmt.Errorf("clear previous default: %w", err)
		}
	}

	target.IsDefault = true
	target.UpdatedAt = s.now()
	if err := s.store.Update(ctx, target); err != nil {
		return fmt.Errorf("mark default: %w", err)
	}
	return nil
}

// UnmarkDefault clears the search's default flag. The saved flag is untouched.
func (s *Service) UnmarkDefault(ctx context.Context, viewURL, id, user string) error {
	return s.setFlag(ctx, viewURL, id, user, func(sv *domsaved.Search) { sv.IsDefault = false })
}

// MarkSaved sets the search's saved flag. The default flag is untouched.
func (s *Service) MarkSaved(ctx context.Context, viewURL, id, user string) error {
	return s.setFlag(ctx, viewURL, id, user, func(sv *domsaved.Search) { sv.IsSaved = true })
}

// UnmarkSaved clears the search's saved flag. The default flag is untouched.
func (s *Service) UnmarkSaved(ctx context.Context, viewURL, id, user string) error {
	return s.setFlag(ctx, viewURL, id, user, func(sv *domsaved.Search) { sv.IsSaved = false })
}

func (s *Service) setFlag(ctx context.Context, viewURL, id, user string, apply func(*domsaved.Search)) error {
	target, err := s.store.Find(ctx, viewURL, id, user)
	if err != nil {
		return fmt.Errorf("find saved search: %w", err)
	}
	apply(&target)
	target.UpdatedAt = s.now()
	if err := s.store.Update(ctx, target); err != nil {
		return fmt.Errorf("update saved search: %w", err)
	}
	return nil
}
