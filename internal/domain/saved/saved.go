// Package saved models persisted searches: a named canonical querystring a
// user can recall, optionally marked as their default for a view.
package saved

import "time"

// Search is one persisted search.
type Search struct {
	ID          string    `json:"id"`
	User        string    `json:"user"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Querystring string    `json:"querystring"`
	IsDefault   bool      `json:"is_default"`
	IsSaved     bool      `json:"is_saved"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
