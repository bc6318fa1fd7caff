package health

import "context"

// IndexPinger checks search index availability.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// StorePinger checks saved-search store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}
