package dedup

import (
	"context"

	"github.com/elonfeng/trendpulse/pkg/source"
)

// Store is the slice of the persistence layer the engine needs. InsertItems
// returns ids aligned with its input.
type Store interface {
	ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	InsertItems(ctx context.Context, items []source.Item) ([]int64, error)
	InsertItem(ctx context.Context, item source.Item) (int64, error)
}

// URLCache remembers URLs already persisted so repeated runs can skip the
// store round trip. Implementations may be lossy; the store stays authoritative.
type URLCache interface {
	Known(ctx context.Context, urls []string) (map[string]struct{}, error)
	Add(ctx context.Context, urls []string) error
}
