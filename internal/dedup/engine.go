package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/elonfeng/trendpulse/internal/store"
	"github.com/elonfeng/trendpulse/pkg/source"
)

// Mode selects how new items are written.
type Mode string

const (
	// ModeBatch checks existence once and writes all new items in one bulk insert.
	ModeBatch Mode = "batch"
	// ModeIndividual checks and inserts item by item; a unique violation on
	// insert counts as a duplicate.
	ModeIndividual Mode = "individual"
)

// DefaultBatchSize is how many URLs go into one existence query.
const DefaultBatchSize = 100

// ParseMode accepts "batch" or "individual"; empty means batch.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeBatch, "":
		return ModeBatch, nil
	case ModeIndividual:
		return ModeIndividual, nil
	}
	return "", fmt.Errorf("unknown dedup mode %q (want batch or individual)", s)
}

// StoredItem is an item the engine persisted, with its assigned id.
type StoredItem struct {
	ID int64 `json:"id"`
	source.Item
}

// Result counts what happened to one source's items.
type Result struct {
	ItemsStored       int
	DuplicatesSkipped int
	Errors            []string
	Stored            []StoredItem
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Engine deduplicates items by URL against persisted state and stores only
// new ones. Storage is append-only: a URL seen before is never rewritten.
type Engine struct {
	store     Store
	cache     URLCache
	mode      Mode
	batchSize int
	logger    *slog.Logger
}

type Option func(*Engine)

func WithMode(m Mode) Option {
	return func(e *Engine) { e.mode = m }
}

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithCache puts a known-URL cache in front of the store existence check.
func WithCache(c URLCache) Option {
	return func(e *Engine) { e.cache = c }
}

func New(st Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		mode:      ModeBatch,
		batchSize: DefaultBatchSize,
		logger:    logger.With("component", "dedup"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Mode() Mode { return e.mode }

// DeduplicateAndStore writes the items whose URL is not yet persisted.
// Failures are reported in Result.Errors, never returned.
func (e *Engine) DeduplicateAndStore(ctx context.Context, items []source.Item, src source.SourceType) Result {
	if len(items) == 0 {
		return Result{}
	}
	logger := e.logger.With("source", src, "mode", e.mode)

	var res Result
	if e.mode == ModeIndividual {
		res = e.storeIndividually(ctx, items, logger)
	} else {
		res = e.storeBatch(ctx, items, logger)
	}

	if len(res.Stored) > 0 {
		e.remember(ctx, res.Stored, logger)
	}

	logger.Info("deduplicated",
		"candidates", len(items),
		"stored", res.ItemsStored,
		"duplicates", res.DuplicatesSkipped,
		"errors", len(res.Errors),
	)
	return res
}

func (e *Engine) storeBatch(ctx context.Context, items []source.Item, logger *slog.Logger) Result {
	var res Result

	unique, repeated := uniqueByURL(items)
	res.DuplicatesSkipped += repeated
	if repeated > 0 {
		logger.Debug("duplicates within batch", "count", repeated)
	}

	urls := make([]string, len(unique))
	for i, item := range unique {
		urls[i] = item.URL
	}

	known, err := e.knownURLs(ctx, urls, logger)
	if err != nil {
		res.addError("check existing urls: %v", err)
		return res
	}

	fresh := make([]source.Item, 0, len(unique))
	for _, item := range unique {
		if _, ok := known[item.URL]; ok {
			res.DuplicatesSkipped++
			logger.Debug("duplicate skipped", "url", item.URL)
			continue
		}
		fresh = append(fresh, item)
	}
	if len(fresh) == 0 {
		return res
	}

	ids, err := e.store.InsertItems(ctx, fresh)
	if err != nil {
		logger.Error("bulk insert failed", "items", len(fresh), "error", err)
		res.addError("bulk insert %d items: %v", len(fresh), err)
		return res
	}

	res.ItemsStored = len(fresh)
	res.Stored = make([]StoredItem, len(fresh))
	for i, item := range fresh {
		res.Stored[i] = StoredItem{Item: item}
		if i < len(ids) {
			res.Stored[i].ID = ids[i]
		}
	}
	return res
}

func (e *Engine) storeIndividually(ctx context.Context, items []source.Item, logger *slog.Logger) Result {
	var res Result

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			res.addError("stopped before %s: %v", item.URL, err)
			break
		}

		known, err := e.knownURLs(ctx, []string{item.URL}, logger)
		if err != nil {
			res.addError("check %s: %v", item.URL, err)
			continue
		}
		if _, ok := known[item.URL]; ok {
			res.DuplicatesSkipped++
			logger.Debug("duplicate skipped", "url", item.URL)
			continue
		}

		id, err := e.store.InsertItem(ctx, item)
		switch {
		case errors.Is(err, store.ErrDuplicate):
			// Inserted elsewhere between the check and the write.
			res.DuplicatesSkipped++
			logger.Debug("duplicate on insert", "url", item.URL)
		case err != nil:
			logger.Warn("insert failed", "url", item.URL, "error", err)
			res.addError("insert %s: %v", item.URL, err)
		default:
			res.ItemsStored++
			res.Stored = append(res.Stored, StoredItem{ID: id, Item: item})
		}
	}
	return res
}

// knownURLs returns the subset of urls already persisted. The cache is asked
// first; a cache failure falls back to the store for every URL.
func (e *Engine) knownURLs(ctx context.Context, urls []string, logger *slog.Logger) (map[string]struct{}, error) {
	known := make(map[string]struct{}, len(urls))
	pending := urls

	if e.cache != nil {
		hits, err := e.cache.Known(ctx, urls)
		if err != nil {
			logger.Warn("url cache lookup failed", "error", err)
		} else {
			pending = make([]string, 0, len(urls))
			for _, u := range urls {
				if _, ok := hits[u]; ok {
					known[u] = struct{}{}
					continue
				}
				pending = append(pending, u)
			}
		}
	}

	for start := 0; start < len(pending); start += e.batchSize {
		batch := pending[start:min(start+e.batchSize, len(pending))]
		found, err := e.store.ExistingURLs(ctx, batch)
		if err != nil {
			return nil, err
		}
		for u := range found {
			known[u] = struct{}{}
		}
	}
	return known, nil
}

func (e *Engine) remember(ctx context.Context, stored []StoredItem, logger *slog.Logger) {
	if e.cache == nil {
		return
	}
	urls := make([]string, len(stored))
	for i, item := range stored {
		urls[i] = item.URL
	}
	if err := e.cache.Add(ctx, urls); err != nil {
		logger.Warn("url cache update failed", "error", err)
	}
}

// uniqueByURL keeps the first item for each URL and reports how many later
// repeats it dropped.
func uniqueByURL(items []source.Item) ([]source.Item, int) {
	seen := make(map[string]struct{}, len(items))
	unique := make([]source.Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.URL]; ok {
			continue
		}
		seen[item.URL] = struct{}{}
		unique = append(unique, item)
	}
	return unique, len(items) - len(unique)
}
