package collector

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elonfeng/trendpulse/internal/dedup"
	"github.com/elonfeng/trendpulse/pkg/source"
)

// Storer deduplicates and persists one source's items.
type Storer interface {
	DeduplicateAndStore(ctx context.Context, items []source.Item, src source.SourceType) dedup.Result
}

// Publisher announces newly stored items.
type Publisher interface {
	Publish(ctx context.Context, id int64, item source.Item) error
}

// Options controls a run. Filter may be nil.
type Options struct {
	DryRun          bool
	ContinueOnError bool
	Filter          *source.Filter
}

// Result is the outcome of collecting one source in one run.
type Result struct {
	RunID             string            `json:"run_id"`
	Source            source.SourceType `json:"source"`
	Success           bool              `json:"success"`
	ItemsCollected    int               `json:"items_collected"`
	ItemsFiltered     int               `json:"items_filtered"`
	ItemsStored       int               `json:"items_stored"`
	DuplicatesSkipped int               `json:"duplicates_skipped"`
	Errors            []string          `json:"errors,omitempty"`
	Warnings          []string          `json:"warnings,omitempty"`
	Duration          time.Duration     `json:"duration"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Report aggregates every source result of one run.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	DryRun    bool          `json:"dry_run"`
	Results   []Result      `json:"results"`
}

// Failed reports whether any source failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if !res.Success {
			return true
		}
	}
	return false
}

// FailedSources lists the sources that failed, in run order.
func (r *Report) FailedSources() []source.SourceType {
	var failed []source.SourceType
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res.Source)
		}
	}
	return failed
}

// Orchestrator runs sources one after another and collects their results.
type Orchestrator struct {
	sources   []source.Source
	storer    Storer
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time

	// Runs are serialized; the bulk dedup path assumes a single writer.
	mu sync.Mutex
}

type Option func(*Orchestrator)

// WithPublisher publishes every newly stored item after it is persisted.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func New(sources []source.Source, storer Storer, opts Options, logger *slog.Logger, extra ...Option) *Orchestrator {
	o := &Orchestrator{
		sources: sources,
		storer:  storer,
		opts:    opts,
		logger:  logger,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range extra {
		opt(o)
	}
	return o
}

// Sources returns the configured source names in run order.
func (o *Orchestrator) Sources() []source.SourceType {
	names := make([]source.SourceType, len(o.sources))
	for i, s := range o.sources {
		names[i] = s.Name()
	}
	return names
}

// Run collects every source in order. A failed source stops the run unless
// ContinueOnError is set; the source already in flight is never aborted.
func (o *Orchestrator) Run(ctx context.Context) *Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := &Report{
		RunID:     o.newID(),
		StartedAt: o.now().UTC(),
		DryRun:    o.opts.DryRun,
	}
	logger := o.logger.With("run_id", report.RunID)
	logger.Info("collection started", "sources", len(o.sources), "dry_run", o.opts.DryRun)

	for i, src := range o.sources {
		res := o.runSource(ctx, src, report.RunID, logger)
		report.Results = append(report.Results, res)

		if !res.Success && !o.opts.ContinueOnError && i < len(o.sources)-1 {
			logger.Warn("stopping after failed source", "source", src.Name(), "skipped", len(o.sources)-i-1)
			break
		}
	}

	report.Duration = o.now().Sub(report.StartedAt)
	logger.Info("collection finished", "failed", report.Failed(), "duration", report.Duration)
	return report
}

func (o *Orchestrator) runSource(ctx context.Context, src source.Source, runID string, logger *slog.Logger) (res Result) {
	start := o.now()
	res = Result{RunID: runID, Source: src.Name(), Timestamp: start.UTC()}
	logger = logger.With("source", src.Name())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("source panicked", "panic", r, "stack", string(debug.Stack()))
			res.Errors = append(res.Errors, fmt.Sprintf("panic: %v", r))
		}
		res.Success = len(res.Errors) == 0
		res.Duration = o.now().Sub(start)
	}()

	items, err := src.Collect(ctx)
	if err != nil {
		logger.Error("collect failed", "error", err)
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	res.ItemsCollected = len(items)

	items, res.ItemsFiltered = o.opts.Filter.Apply(items)
	if res.ItemsFiltered > 0 {
		logger.Debug("items filtered", "count", res.ItemsFiltered)
	}

	if o.opts.DryRun {
		logger.Info("dry run, storage skipped", "items", len(items))
		return res
	}

	stored := o.storer.DeduplicateAndStore(ctx, items, src.Name())
	res.ItemsStored = stored.ItemsStored
	res.DuplicatesSkipped = stored.DuplicatesSkipped
	res.Errors = append(res.Errors, stored.Errors...)

	if o.publisher != nil {
		for _, item := range stored.Stored {
			if err := o.publisher.Publish(ctx, item.ID, item.Item); err != nil {
				logger.Warn("publish failed", "url", item.URL, "error", err)
				res.Warnings = append(res.Warnings, fmt.Sprintf("publish %s: %v", item.URL, err))
			}
		}
	}
	return res
}
