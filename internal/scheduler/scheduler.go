package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elonfeng/trendpulse/internal/collector"
	"github.com/elonfeng/trendpulse/pkg/alert"
)

const DefaultInterval = 15 * time.Minute

// Runner runs one collection pass.
type Runner interface {
	Run(ctx context.Context) *collector.Report
}

// Scheduler runs periodic collection and alerts when a run fails.
type Scheduler struct {
	runner   Runner
	alertMgr *alert.Manager
	interval time.Duration
	logger   *slog.Logger
}

func New(runner Runner, alertMgr *alert.Manager, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		alertMgr: alertMgr,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Run collects immediately, then every interval. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("initial collection")
	s.collect(ctx)

	s.logger.Info("running", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopped")
			return ctx.Err()
		case <-ticker.C:
			s.collect(ctx)
		}
	}
}

func (s *Scheduler) collect(ctx context.Context) {
	report := s.runner.Run(ctx)
	if !report.Failed() {
		return
	}

	s.logger.Warn("collection run failed", "run_id", report.RunID, "failed", report.FailedSources())
	if !s.alertMgr.HasNotifiers() {
		return
	}
	if err := s.alertMgr.Broadcast(ctx, Notification(report)); err != nil {
		s.logger.Error("alert failed", "run_id", report.RunID, "error", err)
	}
}

// Notification builds the failure alert for a report.
func Notification(report *collector.Report) *alert.Notification {
	var failures []alert.SourceFailure
	for _, res := range report.Results {
		if res.Success {
			continue
		}
		failures = append(failures, alert.SourceFailure{Source: string(res.Source), Errors: res.Errors})
	}
	return &alert.Notification{
		Title:     "trendpulse collection failed",
		Body:      fmt.Sprintf("%d of %d sources failed", len(failures), len(report.Results)),
		RunID:     report.RunID,
		Failures:  failures,
		Timestamp: report.StartedAt,
	}
}
