package alert

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elonfeng/trendpulse/pkg/httpclient"
)

// maxListed caps the failures rendered into chat messages.
const maxListed = 5

// SourceFailure is one failed source of a run.
type SourceFailure struct {
	Source string   `json:"source"`
	Errors []string `json:"errors"`
}

// Notification is the data sent to alert destinations.
type Notification struct {
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	RunID     string          `json:"run_id"`
	Failures  []SourceFailure `json:"failures"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to every notifier and joins their errors.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// requestOptions are shared by the webhook notifiers: one retry, JSON body.
// Webhook URLs carry their secret in the path, so they stay out of logs.
func requestOptions(body []byte, headers map[string]string) httpclient.Options {
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return httpclient.Options{
		Method:     http.MethodPost,
		Headers:    h,
		Body:       body,
		Timeout:    10 * time.Second,
		Retries:    1,
		RetryDelay: 500 * time.Millisecond,
		Sensitive:  true,
	}
}

func listed(failures []SourceFailure) []SourceFailure {
	if len(failures) > maxListed {
		return failures[:maxListed]
	}
	return failures
}

func firstError(f SourceFailure) string {
	if len(f.Errors) == 0 {
		return "unknown error"
	}
	return f.Errors[0]
}
