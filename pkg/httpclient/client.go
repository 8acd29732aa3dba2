package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = 1 * time.Second

	// MinRetryDelay is the smallest backoff base, so delays always grow.
	MinRetryDelay = time.Millisecond

	// DefaultMaxBodySize caps how much of a response body is buffered.
	DefaultMaxBodySize = 10 << 20
)

// ErrBodyTooLarge is returned when a response body exceeds the client's limit.
var ErrBodyTooLarge = errors.New("response body too large")

// Options controls a single logical request. Retries is the number of extra
// attempts after the first one, so a request is tried at most Retries+1 times.
//
// Query strings never appear in logs or errors. Sensitive also hides the
// path, for URLs such as chat webhooks whose path is the credential.
type Options struct {
	Method     string
	Headers    map[string]string
	Body       []byte
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Sensitive  bool
}

// DefaultOptions returns GET options with the package defaults.
func DefaultOptions() Options {
	return Options{
		Method:     http.MethodGet,
		Timeout:    DefaultTimeout,
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// Response is a fully buffered HTTP response. URL is the log-safe form of the
// requested URL.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}
	return nil
}

// Client executes requests with a per-attempt timeout, retries and
// exponential backoff.
type Client struct {
	http    *http.Client
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	maxBody int64
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxBodySize sets the largest response body the client accepts.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// New creates a Client. Timeouts are enforced per attempt through the request
// context, so the underlying http.Client carries none of its own.
func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		logger:  logger,
		sleep:   sleepContext,
		maxBody: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs the request, retrying failures other than 4xx responses and
// oversized bodies. After Retries+1 failed attempts the last error is returned.
func (c *Client) Do(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	opts = normalize(opts)
	shown := displayURL(rawURL, opts.Sensitive)

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		resp, err := c.attempt(ctx, rawURL, shown, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, err
		}
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == opts.Retries {
			break
		}

		delay := Backoff(opts.RetryDelay, attempt)
		c.logger.Debug("request failed, retrying",
			"url", shown,
			"attempt", attempt+1,
			"backoff", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", opts.Retries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, rawURL, shown string, opts Options) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, opts.Method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", shown, redactURLError(err, shown))
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if timedOut(ctx, attemptCtx) {
			return nil, &TimeoutError{URL: shown, Timeout: opts.Timeout}
		}
		return nil, fmt.Errorf("fetch %s: %w", shown, redactURLError(err, shown))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		if timedOut(ctx, attemptCtx) {
			return nil, &TimeoutError{URL: shown, Timeout: opts.Timeout}
		}
		return nil, fmt.Errorf("read %s: %w", shown, redactURLError(err, shown))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: shown, StatusCode: resp.StatusCode}
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("read %s: %w (limit %d bytes)", shown, ErrBodyTooLarge, c.maxBody)
	}

	return &Response{
		URL:        shown,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Backoff returns base * 2^attempt, attempt counted from 0.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base << attempt
}

func normalize(opts Options) Options {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay < MinRetryDelay {
		opts.RetryDelay = MinRetryDelay
	}
	return opts
}

// displayURL drops userinfo, query and fragment, and with hidePath the path
// too, leaving a form that is safe to log.
func displayURL(rawURL string, hidePath bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "(invalid url)"
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	if hidePath {
		u.Path = ""
		u.RawPath = ""
	}
	return u.String()
}

// redactURLError replaces the URL that net/http embeds in its errors.
func redactURLError(err error, shown string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = shown
	}
	return err
}

// timedOut reports whether the attempt hit its own deadline rather than the
// caller cancelling the parent context.
func timedOut(parent, attemptCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
