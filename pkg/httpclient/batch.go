package httpclient

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one request in a batch. Exactly one of Response
// and Err is set.
type Result struct {
	URL      string
	Response *Response
	Err      error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Err == nil }

// DoBatch requests urls in chunks of limit, running each chunk concurrently
// and waiting for it before starting the next. Results are aligned with urls.
// A failing request never aborts the batch.
func (c *Client) DoBatch(ctx context.Context, urls []string, opts Options, limit int) []Result {
	if limit <= 0 {
		limit = 1
	}

	results := make([]Result, len(urls))
	for start := 0; start < len(urls); start += limit {
		end := min(start+limit, len(urls))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				resp, err := c.Do(ctx, urls[i], opts)
				results[i] = Result{URL: urls[i], Response: resp, Err: err}
				return nil
			})
		}
		_ = g.Wait()
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		c.logger.Warn("batch requests failed",
			"failed", failed,
			"total", len(urls),
		)
	}

	return results
}
