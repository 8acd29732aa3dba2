package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elonfeng/trendpulse/pkg/httpclient"
)

const (
	DefaultNewsAPIBaseURL    = "https://newsapi.org/v2"
	DefaultNewsAPICountry    = "us"
	DefaultNewsAPICategory   = "technology"
	DefaultNewsAPIPageSize   = 50
	MaxNewsAPIPageSize       = 100
	DefaultNewsAPIDailyLimit = 100

	removedMarker = "[Removed]"
)

// NewsAPIOptions configures the NewsAPI adapter.
type NewsAPIOptions struct {
	BaseURL    string
	APIKey     string
	Country    string
	Category   string
	PageSize   int
	DailyLimit int
	Request    httpclient.Options
}

// NewsAPI collects top headlines from newsapi.org. It counts its own requests
// per UTC day and warns once the free-tier quota is reached; it never blocks.
type NewsAPI struct {
	client *httpclient.Client
	opts   NewsAPIOptions
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	day      string
	requests int
}

// NewNewsAPI creates a new NewsAPI adapter.
func NewNewsAPI(client *httpclient.Client, opts NewsAPIOptions, logger *slog.Logger) *NewsAPI {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultNewsAPIBaseURL
	}
	if opts.Country == "" {
		opts.Country = DefaultNewsAPICountry
	}
	if opts.Category == "" {
		opts.Category = DefaultNewsAPICategory
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultNewsAPIPageSize
	}
	if opts.PageSize > MaxNewsAPIPageSize {
		opts.PageSize = MaxNewsAPIPageSize
	}
	if opts.DailyLimit <= 0 {
		opts.DailyLimit = DefaultNewsAPIDailyLimit
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &NewsAPI{
		client: client,
		opts:   opts,
		logger: logger.With("source", SourceNewsAPI),
		now:    time.Now,
	}
}

func (n *NewsAPI) Name() SourceType { return SourceNewsAPI }

// RequestsToday returns how many requests this instance made in the current UTC day.
func (n *NewsAPI) RequestsToday() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.day != n.today() {
		return 0
	}
	return n.requests
}

func (n *NewsAPI) Collect(ctx context.Context) ([]Item, error) {
	if n.opts.APIKey == "" {
		return nil, fmt.Errorf("newsapi: API key required (set NEWSAPI_KEY)")
	}

	n.trackRequest()

	params := url.Values{}
	params.Set("country", n.opts.Country)
	params.Set("category", n.opts.Category)
	params.Set("pageSize", strconv.Itoa(n.opts.PageSize))
	params.Set("apiKey", n.opts.APIKey)

	resp, err := n.client.Do(ctx, n.opts.BaseURL+"/top-headlines?"+params.Encode(), n.opts.Request)
	if err != nil {
		return nil, fmt.Errorf("fetch newsapi headlines: %w", redactKey(err, n.opts.APIKey))
	}

	var result newsAPIResponse
	if err := resp.JSON(&result); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", redactKey(err, n.opts.APIKey))
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("newsapi status %q: %s %s", result.Status, result.Code, result.Message)
	}

	var items []Item
	for _, article := range result.Articles {
		item, err := normalizeNewsAPIArticle(article)
		if err != nil {
			n.logger.Debug("article rejected", "url", article.URL, "error", err)
			continue
		}
		items = append(items, item)
	}

	n.logger.Info("collected headlines",
		"total_results", result.TotalResults,
		"items", len(items),
		"requests_today", n.RequestsToday(),
	)
	return items, nil
}

func (n *NewsAPI) trackRequest() {
	n.mu.Lock()
	defer n.mu.Unlock()

	today := n.today()
	if n.day != today {
		n.day = today
		n.requests = 0
	}
	n.requests++

	if n.requests > n.opts.DailyLimit {
		n.logger.Warn("newsapi daily request limit exceeded",
			"requests", n.requests,
			"limit", n.opts.DailyLimit,
		)
	} else if n.requests == n.opts.DailyLimit {
		n.logger.Warn("newsapi daily request limit reached", "limit", n.opts.DailyLimit)
	}
}

func (n *NewsAPI) today() string {
	return n.now().UTC().Format("2006-01-02")
}

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

func normalizeNewsAPIArticle(a newsAPIArticle) (Item, error) {
	title := strings.TrimSpace(a.Title)
	if title == removedMarker {
		return Item{}, fmt.Errorf("%w: removed article", ErrInvalidItem)
	}

	published, err := time.Parse(time.RFC3339, strings.TrimSpace(a.PublishedAt))
	if err != nil {
		return Item{}, fmt.Errorf("%w: publishedAt %q", ErrInvalidItem, a.PublishedAt)
	}

	author := strings.TrimSpace(a.Author)
	if author == "" {
		author = strings.TrimSpace(a.Source.Name)
	}

	excerpt := a.Description
	if strings.TrimSpace(excerpt) == "" {
		excerpt = StripTruncationMarker(a.Content)
	}

	return Validate(Item{
		Source:      SourceNewsAPI,
		Title:       title,
		URL:         strings.TrimSpace(a.URL),
		PublishedAt: published.UTC(),
		Author:      author,
		Excerpt:     Excerpt(excerpt),
	})
}

// redactKey keeps the API key out of error strings that embed the request URL.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), key, "REDACTED"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
