package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/trendpulse/pkg/httpclient"
)

const (
	DefaultRSSMaxItemsPerFeed = 20
	DefaultRSSMaxAge          = 24 * time.Hour
	DefaultRSSTimeout         = 15 * time.Second
	DefaultRSSConcurrency     = 1
	DefaultUserAgent          = "trendpulse/1.0 (+https://github.com/elonfeng/trendpulse)"
)

// ErrNoFeeds is returned when the adapter has nothing configured to read.
var ErrNoFeeds = errors.New("no rss feeds configured")

// RSSFeed is a named RSS/Atom feed URL. UserAgent and Timeout override the
// adapter-wide values when set.
type RSSFeed struct {
	Name      string
	URL       string
	Category  string
	UserAgent string
	Timeout   time.Duration
}

// RSSOptions configures the RSS adapter. Concurrency defaults to 1: feeds are
// read one at a time so third-party servers are not hit in bursts. Raising it
// trades that politeness for throughput.
type RSSOptions struct {
	Feeds           []RSSFeed
	MaxItemsPerFeed int
	MaxAge          time.Duration
	UserAgent       string
	Concurrency     int
	Request         httpclient.Options
}

// RSS collects items from RSS/Atom feeds.
type RSS struct {
	client *httpclient.Client
	opts   RSSOptions
	logger *slog.Logger
	now    func() time.Time
}

// NewRSS creates a new RSS adapter.
func NewRSS(client *httpclient.Client, opts RSSOptions, logger *slog.Logger) *RSS {
	if opts.MaxItemsPerFeed <= 0 {
		opts.MaxItemsPerFeed = DefaultRSSMaxItemsPerFeed
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultRSSMaxAge
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultRSSConcurrency
	}
	if opts.Request.Timeout <= 0 {
		opts.Request.Timeout = DefaultRSSTimeout
	}
	return &RSS{
		client: client,
		opts:   opts,
		logger: logger.With("source", SourceRSS),
		now:    time.Now,
	}
}

func (r *RSS) Name() SourceType { return SourceRSS }

func (r *RSS) Collect(ctx context.Context) ([]Item, error) {
	if len(r.opts.Feeds) == 0 {
		return nil, ErrNoFeeds
	}

	cutoff := r.now().Add(-r.opts.MaxAge)
	perFeed := make([][]Item, len(r.opts.Feeds))
	failed := make([]bool, len(r.opts.Feeds))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, feed := range r.opts.Feeds {
		g.Go(func() error {
			items, err := r.collectFeed(ctx, feed, cutoff)
			if err != nil {
				r.logger.Warn("feed skipped", "feed", feed.Name, "url", feed.URL, "error", err)
				failed[i] = true
				return nil
			}
			perFeed[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var all []Item
	failures := 0
	for i := range perFeed {
		if failed[i] {
			failures++
			continue
		}
		all = append(all, perFeed[i]...)
	}

	if failures == len(r.opts.Feeds) {
		return nil, fmt.Errorf("all %d rss feeds failed", failures)
	}

	r.logger.Info("collected feeds",
		"feeds", len(r.opts.Feeds),
		"failed", failures,
		"items", len(all),
	)
	return all, nil
}

func (r *RSS) collectFeed(ctx context.Context, feed RSSFeed, cutoff time.Time) ([]Item, error) {
	opts := r.opts.Request
	opts.Headers = map[string]string{
		"User-Agent": r.opts.UserAgent,
		"Accept":     "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8",
	}
	if feed.UserAgent != "" {
		opts.Headers["User-Agent"] = feed.UserAgent
	}
	if feed.Timeout > 0 {
		opts.Timeout = feed.Timeout
	}

	resp, err := r.client.Do(ctx, feed.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch rss %s: %w", feed.Name, err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feed.Name, err)
	}

	entries := parsed.Items
	if len(entries) > r.opts.MaxItemsPerFeed {
		entries = entries[:r.opts.MaxItemsPerFeed]
	}

	var items []Item
	for _, entry := range entries {
		item, err := normalizeRSSItem(entry)
		if err != nil {
			r.logger.Debug("rss item rejected", "feed", feed.Name, "title", entry.Title, "error", err)
			continue
		}
		if item.PublishedAt.Before(cutoff) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func normalizeRSSItem(entry *gofeed.Item) (Item, error) {
	published, ok := rssPublished(entry)
	if !ok {
		return Item{}, fmt.Errorf("%w: no parseable date", ErrInvalidItem)
	}

	return Validate(Item{
		Source:      SourceRSS,
		Title:       StripHTML(entry.Title),
		URL:         rssLink(entry),
		PublishedAt: published,
		Author:      rssAuthor(entry),
		Excerpt:     rssExcerpt(entry),
	})
}

// rssPublished prefers the parser's ISO date, then the raw pubDate string,
// then the Atom updated date.
func rssPublished(entry *gofeed.Item) (time.Time, bool) {
	if entry.PublishedParsed != nil && !entry.PublishedParsed.IsZero() {
		return entry.PublishedParsed.UTC(), true
	}
	if t, ok := parseDate(entry.Published); ok {
		return t, true
	}
	if entry.UpdatedParsed != nil && !entry.UpdatedParsed.IsZero() {
		return entry.UpdatedParsed.UTC(), true
	}
	return time.Time{}, false
}

// rssLink prefers link and falls back to guid only when it is itself an
// absolute http(s) URL.
func rssLink(entry *gofeed.Item) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}
	if guid := strings.TrimSpace(entry.GUID); IsAbsoluteHTTPURL(guid) {
		return guid
	}
	return ""
}

func rssAuthor(entry *gofeed.Item) string {
	if dc := entry.DublinCoreExt; dc != nil {
		for _, c := range dc.Creator {
			if c = strings.TrimSpace(c); c != "" {
				return c
			}
		}
	}
	if entry.Author != nil {
		if name := strings.TrimSpace(entry.Author.Name); name != "" {
			return name
		}
	}
	for _, a := range entry.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			return strings.TrimSpace(a.Name)
		}
	}
	return ""
}

func rssExcerpt(entry *gofeed.Item) string {
	if entry.Description != "" {
		return Excerpt(entry.Description)
	}
	return Excerpt(entry.Content)
}
