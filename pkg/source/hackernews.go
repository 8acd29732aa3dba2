package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elonfeng/trendpulse/pkg/httpclient"
)

const (
	DefaultHNBaseURL     = "https://hacker-news.firebaseio.com/v0"
	DefaultHNMaxStories  = 30
	DefaultHNConcurrency = 5
)

// HackerNewsOptions configures the Hacker News adapter.
type HackerNewsOptions struct {
	BaseURL     string
	MaxStories  int
	Concurrency int
	Request     httpclient.Options
}

// HackerNews collects top stories from the Hacker News Firebase API.
type HackerNews struct {
	client *httpclient.Client
	opts   HackerNewsOptions
	logger *slog.Logger
}

// NewHackerNews creates a new HN adapter.
func NewHackerNews(client *httpclient.Client, opts HackerNewsOptions, logger *slog.Logger) *HackerNews {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultHNBaseURL
	}
	if opts.MaxStories <= 0 {
		opts.MaxStories = DefaultHNMaxStories
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultHNConcurrency
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &HackerNews{
		client: client,
		opts:   opts,
		logger: logger.With("source", SourceHackerNews),
	}
}

func (h *HackerNews) Name() SourceType { return SourceHackerNews }

func (h *HackerNews) Collect(ctx context.Context) ([]Item, error) {
	ids, err := h.fetchTopStories(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) > h.opts.MaxStories {
		ids = ids[:h.opts.MaxStories]
	}

	urls := make([]string, len(ids))
	for i, id := range ids {
		urls[i] = fmt.Sprintf("%s/item/%d.json", h.opts.BaseURL, id)
	}

	results := h.client.DoBatch(ctx, urls, h.opts.Request, h.opts.Concurrency)

	var items []Item
	for i, res := range results {
		if !res.OK() {
			h.logger.Debug("story fetch failed", "id", ids[i], "error", res.Err)
			continue
		}

		var story *hnStory
		if err := res.Response.JSON(&story); err != nil {
			h.logger.Warn("story decode failed", "id", ids[i], "error", err)
			continue
		}
		if story == nil || !story.collectable() {
			continue
		}

		item, err := normalizeHNStory(story)
		if err != nil {
			h.logger.Warn("story rejected", "id", story.ID, "error", err)
			continue
		}
		items = append(items, item)
	}

	h.logger.Info("collected stories", "requested", len(ids), "items", len(items))
	return items, nil
}

type hnStory struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// collectable drops jobs, polls, removed stories and text-only posts, which
// carry no URL to dedupe on.
func (s *hnStory) collectable() bool {
	if s.Type == "job" || s.Type == "poll" {
		return false
	}
	if s.Dead || s.Deleted {
		return false
	}
	return strings.TrimSpace(s.URL) != ""
}

func normalizeHNStory(s *hnStory) (Item, error) {
	return Validate(Item{
		Source:       SourceHackerNews,
		Title:        strings.TrimSpace(s.Title),
		URL:          strings.TrimSpace(s.URL),
		PublishedAt:  time.Unix(s.Time, 0).UTC(),
		Author:       s.By,
		Excerpt:      Excerpt(s.Text),
		Score:        intPtr(s.Score),
		CommentCount: intPtr(s.Descendants),
	})
}

func (h *HackerNews) fetchTopStories(ctx context.Context) ([]int, error) {
	resp, err := h.client.Do(ctx, h.opts.BaseURL+"/topstories.json", h.opts.Request)
	if err != nil {
		return nil, fmt.Errorf("fetch hn top stories: %w", err)
	}

	var ids []int
	if err := resp.JSON(&ids); err != nil {
		return nil, fmt.Errorf("decode hn top stories: %w", err)
	}
	return ids, nil
}
