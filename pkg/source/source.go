package source

import (
	"context"
	"time"
)

// SourceType identifies which adapter produced an item.
type SourceType string

const (
	SourceHackerNews SourceType = "hn"
	SourceRSS        SourceType = "rss"
	SourceNewsAPI    SourceType = "newsapi"
)

// Item is the canonical, source-agnostic item handed from adapters to storage.
// URL is the deduplication key. Score and CommentCount are nil when the
// source has no such notion.
type Item struct {
	Source       SourceType `json:"source" db:"source" validate:"required,oneof=hn rss newsapi"`
	Title        string     `json:"title" db:"title" validate:"required,min=1,max=500"`
	URL          string     `json:"url" db:"url" validate:"required,absurl"`
	PublishedAt  time.Time  `json:"published_at" db:"published_at"`
	Author       string     `json:"author,omitempty" db:"author"`
	Excerpt      string     `json:"excerpt,omitempty" db:"excerpt" validate:"max=1000"`
	Score        *int       `json:"score,omitempty" db:"score" validate:"omitempty,gte=0"`
	CommentCount *int       `json:"comment_count,omitempty" db:"comment_count" validate:"omitempty,gte=0"`
}

// Source is the interface every adapter implements. Collect fails only when
// the whole source is unusable; individual bad records are dropped and logged.
type Source interface {
	Name() SourceType
	Collect(ctx context.Context) ([]Item, error)
}

// AllSourceTypes returns all known source types in default run order.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceHackerNews,
		SourceRSS,
		SourceNewsAPI,
	}
}

// ParseSourceType maps a CLI or config name to a SourceType.
func ParseSourceType(s string) (SourceType, bool) {
	switch s {
	case "hn", "hackernews":
		return SourceHackerNews, true
	case "rss":
		return SourceRSS, true
	case "newsapi":
		return SourceNewsAPI, true
	}
	return "", false
}

func intPtr(v int) *int { return &v }
