package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"TRENDPULSE_LOG_LEVEL", "TRENDPULSE_DB_DRIVER", "TRENDPULSE_DB_DSN", "NEWSAPI_KEY",
		"REDIS_ADDR", "RABBITMQ_URL", "SLACK_WEBHOOK_URL", "DISCORD_WEBHOOK_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRSSConcurrency, cfg.Sources.RSS.Concurrency)
	assert.Equal(t, DefaultHNConcurrency, cfg.Sources.HackerNews.Concurrency)
	assert.Equal(t, DefaultScheduleInterval, cfg.Schedule.Interval)
	assert.False(t, cfg.Sources.NewsAPI.Enabled)
}

func TestLoad_NoPathUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_JSONFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "collector.json", `{
		"log_level": "debug",
		"collector": {"continue_on_error": false, "dedup_mode": "individual", "batch_size": 50},
		"http": {"timeout": "5s", "retries": 2, "retry_delay": "250ms"},
		"sources": {
			"hackernews": {"enabled": true, "max_stories": 10, "concurrency": 3},
			"rss": {"enabled": true, "feeds": [{"name": "Example", "url": "https://example.com/feed"}], "max_items_per_feed": 5, "max_age_hours": 12, "concurrency": 1}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Collector.ContinueOnError)
	assert.Equal(t, "individual", cfg.Collector.DedupMode)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.HTTP.RetryDelay)
	assert.Equal(t, 10, cfg.Sources.HackerNews.MaxStories)
	require.Len(t, cfg.Sources.RSS.Feeds, 1)
	assert.Equal(t, "Example", cfg.Sources.RSS.Feeds[0].Name)
	assert.Equal(t, 12, cfg.Sources.RSS.MaxAgeHours)
	// untouched sections keep their defaults
	assert.Equal(t, DefaultNewsAPIPageSize, cfg.Sources.NewsAPI.PageSize)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "collector.yaml", "sources:\n  hackernews:\n    max_storys: 10\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "max_storys")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEWSAPI_KEY", "secret")
	t.Setenv("TRENDPULSE_DB_DRIVER", "postgres")
	t.Setenv("TRENDPULSE_DB_DSN", "postgres://localhost/trendpulse")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("RABBITMQ_URL", "amqp://guest:guest@mq:5672/")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/x")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Sources.NewsAPI.Enabled)
	assert.Equal(t, "secret", cfg.Sources.NewsAPI.APIKey)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Cache.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.True(t, cfg.Publisher.RabbitMQ.Enabled)
	assert.True(t, cfg.Alerts.Slack.Enabled)
}

func TestLoad_SourcesFileReplacesFeeds(t *testing.T) {
	clearEnv(t)
	feeds := writeFile(t, "rss-sources.json", `{"feeds": [
		{"name": "One", "url": "https://one.example/rss", "category": "dev"},
		{"name": "Two", "url": "https://two.example/atom"}
	]}`)
	path := writeFile(t, "collector.yaml", "sources:\n  rss:\n    sources_file: "+feeds+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources.RSS.Feeds, 2)
	assert.Equal(t, "dev", cfg.Sources.RSS.Feeds[0].Category)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Database.Driver = "mysql"
	cfg.Sources.NewsAPI.PageSize = 500
	cfg.Sources.NewsAPI.Enabled = true
	cfg.Sources.RSS.Concurrency = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{"log_level", "database.driver", "page_size", "api_key", "rss.concurrency"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadFeeds_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", `{"feeds": []}`, "no feeds"},
		{"missing name", `{"feeds": [{"url": "https://a.example/rss"}]}`, "feeds[0].name"},
		{"relative url", `{"feeds": [{"name": "A", "url": "/rss"}]}`, "feeds[0].url"},
		{"duplicate url", `{"feeds": [{"name": "A", "url": "https://a.example/rss"}, {"name": "B", "url": "https://a.example/rss"}]}`, "duplicates feeds[0]"},
		{"unknown key", `{"feeds": [{"name": "A", "url": "https://a.example/rss", "lang": "en"}]}`, "lang"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFeeds(writeFile(t, "feeds.json", tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_RetryDelayMustBePositive(t *testing.T) {
	cfg := Default()
	cfg.HTTP.RetryDelay = 0

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "http.retry_delay: must be positive")
}
