package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultDBDriver = "sqlite"
	DefaultDBDSN    = "./trendpulse.db"

	DefaultDedupMode = "batch"
	DefaultBatchSize = 100

	DefaultHTTPTimeout    = 10 * time.Second
	DefaultHTTPRetries    = 3
	DefaultHTTPRetryDelay = time.Second

	DefaultHNMaxStories  = 30
	DefaultHNConcurrency = 5

	DefaultRSSMaxItemsPerFeed = 20
	DefaultRSSMaxAgeHours     = 24
	DefaultRSSTimeout         = 15 * time.Second
	DefaultRSSConcurrency     = 1
	DefaultUserAgent          = "trendpulse/1.0 (+https://github.com/elonfeng/trendpulse)"

	DefaultNewsAPICountry    = "us"
	DefaultNewsAPICategory   = "technology"
	DefaultNewsAPIPageSize   = 50
	MaxNewsAPIPageSize       = 100
	DefaultNewsAPIDailyLimit = 100

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisKey  = "trendpulse:urls"
	DefaultRedisTTL  = 7 * 24 * time.Hour

	DefaultRabbitMQExchange   = "trendpulse.items"
	DefaultRabbitMQRoutingKey = "item.created"
	DefaultRabbitMQQueue      = "trendpulse.items.created"

	DefaultScheduleInterval = 15 * time.Minute
	DefaultServerPort       = 8080
)

// Config is the root configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Database  DatabaseConfig  `yaml:"database"`
	Collector CollectorConfig `yaml:"collector"`
	HTTP      HTTPConfig      `yaml:"http"`
	Sources   SourcesConfig   `yaml:"sources"`
	Filter    FilterConfig    `yaml:"filter"`
	Cache     CacheConfig     `yaml:"cache"`
	Publisher PublisherConfig `yaml:"publisher"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Server    ServerConfig    `yaml:"server"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

// DatabaseConfig selects the storage backend: "sqlite" (DSN is a file path)
// or "postgres" (DSN is a connection string).
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CollectorConfig controls orchestration.
type CollectorConfig struct {
	ContinueOnError bool   `yaml:"continue_on_error"`
	DryRun          bool   `yaml:"dry_run"`
	DedupMode       string `yaml:"dedup_mode"`
	BatchSize       int    `yaml:"batch_size"`
}

// HTTPConfig holds the request defaults shared by every adapter.
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type SourcesConfig struct {
	HackerNews HackerNewsConfig `yaml:"hackernews"`
	RSS        RSSConfig        `yaml:"rss"`
	NewsAPI    NewsAPIConfig    `yaml:"newsapi"`
}

type HackerNewsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	MaxStories  int    `yaml:"max_stories"`
	Concurrency int    `yaml:"concurrency"`
}

// RSSConfig for the RSS adapter. When SourcesFile is set its feeds replace Feeds.
type RSSConfig struct {
	Enabled         bool          `yaml:"enabled"`
	SourcesFile     string        `yaml:"sources_file"`
	Feeds           []FeedConfig  `yaml:"feeds"`
	MaxItemsPerFeed int           `yaml:"max_items_per_feed"`
	MaxAgeHours     int           `yaml:"max_age_hours"`
	Timeout         time.Duration `yaml:"timeout"`
	Concurrency     int           `yaml:"concurrency"`
	UserAgent       string        `yaml:"user_agent"`
}

// FeedConfig is a single RSS feed entry.
type FeedConfig struct {
	Name      string        `yaml:"name"`
	URL       string        `yaml:"url"`
	Category  string        `yaml:"category"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

type NewsAPIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Country    string `yaml:"country"`
	Category   string `yaml:"category"`
	PageSize   int    `yaml:"page_size"`
	DailyLimit int    `yaml:"daily_limit"`
}

// FilterConfig configures keyword filtering after validation.
type FilterConfig struct {
	IncludeKeywords []string `yaml:"include_keywords"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

type CacheConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

type PublisherConfig struct {
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

type RabbitMQConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// AlertsConfig configures where failed-run notifications go.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts. Secret, when set, signs the body.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Database:  DatabaseConfig{Driver: DefaultDBDriver, DSN: DefaultDBDSN},
		Collector: CollectorConfig{
			ContinueOnError: true,
			DedupMode:       DefaultDedupMode,
			BatchSize:       DefaultBatchSize,
		},
		HTTP: HTTPConfig{
			Timeout:    DefaultHTTPTimeout,
			Retries:    DefaultHTTPRetries,
			RetryDelay: DefaultHTTPRetryDelay,
		},
		Sources: SourcesConfig{
			HackerNews: HackerNewsConfig{
				Enabled:     true,
				MaxStories:  DefaultHNMaxStories,
				Concurrency: DefaultHNConcurrency,
			},
			RSS: RSSConfig{
				Enabled: true,
				Feeds: []FeedConfig{
					{Name: "Ars Technica", URL: "https://feeds.arstechnica.com/arstechnica/technology-lab", Category: "tech"},
					{Name: "The Verge", URL: "https://www.theverge.com/rss/index.xml", Category: "tech"},
					{Name: "TechCrunch", URL: "https://techcrunch.com/feed/", Category: "startups"},
					{Name: "Go Blog", URL: "https://go.dev/blog/feed.atom", Category: "programming"},
				},
				MaxItemsPerFeed: DefaultRSSMaxItemsPerFeed,
				MaxAgeHours:     DefaultRSSMaxAgeHours,
				Timeout:         DefaultRSSTimeout,
				Concurrency:     DefaultRSSConcurrency,
				UserAgent:       DefaultUserAgent,
			},
			NewsAPI: NewsAPIConfig{
				Country:    DefaultNewsAPICountry,
				Category:   DefaultNewsAPICategory,
				PageSize:   DefaultNewsAPIPageSize,
				DailyLimit: DefaultNewsAPIDailyLimit,
			},
		},
		Cache: CacheConfig{Redis: RedisConfig{
			Addr: DefaultRedisAddr,
			Key:  DefaultRedisKey,
			TTL:  DefaultRedisTTL,
		}},
		Publisher: PublisherConfig{RabbitMQ: RabbitMQConfig{
			Exchange:   DefaultRabbitMQExchange,
			RoutingKey: DefaultRabbitMQRoutingKey,
			QueueName:  DefaultRabbitMQQueue,
		}},
		Schedule: ScheduleConfig{Interval: DefaultScheduleInterval},
		Server:   ServerConfig{Port: DefaultServerPort},
	}
}

// Load reads .env, then the config file at path on top of the defaults, then
// env overrides, and validates the result. An empty path skips the file.
// JSON files are accepted since JSON is valid YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
		}
	}

	cfg.applyEnvOverrides()

	if rss := &cfg.Sources.RSS; rss.SourcesFile != "" {
		feeds, err := LoadFeeds(rss.SourcesFile)
		if err != nil {
			return nil, err
		}
		rss.Feeds = feeds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeStrict rejects unknown keys so typos surface instead of silently
// falling back to defaults.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRENDPULSE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TRENDPULSE_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("TRENDPULSE_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("NEWSAPI_KEY"); v != "" {
		c.Sources.NewsAPI.APIKey = v
		c.Sources.NewsAPI.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		c.Publisher.RabbitMQ.URL = v
		c.Publisher.RabbitMQ.Enabled = true
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Alerts.Slack.WebhookURL = v
		c.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		c.Alerts.Discord.WebhookURL = v
		c.Alerts.Discord.Enabled = true
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("log_level: %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		add("log_format: %q is not one of text, json", c.LogFormat)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		add("database.driver: %q is not one of sqlite, postgres", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("database.dsn: required")
	}

	switch c.Collector.DedupMode {
	case "batch", "individual":
	default:
		add("collector.dedup_mode: %q is not one of batch, individual", c.Collector.DedupMode)
	}
	if c.Collector.BatchSize <= 0 {
		add("collector.batch_size: must be positive")
	}

	if c.HTTP.Timeout <= 0 {
		add("http.timeout: must be positive")
	}
	if c.HTTP.Retries < 0 {
		add("http.retries: must not be negative")
	}
	if c.HTTP.RetryDelay <= 0 {
		add("http.retry_delay: must be positive")
	}

	hn := c.Sources.HackerNews
	if hn.MaxStories <= 0 {
		add("sources.hackernews.max_stories: must be positive")
	}
	if hn.Concurrency <= 0 {
		add("sources.hackernews.concurrency: must be positive")
	}

	rss := c.Sources.RSS
	if rss.MaxItemsPerFeed <= 0 {
		add("sources.rss.max_items_per_feed: must be positive")
	}
	if rss.MaxAgeHours <= 0 {
		add("sources.rss.max_age_hours: must be positive")
	}
	if rss.Concurrency <= 0 {
		add("sources.rss.concurrency: must be positive")
	}
	if err := validateFeeds(rss.Feeds); err != nil {
		errs = append(errs, err)
	}
	if rss.Enabled && len(rss.Feeds) == 0 {
		add("sources.rss.feeds: at least one feed required when enabled")
	}

	na := c.Sources.NewsAPI
	if na.PageSize <= 0 || na.PageSize > MaxNewsAPIPageSize {
		add("sources.newsapi.page_size: must be between 1 and %d", MaxNewsAPIPageSize)
	}
	if na.DailyLimit <= 0 {
		add("sources.newsapi.daily_limit: must be positive")
	}
	if na.Enabled && na.APIKey == "" {
		add("sources.newsapi.api_key: required when enabled (set NEWSAPI_KEY)")
	}

	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		add("cache.redis.addr: required when enabled")
	}
	if c.Publisher.RabbitMQ.Enabled && c.Publisher.RabbitMQ.URL == "" {
		add("publisher.rabbitmq.url: required when enabled")
	}

	if c.Schedule.Interval <= 0 {
		add("schedule.interval: must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port: %d out of range", c.Server.Port)
	}

	if c.Alerts.Slack.Enabled && !isHTTPURL(c.Alerts.Slack.WebhookURL) {
		add("alerts.slack.webhook_url: must be an http(s) URL")
	}
	if c.Alerts.Discord.Enabled && !isHTTPURL(c.Alerts.Discord.WebhookURL) {
		add("alerts.discord.webhook_url: must be an http(s) URL")
	}
	if c.Alerts.Webhook.Enabled && !isHTTPURL(c.Alerts.Webhook.URL) {
		add("alerts.webhook.url: must be an http(s) URL")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// FeedsFile is the layout of the RSS sources file.
type FeedsFile struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

// LoadFeeds reads and validates an RSS sources file.
func LoadFeeds(path string) ([]FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rss sources %s: %w", path, err)
	}

	var file FeedsFile
	if err := decodeStrict(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse rss sources %s: %w", ErrInvalidConfig, path, err)
	}
	if len(file.Feeds) == 0 {
		return nil, fmt.Errorf("%w: rss sources %s: no feeds", ErrInvalidConfig, path)
	}
	if err := validateFeeds(file.Feeds); err != nil {
		return nil, fmt.Errorf("%w: rss sources %s: %w", ErrInvalidConfig, path, err)
	}
	return file.Feeds, nil
}

func validateFeeds(feeds []FeedConfig) error {
	var errs []error
	seen := make(map[string]int, len(feeds))
	for i, f := range feeds {
		if strings.TrimSpace(f.Name) == "" {
			errs = append(errs, fmt.Errorf("feeds[%d].name: required", i))
		}
		if !isHTTPURL(f.URL) {
			errs = append(errs, fmt.Errorf("feeds[%d].url: %q is not an absolute http(s) URL", i, f.URL))
		}
		if j, dup := seen[f.URL]; dup {
			errs = append(errs, fmt.Errorf("feeds[%d].url: duplicates feeds[%d]", i, j))
		} else {
			seen[f.URL] = i
		}
		if f.Timeout < 0 {
			errs = append(errs, fmt.Errorf("feeds[%d].timeout: must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
