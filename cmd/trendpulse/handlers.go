package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/trendpulse/internal/collector"
	"github.com/elonfeng/trendpulse/internal/config"
	"github.com/elonfeng/trendpulse/internal/dedup"
	"github.com/elonfeng/trendpulse/internal/publisher"
	"github.com/elonfeng/trendpulse/internal/scheduler"
	"github.com/elonfeng/trendpulse/internal/store"
	"github.com/elonfeng/trendpulse/internal/urlcache"
	"github.com/elonfeng/trendpulse/pkg/alert"
	"github.com/elonfeng/trendpulse/pkg/httpclient"
	"github.com/elonfeng/trendpulse/pkg/server"
	"github.com/elonfeng/trendpulse/pkg/source"
)

const defaultConfigFile = "config.yaml"

// loadConfig resolves the config file, applies command overrides and
// validates the result once.
func loadConfig(override func(*config.Config)) (*config.Config, error) {
	path := cfgFile
	if noConfig {
		path = ""
	} else if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if override != nil {
		sourcesFile := cfg.Sources.RSS.SourcesFile
		override(cfg)
		if f := cfg.Sources.RSS.SourcesFile; f != "" && f != sourcesFile {
			feeds, err := config.LoadFeeds(cfg.Sources.RSS.SourcesFile)
			if err != nil {
				return nil, err
			}
			cfg.Sources.RSS.Feeds = feeds
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func requestOptions(cfg *config.Config) httpclient.Options {
	return httpclient.Options{
		Timeout:    cfg.HTTP.Timeout,
		Retries:    cfg.HTTP.Retries,
		RetryDelay: cfg.HTTP.RetryDelay,
	}
}

// rssRequest is the shared request config with the RSS parse timeout. Per-feed
// timeouts from the sources file still take precedence inside the adapter.
func rssRequest(cfg *config.Config) httpclient.Options {
	req := requestOptions(cfg)
	req.Timeout = cfg.Sources.RSS.Timeout
	return req
}

// buildSources returns adapters for wanted, or for every enabled source when
// wanted is empty, in the canonical run order.
func buildSources(cfg *config.Config, client *httpclient.Client, logger *slog.Logger, wanted []source.SourceType) []source.Source {
	include := func(st source.SourceType, enabled bool) bool {
		if len(wanted) == 0 {
			return enabled
		}
		for _, w := range wanted {
			if w == st {
				return true
			}
		}
		return false
	}

	req := requestOptions(cfg)
	var sources []source.Source

	if hn := cfg.Sources.HackerNews; include(source.SourceHackerNews, hn.Enabled) {
		sources = append(sources, source.NewHackerNews(client, source.HackerNewsOptions{
			BaseURL:     hn.BaseURL,
			MaxStories:  hn.MaxStories,
			Concurrency: hn.Concurrency,
			Request:     req,
		}, logger))
	}

	if rss := cfg.Sources.RSS; include(source.SourceRSS, rss.Enabled) {
		feeds := make([]source.RSSFeed, len(rss.Feeds))
		for i, f := range rss.Feeds {
			feeds[i] = source.RSSFeed{
				Name:      f.Name,
				URL:       f.URL,
				Category:  f.Category,
				UserAgent: f.UserAgent,
				Timeout:   f.Timeout,
			}
		}
		sources = append(sources, source.NewRSS(client, source.RSSOptions{
			Feeds:           feeds,
			MaxItemsPerFeed: rss.MaxItemsPerFeed,
			MaxAge:          time.Duration(rss.MaxAgeHours) * time.Hour,
			UserAgent:       rss.UserAgent,
			Concurrency:     rss.Concurrency,
			Request:         rssRequest(cfg),
		}, logger))
	}

	if na := cfg.Sources.NewsAPI; include(source.SourceNewsAPI, na.Enabled) {
		sources = append(sources, source.NewNewsAPI(client, source.NewsAPIOptions{
			BaseURL:    na.BaseURL,
			APIKey:     na.APIKey,
			Country:    na.Country,
			Category:   na.Category,
			PageSize:   na.PageSize,
			DailyLimit: na.DailyLimit,
			Request:    req,
		}, logger))
	}

	return sources
}

func openStore(cfg *config.Config) (*store.SQLStore, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

// pipeline holds everything a collection run needs; close releases it.
type pipeline struct {
	orchestrator *collector.Orchestrator
	store        *store.SQLStore
	closers      []func() error
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i]()
	}
}

// buildPipeline wires sources, storage and the optional cache and publisher.
// The cache and publisher are best effort: if they cannot connect the run
// proceeds without them. Dry runs open no storage at all.
func buildPipeline(cfg *config.Config, logger *slog.Logger, wanted []source.SourceType) (*pipeline, error) {
	client := httpclient.New(logger)
	sources := buildSources(cfg, client, logger, wanted)
	if len(sources) == 0 {
		return nil, errors.New("no sources enabled")
	}

	p := &pipeline{}
	opts := collector.Options{
		DryRun:          cfg.Collector.DryRun,
		ContinueOnError: cfg.Collector.ContinueOnError,
		Filter:          source.NewFilter(cfg.Filter.IncludeKeywords, cfg.Filter.ExcludeKeywords),
	}

	if cfg.Collector.DryRun {
		p.orchestrator = collector.New(sources, nil, opts, logger)
		return p, nil
	}

	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	p.store = db
	p.closers = append(p.closers, db.Close)

	mode, err := dedup.ParseMode(cfg.Collector.DedupMode)
	if err != nil {
		p.close()
		return nil, err
	}
	engineOpts := []dedup.Option{dedup.WithMode(mode), dedup.WithBatchSize(cfg.Collector.BatchSize)}

	if rc := cfg.Cache.Redis; rc.Enabled {
		cache, err := urlcache.NewRedis(urlcache.Config{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Key:      rc.Key,
			TTL:      rc.TTL,
		})
		if err != nil {
			logger.Warn("url cache disabled", "error", err)
		} else {
			engineOpts = append(engineOpts, dedup.WithCache(cache))
			p.closers = append(p.closers, cache.Close)
		}
	}

	var orchOpts []collector.Option
	if mq := cfg.Publisher.RabbitMQ; mq.Enabled {
		pub, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        mq.URL,
			Exchange:   mq.Exchange,
			RoutingKey: mq.RoutingKey,
			QueueName:  mq.QueueName,
		}, logger)
		if err != nil {
			logger.Warn("item publisher disabled", "error", err)
		} else {
			orchOpts = append(orchOpts, collector.WithPublisher(pub))
			p.closers = append(p.closers, pub.Close)
		}
	}

	engine := dedup.New(db, logger, engineOpts...)
	p.orchestrator = collector.New(sources, engine, opts, logger, orchOpts...)
	return p, nil
}

func buildAlertManager(cfg *config.Config, logger *slog.Logger) *alert.Manager {
	client := httpclient.New(logger)
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(client, cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(client, cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(client, cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runCollect(ctx context.Context, wanted []source.SourceType, asJSON bool, override func(*config.Config)) error {
	cfg, err := loadConfig(override)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	p, err := buildPipeline(cfg, logger, wanted)
	if err != nil {
		return err
	}
	defer p.close()

	report := p.orchestrator.Run(ctx)

	if asJSON {
		err = collector.PrintJSON(os.Stdout, report)
	} else {
		err = collector.PrintSummary(os.Stdout, report)
	}
	if err != nil {
		return fmt.Errorf("print report: %w", err)
	}

	if report.Failed() {
		return errCollectionFailed
	}
	return nil
}

// storing disables dry runs for long-running modes, which always need the store.
func storing(cfg *config.Config) { cfg.Collector.DryRun = false }

func runServe(ctx context.Context, port int) error {
	cfg, err := loadConfig(storing)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if port == 0 {
		port = cfg.Server.Port
	}

	p, err := buildPipeline(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer p.close()

	srv := server.New(p.store, p.orchestrator, port, logger)
	return srv.ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int, interval time.Duration) error {
	cfg, err := loadConfig(storing)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if port == 0 {
		port = cfg.Server.Port
	}
	if interval <= 0 {
		interval = cfg.Schedule.Interval
	}

	p, err := buildPipeline(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer p.close()

	sched := scheduler.New(p.orchestrator, buildAlertManager(cfg, logger), interval, logger)
	srv := server.New(p.store, p.orchestrator, port, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	err = g.Wait()
	logger.Info("shut down")
	return err
}
