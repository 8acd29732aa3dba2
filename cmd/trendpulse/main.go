package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elonfeng/trendpulse/internal/config"
	"github.com/elonfeng/trendpulse/pkg/source"
)

var (
	cfgFile   string
	noConfig  bool
	logLevel  string
	logFormat string
)

// errCollectionFailed is returned when any source failed; the summary has
// already been printed.
var errCollectionFailed = errors.New("collection failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errCollectionFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trendpulse",
		Short:         "Collect, normalize and deduplicate tech news from HN, RSS and NewsAPI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file, YAML or JSON (default: ./config.yaml if present)")
	pf.BoolVar(&noConfig, "no-config", false, "ignore config files and use built-in defaults")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: text, json")

	root.AddCommand(collectCmd())
	root.AddCommand(hnCmd())
	root.AddCommand(rssCmd())
	root.AddCommand(newsapiCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

// runFlags are shared by every command that performs a collection run.
type runFlags struct {
	dryRun      bool
	stopOnError bool
	mode        string
	jsonOutput  bool
	timeout     time.Duration
	retries     int
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "collect and validate without storing")
	cmd.Flags().BoolVar(&f.stopOnError, "stop-on-error", false, "do not start remaining sources after a failure")
	cmd.Flags().StringVar(&f.mode, "mode", "", "dedup mode: batch or individual (default: from config)")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "print the run report as JSON")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-attempt request timeout (default: from config)")
	cmd.Flags().IntVar(&f.retries, "retries", -1, "retries per request (default: from config)")
}

func (f *runFlags) apply(cfg *config.Config) {
	if f.dryRun {
		cfg.Collector.DryRun = true
	}
	if f.stopOnError {
		cfg.Collector.ContinueOnError = false
	}
	if f.mode != "" {
		cfg.Collector.DedupMode = f.mode
	}
	if f.timeout > 0 {
		cfg.HTTP.Timeout = f.timeout
		cfg.Sources.RSS.Timeout = f.timeout
	}
	if f.retries >= 0 {
		cfg.HTTP.Retries = f.retries
	}
}

func collectCmd() *cobra.Command {
	var (
		rf      runFlags
		sources []string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the enabled sources (or --source) in sequence and store new items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var wanted []source.SourceType
			for _, s := range sources {
				st, ok := source.ParseSourceType(s)
				if !ok {
					return fmt.Errorf("unknown source %q (want hn, rss or newsapi)", s)
				}
				wanted = append(wanted, st)
			}
			return runCollect(cmd.Context(), wanted, rf.jsonOutput, rf.apply)
		},
	}

	rf.register(cmd)
	cmd.Flags().StringSliceVar(&sources, "source", nil, "sources to collect, e.g. hn,rss (default: enabled in config)")
	return cmd
}

func hnCmd() *cobra.Command {
	var (
		rf          runFlags
		maxStories  int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "hn",
		Short: "Collect Hacker News top stories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), []source.SourceType{source.SourceHackerNews}, rf.jsonOutput, func(cfg *config.Config) {
				rf.apply(cfg)
				if maxStories > 0 {
					cfg.Sources.HackerNews.MaxStories = maxStories
				}
				if concurrency > 0 {
					cfg.Sources.HackerNews.Concurrency = concurrency
				}
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().IntVar(&maxStories, "max-stories", 0, "top stories to fetch (default: from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "story fetches in flight (default: from config)")
	return cmd
}

func rssCmd() *cobra.Command {
	var (
		rf          runFlags
		maxItems    int
		maxAgeHours int
		concurrency int
		sourcesFile string
	)

	cmd := &cobra.Command{
		Use:   "rss",
		Short: "Collect items from the configured RSS/Atom feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), []source.SourceType{source.SourceRSS}, rf.jsonOutput, func(cfg *config.Config) {
				rf.apply(cfg)
				if maxItems > 0 {
					cfg.Sources.RSS.MaxItemsPerFeed = maxItems
				}
				if maxAgeHours > 0 {
					cfg.Sources.RSS.MaxAgeHours = maxAgeHours
				}
				if concurrency > 0 {
					cfg.Sources.RSS.Concurrency = concurrency
				}
				if sourcesFile != "" {
					cfg.Sources.RSS.SourcesFile = sourcesFile
				}
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "items kept per feed (default: from config)")
	cmd.Flags().IntVar(&maxAgeHours, "max-age-hours", 0, "drop items older than this (default: from config)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "feeds read at once (default: from config, normally 1)")
	cmd.Flags().StringVar(&sourcesFile, "sources-file", "", "RSS sources file replacing the configured feeds")
	return cmd
}

func newsapiCmd() *cobra.Command {
	var (
		rf       runFlags
		country  string
		category string
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "newsapi",
		Short: "Collect NewsAPI top headlines (needs NEWSAPI_KEY)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), []source.SourceType{source.SourceNewsAPI}, rf.jsonOutput, func(cfg *config.Config) {
				rf.apply(cfg)
				if country != "" {
					cfg.Sources.NewsAPI.Country = country
				}
				if category != "" {
					cfg.Sources.NewsAPI.Category = category
				}
				if pageSize > 0 {
					cfg.Sources.NewsAPI.PageSize = pageSize
				}
			})
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&country, "country", "", "two-letter country code (default: from config)")
	cmd.Flags().StringVar(&category, "category", "", "headline category (default: from config)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "articles per request, at most 100 (default: from config)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		port     int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port, interval)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "collection interval (default: from config)")
	return cmd
}
