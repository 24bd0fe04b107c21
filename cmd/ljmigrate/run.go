package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avgs/ljmigrate/internal/config"
	"github.com/avgs/ljmigrate/internal/crawler"
	"github.com/avgs/ljmigrate/internal/export"
	"github.com/avgs/ljmigrate/internal/extract"
	"github.com/avgs/ljmigrate/internal/fetcher"
	"github.com/avgs/ljmigrate/internal/observability"
	"github.com/avgs/ljmigrate/internal/resolver"
	"github.com/avgs/ljmigrate/internal/shell"
)

// pipeline bundles the assembled components for one export run.
type pipeline struct {
	fetcher fetcher.Fetcher
	writer  *export.Writer
	crawler *crawler.Crawler
	metrics *observability.Metrics
	logger  *slog.Logger
}

// buildPipeline wires fetcher, resolver, extractor, writer, and crawler for
// the given archive base URL.
func buildPipeline(cfg *config.Config, baseURL string, logger *slog.Logger) (*pipeline, error) {
	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
	}

	var f fetcher.Fetcher
	var err error
	switch cfg.Fetcher.Type {
	case "browser":
		f, err = fetcher.NewBrowserFetcher(cfg, logger, fetcher.WithStealth())
	default:
		f, err = fetcher.NewHTTPFetcher(cfg, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	writer, err := export.NewWriter(&cfg.Export, baseURL, metrics, logger)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create export writer: %w", err)
	}

	if cfg.Mirror.Enabled {
		mirror, err := export.NewMongoMirror(&cfg.Mirror, logger)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create mirror: %w", err)
		}
		writer.SetMirror(mirror)
	}

	res := resolver.New(f, metrics, logger)
	ext := extract.New(f, res, metrics, logger)
	crawl := crawler.New(cfg, f, ext, writer, metrics, logger)

	return &pipeline{
		fetcher: f,
		writer:  writer,
		crawler: crawl,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// close flushes the final index and releases resources.
func (p *pipeline) close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("close writer", "error", err)
	}
	if err := p.fetcher.Close(); err != nil {
		p.logger.Error("close fetcher", "error", err)
	}
	p.logger.Info("run finished", "stats", p.metrics.Snapshot())
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Walk the archive backward and export every post",
		Long: `Walk the archive backward from the given URL (or archive.base_url from
config), exporting each page's posts as WXR chunks before following the
"previous" link. A page-level fetch error stops the walk; the index and
ledgers written so far are kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "stop after this many posts (0 = all)")
	addPipelineFlags(cmd)
	return cmd
}

func postCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post <url>",
		Short: "Export one post from its direct URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runPost,
	}
	addPipelineFlags(cmd)
	return cmd
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for chunks and ledgers")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "extraction workers per page")
	cmd.Flags().StringVar(&delay, "delay", "", "politeness delay between page fetches")
	cmd.Flags().StringVar(&fetchType, "fetcher", "", "fetcher type: http or browser")
	cmd.Flags().BoolVar(&mirrorOn, "mirror", false, "also mirror posts into MongoDB")
}

// applyCLIOverrides copies flag values over the loaded config.
func applyCLIOverrides(cfg *config.Config) {
	if outputDir != "" {
		cfg.Export.OutputDir = outputDir
	}
	if concurrent > 0 {
		cfg.Engine.Concurrency = concurrent
	}
	if delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			cfg.Engine.PolitenessDelay = d
		}
	}
	if fetchType != "" {
		cfg.Fetcher.Type = fetchType
	}
	if mirrorOn {
		cfg.Mirror.Enabled = true
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	baseURL := cfg.Archive.BaseURL
	if len(args) > 0 {
		baseURL = args[0]
	}
	if err := config.ValidateURL(baseURL); err != nil {
		return fmt.Errorf("invalid archive URL %q: %w", baseURL, err)
	}

	logger.Info("starting export",
		"url", baseURL,
		"limit", limit,
		"concurrency", cfg.Engine.Concurrency,
		"output", cfg.Export.OutputDir,
	)

	p, err := buildPipeline(cfg, baseURL, logger)
	if err != nil {
		return err
	}
	defer p.close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := p.crawler.Run(ctx, baseURL, limit); err != nil {
		// The walk stops here but the exported chunks and ledgers stand.
		logger.Error("crawl stopped", "error", err)
	}
	return nil
}

func runPost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	postURL := args[0]
	if err := config.ValidateURL(postURL); err != nil {
		return fmt.Errorf("invalid post URL %q: %w", postURL, err)
	}

	baseURL := cfg.Archive.BaseURL
	if baseURL == "" {
		baseURL = postURL
	}

	p, err := buildPipeline(cfg, baseURL, logger)
	if err != nil {
		return err
	}
	defer p.close()

	ctx, cancel := signalContext()
	defer cancel()

	return p.crawler.ArchiveOne(ctx, postURL)
}

func shellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive mode: choose the archive and what to save",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			runAll := func(ctx context.Context, baseURL string, n int) error {
				if err := config.ValidateURL(baseURL); err != nil {
					return err
				}
				p, err := buildPipeline(cfg, baseURL, logger)
				if err != nil {
					return err
				}
				defer p.close()
				return p.crawler.Run(ctx, baseURL, n)
			}
			runOne := func(ctx context.Context, postURL string) error {
				if err := config.ValidateURL(postURL); err != nil {
					return err
				}
				p, err := buildPipeline(cfg, postURL, logger)
				if err != nil {
					return err
				}
				defer p.close()
				return p.crawler.ArchiveOne(ctx, postURL)
			}

			ctx, cancel := signalContext()
			defer cancel()

			shell.New(cfg, logger, os.Stdin, runAll, runOne).Start(ctx)
			return nil
		},
	}
	addPipelineFlags(cmd)
	return cmd
}
