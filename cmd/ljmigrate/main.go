package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/avgs/ljmigrate/internal/config"
)

var (
	cfgFile    string
	verbose    bool
	outputDir  string
	limit      int
	concurrent int
	delay      string
	fetchType  string
	mirrorOn   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ljmigrate",
		Short: "LiveJournal archive exporter",
		Long: `ljmigrate walks a LiveJournal archive backward page by page and exports
every post, with its full comment thread, as WordPress-importable WXR files.

Features:
  - Backward pagination walk with per-page concurrent post extraction
  - Comment id and reply-thread recovery via permalink lookups
  - Multi-format date normalization with diversion ledgers for the rest
  - Chunked WXR output, 50 posts per file, per-year sequence numbering
  - Flat CSV index of every exported post
  - Optional MongoDB archive mirror
  - Prometheus metrics endpoint`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(shellCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger builds the process logger from the logging config and the
// verbose flag.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// loadConfig loads and validates configuration with CLI overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ljmigrate %s\n", config.Version)
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("archive.base_url:        %s\n", cfg.Archive.BaseURL)
			fmt.Printf("engine.concurrency:      %d\n", cfg.Engine.Concurrency)
			fmt.Printf("engine.request_timeout:  %s\n", cfg.Engine.RequestTimeout)
			fmt.Printf("engine.politeness_delay: %s\n", cfg.Engine.PolitenessDelay)
			fmt.Printf("fetcher.type:            %s\n", cfg.Fetcher.Type)
			fmt.Printf("export.output_dir:       %s\n", cfg.Export.OutputDir)
			fmt.Printf("export.batch_size:       %d\n", cfg.Export.BatchSize)
			fmt.Printf("mirror.enabled:          %t\n", cfg.Mirror.Enabled)
			fmt.Printf("metrics.enabled:         %t\n", cfg.Metrics.Enabled)
			return nil
		},
	}
}
