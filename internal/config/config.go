package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ljmigrate.
type Config struct {
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
	Engine  EngineConfig  `mapstructure:"engine"  yaml:"engine"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Export  ExportConfig  `mapstructure:"export"  yaml:"export"`
	Mirror  MirrorConfig  `mapstructure:"mirror"  yaml:"mirror"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ArchiveConfig identifies the journal being exported.
type ArchiveConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// EngineConfig controls the crawl loop.
type EngineConfig struct {
	Concurrency     int           `mapstructure:"concurrency"      yaml:"concurrency"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"`
	UserAgents      []string      `mapstructure:"user_agents"      yaml:"user_agents"`
}

// FetcherConfig controls the request fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// ExportConfig controls chunk and ledger output.
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	BatchSize int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// MirrorConfig controls the optional MongoDB archive mirror.
type MirrorConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency:     5,
			RequestTimeout:  15 * time.Second,
			PolitenessDelay: 500 * time.Millisecond,
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 << 20,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
		},
		Export: ExportConfig{
			OutputDir: ".",
			BatchSize: 50,
		},
		Mirror: MirrorConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "ljmigrate",
			Collection: "posts",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9191,
			Path: "/metrics",
		},
	}
}
