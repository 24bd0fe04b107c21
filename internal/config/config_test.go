package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
	if cfg.Export.BatchSize != 50 {
		t.Errorf("default batch size = %d, want 50", cfg.Export.BatchSize)
	}
	if cfg.Fetcher.Type != "http" {
		t.Errorf("default fetcher type = %q, want http", cfg.Fetcher.Type)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Concurrency != 5 {
		t.Errorf("concurrency = %d, want default 5", cfg.Engine.Concurrency)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ljmigrate.yaml")
	content := `
archive:
  base_url: http://testuser.livejournal.com
engine:
  concurrency: 3
  politeness_delay: 2s
export:
  batch_size: 25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Archive.BaseURL != "http://testuser.livejournal.com" {
		t.Errorf("base_url = %q", cfg.Archive.BaseURL)
	}
	if cfg.Engine.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", cfg.Engine.Concurrency)
	}
	if cfg.Engine.PolitenessDelay != 2*time.Second {
		t.Errorf("politeness_delay = %v, want 2s", cfg.Engine.PolitenessDelay)
	}
	if cfg.Export.BatchSize != 25 {
		t.Errorf("batch_size = %d, want 25", cfg.Export.BatchSize)
	}
	// Keys the file omits keep their defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q, want default info", cfg.Logging.Level)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load should fail when an explicit config file is missing")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Engine.Concurrency = 0 }},
		{"excessive concurrency", func(c *Config) { c.Engine.Concurrency = 500 }},
		{"negative delay", func(c *Config) { c.Engine.PolitenessDelay = -time.Second }},
		{"unknown fetcher", func(c *Config) { c.Fetcher.Type = "carrier-pigeon" }},
		{"zero batch size", func(c *Config) { c.Export.BatchSize = 0 }},
		{"empty output dir", func(c *Config) { c.Export.OutputDir = "" }},
		{"mirror without uri", func(c *Config) { c.Mirror.Enabled = true }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("Validate accepted %s", tc.name)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"http://testuser.livejournal.com",
		"https://testuser.livejournal.com/2015/03/",
	}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}

	invalid := []string{
		"",
		"testuser.livejournal.com",
		"ftp://testuser.livejournal.com",
		"http://",
	}
	for _, u := range invalid {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}
