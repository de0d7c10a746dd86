// Package config provides configuration loading for stockwatch.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STOCKWATCH_"

// Config holds all runtime configuration for the detection engine and the
// surrounding poll loop.
type Config struct {
	// Request options
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	UserAgent       string        `koanf:"user_agent"`
	MaxResponseSize int           `koanf:"max_response_size"`
	Proxy           string        `koanf:"proxy"`
	CustomHeaders   []string      `koanf:"custom_headers"`

	// Feature flags
	EnableBrowser      bool `koanf:"enable_browser"`
	EnableAPIDiscovery bool `koanf:"enable_api_discovery"`
	EnableVendorRules  bool `koanf:"enable_vendor_rules"`

	// Decision gating
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`

	// API prober
	ProbeTopK    int `koanf:"probe_top_k"`
	MaxEndpoints int `koanf:"max_endpoints"`

	// Result cache
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// Browser
	BrowserTimeout time.Duration `koanf:"browser_timeout"`
	PageTimeout    time.Duration `koanf:"page_timeout"`

	// Poll loop
	PollInterval time.Duration `koanf:"poll_interval"`
	RatePerMin   float64       `koanf:"rate_per_min"`
	Targets      []string      `koanf:"targets"`

	// Notifications
	NotifyCooldown      time.Duration `koanf:"notify_cooldown"`
	AggregationInterval time.Duration `koanf:"aggregation_interval"`
	Webhooks            []string      `koanf:"webhooks"`

	// History
	HistoryPath string `koanf:"history_path"`

	// Heuristics
	Weights Weights `koanf:"weights"`
}

// Default returns a sensible default configuration.
func Default() *Config {
	return &Config{
		RequestTimeout:      10 * time.Second,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		MaxResponseSize:     4194304, // 4MB
		EnableBrowser:       true,
		EnableAPIDiscovery:  true,
		EnableVendorRules:   true,
		ConfidenceThreshold: 0.6,
		ProbeTopK:           1,
		MaxEndpoints:        10,
		CacheTTL:            60 * time.Second,
		BrowserTimeout:      30 * time.Second,
		PageTimeout:         15 * time.Second,
		PollInterval:        180 * time.Second,
		RatePerMin:          30,
		NotifyCooldown:      30 * time.Minute,
		AggregationInterval: 5 * time.Minute,
		HistoryPath:         "stockwatch.db",
		Weights:             DefaultWeights(),
	}
}

// Load reads configuration from an optional YAML file, then overrides with
// STOCKWATCH_* environment variables. Missing file is not an error; defaults
// apply for everything not set.
//
// Environment variables map underscores to nesting only for the weights
// table; top-level keys are flat: STOCKWATCH_REQUEST_TIMEOUT, STOCKWATCH_POLL_INTERVAL.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		// weights.* keys are the only nested section
		if rest, ok := strings.CutPrefix(key, "weights_"); ok {
			return "weights." + rest
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %g", c.ConfidenceThreshold)
	}
	if c.ProbeTopK < 1 {
		return fmt.Errorf("probe_top_k must be at least 1, got %d", c.ProbeTopK)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative, got %s", c.CacheTTL)
	}
	return c.Weights.Validate()
}
