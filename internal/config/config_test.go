package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
	assert.Equal(t, 1, cfg.ProbeTopK)
}

func TestLoad_YAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockwatch.yaml")
	content := `
request_timeout: 20s
confidence_threshold: 0.75
probe_top_k: 3
enable_browser: false
targets:
  - https://shop.example.com/p/1
  - https://shop.example.com/p/2
weights:
  inspector: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0.75, cfg.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.ProbeTopK)
	assert.False(t, cfg.EnableBrowser)
	assert.Len(t, cfg.Targets, 2)
	assert.Equal(t, 0.8, cfg.Weights.Inspector)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.85, cfg.Weights.Prober)
	assert.Equal(t, 60*time.Second, cfg.CacheTTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STOCKWATCH_USER_AGENT", "stockwatch-test/1.0")
	t.Setenv("STOCKWATCH_HISTORY_PATH", "/tmp/test.db")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "stockwatch-test/1.0", cfg.UserAgent)
	assert.Equal(t, "/tmp/test.db", cfg.HistoryPath)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("confidence_threshold: 1.5\n"), 0644))

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence_threshold")
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"negative threshold", func(c *Config) { c.ConfidenceThreshold = -0.1 }},
		{"zero top k", func(c *Config) { c.ProbeTopK = 0 }},
		{"negative cache ttl", func(c *Config) { c.CacheTTL = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWeightsValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Weights)
	}{
		{"weight above one", func(w *Weights) { w.Inspector = 1.2 }},
		{"negative weight", func(w *Weights) { w.Prober = -0.1 }},
		{"structure range inverted", func(w *Weights) { w.StructureMin = 0.9 }},
		{"bias below one", func(w *Weights) { w.NegativeDOMBias = 0.5 }},
		{"multiplier clamp inverted", func(w *Weights) { w.MultiplierMin = 3.0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			tt.mutate(&w)
			assert.Error(t, w.Validate())
		})
	}
}
