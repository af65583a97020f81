package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileIsSparse(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: https://api.example.com\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Cache.BundleTTL)
	assert.Equal(t, DefaultFirstNamesMarker, cfg.Notify.Placeholder)
	assert.True(t, cfg.Notify.PreselectRecipients)
	assert.Equal(t, ProviderAnthropic, cfg.Drafting.Provider)
	assert.Equal(t, ModelClaudeSonnet, cfg.Drafting.Model)
}

func TestLoadParsesDurationsAndSections(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://localhost:8080
  timeout: 3s
cache:
  bundle_ttl: 45s
drafting:
  provider: ollama
notify:
  preselect_recipients: false
log:
  debug: true
  domains: [workflow, notify]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 45*time.Second, cfg.Cache.BundleTTL)
	assert.Equal(t, ModelOllamaDefault, cfg.Drafting.Model)
	assert.False(t, cfg.Notify.PreselectRecipients)
	assert.Equal(t, []string{"workflow", "notify"}, cfg.Log.Domains)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "drafting:\n  provider: anthropic\n")
	t.Setenv("STAGEFLOW_DRAFTING_PROVIDER", "google")
	t.Setenv("STAGEFLOW_DRAFTING_TEMPERATURE", "0.7")
	t.Setenv("STAGEFLOW_UPLOAD_MAX_FILE_SIZE", "1024")
	t.Setenv("STAGEFLOW_CACHE_BUNDLE_TTL", "10s")
	t.Setenv("STAGEFLOW_LOG_DOMAINS", "cache, upload")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderGoogle, cfg.Drafting.Provider)
	assert.Equal(t, ModelGemini, cfg.Drafting.Model)
	assert.InDelta(t, 0.7, cfg.Drafting.Temperature, 1e-9)
	assert.Equal(t, int64(1024), cfg.Upload.MaxFileSize)
	assert.Equal(t, 10*time.Second, cfg.Cache.BundleTTL)
	assert.Equal(t, []string{"cache", "upload"}, cfg.Log.Domains)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.Drafting.Provider = "bard" }},
		{"bad url", func(c *Config) { c.Backend.BaseURL = "ftp://x" }},
		{"bad temperature", func(c *Config) { c.Drafting.Temperature = 3 }},
		{"bad placeholder", func(c *Config) { c.Notify.Placeholder = "names" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, Validate(&cfg), ErrInvalidConfig)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "backend: [unterminated\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}
