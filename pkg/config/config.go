// Package config loads stageflow configuration.
//
// Precedence, lowest to highest:
//
//  1. Built-in defaults (Default)
//  2. The YAML file (stageflow.yaml in the working directory, then ~/.config/stageflow/)
//  3. STAGEFLOW_<SECTION>_<FIELD> environment variables
//
// Secrets (API keys, backend token) never live in the YAML file. They are read from an
// encrypted secrets file or the environment, see secrets.go.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stageflow/pkg/logx"
)

// FileName is the config file searched for by Load.
const FileName = "stageflow.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STAGEFLOW_"

// Drafting providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
)

// Default models per provider.
const (
	ModelClaudeSonnet       = "claude-sonnet-4-5"
	ModelGPT5               = "gpt-5"
	ModelGemini             = "gemini-2.5-flash"
	ModelOllamaDefault      = "llama3.1:8b"
	ModelWhisper            = "whisper-1"
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultFirstNamesMarker = "{recipient_first_names}"
)

// Secret names consulted through GetSecret.
const (
	SecretBackendToken = "STAGEFLOW_API_TOKEN"
	SecretAnthropicKey = "ANTHROPIC_API_KEY"
	SecretOpenAIKey    = "OPENAI_API_KEY"
	SecretGoogleKey    = "GEMINI_API_KEY"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full stageflow configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Cache    CacheConfig    `yaml:"cache"`
	Upload   UploadConfig   `yaml:"upload"`
	Notify   NotifyConfig   `yaml:"notify"`
	Drafting DraftingConfig `yaml:"drafting"`
	Journal  JournalConfig  `yaml:"journal"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// BackendConfig points at the case-management API.
type BackendConfig struct {
	BaseURL               string        `yaml:"base_url"`
	Timeout               time.Duration `yaml:"timeout"`
	TokenSecret           string        `yaml:"token_secret"`
	ConfigRetryMaxElapsed time.Duration `yaml:"config_retry_max_elapsed"`
}

// CacheConfig bounds how stale a session's configuration bundle may get.
type CacheConfig struct {
	BundleTTL time.Duration `yaml:"bundle_ttl"`
}

// UploadConfig limits the file upload pipeline.
type UploadConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"`
}

// NotifyConfig shapes the notification step.
type NotifyConfig struct {
	Placeholder         string `yaml:"placeholder"`
	PreselectRecipients bool   `yaml:"preselect_recipients"`
}

// DraftingConfig selects the AI provider used to refine and transcribe drafts.
type DraftingConfig struct {
	Provider           string  `yaml:"provider"`
	Model              string  `yaml:"model"`
	OllamaHost         string  `yaml:"ollama_host"`
	TranscriptionModel string  `yaml:"transcription_model"`
	MaxPromptTokens    int     `yaml:"max_prompt_tokens"`
	Temperature        float64 `yaml:"temperature"`
}

// JournalConfig locates the sqlite workflow journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LogConfig maps onto logx debug switches.
type LogConfig struct {
	Debug   bool     `yaml:"debug"`
	Domains []string `yaml:"domains"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Timeout:               15 * time.Second,
			TokenSecret:           SecretBackendToken,
			ConfigRetryMaxElapsed: 20 * time.Second,
		},
		Cache:  CacheConfig{BundleTTL: 2 * time.Minute},
		Upload: UploadConfig{MaxFileSize: 50 << 20},
		Notify: NotifyConfig{
			Placeholder:         DefaultFirstNamesMarker,
			PreselectRecipients: true,
		},
		Drafting: DraftingConfig{
			Provider:           ProviderAnthropic,
			OllamaHost:         DefaultOllamaHost,
			TranscriptionModel: ModelWhisper,
			MaxPromptTokens:    6000,
			Temperature:        0.3,
		},
		Metrics: MetricsConfig{Enabled: true, Namespace: "stageflow"},
	}
}

// DefaultModelFor returns the model used when drafting.model is empty.
func DefaultModelFor(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return ModelClaudeSonnet
	case ProviderOpenAI:
		return ModelGPT5
	case ProviderGoogle:
		return ModelGemini
	case ProviderOllama:
		return ModelOllamaDefault
	default:
		return ""
	}
}

// SearchPaths returns the locations Load tries, in order.
func SearchPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "stageflow", FileName))
	}
	return paths
}

// Load reads configuration from path, or from the first existing search path when path
// is empty. A missing file is not an error: defaults and environment still apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range SearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config YAML %s: %w", path, err)
		}
		logx.Infof("loaded config from %s", path)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = def.Backend.Timeout
	}
	if cfg.Backend.TokenSecret == "" {
		cfg.Backend.TokenSecret = def.Backend.TokenSecret
	}
	if cfg.Backend.ConfigRetryMaxElapsed <= 0 {
		cfg.Backend.ConfigRetryMaxElapsed = def.Backend.ConfigRetryMaxElapsed
	}
	if cfg.Cache.BundleTTL <= 0 {
		cfg.Cache.BundleTTL = def.Cache.BundleTTL
	}
	if cfg.Upload.MaxFileSize <= 0 {
		cfg.Upload.MaxFileSize = def.Upload.MaxFileSize
	}
	if strings.TrimSpace(cfg.Notify.Placeholder) == "" {
		cfg.Notify.Placeholder = def.Notify.Placeholder
	}
	if cfg.Drafting.Provider == "" {
		cfg.Drafting.Provider = def.Drafting.Provider
	}
	if cfg.Drafting.Model == "" {
		cfg.Drafting.Model = DefaultModelFor(cfg.Drafting.Provider)
	}
	if cfg.Drafting.OllamaHost == "" {
		cfg.Drafting.OllamaHost = def.Drafting.OllamaHost
	}
	if cfg.Drafting.TranscriptionModel == "" {
		cfg.Drafting.TranscriptionModel = def.Drafting.TranscriptionModel
	}
	if cfg.Drafting.MaxPromptTokens <= 0 {
		cfg.Drafting.MaxPromptTokens = def.Drafting.MaxPromptTokens
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = def.Metrics.Namespace
	}
}

// Validate checks cfg for values the workflow cannot run with.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Backend.BaseURL != "" && !strings.HasPrefix(cfg.Backend.BaseURL, "http://") && !strings.HasPrefix(cfg.Backend.BaseURL, "https://") {
		problems = append(problems, fmt.Sprintf("backend.base_url must be an http(s) URL, got %q", cfg.Backend.BaseURL))
	}
	switch cfg.Drafting.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama, ProviderGoogle:
	default:
		problems = append(problems, fmt.Sprintf("drafting.provider %q is not one of anthropic, openai, ollama, google", cfg.Drafting.Provider))
	}
	if cfg.Drafting.Temperature < 0 || cfg.Drafting.Temperature > 2 {
		problems = append(problems, "drafting.temperature must be between 0 and 2")
	}
	if !strings.Contains(cfg.Notify.Placeholder, "{") {
		problems = append(problems, fmt.Sprintf("notify.placeholder %q must be a {token}", cfg.Notify.Placeholder))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ApplyLogging pushes the log section into logx.
func (c *Config) ApplyLogging() {
	if c.Log.Debug {
		logx.SetDebug(true)
	}
	if len(c.Log.Domains) > 0 {
		logx.SetDebugDomains(c.Log.Domains)
	}
}
