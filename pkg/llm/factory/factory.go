// Package factory builds drafting clients from configuration.
package factory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"stageflow/pkg/config"
	"stageflow/pkg/llm"
	"stageflow/pkg/llm/internal/llmimpl/anthropic"
	"stageflow/pkg/llm/internal/llmimpl/google"
	"stageflow/pkg/llm/internal/llmimpl/ollama"
	"stageflow/pkg/llm/internal/llmimpl/openaiofficial"
	"stageflow/pkg/llm/llmerrors"
	"stageflow/pkg/logx"
)

// ErrUnknownProvider is returned for a drafting.provider that has no client.
var ErrUnknownProvider = errors.New("unknown drafting provider")

// Retry limits for completion calls.
const (
	maxAttempts     = 3
	initialInterval = 500 * time.Millisecond
)

// keyFor names the secret holding the API key of provider. Ollama needs none.
func keyFor(provider string) string {
	switch provider {
	case config.ProviderAnthropic:
		return config.SecretAnthropicKey
	case config.ProviderOpenAI:
		return config.SecretOpenAIKey
	case config.ProviderGoogle:
		return config.SecretGoogleKey
	default:
		return ""
	}
}

func apiKey(provider string) (string, error) {
	name := keyFor(provider)
	if name == "" {
		return "", nil
	}
	key, err := config.GetSecret(name)
	if err != nil {
		return "", fmt.Errorf("API key for %s: %w", provider, err)
	}
	return key, nil
}

// New returns the completion client for cfg.Provider, wrapped with retries on
// transient provider errors.
func New(cfg config.DraftingConfig) (llm.LLMClient, error) {
	model := cfg.Model
	if model == "" {
		model = config.DefaultModelFor(cfg.Provider)
	}

	key, err := apiKey(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var raw llm.LLMClient
	switch cfg.Provider {
	case config.ProviderAnthropic:
		raw = anthropic.NewClaudeClientWithModel(key, model)
	case config.ProviderOpenAI:
		raw = openaiofficial.NewOfficialClientWithModel(key, model, cfg.TranscriptionModel)
	case config.ProviderGoogle:
		raw = google.NewGeminiClientWithModel(key, model)
	case config.ProviderOllama:
		raw = ollama.NewOllamaClientWithModel(cfg.OllamaHost, model, nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return WithRetry(raw), nil
}

// NewTranscriber returns the speech-to-text client. Only OpenAI offers one, so its key is
// required whatever drafting provider is configured.
func NewTranscriber(cfg config.DraftingConfig) (llm.Transcriber, error) {
	key, err := apiKey(config.ProviderOpenAI)
	if err != nil {
		return nil, err
	}
	model := cfg.TranscriptionModel
	if model == "" {
		model = config.ModelWhisper
	}
	return openaiofficial.NewOfficialClientWithModel(key, config.DefaultModelFor(config.ProviderOpenAI), model), nil
}

type retryingClient struct {
	next   llm.LLMClient
	logger *logx.Logger
	newBO  func() backoff.BackOff
}

// WithRetry retries Complete while the failure is classified as retryable.
func WithRetry(next llm.LLMClient) llm.LLMClient {
	return &retryingClient{
		next:   next,
		logger: logx.NewLogger("llm"),
		newBO: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = initialInterval
			return backoff.WithMaxRetries(bo, maxAttempts-1)
		},
	}
}

//nolint:gocritic // CompletionRequest passed by value to match the interface
func (r *retryingClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	var resp llm.CompletionResponse
	attempt := 0
	op := func() error {
		attempt++
		out, err := r.next.Complete(ctx, req)
		if err == nil {
			resp = out
			return nil
		}
		var llmErr *llmerrors.Error
		if errors.As(err, &llmErr) && llmErr.IsRetryable() {
			r.logger.Warn("%s attempt %d failed: %v", r.next.GetModelName(), attempt, err)
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(r.newBO(), ctx)); err != nil {
		return llm.CompletionResponse{}, err
	}
	return resp, nil
}

func (r *retryingClient) GetModelName() string {
	return r.next.GetModelName()
}
