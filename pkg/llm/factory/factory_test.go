package factory

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/mocks"
	"stageflow/pkg/config"
	"stageflow/pkg/llm"
	"stageflow/pkg/llm/llmerrors"
)

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(config.DraftingConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv(config.SecretAnthropicKey, "")
	config.SetDecryptedSecrets(nil)

	_, err := New(config.DraftingConfig{Provider: config.ProviderAnthropic})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrSecretNotFound)
}

func TestNewSelectsDefaultModel(t *testing.T) {
	t.Setenv(config.SecretAnthropicKey, "sk-test")

	client, err := New(config.DraftingConfig{Provider: config.ProviderAnthropic})
	require.NoError(t, err)
	assert.Equal(t, config.ModelClaudeSonnet, client.GetModelName())

	client, err = New(config.DraftingConfig{Provider: config.ProviderOllama, Model: "qwen"})
	require.NoError(t, err)
	assert.Equal(t, "qwen", client.GetModelName())
}

func TestNewTranscriberNeedsOpenAIKey(t *testing.T) {
	t.Setenv(config.SecretOpenAIKey, "")
	config.SetDecryptedSecrets(nil)

	_, err := NewTranscriber(config.DraftingConfig{})
	assert.ErrorIs(t, err, config.ErrSecretNotFound)
}

func immediate(next llm.LLMClient) *retryingClient {
	c := WithRetry(next).(*retryingClient)
	c.newBO = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxAttempts-1)
	}
	return c
}

func TestRetryTransientThenSucceed(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	calls := 0
	mock.CompleteFunc = func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		calls++
		if calls == 1 {
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeTransient, "blip")
		}
		return llm.CompletionResponse{Content: "ok"}, nil
	}

	resp, err := immediate(mock).Complete(context.Background(), llm.NewCompletionRequest(llm.NewUserMessage("x")))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.FailCompleteWith(llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"))

	_, err := immediate(mock).Complete(context.Background(), llm.NewCompletionRequest(llm.NewUserMessage("x")))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Len(t, mock.GetCompleteCalls(), 1)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.FailCompleteWith(llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down"))

	_, err := immediate(mock).Complete(context.Background(), llm.NewCompletionRequest(llm.NewUserMessage("x")))
	require.Error(t, err)
	var llmErr *llmerrors.Error
	assert.True(t, errors.As(err, &llmErr))
	assert.Len(t, mock.GetCompleteCalls(), maxAttempts)
}
