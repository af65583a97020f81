package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/pkg/llm"
	"stageflow/pkg/llm/llmerrors"
)

func TestEnsureAlternation(t *testing.T) {
	merged, err := ensureAlternation([]llm.CompletionMessage{
		llm.NewUserMessage("a"),
		llm.NewUserMessage("b"),
		{Role: llm.RoleAssistant, Content: "c"},
		llm.NewUserMessage("d"),
	})
	require.NoError(t, err)
	require.Len(t, merged, 3)
	assert.Equal(t, "a\n\nb", merged[0].Content)

	_, err = ensureAlternation([]llm.CompletionMessage{{Role: llm.RoleAssistant, Content: "x"}})
	assert.Error(t, err)
}

func TestCompleteAgainstFakeServer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "{\"subject\":\"Hi\",\"body\":\"There\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c := NewClaudeClientWithModel("key", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := c.Complete(context.Background(), llm.NewCompletionRequest(
		llm.NewSystemMessage("be brief"),
		llm.NewUserMessage("draft"),
	))
	require.NoError(t, err)
	assert.Equal(t, `{"subject":"Hi","body":"There"}`, resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "claude-test", c.GetModelName())
	assert.NotNil(t, body["system"])
}

func TestCompleteClassifiesAuthErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c := NewClaudeClientWithModel("bad", "claude-test", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := c.Complete(context.Background(), llm.NewCompletionRequest(llm.NewUserMessage("x")))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
}
