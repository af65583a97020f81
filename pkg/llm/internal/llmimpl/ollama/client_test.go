package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/pkg/llm"
	"stageflow/pkg/llm/llmerrors"
)

func TestCompleteAgainstFakeServer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama-test","message":{"role":"assistant","content":"draft"},"done":true,"done_reason":"stop"}`))
	}))
	defer srv.Close()

	c := NewOllamaClientWithModel(srv.URL, "llama-test", srv.Client())
	resp, err := c.Complete(context.Background(), llm.NewCompletionRequest(llm.NewSystemMessage("s"), llm.NewUserMessage("u")))
	require.NoError(t, err)

	assert.Equal(t, "draft", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "llama-test", got["model"])
	assert.Len(t, got["messages"], 2)
}

func TestCompleteModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	c := NewOllamaClientWithModel(srv.URL, "nope", srv.Client())
	_, err := c.Complete(context.Background(), llm.NewCompletionRequest(llm.NewUserMessage("u")))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "incomplete", getStopReason(&api.ChatResponse{}))
}
