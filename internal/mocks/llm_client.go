package mocks

import (
	"context"
	"io"
	"sync"

	"stageflow/pkg/llm"
)

// MockLLMClient implements llm.LLMClient for testing.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked. Override to customize behavior.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	modelName string

	mu sync.Mutex
}

// NewMockLLMClient creates a mock whose Complete returns a fixed draft.
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{modelName: "mock-model"}
	m.RespondWith(`{"subject":"Mock subject","body":"Mock body"}`)
	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// RespondWith makes every Complete call return content.
func (m *MockLLMClient) RespondWith(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
	}
}

// FailCompleteWith makes every Complete call fail with err.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	}
}

// GetCompleteCalls returns a copy of recorded Complete requests.
func (m *MockLLMClient) GetCompleteCalls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.CompletionRequest(nil), m.CompleteCalls...)
}

// MockTranscriber implements llm.Transcriber for testing.
type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, audio []byte, fileName, mimeType string) (string, error)

	// Calls records the MIME type of every transcription request.
	Calls []string

	mu sync.Mutex
}

// NewMockTranscriber returns a transcriber that always yields text.
func NewMockTranscriber(text string) *MockTranscriber {
	return &MockTranscriber{
		TranscribeFunc: func(_ context.Context, _ []byte, _, _ string) (string, error) {
			return text, nil
		},
	}
}

// Transcribe implements llm.Transcriber.
func (m *MockTranscriber) Transcribe(ctx context.Context, audio io.Reader, fileName, mimeType string) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.Calls = append(m.Calls, mimeType)
	fn := m.TranscribeFunc
	m.mu.Unlock()
	return fn(ctx, data, fileName, mimeType)
}
