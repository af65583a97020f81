// Package llm defines the provider-neutral completion client used to draft notification
// text.
package llm

import (
	"context"
	"errors"
	"io"
	"strings"
)

// CompletionRole is the role of a message in a conversation.
type CompletionRole string

// Roles.
const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

// Defaults for drafting requests.
const (
	DefaultMaxTokens   = 1024
	TemperatureDefault = 0.3
)

// CompletionMessage is one message of a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// CompletionRequest asks a model for one completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// CompletionResponse is a model's answer.
type CompletionResponse struct {
	Content    string
	StopReason string
}

// LLMClient is implemented by every provider.
type LLMClient interface { //nolint:revive // name kept for symmetry with provider packages
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
	GetModelName() string
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, fileName, mimeType string) (string, error)
}

// NewCompletionRequest builds a request with default limits.
func NewCompletionRequest(messages ...CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// SplitSystem separates system messages, joined by blank lines, from the conversation.
// Providers that take the system prompt out of band use it.
func SplitSystem(messages []CompletionMessage) (string, []CompletionMessage, error) {
	var system []string
	var rest []CompletionMessage
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	if len(rest) == 0 {
		return "", nil, errors.New("must have at least one non-system message")
	}
	return strings.Join(system, "\n\n"), rest, nil
}
