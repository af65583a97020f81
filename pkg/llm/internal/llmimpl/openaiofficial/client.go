// Package openaiofficial implements llm.LLMClient and llm.Transcriber with the official
// OpenAI Go package.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"stageflow/pkg/llm"
	"stageflow/pkg/llm/llmerrors"
)

// OfficialClient wraps the OpenAI client.
//
//nolint:govet // Simple struct, field alignment not critical
type OfficialClient struct {
	client             openai.Client
	model              string
	transcriptionModel string
}

// NewOfficialClientWithModel creates a client for model. transcriptionModel is used by
// Transcribe. opts are passed to the SDK.
func NewOfficialClientWithModel(apiKey, model, transcriptionModel string, opts ...option.RequestOption) *OfficialClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OfficialClient{
		client:             openai.NewClient(opts...),
		model:              model,
		transcriptionModel: transcriptionModel,
	}
}

// flattenMessages renders the conversation as the single input string the Responses API
// takes.
func flattenMessages(messages []llm.CompletionMessage) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&b, "System: %s\n\n", m.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n\n", m.Content)
		default:
			b.WriteString(m.Content)
		}
	}
	return b.String()
}

// Complete implements llm.LLMClient using the Responses API.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(flattenMessages(in.Messages))},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI response had no output text")
	}
	return llm.CompletionResponse{Content: content, StopReason: string(resp.Status)}, nil
}

// Transcribe implements llm.Transcriber with the audio transcription endpoint.
func (o *OfficialClient) Transcribe(ctx context.Context, audio io.Reader, fileName, mimeType string) (string, error) {
	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, fileName, mimeType),
		Model: openai.AudioModel(o.transcriptionModel),
	})
	if err != nil {
		return "", classifyError(err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "transcription returned no text")
	}
	return text, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func classifyError(err error) error {
	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return llmerrors.Classify(err, status, "openai")
}
