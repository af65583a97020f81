// Package drafting rewrites notification drafts with an LLM, either from an operator
// instruction or from a recorded voice note.
package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"stageflow/pkg/llm"
	"stageflow/pkg/logx"
	"stageflow/pkg/model"
)

// Errors returned by Service.
var (
	ErrNoTranscriber = errors.New("audio transcription is not configured")
	ErrMalformed     = errors.New("model did not return a draft")
	ErrEmptyPrompt   = errors.New("refinement instruction is empty")
)

const defaultMaxPromptTokens = 6000

// Service drafts notification text.
type Service struct {
	client          llm.LLMClient
	transcriber     llm.Transcriber
	counter         *TokenCounter
	logger          *logx.Logger
	placeholder     string
	maxPromptTokens int
	temperature     float32
}

// Option configures a Service.
type Option func(*Service)

// WithTranscriber enables DraftFromAudio.
func WithTranscriber(t llm.Transcriber) Option {
	return func(s *Service) { s.transcriber = t }
}

// WithPlaceholder names the first-names token the model must leave intact.
func WithPlaceholder(p string) Option {
	return func(s *Service) { s.placeholder = p }
}

// WithMaxPromptTokens caps the size of the draft text sent to the model.
func WithMaxPromptTokens(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPromptTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = float32(t) }
}

// New creates a Service backed by client.
func New(client llm.LLMClient, opts ...Option) *Service {
	s := &Service{
		client:          client,
		logger:          logx.NewLogger("drafting"),
		maxPromptTokens: defaultMaxPromptTokens,
		temperature:     llm.TemperatureDefault,
	}
	for _, opt := range opts {
		opt(s)
	}
	counter, err := NewTokenCounter()
	if err != nil {
		s.logger.Warn("token counting falls back to estimates: %v", err)
	}
	s.counter = counter
	return s
}

// Refine rewrites current following the operator's instruction.
func (s *Service) Refine(ctx context.Context, instruction string, current model.Draft, pctx model.PreviewContext) (model.Draft, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return model.Draft{}, ErrEmptyPrompt
	}

	var b strings.Builder
	writeContext(&b, pctx)
	fmt.Fprintf(&b, "Current subject:\n%s\n\n", current.Subject)
	fmt.Fprintf(&b, "Current body:\n%s\n\n", s.counter.Truncate(current.Body, s.maxPromptTokens))
	fmt.Fprintf(&b, "Instruction:\n%s\n", instruction)

	draft, err := s.complete(ctx, refineSystemPrompt, b.String())
	if err != nil {
		return model.Draft{}, err
	}
	if draft.Subject == "" {
		draft.Subject = current.Subject
	}
	draft.PushTitle, draft.PushBody = current.PushTitle, current.PushBody
	return draft, nil
}

// DraftFromAudio transcribes a voice note and drafts subject, body and push text from it.
func (s *Service) DraftFromAudio(ctx context.Context, audio io.Reader, fileName, mimeType string, pctx model.PreviewContext) (model.Draft, error) {
	if s.transcriber == nil {
		return model.Draft{}, ErrNoTranscriber
	}
	transcript, err := s.transcriber.Transcribe(ctx, audio, fileName, mimeType)
	if err != nil {
		return model.Draft{}, fmt.Errorf("transcription failed: %w", err)
	}
	s.logger.Debug("transcribed %d characters from %s", len(transcript), mimeType)

	var b strings.Builder
	writeContext(&b, pctx)
	fmt.Fprintf(&b, "Voice note transcript:\n%s\n", s.counter.Truncate(transcript, s.maxPromptTokens))

	return s.complete(ctx, audioSystemPrompt, b.String())
}

func (s *Service) complete(ctx context.Context, system, user string) (model.Draft, error) {
	if s.placeholder != "" {
		system += fmt.Sprintf("\nKeep the token %s exactly as written wherever it appears; it is replaced with recipient names later.", s.placeholder)
	}
	req := llm.NewCompletionRequest(llm.NewSystemMessage(system), llm.NewUserMessage(user))
	req.Temperature = s.temperature

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return model.Draft{}, fmt.Errorf("%s: %w", s.client.GetModelName(), err)
	}
	draft, err := parseDraft(resp.Content)
	if err != nil {
		s.logger.Warn("unparseable draft from %s (stop reason %q)", s.client.GetModelName(), resp.StopReason)
		return model.Draft{}, err
	}
	return draft, nil
}

const refineSystemPrompt = `You edit client and staff notifications about project stage changes.
Rewrite the draft according to the instruction. Keep facts from the context accurate.
Respond with only a JSON object: {"subject": "...", "body": "..."}.`

const audioSystemPrompt = `You turn an operator's voice note into a notification about a project stage change.
Write a clear email subject and body, and a short push title and push body.
Respond with only a JSON object: {"subject": "...", "body": "...", "pushTitle": "...", "pushBody": "..."}.`

func writeContext(b *strings.Builder, pctx model.PreviewContext) {
	if pctx.ProjectName == "" && pctx.NewStage == "" {
		return
	}
	b.WriteString("Context:\n")
	fmt.Fprintf(b, "- Project: %s\n", pctx.ProjectName)
	if pctx.ClientName != "" {
		fmt.Fprintf(b, "- Client: %s\n", pctx.ClientName)
	}
	fmt.Fprintf(b, "- Stage: %s -> %s\n", pctx.OldStage, pctx.NewStage)
	if pctx.Reason != "" {
		fmt.Fprintf(b, "- Reason: %s\n", pctx.Reason)
	}
	if pctx.DueDate != nil {
		fmt.Fprintf(b, "- Due: %s\n", pctx.DueDate.Format("2006-01-02"))
	}
	b.WriteString("\n")
}

// parseDraft extracts the JSON object from a model reply, tolerating code fences and
// surrounding prose.
func parseDraft(content string) (model.Draft, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return model.Draft{}, ErrMalformed
	}
	var d model.Draft
	if err := json.Unmarshal([]byte(content[start:end+1]), &d); err != nil {
		return model.Draft{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(d.Body) == "" {
		return model.Draft{}, fmt.Errorf("%w: body is empty", ErrMalformed)
	}
	return d, nil
}
