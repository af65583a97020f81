package drafting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/mocks"
	"stageflow/pkg/model"
)

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    model.Draft
		wantErr bool
	}{
		{"plain", `{"subject":"S","body":"B"}`, model.Draft{Subject: "S", Body: "B"}, false},
		{"fenced", "```json\n{\"subject\":\"S\",\"body\":\"B\",\"pushTitle\":\"T\"}\n```", model.Draft{Subject: "S", Body: "B", PushTitle: "T"}, false},
		{"no json", "Sure, here you go", model.Draft{}, true},
		{"empty body", `{"subject":"S","body":"  "}`, model.Draft{}, true},
		{"broken", `{"subject": }`, model.Draft{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDraft(tt.content)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRefineKeepsPushTextAndPlaceholder(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith(`{"subject":"","body":"Hi {recipient_first_names}, shorter."}`)
	svc := New(client, WithPlaceholder("{recipient_first_names}"), WithTemperature(0.1))

	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	current := model.Draft{Subject: "Update", Body: "Hi {recipient_first_names}, long text", PushTitle: "PT", PushBody: "PB"}
	got, err := svc.Refine(context.Background(), "make it shorter", current, model.PreviewContext{
		ProjectName: "Atlas", OldStage: "Review", NewStage: "Approved", DueDate: &due,
	})
	require.NoError(t, err)

	assert.Equal(t, "Update", got.Subject)
	assert.Equal(t, "Hi {recipient_first_names}, shorter.", got.Body)
	assert.Equal(t, "PT", got.PushTitle)
	assert.Equal(t, "PB", got.PushBody)

	calls := client.GetCompleteCalls()
	require.Len(t, calls, 1)
	assert.InDelta(t, 0.1, calls[0].Temperature, 1e-6)
	assert.Contains(t, calls[0].Messages[0].Content, "{recipient_first_names}")
	user := calls[0].Messages[1].Content
	assert.Contains(t, user, "Review -> Approved")
	assert.Contains(t, user, "2026-03-01")
	assert.Contains(t, user, "make it shorter")
}

func TestRefineRejectsEmptyInstruction(t *testing.T) {
	client := mocks.NewMockLLMClient()
	_, err := New(client).Refine(context.Background(), "  ", model.Draft{}, model.PreviewContext{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Empty(t, client.GetCompleteCalls())
}

func TestRefinePropagatesClientError(t *testing.T) {
	client := mocks.NewMockLLMClient()
	boom := errors.New("boom")
	client.FailCompleteWith(boom)
	_, err := New(client).Refine(context.Background(), "x", model.Draft{Body: "b"}, model.PreviewContext{})
	assert.ErrorIs(t, err, boom)
}

func TestDraftFromAudio(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith(`{"subject":"Approved","body":"Your project is approved.","pushTitle":"Approved","pushBody":"Atlas approved"}`)
	transcriber := mocks.NewMockTranscriber("tell them atlas is approved")

	svc := New(client, WithTranscriber(transcriber))
	got, err := svc.DraftFromAudio(context.Background(), strings.NewReader("RIFF"), "note.webm", "audio/webm", model.PreviewContext{})
	require.NoError(t, err)

	assert.Equal(t, "Atlas approved", got.PushBody)
	assert.Equal(t, []string{"audio/webm"}, transcriber.Calls)
	assert.Contains(t, client.GetCompleteCalls()[0].Messages[1].Content, "tell them atlas is approved")
}

func TestDraftFromAudioWithoutTranscriber(t *testing.T) {
	_, err := New(mocks.NewMockLLMClient()).DraftFromAudio(context.Background(), strings.NewReader(""), "a", "audio/webm", model.PreviewContext{})
	assert.ErrorIs(t, err, ErrNoTranscriber)
}

func TestTruncate(t *testing.T) {
	var tc *TokenCounter
	text := strings.Repeat("word ", 400)
	out := tc.Truncate(text, 50)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Less(t, len(out), len(text))
	assert.Equal(t, "short", tc.Truncate("short", 50))
}
