package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   ErrorType
	}{
		{"auth by status", errors.New("nope"), 401, ErrorTypeAuth},
		{"rate by status", errors.New("slow down"), 429, ErrorTypeRateLimit},
		{"server", errors.New("oops"), 503, ErrorTypeTransient},
		{"bad request", errors.New("bad"), 400, ErrorTypeBadPrompt},
		{"deadline", context.DeadlineExceeded, 0, ErrorTypeTransient},
		{"reset text", errors.New("read: connection reset by peer"), 0, ErrorTypeTransient},
		{"quota text", errors.New("quota exhausted"), 0, ErrorTypeRateLimit},
		{"model not found", errors.New(`model "llama9" not found`), 0, ErrorTypeBadPrompt},
		{"unknown", errors.New("weird"), 0, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, tt.status, "test")
			assert.Equal(t, tt.want, got.Type, got.Error())
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyKeepsExisting(t *testing.T) {
	orig := NewError(ErrorTypeEmptyResponse, "empty")
	wrapped := fmt.Errorf("wrapped: %w", orig)
	assert.Same(t, orig, Classify(wrapped, 500, "test"))
	assert.True(t, Is(wrapped, ErrorTypeEmptyResponse))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, NewError(ErrorTypeAuth, "").IsRetryable())
	assert.False(t, NewError(ErrorTypeBadPrompt, "").IsRetryable())
	assert.True(t, NewError(ErrorTypeRateLimit, "").IsRetryable())
}
