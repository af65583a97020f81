package drafting

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts prompt tokens. Every provider is approximated with the GPT-4
// encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter loads the GPT-4 codec.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in text, falling back to four characters per token.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// Truncate cuts text to roughly limit tokens. The cut is proportional by characters, so it
// leaves a 10% margin and marks the cut with "...".
func (tc *TokenCounter) Truncate(text string, limit int) string {
	current := tc.Count(text)
	if current <= limit {
		return text
	}
	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	for charLimit > 0 && !utf8Start(text[charLimit]) {
		charLimit--
	}
	return text[:charLimit] + "..."
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
