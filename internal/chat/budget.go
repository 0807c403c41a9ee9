package chat

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"

	"github.com/varsilias/askdesk/pkg/types"
)

// HistoryBudget keeps the history sent upstream under a token limit by
// dropping the oldest turns first.
type HistoryBudget struct {
	max   int
	codec tokenizer.Codec
}

// NewHistoryBudget returns a budget of maxTokens. maxTokens <= 0 disables trimming.
func NewHistoryBudget(maxTokens int) (*HistoryBudget, error) {
	if maxTokens <= 0 {
		return &HistoryBudget{}, nil
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &HistoryBudget{max: maxTokens, codec: codec}, nil
}

func (b *HistoryBudget) Trim(history []types.Message) []types.Message {
	if b == nil || b.max <= 0 {
		return history
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := b.count(history[i].Content)
		if total+n > b.max {
			break
		}
		total += n
		start = i
	}
	return history[start:]
}

func (b *HistoryBudget) count(s string) int {
	ids, _, err := b.codec.Encode(s)
	if err != nil {
		// rough fallback: ~4 bytes per token
		return utf8.RuneCountInString(s)/4 + 1
	}
	return len(ids)
}
