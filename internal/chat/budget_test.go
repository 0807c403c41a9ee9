package chat

import (
	"strings"
	"testing"

	"github.com/varsilias/askdesk/pkg/types"
)

func TestHistoryBudgetDisabled(t *testing.T) {
	b, err := NewHistoryBudget(0)
	if err != nil {
		t.Fatal(err)
	}
	hist := []types.Message{{Content: "a"}, {Content: "b"}}
	if got := b.Trim(hist); len(got) != 2 {
		t.Fatalf("Trim = %+v", got)
	}
	var nilBudget *HistoryBudget
	if got := nilBudget.Trim(hist); len(got) != 2 {
		t.Fatalf("nil Trim = %+v", got)
	}
}

func TestHistoryBudgetDropsOldestFirst(t *testing.T) {
	b, err := NewHistoryBudget(100000)
	if err != nil {
		t.Fatal(err)
	}
	hist := []types.Message{{Content: "one"}, {Content: "two"}, {Content: "three"}}
	if got := b.Trim(hist); len(got) != 3 {
		t.Fatalf("generous budget trimmed: %+v", got)
	}

	small, err := NewHistoryBudget(3)
	if err != nil {
		t.Fatal(err)
	}
	long := types.Message{Content: strings.Repeat("tokens galore ", 50)}
	got := small.Trim([]types.Message{{Content: "older"}, long})
	if len(got) != 0 {
		t.Fatalf("oversized newest turn should stop trimming: %+v", got)
	}
}
