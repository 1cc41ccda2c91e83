package types

import (
	"testing"
)

func TestTokenUsage_Add(t *testing.T) {
	t.Parallel()

	u := TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3, Cost: 0.5}
	u.Add(TokenUsage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 5, Cost: 1.25})

	if u.PromptTokens != 4 || u.CompletionTokens != 6 || u.TotalTokens != 8 {
		t.Fatalf("unexpected tokens: %+v", u)
	}
	if u.Cost != 1.75 {
		t.Fatalf("unexpected cost: %v", u.Cost)
	}
}
