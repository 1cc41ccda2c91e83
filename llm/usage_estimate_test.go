package llm

import (
	"testing"

	"github.com/tensorzero/gateway/types"
)

func TestEstimateUsage_NonEmptyForNonEmptyText(t *testing.T) {
	req := &ModelInferenceRequest{
		Messages: []InferenceMessage{
			{Role: types.RoleUser, Content: []types.ContentBlock{types.NewTextBlock("What is the capital of France?")}},
		},
	}
	content := []types.ContentBlock{types.NewTextBlock("The capital of France is Paris.")}

	usage := estimateUsage(req, content)

	if usage.PromptTokens == 0 {
		t.Error("expected a non-zero prompt token estimate")
	}
	if usage.CompletionTokens == 0 {
		t.Error("expected a non-zero completion token estimate")
	}
	if usage.TotalTokens != usage.PromptTokens+usage.CompletionTokens {
		t.Errorf("total %d != prompt %d + completion %d", usage.TotalTokens, usage.PromptTokens, usage.CompletionTokens)
	}
}

func TestEstimateUsage_IncludesSystemPrompt(t *testing.T) {
	system := "You are a terse assistant."
	withSystem := estimateUsage(&ModelInferenceRequest{System: &system}, nil)
	withoutSystem := estimateUsage(&ModelInferenceRequest{}, nil)

	if withSystem.PromptTokens <= withoutSystem.PromptTokens {
		t.Errorf("expected system prompt to add tokens: with=%d without=%d", withSystem.PromptTokens, withoutSystem.PromptTokens)
	}
}

func TestUsageIsZero(t *testing.T) {
	if !usageIsZero(types.TokenUsage{}) {
		t.Error("expected the zero value to be reported as zero usage")
	}
	if usageIsZero(types.TokenUsage{PromptTokens: 1}) {
		t.Error("expected a non-zero field to be reported as non-zero usage")
	}
}
