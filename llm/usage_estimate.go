package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/tensorzero/gateway/types"
)

// estimateEncoding is the tiktoken encoding used for best-effort token
// counting. Providers differ on exact tokenizer, but cl100k_base is close
// enough for an estimate that only exists because the provider itself
// declined to report usage.
const estimateEncoding = "cl100k_base"

var (
	estimateOnce sync.Once
	estimateEnc  *tiktoken.Tiktoken
)

func estimateTokenizer() *tiktoken.Tiktoken {
	estimateOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(estimateEncoding)
		if err == nil {
			estimateEnc = enc
		}
	})
	return estimateEnc
}

func countTokens(text string) int {
	if text == "" {
		return 0
	}
	enc := estimateTokenizer()
	if enc == nil {
		// tiktoken's vocabulary failed to load; fall back to a coarse
		// chars-per-token estimate rather than reporting zero.
		return len(text)/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}

// estimateUsage fills in a best-effort TokenUsage when a provider's
// response carried none (spec §4.B.5: "best-effort; providers that do not
// report are recorded as None" - here populated client-side instead of
// left at the zero value).
func estimateUsage(req *ModelInferenceRequest, content []types.ContentBlock) types.TokenUsage {
	var promptText strings.Builder
	if req.System != nil {
		promptText.WriteString(*req.System)
		promptText.WriteByte('\n')
	}
	for _, msg := range req.Messages {
		for _, block := range msg.Content {
			promptText.WriteString(block.Text)
			promptText.WriteByte('\n')
		}
	}

	var completionText strings.Builder
	for _, block := range content {
		completionText.WriteString(block.Text)
		completionText.WriteByte('\n')
	}

	prompt := countTokens(promptText.String())
	completion := countTokens(completionText.String())
	return types.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// usageIsZero reports whether a provider reported no usage at all.
func usageIsZero(u types.TokenUsage) bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}
