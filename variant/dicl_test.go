package variant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/types"
)

func TestInputToText_PlainStringTemplateArgs(t *testing.T) {
	t.Parallel()

	in := Input{Messages: []MessageInput{
		{Role: types.RoleUser, TemplateArgs: "hello"},
	}}
	assert.Equal(t, "user: hello\n", inputToText(in))
}

func TestInputToText_StructuredTemplateArgsFoldedAsJSON(t *testing.T) {
	t.Parallel()

	in := Input{Messages: []MessageInput{
		{Role: types.RoleUser, TemplateArgs: map[string]string{"city": "SF"}},
	}}
	got := inputToText(in)
	assert.Contains(t, got, "user: ")
	assert.Contains(t, got, `"city":"SF"`)
}

func TestInputToText_BlocksUseTextContent(t *testing.T) {
	t.Parallel()

	in := Input{Messages: []MessageInput{
		{Role: types.RoleAssistant, Blocks: []types.ContentBlock{types.NewTextBlock("hi there")}},
	}}
	assert.Equal(t, "assistant: hi there\n", inputToText(in))
}

func TestDemonstrationTurns_OneUserAssistantPairPerExample(t *testing.T) {
	t.Parallel()

	examples := []StoredExample{
		{Input: "q1", Demonstration: "a1"},
		{Input: "q2", Demonstration: "a2"},
	}
	turns := demonstrationTurns(examples)
	require.Len(t, turns, 4)
	assert.Equal(t, types.RoleUser, turns[0].Role)
	assert.Equal(t, types.RoleAssistant, turns[1].Role)
	assert.Equal(t, "q1", turns[0].Blocks[0].Text)
	assert.Equal(t, "a1", turns[1].Blocks[0].Text)
}

func TestDiclEngine_Infer_RequiresEmbedderAndRetrieval(t *testing.T) {
	t.Parallel()

	vc := function.VariantConfig{Name: "dicl_variant", Kind: function.VariantDICL, InnerVariant: "base"}
	req := &Request{FunctionName: "f", Function: function.FunctionConfig{Name: "f"}}

	d := &Dispatcher{}
	_, err := (&diclEngine{d: d}).Infer(context.Background(), req, vc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding client")

	d2 := &Dispatcher{Embedder: fakeEmbedder{}}
	_, err = (&diclEngine{d: d2}).Infer(context.Background(), req, vc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "example pool")
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vecs := make([][]float64, len(texts))
	for i := range texts {
		vecs[i] = []float64{1, 0, 0}
	}
	return vecs, nil
}
