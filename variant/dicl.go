package variant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/template"
	"github.com/tensorzero/gateway/types"
)

// Embedder is the narrow embedding contract the DICL variant needs (spec
// §4.E.4 step 1). Defined here rather than depended on from package
// embedding so Dispatcher stays decoupled from any one embedding client's
// construction details; embedding.OpenAIEmbedder satisfies it as-is.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// StoredExample is one entry in a DICL example pool: a pre-embedded input
// paired with the demonstration it should teach (spec §4.E.4).
type StoredExample struct {
	ID            string
	EmbeddedInput []float64
	Input         string
	Demonstration string
}

// ExamplePool retrieves the top-k nearest stored examples for a function's
// DICL variant by cosine similarity over a query embedding (spec §4.E.4
// step 2). Implementations own the storage and the similarity search; the
// engine only asks for the k nearest.
type ExamplePool interface {
	TopK(ctx context.Context, functionName, variantName string, query []float64, k int) ([]StoredExample, error)
}

// diclEngine implements spec §4.E.4: embed the request, retrieve top-k
// demonstrations, render them as synthetic turns, and delegate the
// augmented request to an inner ChatCompletion pipeline.
type diclEngine struct {
	d *Dispatcher
}

func (e *diclEngine) Infer(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.InferenceResult, error) {
	if e.d.Embedder == nil {
		return nil, fmt.Errorf("dicl: variant %q requires an embedding client but none is configured", vc.Name)
	}
	if e.d.Retrieval == nil {
		return nil, fmt.Errorf("dicl: variant %q requires an example pool but none is configured", vc.Name)
	}

	inner, err := resolveCandidate(req.Function, vc.InnerVariant)
	if err != nil {
		return nil, fmt.Errorf("dicl: inner variant: %w", err)
	}

	queryText := inputToText(req.Input)
	vectors, err := e.d.Embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("dicl: embedding query input: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("dicl: embedding client returned no vector for the query input")
	}

	k := vc.K
	if k <= 0 {
		k = 1
	}
	examples, err := e.d.Retrieval.TopK(ctx, req.FunctionName, vc.Name, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("dicl: retrieving top-%d examples: %w", k, err)
	}

	augmented := *req
	augmented.Input = Input{
		SystemArgs: req.Input.SystemArgs,
		Messages:   append(demonstrationTurns(examples), req.Input.Messages...),
	}

	engine := &chatCompletionEngine{d: e.d}
	return engine.Infer(ctx, &augmented, inner)
}

// demonstrationTurns renders each retrieved example into a synthetic
// user/assistant pair prepended to the real conversation (spec §4.E.4
// step 3). No template is applied: each example's Input and Demonstration
// text is used verbatim as the turn's single text block, which is already
// a valid plain-string message (spec §4.E.1 step 1's passthrough rule).
func demonstrationTurns(examples []StoredExample) []MessageInput {
	turns := make([]MessageInput, 0, len(examples)*2)
	for _, ex := range examples {
		turns = append(turns,
			MessageInput{Role: types.RoleUser, Blocks: template.Content(ex.Input)},
			MessageInput{Role: types.RoleAssistant, Blocks: template.Content(ex.Demonstration)},
		)
	}
	return turns
}

// inputToText derives a stable text representation of the request's
// structured input for embedding purposes (spec §4.E.4 step 1). Plain
// string turns are concatenated directly; anything else (already-built
// content blocks, or template args for a declared template) is folded in
// via its JSON form so the embedding is still deterministic for a given
// input.
func inputToText(in Input) string {
	var out []byte
	for _, m := range in.Messages {
		if s, ok := m.TemplateArgs.(string); ok {
			out = append(out, []byte(string(m.Role)+": "+s+"\n")...)
			continue
		}
		if m.TemplateArgs != nil {
			if enc, err := json.Marshal(m.TemplateArgs); err == nil {
				out = append(out, []byte(string(m.Role)+": "+string(enc)+"\n")...)
				continue
			}
		}
		for _, b := range m.Blocks {
			if b.Type == types.ContentBlockText {
				out = append(out, []byte(string(m.Role)+": "+b.Text+"\n")...)
			}
		}
	}
	return string(out)
}
