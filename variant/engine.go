// Package variant implements the variant engine (spec §4.E): the four
// strategies that turn one function-level inference request into one or
// more model-router calls. Each strategy is a concrete type implementing
// Engine; polymorphism is by variant kind, resolved at dispatch time from
// a function's declared VariantConfig, never by pointer (spec §9 "No
// cyclic graphs in the core").
package variant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/template"
	"github.com/tensorzero/gateway/types"
)

// MessageInput is one conversational turn's structured input. Exactly one
// of TemplateArgs or Blocks is set: TemplateArgs is rendered through the
// variant's per-role template (or, with no template declared, must already
// be a plain string - spec §4.E.1 step 1); Blocks is used verbatim, the
// escape hatch for tool-call/tool-result turns that were never strings to
// begin with.
type MessageInput struct {
	Role         types.Role
	TemplateArgs any
	Blocks       []types.ContentBlock
}

// Input is the request's structured input (spec §6 "input (structured
// messages + optional system)").
type Input struct {
	SystemArgs any // nil: no system prompt supplied
	Messages   []MessageInput
}

// Request is the function-level inference request the request façade
// builds and hands to the variant engine (spec §4.H step 3, §6).
type Request struct {
	FunctionName string
	Function     function.FunctionConfig
	Input        Input

	Params       llm.SamplingParams
	JSONMode     *types.JsonMode // request override; nil defers to variant default
	ToolChoice   *types.ToolChoice
	Tools        []types.ToolSchema // dynamic tools; nil defers to function's declared tools
	OutputSchema json.RawMessage    // dynamic_output_schema; overrides function.OutputSchema

	ExtraBody     []llm.ExtraBodyPatch
	ExtraHeaders  map[string]string
	ExtraCacheKey string
	CacheOptions  llm.CacheOptions
	Credentials   llm.InferenceCredentials
}

// Engine is the contract every variant strategy implements.
type Engine interface {
	Infer(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.InferenceResult, error)
}

// StreamingEngine is the optional extension for variants that can stream
// (spec §4.E.1 only - the fan-out variants can't emit partial content
// before they've evaluated/fused every candidate).
type StreamingEngine interface {
	Engine
	InferStream(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.StreamResult, error)
}

// unsupportedStreamError is returned by Dispatcher.InferStream for every
// variant kind other than ChatCompletion.
func unsupportedStreamError(kind function.VariantKind) error {
	return &types.Error{
		Code:    types.ErrUnsupportedVariantForBatchInference,
		Message: fmt.Sprintf("variant kind %q does not support streaming", kind),
	}
}

// Dispatcher owns the shared collaborators every variant kind needs
// (router, renderer, function/model registry, embedding client) and
// resolves a VariantConfig's Kind to the concrete Engine that runs it
// (spec §4.E.5 combined with the kind-specific pipelines in §4.E.1-4).
type Dispatcher struct {
	Router     *llm.Router
	Renderer   *template.Renderer
	Registry   *function.Registry
	HTTPClient *http.Client
	Embedder   Embedder
	Retrieval  ExamplePool
	Logger     *zap.Logger
}

// Infer resolves vc.Kind to the matching Engine and runs it. Recursion is
// bounded to one level: BestOfN/MixtureOfN resolve their named candidates
// to ChatCompletion variants only (spec §9 "a variant cannot transitively
// invoke another BestOfN variant") - enforced in fanOutCandidates by simply
// never calling back into Dispatcher.Infer with a fan-out kind.
func (d *Dispatcher) Infer(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.InferenceResult, error) {
	switch vc.Kind {
	case function.VariantChatCompletion:
		return (&chatCompletionEngine{d: d}).Infer(ctx, req, vc)
	case function.VariantBestOfN:
		return (&bestOfNEngine{d: d}).Infer(ctx, req, vc)
	case function.VariantMixtureOfN:
		return (&mixtureOfNEngine{d: d}).Infer(ctx, req, vc)
	case function.VariantDICL:
		return (&diclEngine{d: d}).Infer(ctx, req, vc)
	default:
		return nil, fmt.Errorf("variant: unknown kind %q", vc.Kind)
	}
}

// InferStream only the ChatCompletion engine supports streaming natively.
func (d *Dispatcher) InferStream(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.StreamResult, error) {
	if vc.Kind != function.VariantChatCompletion {
		return nil, unsupportedStreamError(vc.Kind)
	}
	return (&chatCompletionEngine{d: d}).InferStream(ctx, req, vc)
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
