package llm

import (
	"encoding/json"
	"time"

	"github.com/tensorzero/gateway/types"
)

// FunctionType distinguishes Chat functions (free-form content blocks) from
// Json functions (schema-validated structured output). See spec §3.
type FunctionType string

const (
	FunctionTypeChat FunctionType = "chat"
	FunctionTypeJson FunctionType = "json"
)

// InferenceMessage is one role-tagged turn built from content blocks, the
// generic message shape `ModelInferenceRequest` carries (spec §3).
type InferenceMessage struct {
	Role    types.Role          `json:"role"`
	Content []types.ContentBlock `json:"content"`
}

// ToolConfig is the resolved tool surface for one inference: the declared
// tools, the requested tool choice, and whether parallel tool calls are
// allowed.
type ToolConfig struct {
	Tools             []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice        types.ToolChoice   `json:"tool_choice"`
	ParallelToolCalls bool               `json:"parallel_tool_calls,omitempty"`
}

// SamplingParams are the generic, provider-agnostic generation knobs a
// `ModelInferenceRequest` carries (spec §3/§6).
type SamplingParams struct {
	Temperature          *float32 `json:"temperature,omitempty"`
	TopP                 *float32 `json:"top_p,omitempty"`
	MaxTokens            *int     `json:"max_tokens,omitempty"`
	Seed                 *int64   `json:"seed,omitempty"`
	PresencePenalty      *float32 `json:"presence_penalty,omitempty"`
	FrequencyPenalty     *float32 `json:"frequency_penalty,omitempty"`
	Stop                 []string `json:"stop,omitempty"`
	ReasoningEffort      string   `json:"reasoning_effort,omitempty"`
	ThinkingBudgetTokens *int     `json:"thinking_budget_tokens,omitempty"`
	Verbosity            string   `json:"verbosity,omitempty"`
	ServiceTier           string   `json:"service_tier,omitempty"`
}

// Merge overlays non-nil/non-empty fields of `override` onto a copy of p,
// implementing the "request param > variant default" precedence from
// spec §4.E.1 step 2.
func (p SamplingParams) Merge(override SamplingParams) SamplingParams {
	out := p
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.PresencePenalty != nil {
		out.PresencePenalty = override.PresencePenalty
	}
	if override.FrequencyPenalty != nil {
		out.FrequencyPenalty = override.FrequencyPenalty
	}
	if len(override.Stop) > 0 {
		out.Stop = override.Stop
	}
	if override.ReasoningEffort != "" {
		out.ReasoningEffort = override.ReasoningEffort
	}
	if override.ThinkingBudgetTokens != nil {
		out.ThinkingBudgetTokens = override.ThinkingBudgetTokens
	}
	if override.Verbosity != "" {
		out.Verbosity = override.Verbosity
	}
	if override.ServiceTier != "" {
		out.ServiceTier = override.ServiceTier
	}
	return out
}

// ExtraBodyPatch is one targeted, JSON-pointer-style write applied to the
// outgoing provider request body or headers, per spec §4.B.4. Patches are
// applied in layered order: model-provider < variant < request.
type ExtraBodyPatch struct {
	Pointer string          `json:"pointer"` // e.g. "/top_k"
	Value   json.RawMessage `json:"value"`
}

// ModelInferenceRequest is the provider-agnostic request built by the
// variant engine and handed to the model router (spec §3, §4.B).
type ModelInferenceRequest struct {
	Messages      []InferenceMessage `json:"messages"`
	System        *string            `json:"system,omitempty"`
	Tools         *ToolConfig        `json:"tools,omitempty"`
	Sampling      SamplingParams     `json:"sampling"`
	JSONMode      types.JsonMode     `json:"json_mode"`
	FunctionType  FunctionType       `json:"function_type"`
	OutputSchema  json.RawMessage    `json:"output_schema,omitempty"`
	ExtraBody     []ExtraBodyPatch   `json:"extra_body,omitempty"`
	ExtraHeaders  map[string]string  `json:"extra_headers,omitempty"`
	ExtraCacheKey string             `json:"extra_cache_key,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

// ProviderInferenceResponse is a single physical provider call's result
// (spec §3, §4.B.5).
type ProviderInferenceResponse struct {
	Content      []types.ContentBlock `json:"content"`
	Usage        types.TokenUsage      `json:"usage"`
	RawRequest   string                `json:"raw_request"`
	RawResponse  string                `json:"raw_response"`
	Latency      time.Duration         `json:"latency"`
	FinishReason types.FinishReason    `json:"finish_reason"`
}

// ContentBlockDelta is one incremental update to a streamed content block,
// keyed by Index so the caller can reassemble blocks in order (spec §4.B.6).
type ContentBlockDelta struct {
	Index         int                  `json:"index"`
	ID            string               `json:"id"`
	Type          types.ContentBlockType `json:"type"`
	TextDelta     string               `json:"text_delta,omitempty"`
	ToolCallID    string               `json:"tool_call_id,omitempty"`
	ToolName      string               `json:"tool_name,omitempty"`
	ToolArgsDelta string               `json:"tool_args_delta,omitempty"`
}

// ProviderInferenceResponseChunk is one decoded wire chunk of a streamed
// response (spec §4.B.6).
type ProviderInferenceResponseChunk struct {
	Deltas       []ContentBlockDelta  `json:"deltas,omitempty"`
	Usage        *types.TokenUsage    `json:"usage,omitempty"`
	Latency      time.Duration        `json:"latency"`
	FinishReason *types.FinishReason  `json:"finish_reason,omitempty"`
	RawChunk     string               `json:"-"`
}

// ResponseStream is the lazy, finite, non-restartable sequence of chunks a
// streaming provider call yields (spec §9 "Async discipline"). Callers
// range over Chunks until it closes, then check Err.
type ResponseStream struct {
	Chunks <-chan ProviderInferenceResponseChunk
	errCh  <-chan error
}

// NewResponseStream wires a chunk channel and an error channel (closed
// after the final chunk, carrying at most one error) into a ResponseStream.
func NewResponseStream(chunks <-chan ProviderInferenceResponseChunk, errCh <-chan error) *ResponseStream {
	return &ResponseStream{Chunks: chunks, errCh: errCh}
}

// Err drains the error channel; call only after Chunks has closed.
func (s *ResponseStream) Err() error {
	if s.errCh == nil {
		return nil
	}
	return <-s.errCh
}

// ModelInferenceResponse wraps one physical provider call's result with
// the bookkeeping the persistence sink and observability layer need
// (spec §6 ModelInference row, §3 InferenceResult.ModelInferenceResponses).
type ModelInferenceResponse struct {
	ID               string        `json:"id"`
	ModelName        string        `json:"model_name"`
	ModelProviderName string       `json:"model_provider_name"`
	ProviderInferenceResponse
	Cached bool `json:"cached"`
}

// InferenceResultKind is the tag of the InferenceResult sum type.
type InferenceResultKind string

const (
	InferenceResultChat InferenceResultKind = "chat"
	InferenceResultJson InferenceResultKind = "json"
)

// InferenceResult is the outcome the variant engine hands back to the
// request façade (spec §3).
type InferenceResult struct {
	Kind    InferenceResultKind `json:"kind"`
	Content []types.ContentBlock `json:"content,omitempty"` // Kind == Chat

	// Json-only fields.
	Raw          string          `json:"raw,omitempty"`
	Parsed       json.RawMessage `json:"parsed,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`

	ModelResponses   []ModelInferenceResponse `json:"model_responses"`
	Usage            types.TokenUsage         `json:"usage"`
	OriginalResponse *string                  `json:"original_response,omitempty"`
}

// AddModelResponse appends a constituent call and folds its usage into the
// aggregate, the bookkeeping every variant (single-shot or fan-out) needs.
func (r *InferenceResult) AddModelResponse(m ModelInferenceResponse) {
	r.ModelResponses = append(r.ModelResponses, m)
	r.Usage.Add(m.Usage)
}
