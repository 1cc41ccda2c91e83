// Package openaiwire implements llm.ModelProviderAdapter once for every
// provider that speaks the OpenAI chat-completions wire format
// (/v1/chat/completions), grounded on the teacher's OpenAI-compatible
// wire types and SSE-loop shape. Per-provider differences (base URL,
// auth header shape, which sampling knobs are actually accepted) are
// expressed as a Capabilities value rather than a new package per
// provider (spec §4.B.2).
package openaiwire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/providers/thinkblock"
	"github.com/tensorzero/gateway/types"
)

// respondToolName is the synthetic tool forced via tool_choice when a
// function asks for implicit-tool JSON mode (spec §4.B.3): providers that
// don't support a native structured-output mode get a single declared
// tool whose schema is the function's output schema, and are made to call
// it every time.
const respondToolName = "respond"

// Capabilities records which sampling knobs and modes a given
// OpenAI-wire-compatible endpoint actually honors, per spec §4.B.2's
// per-provider unsupported-parameter table. Unsupported fields are
// dropped from the outgoing body and logged at WARN rather than sent and
// rejected by the upstream.
type Capabilities struct {
	SupportsReasoningEffort      bool
	SupportsThinkingBudgetTokens bool
	SupportsVerbosity            bool
	SupportsServiceTier           bool
	SupportsStrictJSONSchema     bool // response_format: json_schema with strict:true
	SupportsToolChoiceNone       bool
	SupportsToolChoiceRequired   bool
	AuthHeader                   func(apiKey string) (name, value string)
}

func bearerAuth(apiKey string) (string, string) { return "Authorization", "Bearer " + apiKey }

// DefaultCapabilities is the OpenAI-proper capability set; other
// providers start from this and flip off what their original_source
// integration notes say they silently ignore.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		SupportsReasoningEffort:      true,
		SupportsThinkingBudgetTokens: false,
		SupportsVerbosity:            true,
		SupportsServiceTier:          true,
		SupportsStrictJSONSchema:     true,
		SupportsToolChoiceNone:       true,
		SupportsToolChoiceRequired:   true,
		AuthHeader:                   bearerAuth,
	}
}

// Adapter is one OpenAI-wire-compatible provider instance: a ProviderKind
// tag, a default endpoint path, and its Capabilities.
type Adapter struct {
	kind         llm.ProviderKind
	endpointPath string
	modelsPath   string
	caps         Capabilities
	logger       *zap.Logger
}

// New builds an adapter for a given provider kind. endpointPath defaults
// to "/chat/completions" if empty.
func New(kind llm.ProviderKind, endpointPath string, caps Capabilities, logger *zap.Logger) *Adapter {
	if endpointPath == "" {
		endpointPath = "/chat/completions"
	}
	if caps.AuthHeader == nil {
		caps.AuthHeader = bearerAuth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{kind: kind, endpointPath: endpointPath, caps: caps, logger: logger}
}

func (a *Adapter) Name() string { return string(a.kind) }

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type wireRequest struct {
	Model            string              `json:"model"`
	Messages         []wireMessage       `json:"messages"`
	Tools            []wireTool          `json:"tools,omitempty"`
	ToolChoice       interface{}         `json:"tool_choice,omitempty"`
	MaxTokens        int                 `json:"max_tokens,omitempty"`
	Temperature      *float32            `json:"temperature,omitempty"`
	TopP             *float32            `json:"top_p,omitempty"`
	Stop             []string            `json:"stop,omitempty"`
	Seed             *int64              `json:"seed,omitempty"`
	PresencePenalty  *float32            `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float32            `json:"frequency_penalty,omitempty"`
	Stream           bool                `json:"stream,omitempty"`
	ResponseFormat   *wireResponseFormat `json:"response_format,omitempty"`
	ReasoningEffort  string              `json:"reasoning_effort,omitempty"`
	Verbosity        string              `json:"verbosity,omitempty"`
	ServiceTier      string              `json:"service_tier,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      wireMessage  `json:"message"`
	Delta        *wireMessage `json:"delta,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
}

func convertMessages(msgs []llm.InferenceMessage) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: string(m.Role)}
		for _, b := range m.Content {
			switch b.Type {
			case types.ContentBlockText, types.ContentBlockThought:
				wm.Content += b.Text
			case types.ContentBlockToolCall:
				wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
					ID: b.ToolCallID, Type: "function",
					Function: wireFunction{Name: b.ToolName, Arguments: b.ToolArgsRaw},
				})
			case types.ContentBlockToolResult:
				out = append(out, wireMessage{Role: "tool", Content: b.ToolResult, ToolCallID: b.ToolResultID})
				continue
			}
		}
		if wm.Content != "" || len(wm.ToolCalls) > 0 || m.Role == types.RoleSystem {
			out = append(out, wm)
		}
	}
	return out
}

func convertTools(cfg *llm.ToolConfig, jsonMode types.JsonMode, outputSchema json.RawMessage, caps Capabilities) ([]wireTool, interface{}) {
	var tools []wireTool
	if cfg != nil {
		tools = make([]wireTool, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			tools = append(tools, wireTool{Type: "function", Function: wireFunction{Name: t.Name, Arguments: t.Parameters}})
		}
	}

	if jsonMode == types.JsonModeImplicitTool && len(outputSchema) > 0 {
		tools = append(tools, wireTool{Type: "function", Function: wireFunction{Name: respondToolName, Arguments: outputSchema}})
		return tools, map[string]interface{}{"type": "function", "function": map[string]string{"name": respondToolName}}
	}
	if cfg == nil || len(cfg.Tools) == 0 {
		return nil, nil
	}

	switch cfg.ToolChoice.Mode {
	case types.ToolChoiceNone:
		if caps.SupportsToolChoiceNone {
			return tools, "none"
		}
		return nil, nil
	case types.ToolChoiceRequired:
		if caps.SupportsToolChoiceRequired {
			return tools, "required"
		}
		return tools, "auto"
	case types.ToolChoiceSpecific:
		return tools, map[string]interface{}{"type": "function", "function": map[string]string{"name": cfg.ToolChoice.ToolName}}
	default:
		return tools, "auto"
	}
}

func responseFormat(req *llm.ModelInferenceRequest, caps Capabilities) *wireResponseFormat {
	switch req.JSONMode {
	case types.JsonModeImplicitTool:
		// Structured output is enforced via a forced tool call
		// (convertTools), not response_format.
		return nil
	case types.JsonModeStrict:
		if caps.SupportsStrictJSONSchema && len(req.OutputSchema) > 0 {
			schema, _ := json.Marshal(map[string]interface{}{
				"name": "response", "strict": true, "schema": json.RawMessage(req.OutputSchema),
			})
			return &wireResponseFormat{Type: "json_schema", JSONSchema: schema}
		}
		return &wireResponseFormat{Type: "json_object"}
	case types.JsonModeOn:
		return &wireResponseFormat{Type: "json_object"}
	default:
		return nil
	}
}

func (a *Adapter) buildRequest(req *llm.ModelInferenceRequest, cfg llm.ProviderConfig, stream bool, logger *zap.Logger) (*wireRequest, error) {
	tools, toolChoice := convertTools(req.Tools, req.JSONMode, req.OutputSchema, a.caps)

	body := &wireRequest{
		Model:            cfg.ModelName,
		Messages:         convertMessages(req.Messages),
		Tools:            tools,
		ToolChoice:       toolChoice,
		Temperature:      req.Sampling.Temperature,
		TopP:             req.Sampling.TopP,
		Stop:             req.Sampling.Stop,
		Seed:             req.Sampling.Seed,
		PresencePenalty:  req.Sampling.PresencePenalty,
		FrequencyPenalty: req.Sampling.FrequencyPenalty,
		Stream:           stream,
		ResponseFormat:   responseFormat(req, a.caps),
	}
	if req.Sampling.MaxTokens != nil {
		body.MaxTokens = *req.Sampling.MaxTokens
	}

	if req.Sampling.ReasoningEffort != "" {
		if a.caps.SupportsReasoningEffort {
			body.ReasoningEffort = req.Sampling.ReasoningEffort
		} else {
			logger.Warn("provider does not support reasoning_effort, dropping", zap.String("provider", a.Name()))
		}
	}
	if req.Sampling.ThinkingBudgetTokens != nil && !a.caps.SupportsThinkingBudgetTokens {
		logger.Warn("provider does not support thinking_budget_tokens, dropping", zap.String("provider", a.Name()))
	}
	if req.Sampling.Verbosity != "" {
		if a.caps.SupportsVerbosity {
			body.Verbosity = req.Sampling.Verbosity
		} else {
			logger.Warn("provider does not support verbosity, dropping", zap.String("provider", a.Name()))
		}
	}
	if req.Sampling.ServiceTier != "" {
		if a.caps.SupportsServiceTier {
			body.ServiceTier = req.Sampling.ServiceTier
		} else {
			logger.Warn("provider does not support service_tier, dropping", zap.String("provider", a.Name()))
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	patched, err := llm.ApplyExtraBody(raw, append(append([]llm.ExtraBodyPatch{}, cfg.ExtraBody...), req.ExtraBody...))
	if err != nil {
		return nil, err
	}
	var out wireRequest
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Adapter) endpoint(cfg llm.ProviderConfig) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(cfg.BaseURL, "/"), a.endpointPath)
}

func (a *Adapter) headers(req *http.Request, apiKey string, cfg llm.ProviderConfig, extra map[string]string) {
	name, value := a.caps.AuthHeader(apiKey)
	req.Header.Set(name, value)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

func toContentBlocks(msg wireMessage, parsesThinkBlocks bool) ([]types.ContentBlock, error) {
	var out []types.ContentBlock
	if msg.Content != "" {
		if parsesThinkBlocks {
			blocks, err := thinkblock.Extract(msg.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, blocks...)
		} else {
			out = append(out, types.NewTextBlock(msg.Content))
		}
	}
	for _, tc := range msg.ToolCalls {
		out = append(out, types.NewToolCallBlock(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return out, nil
}

func toFinishReason(s string) types.FinishReason {
	switch s {
	case "stop":
		return types.FinishStop
	case "length":
		return types.FinishLength
	case "tool_calls":
		return types.FinishToolCall
	case "content_filter":
		return types.FinishContentFilter
	default:
		return types.FinishUnknown
	}
}

func (a *Adapter) Infer(ctx context.Context, req *llm.ModelInferenceRequest, client *http.Client, apiKey string, cfg llm.ProviderConfig) (*llm.ProviderInferenceResponse, error) {
	wireReq, err := a.buildRequest(req, cfg, false, a.logger)
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	payload, _ := json.Marshal(wireReq)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(cfg), bytes.NewReader(payload))
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	a.headers(httpReq, apiKey, cfg, llm.MergeExtraHeaders(cfg.ExtraHeaders, req.ExtraHeaders))

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
	}
	if resp.StatusCode >= 400 {
		return nil, mapError(resp.StatusCode, readErrMsg(rawBody), a.Name())
	}

	var wireResp wireResponse
	if err := json.Unmarshal(rawBody, &wireResp); err != nil {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
	}
	if len(wireResp.Choices) == 0 {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: "provider returned no choices", Provider: a.Name()}
	}
	choice := wireResp.Choices[0]

	var usage types.TokenUsage
	if wireResp.Usage != nil {
		usage = types.TokenUsage{
			PromptTokens:     wireResp.Usage.PromptTokens,
			CompletionTokens: wireResp.Usage.CompletionTokens,
			TotalTokens:      wireResp.Usage.TotalTokens,
		}
	}

	content, err := toContentBlocks(choice.Message, cfg.ParsesThinkBlocks)
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Provider: a.Name()}
	}

	return &llm.ProviderInferenceResponse{
		Content:      content,
		Usage:        usage,
		RawRequest:   string(payload),
		RawResponse:  string(rawBody),
		Latency:      latency,
		FinishReason: toFinishReason(choice.FinishReason),
	}, nil
}

func (a *Adapter) InferStream(ctx context.Context, req *llm.ModelInferenceRequest, client *http.Client, apiKey string, cfg llm.ProviderConfig) (*llm.ResponseStream, string, error) {
	wireReq, err := a.buildRequest(req, cfg, true, a.logger)
	if err != nil {
		return nil, "", &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	payload, _ := json.Marshal(wireReq)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(cfg), bytes.NewReader(payload))
	if err != nil {
		return nil, "", &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	a.headers(httpReq, apiKey, cfg, llm.MergeExtraHeaders(cfg.ExtraHeaders, req.ExtraHeaders))

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, "", mapError(resp.StatusCode, readErrMsg(data), a.Name())
	}

	chunks := make(chan llm.ProviderInferenceResponseChunk)
	errCh := make(chan error, 1)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)
		defer close(errCh)

		var thinkParser *thinkblock.StreamParser
		if cfg.ParsesThinkBlocks {
			thinkParser = thinkblock.NewStreamParser()
		}

		// toolCalls stitches each tool call's id/name (sent only on the wire
		// chunk that introduces it) onto every later chunk carrying that
		// same index's argument-string deltas, mirroring the Anthropic
		// adapter's per-stream toolBlocks map.
		toolCalls := map[int]struct{ ID, Name string }{}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					errCh <- &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk wireResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				errCh <- &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			c := chunk.Choices[0]
			var deltas []llm.ContentBlockDelta
			if c.Delta != nil {
				if c.Delta.Content != "" {
					if thinkParser != nil {
						parsed, perr := thinkParser.Feed(c.Delta.Content)
						if perr != nil {
							errCh <- &types.Error{Code: types.ErrInferenceServer, Message: perr.Error(), Provider: a.Name()}
							return
						}
						for _, d := range parsed {
							deltas = append(deltas, llm.ContentBlockDelta{Index: 0, ID: d.ID, Type: d.Type, TextDelta: d.Text})
						}
					} else {
						deltas = append(deltas, llm.ContentBlockDelta{Index: 0, Type: types.ContentBlockText, TextDelta: c.Delta.Content})
					}
				}
				for _, tc := range c.Delta.ToolCalls {
					if tc.ID != "" {
						toolCalls[tc.Index] = struct{ ID, Name string }{ID: tc.ID, Name: tc.Function.Name}
					}
					known := toolCalls[tc.Index]
					deltas = append(deltas, llm.ContentBlockDelta{
						Index: tc.Index + 1, ID: known.ID, Type: types.ContentBlockToolCall,
						ToolCallID: known.ID, ToolName: known.Name, ToolArgsDelta: string(tc.Function.Arguments),
					})
				}
			}

			out := llm.ProviderInferenceResponseChunk{Deltas: deltas}
			if c.FinishReason != "" {
				fr := toFinishReason(c.FinishReason)
				out.FinishReason = &fr
			}
			if chunk.Usage != nil {
				out.Usage = &types.TokenUsage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			chunks <- out
		}
	}()

	return llm.NewResponseStream(chunks, errCh), string(payload), nil
}

func readErrMsg(data []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error.Message != "" {
		if e.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", e.Error.Message, e.Error.Type)
		}
		return e.Error.Message
	}
	return string(data)
}

func mapError(status int, msg, provider string) *types.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &types.Error{Code: types.ErrApiKeyMissing, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &types.Error{Code: types.ErrInferenceServer, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		return &types.Error{Code: types.ErrInferenceClient, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &types.Error{Code: types.ErrInferenceServer, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &types.Error{Code: types.ErrInferenceServer, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}
