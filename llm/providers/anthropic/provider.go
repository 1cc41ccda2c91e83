package anthropic

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

	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/types"
)

const defaultMaxTokens = 4096
const anthropicVersion = "2023-06-01"

// respondToolName is the synthetic tool Anthropic adapters register to
// force structured output when json_mode is "implicit_tool" (spec §4.B.3):
// Anthropic has no native JSON-mode switch, so Json functions are served
// by requiring a tool call and reading its arguments back as the parse.
const respondToolName = "respond"

// Adapter implements llm.ModelProviderAdapter for the Anthropic Messages
// API (/v1/messages). It is grounded on the pre-gateway claude.ClaudeProvider
// in providers/anthropic, generalized to the gateway's provider-agnostic
// ModelInferenceRequest/ProviderInferenceResponse contract.
type Adapter struct{}

// New constructs the Anthropic adapter. It is stateless: credentials, base
// URL, and the HTTP client all come from the router at call time.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return string(llm.ProviderAnthropic) }

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type wireContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type wireThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type wireRequest struct {
	Model       string          `json:"model"`
	Messages    []wireMessage   `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float32        `json:"temperature,omitempty"`
	TopP        *float32        `json:"top_p,omitempty"`
	StopSeq     []string        `json:"stop_sequences,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Tools       []wireTool      `json:"tools,omitempty"`
	ToolChoice  *wireToolChoice `json:"tool_choice,omitempty"`
	Thinking    *wireThinking   `json:"thinking,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	ID           string        `json:"id"`
	Role         string        `json:"role"`
	Content      []wireContent `json:"content"`
	Model        string        `json:"model"`
	StopReason   string        `json:"stop_reason"`
	StopSequence string        `json:"stop_sequence,omitempty"`
	Usage        *wireUsage    `json:"usage,omitempty"`
}

type wireStreamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index,omitempty"`
	Delta        *wireDelta    `json:"delta,omitempty"`
	ContentBlock *wireContent  `json:"content_block,omitempty"`
	Message      *wireResponse `json:"message,omitempty"`
	Usage        *wireUsage    `json:"usage,omitempty"`
}

type wireDelta struct {
	Type        string `json:"type"` // text_delta, input_json_delta, thinking_delta, signature_delta
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type wireErrorResp struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func buildHeaders(req *http.Request, apiKey string, extra map[string]string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

// convertMessages maps the gateway's role/content-block messages onto
// Anthropic's array-of-blocks format, extracting the leading system
// message (Anthropic carries it out-of-band) and folding tool results
// into synthetic user turns, same as the pre-gateway ClaudeProvider.
func convertMessages(msgs []llm.InferenceMessage, system *string) (string, []wireMessage) {
	sys := ""
	if system != nil {
		sys = *system
	}
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			for _, b := range m.Content {
				if b.Type == types.ContentBlockText {
					sys += b.Text
				}
			}
			continue
		}

		role := "user"
		if m.Role == types.RoleAssistant {
			role = "assistant"
		}

		wm := wireMessage{Role: role}
		for _, b := range m.Content {
			switch b.Type {
			case types.ContentBlockText:
				wm.Content = append(wm.Content, wireContent{Type: "text", Text: b.Text})
			case types.ContentBlockThought:
				// Anthropic does not accept a caller-supplied thinking
				// block back on input; fold it into visible text so the
				// conversation stays coherent on replay.
				wm.Content = append(wm.Content, wireContent{Type: "text", Text: b.Text})
			case types.ContentBlockToolCall:
				wm.Content = append(wm.Content, wireContent{Type: "tool_use", ID: b.ToolCallID, Name: b.ToolName, Input: b.ToolArgsRaw})
			case types.ContentBlockToolResult:
				out = append(out, wireMessage{Role: "user", Content: []wireContent{{
					Type:      "tool_result",
					ToolUseID: b.ToolResultID,
					Content:   b.ToolResult,
					IsError:   b.ToolIsError,
				}}})
			}
		}
		if len(wm.Content) > 0 {
			out = append(out, wm)
		}
	}
	return sys, out
}

func convertTools(cfg *llm.ToolConfig, jsonMode types.JsonMode, outputSchema json.RawMessage) ([]wireTool, *wireToolChoice) {
	var tools []wireTool
	if cfg != nil {
		for _, t := range cfg.Tools {
			tools = append(tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
		}
	}

	if jsonMode == types.JsonModeImplicitTool && len(outputSchema) > 0 {
		tools = append(tools, wireTool{Name: respondToolName, Description: "Respond with the structured output.", InputSchema: outputSchema})
		return tools, &wireToolChoice{Type: "tool", Name: respondToolName}
	}

	if cfg == nil || len(tools) == 0 {
		return tools, nil
	}

	switch cfg.ToolChoice.Mode {
	case types.ToolChoiceNone:
		return nil, nil
	case types.ToolChoiceRequired:
		return tools, &wireToolChoice{Type: "any"}
	case types.ToolChoiceSpecific:
		return tools, &wireToolChoice{Type: "tool", Name: cfg.ToolChoice.ToolName}
	default:
		return tools, &wireToolChoice{Type: "auto"}
	}
}

func buildRequest(req *llm.ModelInferenceRequest, cfg llm.ProviderConfig, stream bool) (*wireRequest, error) {
	system, messages := convertMessages(req.Messages, req.System)
	tools, toolChoice := convertTools(req.Tools, req.JSONMode, req.OutputSchema)

	maxTokens := defaultMaxTokens
	if req.Sampling.MaxTokens != nil && *req.Sampling.MaxTokens > 0 {
		maxTokens = *req.Sampling.MaxTokens
	}

	var thinking *wireThinking
	if req.Sampling.ThinkingBudgetTokens != nil && *req.Sampling.ThinkingBudgetTokens > 0 {
		thinking = &wireThinking{Type: "enabled", BudgetTokens: *req.Sampling.ThinkingBudgetTokens}
	}

	body := &wireRequest{
		Model:       cfg.ModelName,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
		StopSeq:     req.Sampling.Stop,
		Stream:      stream,
		Tools:       tools,
		ToolChoice:  toolChoice,
		Thinking:    thinking,
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

func (a *Adapter) Infer(ctx context.Context, req *llm.ModelInferenceRequest, client *http.Client, apiKey string, cfg llm.ProviderConfig) (*llm.ProviderInferenceResponse, error) {
	wireReq, err := buildRequest(req, cfg, false)
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	payload, _ := json.Marshal(wireReq)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(baseURL, "/"))

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	buildHeaders(httpReq, apiKey, llm.MergeExtraHeaders(cfg.ExtraHeaders, req.ExtraHeaders))

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

	content, finish := toContentBlocks(wireResp.Content, wireResp.StopReason)

	var usage types.TokenUsage
	if wireResp.Usage != nil {
		usage = types.TokenUsage{
			PromptTokens:     wireResp.Usage.InputTokens,
			CompletionTokens: wireResp.Usage.OutputTokens,
			TotalTokens:      wireResp.Usage.InputTokens + wireResp.Usage.OutputTokens,
		}
	}

	return &llm.ProviderInferenceResponse{
		Content:      content,
		Usage:        usage,
		RawRequest:   string(payload),
		RawResponse:  string(rawBody),
		Latency:      latency,
		FinishReason: finish,
	}, nil
}

// toContentBlocks maps Anthropic's content array onto the gateway's
// ContentBlock sum type, and maps stop_reason onto FinishReason.
func toContentBlocks(blocks []wireContent, stopReason string) ([]types.ContentBlock, types.FinishReason) {
	out := make([]types.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, types.NewTextBlock(b.Text))
		case "thinking":
			out = append(out, types.NewThoughtBlock(b.Text))
		case "tool_use":
			out = append(out, types.NewToolCallBlock(b.ID, b.Name, b.Input))
		}
	}

	switch stopReason {
	case "end_turn", "stop_sequence":
		return out, types.FinishStop
	case "max_tokens":
		return out, types.FinishLength
	case "tool_use":
		return out, types.FinishToolCall
	default:
		return out, types.FinishUnknown
	}
}

func (a *Adapter) InferStream(ctx context.Context, req *llm.ModelInferenceRequest, client *http.Client, apiKey string, cfg llm.ProviderConfig) (*llm.ResponseStream, string, error) {
	wireReq, err := buildRequest(req, cfg, true)
	if err != nil {
		return nil, "", &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	payload, _ := json.Marshal(wireReq)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(baseURL, "/"))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	buildHeaders(httpReq, apiKey, llm.MergeExtraHeaders(cfg.ExtraHeaders, req.ExtraHeaders))

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

		reader := bufio.NewReader(resp.Body)
		toolBlocks := make(map[int]struct{ id, name string })

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					errCh <- &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "event:") {
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var event wireStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				errCh <- &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
				return
			}

			switch event.Type {
			case "content_block_start":
				if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
					toolBlocks[event.Index] = struct{ id, name string }{event.ContentBlock.ID, event.ContentBlock.Name}
				}

			case "content_block_delta":
				if event.Delta == nil {
					continue
				}
				switch event.Delta.Type {
				case "text_delta":
					chunks <- llm.ProviderInferenceResponseChunk{Deltas: []llm.ContentBlockDelta{{
						Index: event.Index, Type: types.ContentBlockText, TextDelta: event.Delta.Text,
					}}}
				case "thinking_delta":
					chunks <- llm.ProviderInferenceResponseChunk{Deltas: []llm.ContentBlockDelta{{
						Index: event.Index, Type: types.ContentBlockThought, TextDelta: event.Delta.Thinking,
					}}}
				case "input_json_delta":
					tb := toolBlocks[event.Index]
					chunks <- llm.ProviderInferenceResponseChunk{Deltas: []llm.ContentBlockDelta{{
						Index: event.Index, Type: types.ContentBlockToolCall,
						ToolCallID: tb.id, ToolName: tb.name, ToolArgsDelta: event.Delta.PartialJSON,
					}}}
				}

			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					_, finish := toContentBlocks(nil, event.Delta.StopReason)
					var usage *types.TokenUsage
					if event.Usage != nil {
						usage = &types.TokenUsage{
							PromptTokens:     event.Usage.InputTokens,
							CompletionTokens: event.Usage.OutputTokens,
							TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
						}
					}
					chunks <- llm.ProviderInferenceResponseChunk{FinishReason: &finish, Usage: usage}
				}

			case "message_stop":
				return
			}
		}
	}()

	return llm.NewResponseStream(chunks, errCh), string(payload), nil
}

func readErrMsg(data []byte) string {
	var e wireErrorResp
	if err := json.Unmarshal(data, &e); err == nil && e.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", e.Error.Message, e.Error.Type)
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
	case 529:
		return &types.Error{Code: types.ErrInferenceServer, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &types.Error{Code: types.ErrInferenceServer, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}
