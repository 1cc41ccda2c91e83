package gemini

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

// Adapter implements llm.ModelProviderAdapter for Google's Gemini wire
// format, shared by google_ai_studio (API-key auth against
// generativelanguage.googleapis.com) and gcp_vertex (bearer-token auth
// against the Vertex publisher endpoint) — the request/response JSON
// shape is identical, only the endpoint URL and auth header differ
// (spec §4.B, grounded on this package's pre-existing GeminiProvider).
type Adapter struct {
	kind llm.ProviderKind
}

func NewGoogleAI() *Adapter { return &Adapter{kind: llm.ProviderGoogleAI} }
func NewVertex() *Adapter   { return &Adapter{kind: llm.ProviderVertex} }

func (a *Adapter) Name() string { return string(a.kind) }

type wirePart struct {
	Text             string          `json:"text,omitempty"`
	FunctionCall     *wireFuncCall   `json:"functionCall,omitempty"`
	FunctionResponse *wireFuncResp   `json:"functionResponse,omitempty"`
}

type wireFuncCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type wireFuncResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireTool struct {
	FunctionDeclarations []wireFuncDecl `json:"functionDeclarations"`
}

type wireGenerationConfig struct {
	Temperature      *float32        `json:"temperature,omitempty"`
	TopP             *float32        `json:"topP,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	StopSequences    []string        `json:"stopSequences,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type wireRequest struct {
	Contents          []wireContent         `json:"contents"`
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	Tools             []wireTool            `json:"tools,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason"`
}

type wireResponse struct {
	Candidates    []wireCandidate    `json:"candidates"`
	UsageMetadata *wireUsageMetadata `json:"usageMetadata,omitempty"`
}

func convertMessages(msgs []llm.InferenceMessage, system *string) (*wireContent, []wireContent) {
	var sysContent *wireContent
	if system != nil && *system != "" {
		sysContent = &wireContent{Parts: []wirePart{{Text: *system}}}
	}

	out := make([]wireContent, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			var b strings.Builder
			for _, blk := range m.Content {
				if blk.Type == types.ContentBlockText {
					b.WriteString(blk.Text)
				}
			}
			if sysContent == nil {
				sysContent = &wireContent{Parts: []wirePart{{Text: b.String()}}}
			} else {
				sysContent.Parts[0].Text += b.String()
			}
			continue
		}

		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		wc := wireContent{Role: role}
		for _, blk := range m.Content {
			switch blk.Type {
			case types.ContentBlockText, types.ContentBlockThought:
				wc.Parts = append(wc.Parts, wirePart{Text: blk.Text})
			case types.ContentBlockToolCall:
				wc.Parts = append(wc.Parts, wirePart{FunctionCall: &wireFuncCall{Name: blk.ToolName, Args: blk.ToolArgsRaw}})
			case types.ContentBlockToolResult:
				out = append(out, wireContent{Role: "user", Parts: []wirePart{{FunctionResponse: &wireFuncResp{
					Name:     blk.ToolResultID,
					Response: json.RawMessage(fmt.Sprintf(`{"result":%q}`, blk.ToolResult)),
				}}}})
				continue
			}
		}
		if len(wc.Parts) > 0 {
			out = append(out, wc)
		}
	}
	return sysContent, out
}

func convertTools(cfg *llm.ToolConfig) []wireTool {
	if cfg == nil || len(cfg.Tools) == 0 {
		return nil
	}
	decls := make([]wireFuncDecl, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		decls = append(decls, wireFuncDecl{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return []wireTool{{FunctionDeclarations: decls}}
}

func (a *Adapter) buildRequest(req *llm.ModelInferenceRequest, cfg llm.ProviderConfig) (*wireRequest, error) {
	sys, contents := convertMessages(req.Messages, req.System)

	genCfg := &wireGenerationConfig{
		Temperature:   req.Sampling.Temperature,
		TopP:          req.Sampling.TopP,
		StopSequences: req.Sampling.Stop,
	}
	if req.Sampling.MaxTokens != nil {
		genCfg.MaxOutputTokens = *req.Sampling.MaxTokens
	}
	if req.JSONMode == types.JsonModeOn || req.JSONMode == types.JsonModeStrict {
		genCfg.ResponseMimeType = "application/json"
		if len(req.OutputSchema) > 0 {
			genCfg.ResponseSchema = req.OutputSchema
		}
	}

	body := &wireRequest{
		Contents:          contents,
		SystemInstruction: sys,
		Tools:             convertTools(req.Tools),
		GenerationConfig:  genCfg,
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

func (a *Adapter) endpoint(cfg llm.ProviderConfig, stream bool) string {
	method := "generateContent"
	if stream {
		method = "streamGenerateContent"
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if a.kind == llm.ProviderVertex {
		return fmt.Sprintf("%s/publishers/google/models/%s:%s", base, cfg.ModelName, method)
	}
	return fmt.Sprintf("%s/v1beta/models/%s:%s", base, cfg.ModelName, method)
}

func (a *Adapter) headers(req *http.Request, apiKey string, extra map[string]string) {
	if a.kind == llm.ProviderVertex {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	} else {
		req.Header.Set("x-goog-api-key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

func toContentBlocks(c wireContent) []types.ContentBlock {
	var out []types.ContentBlock
	for _, p := range c.Parts {
		switch {
		case p.Text != "":
			out = append(out, types.NewTextBlock(p.Text))
		case p.FunctionCall != nil:
			out = append(out, types.NewToolCallBlock("", p.FunctionCall.Name, p.FunctionCall.Args))
		}
	}
	return out
}

func toFinishReason(s string) types.FinishReason {
	switch s {
	case "STOP":
		return types.FinishStop
	case "MAX_TOKENS":
		return types.FinishLength
	case "SAFETY", "RECITATION":
		return types.FinishContentFilter
	default:
		return types.FinishUnknown
	}
}

func (a *Adapter) Infer(ctx context.Context, req *llm.ModelInferenceRequest, client *http.Client, apiKey string, cfg llm.ProviderConfig) (*llm.ProviderInferenceResponse, error) {
	wireReq, err := a.buildRequest(req, cfg)
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	payload, _ := json.Marshal(wireReq)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(cfg, false), bytes.NewReader(payload))
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	a.headers(httpReq, apiKey, llm.MergeExtraHeaders(cfg.ExtraHeaders, req.ExtraHeaders))

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
	}
	if resp.StatusCode >= 400 {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: string(body), HTTPStatus: resp.StatusCode, Retryable: resp.StatusCode >= 500, Provider: a.Name()}
	}

	var wireResp wireResponse
	if err := json.Unmarshal(body, &wireResp); err != nil {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
	}
	if len(wireResp.Candidates) == 0 {
		return nil, &types.Error{Code: types.ErrInferenceServer, Message: "provider returned no candidates", Provider: a.Name()}
	}
	cand := wireResp.Candidates[0]

	var usage types.TokenUsage
	if wireResp.UsageMetadata != nil {
		usage = types.TokenUsage{
			PromptTokens:     wireResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: wireResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wireResp.UsageMetadata.TotalTokenCount,
		}
	}

	return &llm.ProviderInferenceResponse{
		Content:      toContentBlocks(cand.Content),
		Usage:        usage,
		RawRequest:   string(payload),
		RawResponse:  string(body),
		Latency:      latency,
		FinishReason: toFinishReason(cand.FinishReason),
	}, nil
}

func (a *Adapter) InferStream(ctx context.Context, req *llm.ModelInferenceRequest, client *http.Client, apiKey string, cfg llm.ProviderConfig) (*llm.ResponseStream, string, error) {
	wireReq, err := a.buildRequest(req, cfg)
	if err != nil {
		return nil, "", &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	payload, _ := json.Marshal(wireReq)

	endpoint := a.endpoint(cfg, true) + "&alt=sse"
	if !strings.Contains(a.endpoint(cfg, true), "?") {
		endpoint = a.endpoint(cfg, true) + "?alt=sse"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", &types.Error{Code: types.ErrInferenceClient, Message: err.Error(), Provider: a.Name()}
	}
	a.headers(httpReq, apiKey, llm.MergeExtraHeaders(cfg.ExtraHeaders, req.ExtraHeaders))

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, "", &types.Error{Code: types.ErrInferenceServer, Message: string(data), HTTPStatus: resp.StatusCode, Retryable: resp.StatusCode >= 500, Provider: a.Name()}
	}

	chunks := make(chan llm.ProviderInferenceResponseChunk)
	errCh := make(chan error, 1)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)
		defer close(errCh)

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

			var chunk wireResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				errCh <- &types.Error{Code: types.ErrInferenceServer, Message: err.Error(), Retryable: true, Provider: a.Name()}
				return
			}
			if len(chunk.Candidates) == 0 {
				continue
			}
			cand := chunk.Candidates[0]

			var deltas []llm.ContentBlockDelta
			for i, p := range cand.Content.Parts {
				if p.Text != "" {
					deltas = append(deltas, llm.ContentBlockDelta{Index: i, Type: types.ContentBlockText, TextDelta: p.Text})
				} else if p.FunctionCall != nil {
					deltas = append(deltas, llm.ContentBlockDelta{Index: i, Type: types.ContentBlockToolCall, ToolName: p.FunctionCall.Name, ToolArgsDelta: string(p.FunctionCall.Args)})
				}
			}

			out := llm.ProviderInferenceResponseChunk{Deltas: deltas}
			if cand.FinishReason != "" {
				fr := toFinishReason(cand.FinishReason)
				out.FinishReason = &fr
			}
			if chunk.UsageMetadata != nil {
				out.Usage = &types.TokenUsage{
					PromptTokens:     chunk.UsageMetadata.PromptTokenCount,
					CompletionTokens: chunk.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      chunk.UsageMetadata.TotalTokenCount,
				}
			}
			chunks <- out
		}
	}()

	return llm.NewResponseStream(chunks, errCh), string(payload), nil
}
