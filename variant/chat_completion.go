package variant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/retry"
	"github.com/tensorzero/gateway/types"
)

// chatCompletionEngine implements spec §4.E.1: template render -> build
// ModelInferenceRequest -> retry-wrapped router call -> Chat/Json result
// assembly.
type chatCompletionEngine struct {
	d *Dispatcher
}

// buildModelRequest runs steps 1-2 of the pipeline, shared by Infer and
// InferStream.
func (e *chatCompletionEngine) buildModelRequest(req *Request, vc function.VariantConfig, extraCacheKey string) (*llm.ModelInferenceRequest, error) {
	system, messages, err := buildMessages(e.d.Renderer, req.Input, vc.SystemTemplate, vc.UserTemplate, vc.AssistantTemplate)
	if err != nil {
		return nil, err
	}

	jsonMode := effectiveJSONMode(req, vc)
	outputSchema := effectiveOutputSchema(req, req.Function)
	toolCfg, err := buildToolConfig(req, req.Function, jsonMode, outputSchema)
	if err != nil {
		return nil, err
	}

	params := vc.DefaultParams.Merge(req.Params)

	mreq := &llm.ModelInferenceRequest{
		Messages:      messages,
		System:        system,
		Tools:         toolCfg,
		Sampling:      params,
		JSONMode:      jsonMode,
		FunctionType:  req.Function.Type,
		OutputSchema:  outputSchema,
		ExtraBody:     append(append([]llm.ExtraBodyPatch{}, vc.ExtraBody...), req.ExtraBody...),
		ExtraHeaders:  llm.MergeExtraHeaders(vc.ExtraHeaders, req.ExtraHeaders),
		ExtraCacheKey: extraCacheKey,
	}
	return mreq, nil
}

func (e *chatCompletionEngine) resolveModel(vc function.VariantConfig) (llm.ModelConfig, error) {
	if vc.Model == "" {
		return llm.ModelConfig{}, fmt.Errorf("chat_completion variant %q has no model configured", vc.Name)
	}
	return e.d.Registry.Model(vc.Model)
}

// Infer implements Engine.
func (e *chatCompletionEngine) Infer(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.InferenceResult, error) {
	model, err := e.resolveModel(vc)
	if err != nil {
		return nil, err
	}
	mreq, err := e.buildModelRequest(req, vc, req.ExtraCacheKey)
	if err != nil {
		return nil, err
	}

	retryer := retry.NewBackoffRetryer(vc.RetryPolicy, e.d.logger())
	out, err := retryer.DoWithResult(ctx, func() (any, error) {
		return e.d.Router.Infer(ctx, model, mreq, e.d.HTTPClient, req.Credentials, req.CacheOptions)
	})
	if err != nil {
		return nil, err
	}
	resp := out.(*llm.ModelInferenceResponse)

	result := &llm.InferenceResult{}
	result.AddModelResponse(*resp)

	if req.Function.Type == llm.FunctionTypeJson {
		return assembleJson(result, resp, req.Function, effectiveOutputSchema(req, req.Function))
	}
	result.Kind = llm.InferenceResultChat
	result.Content = demoteInvalidToolCalls(req.Function.Tools, resp.Content)
	return result, nil
}

// InferStream implements StreamingEngine: builds the same request and
// delegates straight to the router's streaming path (no cache consult,
// spec §4.C).
func (e *chatCompletionEngine) InferStream(ctx context.Context, req *Request, vc function.VariantConfig) (*llm.StreamResult, error) {
	model, err := e.resolveModel(vc)
	if err != nil {
		return nil, err
	}
	mreq, err := e.buildModelRequest(req, vc, req.ExtraCacheKey)
	if err != nil {
		return nil, err
	}
	mreq.Stream = true
	return e.d.Router.InferStream(ctx, model, mreq, e.d.HTTPClient, req.Credentials)
}

// assembleJson implements spec §4.E.1 step 5: pick the first JSON-bearing
// block (text, or the implicit-tool's arguments), parse, validate, and
// construct InferenceResult::Json. A parse/validation failure is soft: raw
// is always returned, parsed is left nil.
func assembleJson(result *llm.InferenceResult, resp *llm.ModelInferenceResponse, fc function.FunctionConfig, schema json.RawMessage) (*llm.InferenceResult, error) {
	result.Kind = llm.InferenceResultJson
	result.OutputSchema = schema

	var raw string
	for _, b := range resp.Content {
		switch b.Type {
		case types.ContentBlockText:
			raw = b.Text
		case types.ContentBlockToolCall:
			if b.ToolName == respondToolName {
				raw = string(b.ToolArgsRaw)
			}
		}
		if raw != "" {
			break
		}
	}
	result.Raw = raw
	if raw == "" {
		return result, nil
	}

	if !json.Valid([]byte(raw)) {
		return result, nil
	}
	if err := validateOutputSchema(schema, json.RawMessage(raw)); err != nil {
		return result, nil
	}
	result.Parsed = json.RawMessage(raw)
	return result, nil
}
