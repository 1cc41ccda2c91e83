// Package inference implements the request façade (spec §4.H): the single
// entry point that validates an inference request, allocates its ids,
// delegates to the variant engine, and enqueues the resulting rows into
// the persistence sink - the one place all of the other new packages
// (function, variant, feedback-adjacent tagging, persistence) are wired
// together into the shape an HTTP handler would call.
//
// Grounded on the teacher's validate -> allocate -> delegate -> record
// request-lifecycle shape; HTTP transport itself is explicitly out of
// scope (spec §1).
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tensorzero/gateway/feedback"
	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/types"
	"github.com/tensorzero/gateway/variant"
)

var (
	tracer = otel.Tracer("github.com/tensorzero/gateway/inference")
	meter  = otel.Meter("github.com/tensorzero/gateway/inference")

	inferenceCounter, _ = meter.Int64Counter(
		"tensorzero.inference.count",
		metric.WithDescription("Number of Infer/InferStream calls completed, by function and outcome."),
	)
)

func recordInferenceMetric(ctx context.Context, functionName string, ok bool) {
	inferenceCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("function_name", functionName),
		attribute.Bool("ok", ok),
	))
}

// Request is the logical inference request object (spec §6 "Inference
// endpoint"). Exactly one of FunctionName/ModelName is set; ModelName
// targets an anonymous default function synthesized on the fly.
type Request struct {
	FunctionName string
	ModelName    string
	VariantName  string // explicit pin; empty defers to weighted sampling
	EpisodeID    *uuid.UUID

	Input variant.Input

	Params       llm.SamplingParams
	JSONMode     *types.JsonMode
	ToolChoice   *types.ToolChoice
	Tools        []types.ToolSchema
	OutputSchema json.RawMessage

	ExtraBody     []llm.ExtraBodyPatch
	ExtraHeaders  map[string]string
	Tags          map[string]string
	Dryrun        bool
	Stream        bool
	CacheOptions  llm.CacheOptions
	Credentials   llm.InferenceCredentials

	// Internal marks a caller allowed to set tensorzero::-prefixed tags
	// (spec §9) - only the gateway's own internal callers (e.g. a
	// demonstration recorded from an evaluation harness), never external
	// requests.
	Internal bool
}

// Response is the successful outcome of Infer (spec §6).
type Response struct {
	InferenceID      uuid.UUID
	EpisodeID        uuid.UUID
	VariantName      string
	Result           *llm.InferenceResult
	OriginalResponse *string
}

// Gateway is the façade (spec §4.H). One Gateway is built at startup and
// shared read-only across requests, matching spec §5 "Config is
// read-only after startup ... no global mutable state is required beyond
// the persistence sink's queue and the cache."
type Gateway struct {
	Registry   *function.Registry
	Dispatcher *variant.Dispatcher
	Sink       Sink
	Feedback   *feedback.Correlator
	Logger     *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGateway wires the façade's collaborators. The PRNG backing variant
// selection is seeded once at construction; pass a fixed seed in tests
// for reproducible draws (spec §8 property 4).
func NewGateway(registry *function.Registry, dispatcher *variant.Dispatcher, sink Sink, fb *feedback.Correlator, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		Registry:   registry,
		Dispatcher: dispatcher,
		Sink:       sink,
		Feedback:   fb,
		Logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SubmitFeedback implements spec §4.H's feedback entry point, delegating
// directly to the correlator (spec §4.F).
func (g *Gateway) SubmitFeedback(ctx context.Context, req feedback.Request) (*feedback.Response, error) {
	return g.Feedback.Process(ctx, req)
}

// Infer implements spec §4.H's non-streaming path.
func (g *Gateway) Infer(ctx context.Context, req Request) (resp *Response, err error) {
	ctx, span := tracer.Start(ctx, "inference.Infer", trace.WithAttributes(
		attribute.String("tensorzero.function_name", req.FunctionName),
		attribute.String("tensorzero.model_name", req.ModelName),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		recordInferenceMetric(ctx, req.FunctionName, err == nil)
		span.End()
	}()

	fc, vc, episodeID, err := g.prepare(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("tensorzero.variant_name", vc.Name))

	vReq := g.buildVariantRequest(req, fc)

	start := time.Now()
	result, err := g.Dispatcher.Infer(ctx, vReq, vc)
	if err != nil {
		return nil, err
	}
	processingTime := time.Since(start)

	inferenceID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("inference: minting inference id: %w", err)
	}
	span.SetAttributes(attribute.String("tensorzero.inference_id", inferenceID.String()))

	if !req.Dryrun {
		g.recordResult(inferenceID, episodeID, vc.Name, fc, req, result, processingTime)
	}

	return &Response{
		InferenceID:      inferenceID,
		EpisodeID:        episodeID,
		VariantName:      vc.Name,
		Result:           result,
		OriginalResponse: result.OriginalResponse,
	}, nil
}

// InferStream implements spec §4.H's streaming path. Only ChatCompletion
// variants support streaming (spec §4.E.1); the persisted row is not
// enqueued here since a streamed response has no final InferenceResult
// until the caller finishes draining it - the HTTP layer (out of scope)
// is responsible for accumulating the stream and calling back into
// recordResult, or equivalently a future non-streaming Infer call records
// the same request.
func (g *Gateway) InferStream(ctx context.Context, req Request) (stream *llm.StreamResult, resp *Response, err error) {
	ctx, span := tracer.Start(ctx, "inference.InferStream", trace.WithAttributes(
		attribute.String("tensorzero.function_name", req.FunctionName),
		attribute.String("tensorzero.model_name", req.ModelName),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		recordInferenceMetric(ctx, req.FunctionName, err == nil)
		span.End()
	}()

	fc, vc, episodeID, err := g.prepare(req)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("tensorzero.variant_name", vc.Name))

	vReq := g.buildVariantRequest(req, fc)
	stream, err = g.Dispatcher.InferStream(ctx, vReq, vc)
	if err != nil {
		return nil, nil, err
	}

	inferenceID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("inference: minting inference id: %w", err)
	}

	return stream, &Response{InferenceID: inferenceID, EpisodeID: episodeID, VariantName: vc.Name}, nil
}

// prepare implements spec §4.H steps 1-2: validate the request and
// resolve its function/variant/episode id.
func (g *Gateway) prepare(req Request) (function.FunctionConfig, function.VariantConfig, uuid.UUID, error) {
	if (req.FunctionName == "") == (req.ModelName == "") {
		return function.FunctionConfig{}, function.VariantConfig{}, uuid.UUID{}, &types.Error{
			Code:    types.ErrInvalidRequest,
			Message: "exactly one of function_name or model_name must be set",
		}
	}

	if err := types.ValidateTags(req.Tags, req.Internal); err != nil {
		return function.FunctionConfig{}, function.VariantConfig{}, uuid.UUID{}, err
	}

	fc, err := g.resolveFunction(req)
	if err != nil {
		return function.FunctionConfig{}, function.VariantConfig{}, uuid.UUID{}, err
	}

	g.rngMu.Lock()
	vc, err := fc.SelectVariant(req.VariantName, g.rng)
	g.rngMu.Unlock()
	if err != nil {
		return function.FunctionConfig{}, function.VariantConfig{}, uuid.UUID{}, err
	}

	episodeID := uuid.UUID{}
	if req.EpisodeID != nil {
		episodeID = *req.EpisodeID
	} else {
		episodeID, err = uuid.NewV7()
		if err != nil {
			return function.FunctionConfig{}, function.VariantConfig{}, uuid.UUID{}, fmt.Errorf("inference: minting episode id: %w", err)
		}
	}

	return fc, vc, episodeID, nil
}

// resolveFunction looks up a declared function by name, or, for
// ModelName requests, synthesizes the anonymous default Chat function
// spec §6 describes ("model_name targets an anonymous default function").
func (g *Gateway) resolveFunction(req Request) (function.FunctionConfig, error) {
	if req.FunctionName != "" {
		return g.Registry.Function(req.FunctionName)
	}

	if _, err := g.Registry.Model(req.ModelName); err != nil {
		return function.FunctionConfig{}, err
	}

	weight := 1.0
	return function.FunctionConfig{
		Name: "tensorzero::default",
		Type: llm.FunctionTypeChat,
		Variants: map[string]function.VariantConfig{
			"tensorzero::default": {
				Name:   "tensorzero::default",
				Kind:   function.VariantChatCompletion,
				Weight: &weight,
				Model:  req.ModelName,
			},
		},
	}, nil
}

// buildVariantRequest implements spec §4.E "request param > variant
// default" by simply forwarding every overridable field as-is; the
// variant engine itself performs the precedence merge (variant/shared.go
// effectiveJSONMode/effectiveOutputSchema).
func (g *Gateway) buildVariantRequest(req Request, fc function.FunctionConfig) *variant.Request {
	return &variant.Request{
		FunctionName:  fc.Name,
		Function:      fc,
		Input:         req.Input,
		Params:        req.Params,
		JSONMode:      req.JSONMode,
		ToolChoice:    req.ToolChoice,
		Tools:         req.Tools,
		OutputSchema:  req.OutputSchema,
		ExtraBody:     req.ExtraBody,
		ExtraHeaders:  req.ExtraHeaders,
		CacheOptions:  req.CacheOptions,
		Credentials:   req.Credentials,
	}
}

// recordResult implements spec §4.H step 4 / §4.G: build the
// function-type-specific inference row plus one model-inference row per
// constituent provider call, and enqueue all of them. Enqueue is
// fire-and-forget - nothing here can fail the response already built.
func (g *Gateway) recordResult(inferenceID, episodeID uuid.UUID, variantName string, fc function.FunctionConfig, req Request, result *llm.InferenceResult, processingTime time.Duration) {
	now := time.Now()
	input, _ := json.Marshal(req.Input)
	params, _ := json.Marshal(req.Params)
	extraBody, _ := json.Marshal(req.ExtraBody)

	switch result.Kind {
	case llm.InferenceResultChat:
		output, _ := json.Marshal(result.Content)
		toolParams, _ := json.Marshal(struct {
			Tools []types.ToolSchema `json:"tools"`
		}{Tools: req.Tools})
		g.Sink.EnqueueChatInference(ChatInferenceRecord{
			ID: inferenceID, FunctionName: fc.Name, VariantName: variantName, EpisodeID: episodeID,
			Input: input, Output: output, ToolParams: toolParams, InferenceParams: params,
			ProcessingTimeMS: processingTime.Milliseconds(), Tags: req.Tags, ExtraBody: extraBody,
			CreatedAt: now,
		})
	case llm.InferenceResultJson:
		output, _ := json.Marshal(struct {
			Raw    string          `json:"raw"`
			Parsed json.RawMessage `json:"parsed,omitempty"`
		}{Raw: result.Raw, Parsed: result.Parsed})
		g.Sink.EnqueueJsonInference(JsonInferenceRecord{
			ID: inferenceID, FunctionName: fc.Name, VariantName: variantName, EpisodeID: episodeID,
			Input: input, Output: output, OutputSchema: result.OutputSchema, InferenceParams: params,
			ProcessingTimeMS: processingTime.Milliseconds(), Tags: req.Tags, ExtraBody: extraBody,
			CreatedAt: now,
		})
	}

	for _, m := range result.ModelResponses {
		id, err := uuid.NewV7()
		if err != nil {
			g.Logger.Warn("failed to mint model-inference id, dropping row", zap.Error(err))
			continue
		}
		g.Sink.EnqueueModelInference(ModelInferenceRecord{
			ID: id, InferenceID: inferenceID, ModelName: m.ModelName, ModelProviderName: m.ModelProviderName,
			RawRequest: m.RawRequest, RawResponse: m.RawResponse,
			InputTokens: m.Usage.PromptTokens, OutputTokens: m.Usage.CompletionTokens,
			ResponseTimeMS: m.Latency.Milliseconds(), Cached: m.Cached, CreatedAt: now,
		})
	}
}
