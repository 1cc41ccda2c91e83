package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/internal/metrics"
	"github.com/tensorzero/gateway/types"
)

// CacheMode is the per-request cache mode (spec §4.D).
type CacheMode string

const (
	CacheOff       CacheMode = "off"
	CacheReadOnly  CacheMode = "read_only"
	CacheWriteOnly CacheMode = "write_only"
	CacheOn        CacheMode = "on"
)

// CacheOptions is the per-request cache directive.
type CacheOptions struct {
	Mode     CacheMode
	MaxAgeS  int64 // 0 means unbounded
}

func (o CacheOptions) reads() bool  { return o.Mode == CacheReadOnly || o.Mode == CacheOn }
func (o CacheOptions) writes() bool { return o.Mode == CacheWriteOnly || o.Mode == CacheOn }

// ModelCache is the narrow contract the model router needs from the
// response cache (spec §4.D). It is intentionally defined here, not as a
// dependency on llm/cache, to avoid an import cycle (llm/cache imports llm
// for ProviderInferenceResponse); llm/cache's MultiLevelCache is adapted
// to this interface by llm/cache.ModelCacheAdapter.
type ModelCache interface {
	// Lookup returns a cached response for fingerprint, honoring maxAge
	// (0 = unbounded). A miss or any lookup error is reported as
	// (nil, false) - cache errors are always recovered as misses (spec
	// §4.D "best-effort").
	Lookup(ctx context.Context, fingerprint string, maxAge time.Duration) (*ProviderInferenceResponse, bool)
	// Store is fire-and-forget; implementations must not block the
	// caller on a slow backend for long, and must swallow store errors.
	Store(ctx context.Context, fingerprint string, resp *ProviderInferenceResponse)
}

// Fingerprint derives the cache key for one provider call: provider kind,
// wire model name, the fully-resolved (post extra-body) request, and the
// extra_cache_key perturbation (spec §4.D).
func Fingerprint(kind ProviderKind, modelName string, req *ModelInferenceRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", kind, modelName, req.ExtraCacheKey)
	enc, _ := json.Marshal(req)
	h.Write(enc)
	return hex.EncodeToString(h.Sum(nil))
}

// ProviderError pairs one provider name with the error it produced, used
// to build ModelProvidersExhausted (spec §4.C, §8 property 1).
type ProviderError struct {
	ProviderName string
	Err          error
}

// ModelProvidersExhaustedError is returned when every provider in a
// model's routing list has failed. ProviderErrors preserves insertion
// (config) order.
type ModelProvidersExhaustedError struct {
	ModelName      string
	ProviderErrors []ProviderError
}

func (e *ModelProvidersExhaustedError) Error() string {
	return fmt.Sprintf("model %q exhausted %d provider(s)", e.ModelName, len(e.ProviderErrors))
}

func (e *ModelProvidersExhaustedError) AsTypesError() *types.Error {
	return &types.Error{
		Code:       types.ErrModelProvidersExhausted,
		Message:    e.Error(),
		HTTPStatus: http.StatusBadGateway,
	}
}

// Router implements the model router (spec §4.C): sequential provider
// fallback within one model's routing list, consulting the cache before
// each provider attempt and populating it (fire-and-forget) on success.
type Router struct {
	adapters *AdapterRegistry
	cache    ModelCache
	logger   *zap.Logger
	metrics  *metrics.Collector
	limiters *providerLimiters
}

// NewRouter builds a Router. cache may be nil, in which case the cache is
// never consulted (equivalent to CacheOff for every request). collector may
// be nil, in which case per-attempt metrics are skipped.
func NewRouter(adapters *AdapterRegistry, cache ModelCache, logger *zap.Logger, collector *metrics.Collector) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{adapters: adapters, cache: cache, logger: logger, metrics: collector, limiters: newProviderLimiters()}
}

// Infer runs the spec §4.C non-streaming algorithm: iterate model.Routing
// in config order, consult the cache, call the provider on a miss, store
// on success, and collapse all per-provider failures into one
// ModelProvidersExhaustedError if every provider fails.
func (r *Router) Infer(ctx context.Context, model ModelConfig, req *ModelInferenceRequest, client *http.Client, creds InferenceCredentials, cacheOpts CacheOptions) (*ModelInferenceResponse, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}

	var errs []ProviderError
	for _, providerName := range model.Routing {
		cfg := model.Providers[providerName]

		fingerprint := Fingerprint(cfg.Kind, cfg.ModelName, req)
		if r.cache != nil && cacheOpts.reads() {
			maxAge := time.Duration(cacheOpts.MaxAgeS) * time.Second
			if hit, ok := r.cache.Lookup(ctx, fingerprint, maxAge); ok {
				if r.metrics != nil {
					r.metrics.RecordCacheHit("model_response")
					r.metrics.RecordLLMRequest(string(cfg.Kind), cfg.ModelName, "cached", 0, hit.Usage.PromptTokens, hit.Usage.CompletionTokens, hit.Usage.Cost)
				}
				return &ModelInferenceResponse{
					ModelName:         model.Name,
					ModelProviderName: providerName,
					ProviderInferenceResponse: ProviderInferenceResponse{
						Content:      hit.Content,
						Usage:        hit.Usage,
						RawRequest:   hit.RawRequest,
						RawResponse:  hit.RawResponse,
						Latency:      0,
						FinishReason: hit.FinishReason,
					},
					Cached: true,
				}, nil
			}
			if r.metrics != nil {
				r.metrics.RecordCacheMiss("model_response")
			}
		}

		adapter, ok := r.adapters.Get(cfg.Kind)
		if !ok {
			err := fmt.Errorf("no adapter registered for provider kind %q", cfg.Kind)
			errs = append(errs, ProviderError{ProviderName: providerName, Err: err})
			continue
		}

		apiKey, err := ResolveAtRequest(ctx, cfg.Credential, creds, r.logger)
		if err != nil {
			errs = append(errs, ProviderError{ProviderName: providerName, Err: err})
			continue
		}

		if err := r.limiters.wait(ctx, model.Name+"/"+providerName, cfg); err != nil {
			errs = append(errs, ProviderError{ProviderName: providerName, Err: err})
			continue
		}

		start := time.Now()
		resp, err := adapter.Infer(ctx, req, client, apiKey, cfg)
		if err != nil {
			if r.metrics != nil {
				r.metrics.RecordLLMRequest(string(cfg.Kind), cfg.ModelName, "error", time.Since(start), 0, 0, 0)
			}
			r.logger.Warn("provider attempt failed, trying next in routing order",
				zap.String("model", model.Name), zap.String("provider", providerName), zap.Error(err))
			errs = append(errs, ProviderError{ProviderName: providerName, Err: err})
			continue
		}

		if usageIsZero(resp.Usage) {
			resp.Usage = estimateUsage(req, resp.Content)
		}

		if r.metrics != nil {
			r.metrics.RecordLLMRequest(string(cfg.Kind), cfg.ModelName, "ok", time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.Cost)
		}

		if r.cache != nil && cacheOpts.writes() {
			// Fire-and-forget: store errors are logged and discarded by
			// the ModelCache implementation itself.
			go r.cache.Store(context.WithoutCancel(ctx), fingerprint, resp)
		}

		return &ModelInferenceResponse{
			ModelName:                 model.Name,
			ModelProviderName:         providerName,
			ProviderInferenceResponse: *resp,
			Cached:                    false,
		}, nil
	}

	exhausted := &ModelProvidersExhaustedError{ModelName: model.Name, ProviderErrors: errs}
	return nil, exhausted
}

// StreamResult is the successful outcome of InferStream: the chunk
// stream, the raw request text actually sent, and which provider served
// it (spec §4.C streaming tuple).
type StreamResult struct {
	Stream       *ResponseStream
	RawRequest   string
	ProviderName string
}

// InferStream runs the same sequential fallback loop as Infer, but neither
// reads from nor writes to the cache: streamed responses are not stored.
func (r *Router) InferStream(ctx context.Context, model ModelConfig, req *ModelInferenceRequest, client *http.Client, creds InferenceCredentials) (*StreamResult, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}

	var errs []ProviderError
	for _, providerName := range model.Routing {
		cfg := model.Providers[providerName]
		adapter, ok := r.adapters.Get(cfg.Kind)
		if !ok {
			errs = append(errs, ProviderError{ProviderName: providerName, Err: fmt.Errorf("no adapter registered for provider kind %q", cfg.Kind)})
			continue
		}

		apiKey, err := ResolveAtRequest(ctx, cfg.Credential, creds, r.logger)
		if err != nil {
			errs = append(errs, ProviderError{ProviderName: providerName, Err: err})
			continue
		}

		if err := r.limiters.wait(ctx, model.Name+"/"+providerName, cfg); err != nil {
			errs = append(errs, ProviderError{ProviderName: providerName, Err: err})
			continue
		}

		start := time.Now()
		stream, rawReq, err := adapter.InferStream(ctx, req, client, apiKey, cfg)
		if err != nil {
			if r.metrics != nil {
				r.metrics.RecordLLMRequest(string(cfg.Kind), cfg.ModelName, "error", time.Since(start), 0, 0, 0)
			}
			r.logger.Warn("provider stream attempt failed, trying next in routing order",
				zap.String("model", model.Name), zap.String("provider", providerName), zap.Error(err))
			errs = append(errs, ProviderError{ProviderName: providerName, Err: err})
			continue
		}

		if r.metrics != nil {
			r.metrics.RecordLLMRequest(string(cfg.Kind), cfg.ModelName, "stream_started", time.Since(start), 0, 0, 0)
		}

		return &StreamResult{Stream: stream, RawRequest: rawReq, ProviderName: providerName}, nil
	}

	return nil, &ModelProvidersExhaustedError{ModelName: model.Name, ProviderErrors: errs}
}
