package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	llmpkg "github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/types"
)

// ModelCacheAdapter adapts the teacher's MultiLevelCache (local LRU + Redis,
// prompt_cache.go) to the narrow llm.ModelCache contract the model router
// consumes (spec §4.D). It is the seam between the generic prompt-cache
// machinery the teacher already ships and the provider-response cache the
// gateway's routing hot path needs.
type ModelCacheAdapter struct {
	inner  *MultiLevelCache
	logger *zap.Logger
}

// NewModelCacheAdapter wraps an existing MultiLevelCache. inner may be nil,
// in which case every call is a no-op (equivalent to CacheOff).
func NewModelCacheAdapter(inner *MultiLevelCache, logger *zap.Logger) *ModelCacheAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelCacheAdapter{inner: inner, logger: logger}
}

// cachedPayload is what gets marshaled into CacheEntry.Response: the
// provider response fields. The timestamp used to enforce max_age_s
// staleness at lookup time is the enclosing CacheEntry.CreatedAt (spec
// §4.D, SPEC_FULL's supplemented staleness enforcement).
type cachedPayload struct {
	Content      []byte        `json:"content"`
	Usage        json.RawMessage `json:"usage"`
	RawRequest   string        `json:"raw_request"`
	RawResponse  string        `json:"raw_response"`
	FinishReason string        `json:"finish_reason"`
}

// Lookup implements llm.ModelCache. A cache backend error or a stale hit
// (older than maxAge) is reported as a miss, never surfaced to the caller
// (spec §4.D "best-effort").
func (a *ModelCacheAdapter) Lookup(ctx context.Context, fingerprint string, maxAge time.Duration) (*llmpkg.ProviderInferenceResponse, bool) {
	if a.inner == nil {
		return nil, false
	}
	entry, err := a.inner.Get(ctx, fingerprint)
	if err != nil {
		if err != ErrCacheMiss {
			a.logger.Warn("cache lookup failed, treating as miss", zap.Error(err))
		}
		return nil, false
	}
	if maxAge > 0 && time.Since(entry.CreatedAt) > maxAge {
		return nil, false
	}

	raw, err := json.Marshal(entry.Response)
	if err != nil {
		a.logger.Warn("cache entry undecodable, treating as miss", zap.Error(err))
		return nil, false
	}
	var payload cachedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		a.logger.Warn("cache entry undecodable, treating as miss", zap.Error(err))
		return nil, false
	}
	resp := &llmpkg.ProviderInferenceResponse{
		RawRequest:   payload.RawRequest,
		RawResponse:  payload.RawResponse,
		FinishReason: types.FinishReason(payload.FinishReason),
	}
	if len(payload.Content) > 0 {
		if err := json.Unmarshal(payload.Content, &resp.Content); err != nil {
			a.logger.Warn("cache entry content undecodable, treating as miss", zap.Error(err))
			return nil, false
		}
	}
	if len(payload.Usage) > 0 {
		_ = json.Unmarshal(payload.Usage, &resp.Usage)
	}
	return resp, true
}

// Store implements llm.ModelCache. Fire-and-forget: the caller (model
// router) already runs this in its own goroutine; any backend error here
// is logged and discarded (spec §4.D).
func (a *ModelCacheAdapter) Store(ctx context.Context, fingerprint string, resp *llmpkg.ProviderInferenceResponse) {
	if a.inner == nil || resp == nil {
		return
	}
	content, _ := json.Marshal(resp.Content)
	usage, _ := json.Marshal(resp.Usage)
	payload := cachedPayload{
		Content:      content,
		Usage:        usage,
		RawRequest:   resp.RawRequest,
		RawResponse:  resp.RawResponse,
		FinishReason: string(resp.FinishReason),
	}
	entry := &CacheEntry{Response: payload}
	if err := a.inner.Set(ctx, fingerprint, entry); err != nil {
		a.logger.Warn("cache store failed, discarding", zap.Error(err))
	}
}
