package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/cache"
	"github.com/tensorzero/gateway/types"
)

func newTestAdapter(t *testing.T) (*cache.ModelCacheAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mlc := cache.NewMultiLevelCache(rdb, cache.DefaultCacheConfig(), zap.NewNop())
	return cache.NewModelCacheAdapter(mlc, zap.NewNop()), mr
}

func TestModelCacheAdapter_StoreThenLookup(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	resp := &llm.ProviderInferenceResponse{
		Content:      []types.ContentBlock{types.NewTextBlock("hello from cache")},
		Usage:        types.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		RawRequest:   `{"model":"gpt-4"}`,
		RawResponse:  `{"choices":[]}`,
		FinishReason: types.FinishStop,
	}

	adapter.Store(ctx, "fingerprint-1", resp)

	hit, ok := adapter.Lookup(ctx, "fingerprint-1", 0)
	if !ok {
		t.Fatal("expected a cache hit after Store")
	}
	if len(hit.Content) != 1 || hit.Content[0].Text != "hello from cache" {
		t.Fatalf("unexpected content round-trip: %+v", hit.Content)
	}
	if hit.Usage.PromptTokens != 10 || hit.Usage.CompletionTokens != 5 {
		t.Fatalf("unexpected usage round-trip: %+v", hit.Usage)
	}
	if hit.FinishReason != types.FinishStop {
		t.Fatalf("unexpected finish reason: %q", hit.FinishReason)
	}
}

func TestModelCacheAdapter_LookupMiss(t *testing.T) {
	adapter, _ := newTestAdapter(t)

	if _, ok := adapter.Lookup(context.Background(), "never-stored", 0); ok {
		t.Fatal("expected a miss for a fingerprint that was never stored")
	}
}

func TestModelCacheAdapter_LookupHonorsMaxAge(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	ctx := context.Background()

	resp := &llm.ProviderInferenceResponse{
		Content:      []types.ContentBlock{types.NewTextBlock("stale")},
		FinishReason: types.FinishStop,
	}
	adapter.Store(ctx, "fingerprint-stale", resp)

	time.Sleep(50 * time.Millisecond)

	if _, ok := adapter.Lookup(ctx, "fingerprint-stale", 10*time.Millisecond); ok {
		t.Fatal("expected a stale hit to be reported as a miss under a short max age")
	}
	if _, ok := adapter.Lookup(ctx, "fingerprint-stale", time.Hour); !ok {
		t.Fatal("expected a fresh hit under a long max age")
	}
}

func TestModelCacheAdapter_NilInnerIsNoOp(t *testing.T) {
	adapter := cache.NewModelCacheAdapter(nil, zap.NewNop())
	ctx := context.Background()

	adapter.Store(ctx, "fp", &llm.ProviderInferenceResponse{})
	if _, ok := adapter.Lookup(ctx, "fp", 0); ok {
		t.Fatal("expected nil-inner adapter to always miss")
	}
}
