package llm

import (
	"context"
	"testing"
	"time"
)

func TestProviderLimiters_ZeroRateIsUnlimited(t *testing.T) {
	p := newProviderLimiters()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := p.wait(ctx, "model/provider", ProviderConfig{}); err != nil {
			t.Fatalf("unexpected error with no rate limit configured: %v", err)
		}
	}
}

func TestProviderLimiters_EnforcesConfiguredRate(t *testing.T) {
	p := newProviderLimiters()
	ctx := context.Background()
	cfg := ProviderConfig{RateLimitRPS: 1000, RateLimitBurst: 1}

	// First call consumes the single burst token immediately.
	if err := p.wait(ctx, "model/provider", cfg); err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}

	// Second call must wait for the bucket to refill rather than erroring.
	start := time.Now()
	if err := p.wait(ctx, "model/provider", cfg); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if time.Since(start) <= 0 {
		t.Fatal("expected the second call to take measurable time waiting for a token")
	}
}

func TestProviderLimiters_SeparateLimiterPerKey(t *testing.T) {
	p := newProviderLimiters()
	ctx := context.Background()
	cfg := ProviderConfig{RateLimitRPS: 1, RateLimitBurst: 1}

	_ = p.wait(ctx, "model-a/provider", cfg)
	_ = p.wait(ctx, "model-b/provider", cfg)

	p.mu.Lock()
	n := len(p.limiters)
	p.mu.Unlock()

	if n != 2 {
		t.Fatalf("expected a distinct limiter per key, got %d limiters", n)
	}
}
