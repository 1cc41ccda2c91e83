package llm

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// providerLimiters lazily builds and caches one rate.Limiter per
// (model name, provider name) pair so that a provider entry's
// RateLimitRPS/RateLimitBurst is enforced across every Router.Infer/
// InferStream call that routes through it, without requiring the caller to
// pre-build limiters for every provider in a model's routing list.
type providerLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newProviderLimiters() *providerLimiters {
	return &providerLimiters{limiters: make(map[string]*rate.Limiter)}
}

// wait blocks until cfg's rate limit admits one request, or ctx is done.
// A zero RateLimitRPS disables limiting entirely (the common case).
func (p *providerLimiters) wait(ctx context.Context, key string, cfg ProviderConfig) error {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}

	p.mu.Lock()
	lim, ok := p.limiters[key]
	if !ok {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
		p.limiters[key] = lim
	}
	p.mu.Unlock()

	return lim.Wait(ctx)
}
