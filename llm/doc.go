// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package llm provides the provider-facing core of the inference gateway:
the ModelProviderAdapter contract every provider adapter implements, the
model router that walks a model's ordered provider list on failure
(spec §4.C), the provider-agnostic request/response types the variant
engine builds (spec §3), credential resolution (spec §4.A), and
extra_body/extra_headers patch application (spec §4.B.4).

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                    variant engine                            │
	├─────────────────────────────────────────────────────────────┤
	│                       Router                                  │
	│  (ordered provider fallback, per-provider cache lookup)       │
	├─────────────────────────────────────────────────────────────┤
	│  ┌─────────────┐  ┌─────────────┐                             │
	│  │   Cache     │  │   Retry     │   (llm/cache, llm/retry)    │
	│  │  (L1/L2)    │  │  (Backoff)  │                             │
	│  └─────────────┘  └─────────────┘                             │
	├─────────────────────────────────────────────────────────────┤
	│                 ModelProviderAdapter                          │
	├──────────┬──────────┬──────────┬──────────┬─────────────────┤
	│  OpenAI  │ Anthropic│  Vertex  │ Bedrock  │    Others...    │
	└──────────┴──────────┴──────────┴──────────┴─────────────────┘

# ModelProviderAdapter

	type ModelProviderAdapter interface {
	    Name() string
	    Infer(ctx context.Context, req *ModelInferenceRequest, client *http.Client, apiKey string, cfg ProviderConfig) (*ProviderInferenceResponse, error)
	    InferStream(ctx context.Context, req *ModelInferenceRequest, client *http.Client, apiKey string, cfg ProviderConfig) (*ResponseStream, string, error)
	}

# Routing

A model's providers are tried in configured order; the first success wins,
and every failure is recorded so the model router can return a single
ModelProvidersExhausted error carrying every provider's failure reason:

	router := llm.NewRouter(adapters, cache, logger, collector)
	resp, err := router.Infer(ctx, model, req, httpClient, creds, cacheOpts)

# Caching

The router consults a narrow ModelCache contract (spec §4.D) before each
provider attempt and populates it fire-and-forget on success; llm/cache's
MultiLevelCache (local LRU + Redis) is adapted to this contract by
ModelCacheAdapter.

# Metrics

The router records a Prometheus counter/histogram per provider attempt
(request count by status, latency, tokens, cost) through an optional
internal/metrics.Collector; a nil collector disables this without
changing behavior.

# Retry

Retries are a variant-level concern (spec §4.E.1 step 3, spec §4.C
"Ordering guarantees"), not the router's: the variant engine wraps its
router call in llm/retry's backoff policy, the router itself never retries
within its fallback loop.

See the subpackages for additional functionality:
  - llm/cache: multi-level (local LRU + Redis) response caching
  - llm/retry: backoff-based retry policy
  - llm/providers/*: provider-specific adapters
*/
package llm
