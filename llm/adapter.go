package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tensorzero/gateway/types"
)

// ProviderKind enumerates the wire protocols the gateway speaks (spec §1's
// provider list). It tags a ProviderConfig so the router can dispatch to
// the matching ModelProviderAdapter.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderMistral   ProviderKind = "mistral"
	ProviderTogether  ProviderKind = "together"
	ProviderFireworks ProviderKind = "fireworks"
	ProviderVertex    ProviderKind = "gcp_vertex"
	ProviderBedrock   ProviderKind = "aws_bedrock"
	ProviderAzure     ProviderKind = "azure"
	ProviderGoogleAI  ProviderKind = "google_ai_studio"
	ProviderXAI       ProviderKind = "xai"
	ProviderHyperbolic ProviderKind = "hyperbolic"
	ProviderVLLM      ProviderKind = "vllm"
	ProviderTGI       ProviderKind = "tgi"
	ProviderSGLang    ProviderKind = "sglang"
)

// ProviderConfig is the per-provider-entry configuration a ModelConfig's
// routing list resolves to (spec §3 ProviderConfig sum type). It carries
// the wire model name, credentials, base URL override, and the switches
// the spec calls out (think-block parsing).
type ProviderConfig struct {
	Kind               ProviderKind
	ModelName          string
	BaseURL            string
	Credential         CredentialLocation
	ParsesThinkBlocks  bool
	ExtraBody          []ExtraBodyPatch
	ExtraHeaders       map[string]string

	// RateLimitRPS caps outbound requests to this provider entry (0 means
	// unlimited). RateLimitBurst sizes the token bucket; 0 defaults to 1.
	RateLimitRPS   float64
	RateLimitBurst int
}

// ModelConfig is the ordered routing list over ProviderConfig entries for
// one logical model name (spec §3). Invariant: Routing is non-empty and
// every name in it is a key of Providers.
type ModelConfig struct {
	Name      string
	Routing   []string
	Providers map[string]ProviderConfig
}

// Validate enforces the spec §3 ModelConfig invariants.
func (m ModelConfig) Validate() error {
	if len(m.Routing) == 0 {
		return &types.Error{Code: types.ErrConfig, Message: fmt.Sprintf("model %q has an empty routing list", m.Name)}
	}
	for _, name := range m.Routing {
		if _, ok := m.Providers[name]; !ok {
			return &types.Error{Code: types.ErrConfig, Message: fmt.Sprintf("model %q routes to undeclared provider %q", m.Name, name)}
		}
	}
	return nil
}

// BatchHandle identifies an in-flight provider batch inference job.
type BatchHandle struct {
	ID       string
	Provider string
}

// BatchStatus is the outcome of polling a BatchHandle.
type BatchStatus struct {
	Done    bool
	Results []ProviderInferenceResponse
}

// ModelProviderAdapter is the contract every provider package implements
// (spec §4.B). cfg carries the resolved wire model name and switches for
// this particular ModelConfig entry; apiKey is the already-resolved
// credential secret (spec §4.A resolves credentials before the adapter is
// invoked).
type ModelProviderAdapter interface {
	Name() string
	Infer(ctx context.Context, req *ModelInferenceRequest, client *http.Client, apiKey string, cfg ProviderConfig) (*ProviderInferenceResponse, error)
	// InferStream returns the chunk stream and the raw request text sent
	// over the wire (spec §4.C streaming success tuple).
	InferStream(ctx context.Context, req *ModelInferenceRequest, client *http.Client, apiKey string, cfg ProviderConfig) (*ResponseStream, string, error)
}

// BatchCapableAdapter is the optional extension for providers that support
// batch inference (spec §4.B.8). Providers that don't implement it are
// routed to ErrUnsupportedModelProviderForBatchInference.
type BatchCapableAdapter interface {
	ModelProviderAdapter
	StartBatchInference(ctx context.Context, reqs []*ModelInferenceRequest, client *http.Client, apiKey string, cfg ProviderConfig) (*BatchHandle, error)
	PollBatchInference(ctx context.Context, handle *BatchHandle, client *http.Client, apiKey string, cfg ProviderConfig) (*BatchStatus, error)
}

// UnsupportedBatchError builds the spec §4.B.8 / §7 taxonomy error for a
// provider that does not implement BatchCapableAdapter.
func UnsupportedBatchError(kind ProviderKind) error {
	return &types.Error{
		Code:    types.ErrUnsupportedModelProviderForBatchInference,
		Message: fmt.Sprintf("provider %q does not support batch inference", kind),
	}
}

// AdapterRegistry maps a ProviderKind to its adapter implementation. It is
// populated once at startup (spec §9 "Global state ... confined to ...");
// lookups are read-only afterwards and need no locking.
type AdapterRegistry struct {
	adapters map[ProviderKind]ModelProviderAdapter
}

// NewAdapterRegistry returns an empty registry; the caller adds each
// adapter under its ProviderKind with Register.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[ProviderKind]ModelProviderAdapter)}
}

// Register adds (or replaces) the adapter for kind.
func (r *AdapterRegistry) Register(kind ProviderKind, adapter ModelProviderAdapter) {
	r.adapters[kind] = adapter
}

// Get returns the adapter registered for kind.
func (r *AdapterRegistry) Get(kind ProviderKind) (ModelProviderAdapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}
