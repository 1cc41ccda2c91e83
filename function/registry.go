package function

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/types"
)

// shorthandEntry is what a recognized "<provider>::<model>" prefix
// auto-instantiates (spec §6 "Model-provider shorthand").
type shorthandEntry struct {
	kind   llm.ProviderKind
	envVar string
}

// shorthandProviders is the supported shorthand set. The env var names
// follow the convention each provider's own SDK/CLI already uses, so a
// shorthand model needs no explicit credential config to work in the
// common case.
var shorthandProviders = map[string]shorthandEntry{
	"openai":           {llm.ProviderOpenAI, "OPENAI_API_KEY"},
	"anthropic":        {llm.ProviderAnthropic, "ANTHROPIC_API_KEY"},
	"mistral":          {llm.ProviderMistral, "MISTRAL_API_KEY"},
	"together":         {llm.ProviderTogether, "TOGETHER_API_KEY"},
	"fireworks":        {llm.ProviderFireworks, "FIREWORKS_API_KEY"},
	"gcp_vertex":       {llm.ProviderVertex, "GCP_VERTEX_CREDENTIALS"},
	"aws_bedrock":      {llm.ProviderBedrock, "AWS_BEDROCK_CREDENTIALS"},
	"azure":            {llm.ProviderAzure, "AZURE_OPENAI_API_KEY"},
	"google_ai_studio": {llm.ProviderGoogleAI, "GOOGLE_AI_STUDIO_API_KEY"},
	"xai":              {llm.ProviderXAI, "XAI_API_KEY"},
	"hyperbolic":       {llm.ProviderHyperbolic, "HYPERBOLIC_API_KEY"},
	"vllm":             {llm.ProviderVLLM, "VLLM_API_KEY"},
	"tgi":              {llm.ProviderTGI, "TGI_API_KEY"},
	"sglang":           {llm.ProviderSGLang, "SGLANG_API_KEY"},
}

// splitShorthand parses "<provider>::<model>" and reports whether name
// matched a recognized prefix.
func splitShorthand(name string) (entry shorthandEntry, modelName string, ok bool) {
	idx := strings.Index(name, "::")
	if idx < 0 {
		return shorthandEntry{}, "", false
	}
	prefix, rest := name[:idx], name[idx+2:]
	e, found := shorthandProviders[prefix]
	if !found || rest == "" {
		return shorthandEntry{}, "", false
	}
	return e, rest, true
}

// Registry is the immutable model/function table plus the lazily
// populated shorthand-model cache (spec §9 "Global state ... lazily
// populated model-table entries for shorthand model names. Shorthand
// insertion must be idempotent and race-safe"). Registry itself is
// read-only after construction; only the shorthand cache mutates, and it
// does so through sync.Map so concurrent first-references to the same
// shorthand name race safely onto a single ModelConfig.
type Registry struct {
	models    map[string]llm.ModelConfig
	functions map[string]FunctionConfig

	shorthand sync.Map // string -> llm.ModelConfig
	store     *ShorthandStore

	logger *zap.Logger
}

// NewRegistry builds a Registry from already-converted models and
// functions (config.GatewayConfig -> llm.ModelConfig/FunctionConfig
// conversion happens in the config package's GatewayConfig.BuildRegistry).
func NewRegistry(models map[string]llm.ModelConfig, functions map[string]FunctionConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{models: models, functions: functions, logger: logger}
}

// WithShorthandStore attaches a durable mirror for lazily-instantiated
// shorthand models. Model still serves out of the in-memory sync.Map first;
// store is only consulted on an in-memory miss and written to after a fresh
// instantiation, so a nil or unreachable store degrades to memory-only
// behavior rather than failing model resolution.
func (r *Registry) WithShorthandStore(store *ShorthandStore) *Registry {
	r.store = store
	return r
}

// Function looks up a declared function by name.
func (r *Registry) Function(name string) (FunctionConfig, error) {
	f, ok := r.functions[name]
	if !ok {
		return FunctionConfig{}, &types.Error{
			Code:    types.ErrUnknownFunction,
			Message: fmt.Sprintf("unknown function %q", name),
		}
	}
	return f, nil
}

// Model resolves a model name to its routing config, auto-instantiating
// shorthand names ("<provider>::<model>") on first reference (spec §6).
// Concurrent first-references to the same shorthand name are race-safe:
// sync.Map.LoadOrStore guarantees exactly one ModelConfig value wins and
// every caller, regardless of arrival order, observes that same value.
func (r *Registry) Model(name string) (llm.ModelConfig, error) {
	if m, ok := r.models[name]; ok {
		return m, nil
	}

	entry, modelName, ok := splitShorthand(name)
	if !ok {
		return llm.ModelConfig{}, &types.Error{
			Code:    types.ErrUnknownModel,
			Message: fmt.Sprintf("unknown model %q", name),
		}
	}

	if cached, ok := r.shorthand.Load(name); ok {
		return cached.(llm.ModelConfig), nil
	}

	if r.store != nil {
		if persisted, ok := r.store.Load(context.Background(), name); ok {
			actual, _ := r.shorthand.LoadOrStore(name, persisted)
			return actual.(llm.ModelConfig), nil
		}
	}

	cfg := llm.ModelConfig{
		Name:    name,
		Routing: []string{"default"},
		Providers: map[string]llm.ProviderConfig{
			"default": {
				Kind:      entry.kind,
				ModelName: modelName,
				Credential: llm.CredentialLocation{
					Kind: llm.CredentialLocationEnv,
					Name: entry.envVar,
				},
			},
		},
	}

	actual, loaded := r.shorthand.LoadOrStore(name, cfg)
	if loaded {
		r.logger.Debug("shorthand model already instantiated by a concurrent caller", zap.String("model", name))
	} else if r.store != nil {
		r.store.Save(context.Background(), name, cfg)
	}
	return actual.(llm.ModelConfig), nil
}
