// Gateway config holds the inference gateway's own schema: functions,
// models, and metrics, loaded straight from YAML with no per-field env
// override (a function/model registry is authored as a whole document).
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tensorzero/gateway/llm"
)

// CredentialLocationSpec is the YAML shape of a CredentialLocation.
type CredentialLocationSpec struct {
	Kind     string                  `yaml:"kind"` // env | path_from_env | path | dynamic | none | with_fallback
	Name     string                  `yaml:"name,omitempty"`
	Path     string                  `yaml:"path,omitempty"`
	Default  *CredentialLocationSpec `yaml:"default,omitempty"`
	Fallback *CredentialLocationSpec `yaml:"fallback,omitempty"`
}

func (s CredentialLocationSpec) toLocation() llm.CredentialLocation {
	loc := llm.CredentialLocation{
		Kind: llm.CredentialLocationKind(s.Kind),
		Name: s.Name,
		Path: s.Path,
	}
	if s.Default != nil {
		d := s.Default.toLocation()
		loc.Default = &d
	}
	if s.Fallback != nil {
		f := s.Fallback.toLocation()
		loc.Fallback = &f
	}
	return loc
}

// ExtraBodyPatchSpec is the YAML shape of one extra_body/header patch.
type ExtraBodyPatchSpec struct {
	Pointer string `yaml:"pointer"`
	Value   string `yaml:"value"` // raw JSON text
}

// ProviderSpec is one entry in a model's routing list.
type ProviderSpec struct {
	Kind              string                  `yaml:"kind"`
	ModelName         string                  `yaml:"model_name"`
	BaseURL           string                  `yaml:"base_url,omitempty"`
	Credentials       CredentialLocationSpec  `yaml:"credentials"`
	ParsesThinkBlocks bool                    `yaml:"parses_think_blocks,omitempty"`
	ExtraBody         []ExtraBodyPatchSpec    `yaml:"extra_body,omitempty"`
	ExtraHeaders      map[string]string       `yaml:"extra_headers,omitempty"`
}

// ModelSpec is a named, ordered routing list over ProviderSpec entries.
type ModelSpec struct {
	Routing   []string                `yaml:"routing"`
	Providers map[string]ProviderSpec `yaml:"providers"`
}

// VariantSpec is the YAML shape of one function's variant.
type VariantSpec struct {
	Type   string   `yaml:"type"` // chat_completion | best_of_n | mixture_of_n | dicl
	Weight *float64 `yaml:"weight,omitempty"` // nil: reachable by name only, never sampled

	// chat_completion
	Model          string `yaml:"model,omitempty"`
	SystemTemplate string `yaml:"system_template,omitempty"`
	UserTemplate   string `yaml:"user_template,omitempty"`

	// best_of_n / mixture_of_n
	Candidates      []string `yaml:"candidates,omitempty"`
	EvaluatorModel  string   `yaml:"evaluator_model,omitempty"`
	FuserModel      string   `yaml:"fuser_model,omitempty"`
	CandidateTimeoutS int    `yaml:"candidate_timeout_s,omitempty"`

	// dicl
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
	K              int    `yaml:"k,omitempty"`
	InnerVariant   string `yaml:"inner_variant,omitempty"`
}

// ToolSpec declares one tool by name, referenced by FunctionSpec.Tools.
type ToolSpec struct {
	Description string `yaml:"description,omitempty"`
	Parameters  string `yaml:"parameters,omitempty"` // raw JSON schema text
}

// FunctionSpec is one named function's full config.
type FunctionSpec struct {
	Type              string                 `yaml:"type"` // chat | json
	OutputSchema      string                 `yaml:"output_schema,omitempty"` // raw JSON schema text
	Tools             []string               `yaml:"tools,omitempty"`
	DefaultToolChoice string                 `yaml:"default_tool_choice,omitempty"` // auto | none | required
	Variants          map[string]VariantSpec `yaml:"variants"`
}

// MetricSpec is one named feedback metric's config.
type MetricSpec struct {
	Type  string `yaml:"type"` // float | boolean | comment | demonstration
	Level string `yaml:"level,omitempty"` // inference | episode
}

// GatewayConfig is the top-level gateway document.
type GatewayConfig struct {
	Models    map[string]ModelSpec    `yaml:"models"`
	Tools     map[string]ToolSpec     `yaml:"tools"`
	Functions map[string]FunctionSpec `yaml:"functions"`
	Metrics   map[string]MetricSpec   `yaml:"metrics"`
}

// LoadGatewayConfig reads and parses a gateway config document.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config: %w", err)
	}
	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gateway config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// reservedPrefix is the namespace the gateway itself uses for internal
// tags and synthetic names; config authors may not shadow it (spec's
// reserved-prefix invariant).
const reservedPrefix = "tensorzero::"

// Validate enforces the config-time invariants the spec assigns to
// function/model/variant loading: no reserved-prefix names, and every
// function referencing only declared models. Routing lists are checked
// per model later, when ToModelConfig converts it (llm.ModelConfig.Validate).
func (c *GatewayConfig) Validate() error {
	for name := range c.Models {
		if hasReservedPrefix(name) {
			return fmt.Errorf("model name %q uses the reserved prefix %q", name, reservedPrefix)
		}
	}
	for name, fn := range c.Functions {
		if hasReservedPrefix(name) {
			return fmt.Errorf("function name %q uses the reserved prefix %q", name, reservedPrefix)
		}
		for vname, v := range fn.Variants {
			if hasReservedPrefix(vname) {
				return fmt.Errorf("variant name %q (function %q) uses the reserved prefix %q", vname, name, reservedPrefix)
			}
			if err := validateVariantModel(v, c.Models); err != nil {
				return fmt.Errorf("function %q variant %q: %w", name, vname, err)
			}
		}
	}
	for name := range c.Metrics {
		if hasReservedPrefix(name) {
			return fmt.Errorf("metric name %q uses the reserved prefix %q", name, reservedPrefix)
		}
	}
	return nil
}

func hasReservedPrefix(name string) bool {
	return len(name) >= len(reservedPrefix) && name[:len(reservedPrefix)] == reservedPrefix
}

func validateVariantModel(v VariantSpec, models map[string]ModelSpec) error {
	check := func(name string) error {
		if name == "" {
			return nil
		}
		if _, ok := models[name]; !ok && !isShorthandModel(name) {
			return fmt.Errorf("references undeclared model %q", name)
		}
		return nil
	}
	if err := check(v.Model); err != nil {
		return err
	}
	if err := check(v.EvaluatorModel); err != nil {
		return err
	}
	return check(v.FuserModel)
}

// isShorthandModel reports whether name follows the "<provider>::<model>"
// shorthand the gateway auto-instantiates into a single-provider
// ModelConfig on first reference, rather than requiring it in the
// `models` map (spec §3).
func isShorthandModel(name string) bool {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == ':' && name[i+1] == ':' {
			return true
		}
	}
	return false
}

// ToModelConfig converts one named ModelSpec into the runtime ModelConfig
// the router consumes.
func (m ModelSpec) ToModelConfig(name string) (llm.ModelConfig, error) {
	out := llm.ModelConfig{Name: name, Routing: m.Routing, Providers: map[string]llm.ProviderConfig{}}
	for pname, p := range m.Providers {
		patches, err := toExtraBodyPatches(p.ExtraBody)
		if err != nil {
			return llm.ModelConfig{}, fmt.Errorf("model %q provider %q: %w", name, pname, err)
		}
		out.Providers[pname] = llm.ProviderConfig{
			Kind:              llm.ProviderKind(p.Kind),
			ModelName:         p.ModelName,
			BaseURL:           p.BaseURL,
			Credential:        p.Credentials.toLocation(),
			ParsesThinkBlocks: p.ParsesThinkBlocks,
			ExtraBody:         patches,
			ExtraHeaders:      p.ExtraHeaders,
		}
	}
	if err := out.Validate(); err != nil {
		return llm.ModelConfig{}, err
	}
	return out, nil
}

func toExtraBodyPatches(specs []ExtraBodyPatchSpec) ([]llm.ExtraBodyPatch, error) {
	out := make([]llm.ExtraBodyPatch, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ExtraBodyPatch{Pointer: s.Pointer, Value: []byte(s.Value)})
	}
	return out, nil
}

// BuildAdapterRegistry wires every provider kind the gateway speaks into
// an llm.AdapterRegistry, ready for llm.NewRouter.
func BuildAdapterRegistry(logger *zap.Logger) *llm.AdapterRegistry {
	reg := llm.NewAdapterRegistry()

	reg.Register(llm.ProviderAnthropic, anthropicAdapter())
	reg.Register(llm.ProviderGoogleAI, googleAIAdapter())
	reg.Register(llm.ProviderVertex, vertexAdapter())
	reg.Register(llm.ProviderBedrock, bedrockAdapter())

	openAICaps := defaultOpenAICaps()
	reg.Register(llm.ProviderOpenAI, openAIWireAdapter(llm.ProviderOpenAI, "/chat/completions", openAICaps, logger))
	reg.Register(llm.ProviderAzure, openAIWireAdapter(llm.ProviderAzure, "/chat/completions", openAICaps, logger))

	mistralCaps := openAICaps
	mistralCaps.SupportsReasoningEffort = false
	mistralCaps.SupportsVerbosity = false
	mistralCaps.SupportsServiceTier = false
	mistralCaps.SupportsStrictJSONSchema = false
	reg.Register(llm.ProviderMistral, openAIWireAdapter(llm.ProviderMistral, "/v1/chat/completions", mistralCaps, logger))

	reasoningOnlyCaps := openAICaps
	reasoningOnlyCaps.SupportsThinkingBudgetTokens = false
	reasoningOnlyCaps.SupportsVerbosity = false
	reasoningOnlyCaps.SupportsServiceTier = false
	reasoningOnlyCaps.SupportsStrictJSONSchema = false
	reg.Register(llm.ProviderTogether, openAIWireAdapter(llm.ProviderTogether, "/v1/chat/completions", reasoningOnlyCaps, logger))
	reg.Register(llm.ProviderFireworks, openAIWireAdapter(llm.ProviderFireworks, "/inference/v1/chat/completions", reasoningOnlyCaps, logger))
	reg.Register(llm.ProviderXAI, openAIWireAdapter(llm.ProviderXAI, "/v1/chat/completions", reasoningOnlyCaps, logger))
	reg.Register(llm.ProviderHyperbolic, openAIWireAdapter(llm.ProviderHyperbolic, "/v1/chat/completions", reasoningOnlyCaps, logger))

	selfHostedCaps := reasoningOnlyCaps
	selfHostedCaps.SupportsStrictJSONSchema = false
	selfHostedCaps.SupportsToolChoiceRequired = false
	reg.Register(llm.ProviderVLLM, openAIWireAdapter(llm.ProviderVLLM, "/v1/chat/completions", selfHostedCaps, logger))
	reg.Register(llm.ProviderTGI, openAIWireAdapter(llm.ProviderTGI, "/v1/chat/completions", selfHostedCaps, logger))
	reg.Register(llm.ProviderSGLang, openAIWireAdapter(llm.ProviderSGLang, "/v1/chat/completions", selfHostedCaps, logger))

	return reg
}
