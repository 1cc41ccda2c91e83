// Package function holds the runtime configuration the variant engine and
// request façade consume: FunctionConfig, VariantConfig, and the model
// table (including shorthand-model auto-instantiation), resolved from the
// YAML documents config.GatewayConfig loads (spec §3, §9).
package function

import (
	"encoding/json"
	"time"

	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/retry"
	"github.com/tensorzero/gateway/types"
)

// VariantKind is the tag of the VariantConfig sum type (spec §3).
type VariantKind string

const (
	VariantChatCompletion VariantKind = "chat_completion"
	VariantBestOfN        VariantKind = "best_of_n"
	VariantMixtureOfN     VariantKind = "mixture_of_n"
	VariantDICL           VariantKind = "dicl"
)

// VariantConfig is one named variant of a function: a model reference,
// optional sampling weight, optional templates, and the fields specific to
// whichever VariantKind it is (spec §3). Fields irrelevant to Kind are
// simply left zero; this mirrors the teacher's declarative sum-type-by-
// string-constant style rather than an interface hierarchy, since every
// field is plain config data with no per-kind behavior attached.
type VariantConfig struct {
	Name string
	Kind VariantKind

	// Weight is nil for an unweighted variant: reachable only by explicit
	// name, never chosen by weighted sampling (spec §9 open question
	// resolution).
	Weight *float64

	// chat_completion
	Model             string
	SystemTemplate    string
	UserTemplate      string
	AssistantTemplate string

	// best_of_n / mixture_of_n
	Candidates       []string
	EvaluatorModel   string // best_of_n
	FuserModel       string // mixture_of_n
	CandidateTimeout time.Duration

	// dicl
	EmbeddingModel string
	K              int
	InnerVariant   string

	DefaultParams   llm.SamplingParams
	DefaultJSONMode types.JsonMode // Chat: JsonModeOff default; Json: JsonModeStrict default (spec §4.E.1 step 2)

	RetryPolicy  *retry.RetryPolicy
	ExtraBody    []llm.ExtraBodyPatch
	ExtraHeaders map[string]string
}

// IsWeighted reports whether this variant participates in weighted
// sampling (spec §4.E.5, §9).
func (v VariantConfig) IsWeighted() bool { return v.Weight != nil }

// FunctionConfig is one named, typed inference schema (spec §3).
type FunctionConfig struct {
	Name string
	Type llm.FunctionType

	// Input schemas are optional and only used to validate structured
	// input shape before template rendering; nil means "any shape".
	SystemSchema   json.RawMessage
	UserSchema     json.RawMessage
	AssistantSchema json.RawMessage

	// OutputSchema is Json-only; a per-request dynamic_output_schema may
	// override it (spec §3 invariant).
	OutputSchema json.RawMessage

	Tools             []types.ToolSchema
	DefaultToolChoice types.ToolChoice

	Variants map[string]VariantConfig
}
