package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/llm/retry"
	"github.com/tensorzero/gateway/types"
)

// BuildRegistry converts the YAML document into the runtime function.Registry
// the request façade and variant engine consume. It lives here (not in
// package function) for the same reason BuildAdapterRegistry does: the
// conversion needs both llm and function, and keeping both conversions in
// config avoids either package depending on the YAML shape.
func (c *GatewayConfig) BuildRegistry(logger *zap.Logger) (*function.Registry, error) {
	models := make(map[string]llm.ModelConfig, len(c.Models))
	for name, spec := range c.Models {
		mc, err := spec.ToModelConfig(name)
		if err != nil {
			return nil, err
		}
		models[name] = mc
	}

	functions := make(map[string]function.FunctionConfig, len(c.Functions))
	for name, spec := range c.Functions {
		fc, err := c.toFunctionConfig(name, spec)
		if err != nil {
			return nil, err
		}
		functions[name] = fc
	}

	return function.NewRegistry(models, functions, logger), nil
}

func (c *GatewayConfig) toFunctionConfig(name string, spec FunctionSpec) (function.FunctionConfig, error) {
	fc := function.FunctionConfig{
		Name:         name,
		Type:         llm.FunctionType(spec.Type),
		OutputSchema: []byte(spec.OutputSchema),
		Variants:     make(map[string]function.VariantConfig, len(spec.Variants)),
	}

	for _, toolName := range spec.Tools {
		tool, ok := c.Tools[toolName]
		if !ok {
			return function.FunctionConfig{}, fmt.Errorf("function %q references undeclared tool %q", name, toolName)
		}
		fc.Tools = append(fc.Tools, types.ToolSchema{
			Name:        toolName,
			Description: tool.Description,
			Parameters:  []byte(tool.Parameters),
		})
	}
	if spec.DefaultToolChoice != "" {
		fc.DefaultToolChoice = types.ToolChoice{Mode: types.ToolChoiceMode(spec.DefaultToolChoice)}
	} else {
		fc.DefaultToolChoice = types.ToolChoice{Mode: types.ToolChoiceAuto}
	}

	for vname, v := range spec.Variants {
		vc, err := toVariantConfig(vname, v, fc.Type)
		if err != nil {
			return function.FunctionConfig{}, fmt.Errorf("function %q variant %q: %w", name, vname, err)
		}
		fc.Variants[vname] = vc
	}

	return fc, nil
}

func toVariantConfig(name string, v VariantSpec, fnType llm.FunctionType) (function.VariantConfig, error) {
	vc := function.VariantConfig{
		Name:              name,
		Kind:              function.VariantKind(v.Type),
		Weight:            v.Weight,
		Model:             v.Model,
		SystemTemplate:    v.SystemTemplate,
		UserTemplate:      v.UserTemplate,
		Candidates:        v.Candidates,
		EvaluatorModel:    v.EvaluatorModel,
		FuserModel:        v.FuserModel,
		EmbeddingModel:    v.EmbeddingModel,
		K:                 v.K,
		InnerVariant:      v.InnerVariant,
		RetryPolicy:       retry.DefaultRetryPolicy(),
	}
	if v.CandidateTimeoutS > 0 {
		vc.CandidateTimeout = time.Duration(v.CandidateTimeoutS) * time.Second
	} else {
		vc.CandidateTimeout = 30 * time.Second
	}

	// Default JSON mode precedence base (spec §4.E.1 step 2): Off for
	// Chat, Strict for Json; a request-level json_mode still overrides
	// this at dispatch time.
	if fnType == llm.FunctionTypeJson {
		vc.DefaultJSONMode = types.JsonModeStrict
	} else {
		vc.DefaultJSONMode = types.JsonModeOff
	}

	switch vc.Kind {
	case function.VariantChatCompletion, function.VariantBestOfN, function.VariantMixtureOfN, function.VariantDICL:
	default:
		return function.VariantConfig{}, fmt.Errorf("unknown variant type %q", v.Type)
	}

	return vc, nil
}
