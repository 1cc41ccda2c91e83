package variant

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tensorzero/gateway/function"
	"github.com/tensorzero/gateway/llm"
	"github.com/tensorzero/gateway/template"
	"github.com/tensorzero/gateway/types"
)

const respondToolName = "respond"

// effectiveJSONMode applies the spec §4.E.1 step 2 precedence: request
// param, then variant default, then Off (Chat) / Strict (Json) - the
// latter already baked into vc.DefaultJSONMode by config conversion.
func effectiveJSONMode(req *Request, vc function.VariantConfig) types.JsonMode {
	if req.JSONMode != nil {
		return *req.JSONMode
	}
	return vc.DefaultJSONMode
}

// effectiveOutputSchema applies the request's dynamic_output_schema over
// the function's static one (spec §3 invariant).
func effectiveOutputSchema(req *Request, fc function.FunctionConfig) json.RawMessage {
	if len(req.OutputSchema) > 0 {
		return req.OutputSchema
	}
	return fc.OutputSchema
}

// buildToolConfig resolves the tool surface for one inference: dynamic
// request tools override the function's declared tools; JsonModeImplicitTool
// replaces the tool list entirely with a single synthetic "respond" tool
// forced via tool_choice (spec §4.B.3, §4.E.1 step 2).
func buildToolConfig(req *Request, fc function.FunctionConfig, jsonMode types.JsonMode, outputSchema json.RawMessage) (*llm.ToolConfig, error) {
	if jsonMode == types.JsonModeImplicitTool {
		if fc.Type != llm.FunctionTypeJson {
			return nil, &types.Error{
				Code:    types.ErrInvalidRequest,
				Message: "json_mode=implicit_tool is only valid for Json functions",
			}
		}
		return &llm.ToolConfig{
			Tools: []types.ToolSchema{{
				Name:        respondToolName,
				Description: "Respond with the final answer using the required output schema.",
				Parameters:  outputSchema,
			}},
			ToolChoice: types.ToolChoice{Mode: types.ToolChoiceSpecific, ToolName: respondToolName},
		}, nil
	}

	tools := fc.Tools
	if req.Tools != nil {
		tools = req.Tools
	}
	if len(tools) == 0 {
		return nil, nil
	}
	choice := fc.DefaultToolChoice
	if req.ToolChoice != nil {
		choice = *req.ToolChoice
	}
	return &llm.ToolConfig{Tools: tools, ToolChoice: choice}, nil
}

// buildMessages renders Input into the generic InferenceMessage slice plus
// an optional system prompt, applying each message's role template (spec
// §4.E.1 step 1). systemTmpl/userTmpl/assistantTmpl name the variant's
// per-role templates; an empty template id means "no template declared"
// (template.RenderOrPassthrough then requires the args to already be a
// string).
func buildMessages(r *template.Renderer, in Input, systemTmpl, userTmpl, assistantTmpl string) (*string, []llm.InferenceMessage, error) {
	var system *string
	if in.SystemArgs != nil {
		s, err := template.RenderOrPassthrough(r, systemTmpl, in.SystemArgs)
		if err != nil {
			return nil, nil, fmt.Errorf("system template: %w", err)
		}
		system = &s
	}

	messages := make([]llm.InferenceMessage, 0, len(in.Messages))
	for i, m := range in.Messages {
		if m.Blocks != nil {
			messages = append(messages, llm.InferenceMessage{Role: m.Role, Content: m.Blocks})
			continue
		}

		var tmplID string
		switch m.Role {
		case types.RoleUser:
			tmplID = userTmpl
		case types.RoleAssistant:
			tmplID = assistantTmpl
		}
		text, err := template.RenderOrPassthrough(r, tmplID, m.TemplateArgs)
		if err != nil {
			return nil, nil, fmt.Errorf("message %d (%s) template: %w", i, m.Role, err)
		}
		messages = append(messages, llm.InferenceMessage{Role: m.Role, Content: template.Content(text)})
	}
	return system, messages, nil
}

// validateOutputSchema checks raw against schema (spec §3 invariant: Json
// output is validated before becoming InferenceResult::Json). A missing
// schema is treated as "nothing to validate against" (valid). Schema
// mismatch is not a hard error (spec §4.E.1 step 5, §7): the caller
// demotes to parsed=nil rather than failing the inference.
func validateOutputSchema(schema json.RawMessage, raw json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return fmt.Errorf("output schema: invalid JSON schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("output_schema.json", schemaDoc); err != nil {
		return fmt.Errorf("output schema: %w", err)
	}
	compiled, err := compiler.Compile("output_schema.json")
	if err != nil {
		return fmt.Errorf("output schema: %w", err)
	}
	instDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("output is not valid JSON: %w", err)
	}
	return compiled.Validate(instDoc)
}

// validateToolArgs checks a tool-call block's arguments against the
// matching declared tool's parameter schema (spec §3 invariant: failure
// demotes the block to "raw tool call" but does not fail the inference).
// Returns true when the arguments validated cleanly.
func validateToolArgs(tools []types.ToolSchema, block types.ContentBlock) bool {
	if block.Type != types.ContentBlockToolCall {
		return true
	}
	for _, t := range tools {
		if t.Name != block.ToolName {
			continue
		}
		if len(t.Parameters) == 0 {
			return true
		}
		if err := validateOutputSchema(t.Parameters, block.ToolArgsRaw); err != nil {
			return false
		}
		return true
	}
	// Tool not declared at all: nothing to validate against.
	return true
}

// demoteInvalidToolCalls marks tool-call blocks whose arguments fail
// schema validation as raw (spec §3 invariant), leaving everything else
// untouched.
func demoteInvalidToolCalls(tools []types.ToolSchema, blocks []types.ContentBlock) []types.ContentBlock {
	out := make([]types.ContentBlock, len(blocks))
	for i, b := range blocks {
		if b.Type == types.ContentBlockToolCall && !validateToolArgs(tools, b) {
			b.RawToolCall = true
		}
		out[i] = b
	}
	return out
}
