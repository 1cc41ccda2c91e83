package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tensorzero/gateway/types"
)

// Value is the tagged union of payload shapes a feedback call can carry
// (spec §4.F payload validation). Exactly one field is meaningful,
// selected by the resolved Metadata.Kind.
type Value struct {
	Comment string // KindComment: value must be a string
	Float   float64
	Boolean bool
	// Demonstration is the raw submitted demonstration value; for a Json
	// function it is validated and canonicalized into {raw, parsed} by
	// validateDemonstration.
	Demonstration json.RawMessage
}

// demonstrationPayload is the canonical shape persisted for a Json
// function's demonstration (spec §4.F "construct a canonical {raw,
// parsed} object").
type demonstrationPayload struct {
	Raw    string          `json:"raw"`
	Parsed json.RawMessage `json:"parsed"`
}

// validatePayload dispatches to the kind-specific validation rule (spec
// §4.F). For Demonstration it additionally needs the inference's
// persisted configuration snapshot, not the function's live config (spec
// §3 invariant). It returns the exact bytes to persist as the feedback
// row's value column.
func validatePayload(md Metadata, v Value, snapshot *InferenceSnapshot) (json.RawMessage, error) {
	switch md.Kind {
	case KindComment:
		if v.Comment == "" && v.Demonstration != nil {
			return nil, &types.Error{Code: types.ErrInvalidRequest, Message: "comment feedback value must be a string"}
		}
		enc, _ := json.Marshal(v.Comment)
		return enc, nil

	case KindFloat:
		enc, _ := json.Marshal(v.Float)
		return enc, nil

	case KindBoolean:
		enc, _ := json.Marshal(v.Boolean)
		return enc, nil

	case KindDemonstration:
		return validateDemonstration(v.Demonstration, snapshot)

	default:
		return nil, fmt.Errorf("feedback: unhandled kind %q", md.Kind)
	}
}

// validateDemonstration implements spec §4.F's demonstration rule for a
// Json function: the submitted value must validate against the runtime
// snapshot's output schema and is canonicalized into {raw, parsed}. For a
// Chat function the value is only checked to be well-formed JSON and is
// returned as submitted; tool-call content in it is not checked against
// the snapshot's declared tools.
func validateDemonstration(raw json.RawMessage, snapshot *InferenceSnapshot) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, &types.Error{Code: types.ErrInvalidRequest, Message: "demonstration feedback requires a non-empty value"}
	}
	if snapshot == nil {
		return nil, fmt.Errorf("feedback: demonstration validation requires the inference's configuration snapshot")
	}

	if snapshot.FunctionType != "json" {
		if !json.Valid(raw) {
			return nil, &types.Error{Code: types.ErrInvalidRequest, Message: "demonstration value is not valid JSON"}
		}
		return raw, nil
	}

	if len(snapshot.OutputSchema) > 0 {
		if err := validateJSONSchema(snapshot.OutputSchema, raw); err != nil {
			return nil, &types.Error{
				Code:    types.ErrOutputValidation,
				Message: fmt.Sprintf("demonstration does not satisfy the inference's output schema: %v", err),
			}
		}
	}

	payload := demonstrationPayload{Raw: string(raw), Parsed: raw}
	return json.Marshal(payload)
}

func validateJSONSchema(schema, instance json.RawMessage) error {
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return fmt.Errorf("invalid output schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", schemaDoc); err != nil {
		return err
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return err
	}
	instDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(instance))
	if err != nil {
		return fmt.Errorf("value is not valid JSON: %w", err)
	}
	return compiled.Validate(instDoc)
}
