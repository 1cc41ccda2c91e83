package feedback

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorzero/gateway/types"
)

func TestValidatePayload_Comment(t *testing.T) {
	t.Parallel()

	out, err := validatePayload(Metadata{Kind: KindComment}, Value{Comment: "nice answer"}, nil)
	require.NoError(t, err)
	var s string
	require.NoError(t, json.Unmarshal(out, &s))
	assert.Equal(t, "nice answer", s)
}

func TestValidatePayload_FloatAndBoolean(t *testing.T) {
	t.Parallel()

	out, err := validatePayload(Metadata{Kind: KindFloat}, Value{Float: 0.75}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, "0.75", string(out))

	out, err = validatePayload(Metadata{Kind: KindBoolean}, Value{Boolean: true}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, "true", string(out))
}

func TestValidateDemonstration_ChatFunctionRequiresValidJSON(t *testing.T) {
	t.Parallel()

	snapshot := &InferenceSnapshot{FunctionType: "chat"}

	_, err := validateDemonstration(json.RawMessage(`not json`), snapshot)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	out, err := validateDemonstration(json.RawMessage(`{"role":"assistant"}`), snapshot)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant"}`, string(out))
}

func TestValidateDemonstration_JsonFunctionValidatesAgainstSnapshotSchema(t *testing.T) {
	t.Parallel()

	snapshot := &InferenceSnapshot{
		FunctionType: "json",
		OutputSchema: json.RawMessage(`{"type":"object","required":["answer"],"properties":{"answer":{"type":"string"}}}`),
	}

	out, err := validateDemonstration(json.RawMessage(`{"answer":"42"}`), snapshot)
	require.NoError(t, err)

	var wrapped demonstrationPayload
	require.NoError(t, json.Unmarshal(out, &wrapped))
	assert.JSONEq(t, `{"answer":"42"}`, wrapped.Raw)
	assert.JSONEq(t, `{"answer":"42"}`, string(wrapped.Parsed))

	_, err = validateDemonstration(json.RawMessage(`{"wrong_field":"42"}`), snapshot)
	require.Error(t, err)
	assert.Equal(t, types.ErrOutputValidation, types.GetErrorCode(err))
}

func TestValidateDemonstration_RejectsEmptyValue(t *testing.T) {
	t.Parallel()

	_, err := validateDemonstration(nil, &InferenceSnapshot{FunctionType: "chat"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}
