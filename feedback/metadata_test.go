package feedback

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorzero/gateway/types"
)

func newRegistry() *MetricRegistry {
	return NewMetricRegistry(map[string]MetricConfig{
		"task_success": {Name: "task_success", Kind: KindBoolean, Level: LevelInference},
		"user_rating":  {Name: "user_rating", Kind: KindFloat, Level: LevelEpisode},
	})
}

func TestMetricRegistry_Resolve_RequiresExactlyOneTarget(t *testing.T) {
	t.Parallel()
	r := newRegistry()

	_, err := r.Resolve("comment", nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	inf := uuid.Must(uuid.NewV7())
	ep := uuid.Must(uuid.NewV7())
	_, err = r.Resolve("comment", &inf, &ep)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestMetricRegistry_Resolve_CommentInfersLevelFromTarget(t *testing.T) {
	t.Parallel()
	r := newRegistry()

	inf := uuid.Must(uuid.NewV7())
	md, err := r.Resolve("comment", &inf, nil)
	require.NoError(t, err)
	assert.Equal(t, KindComment, md.Kind)
	assert.Equal(t, LevelInference, md.Level)
	assert.Equal(t, inf, md.TargetID)

	ep := uuid.Must(uuid.NewV7())
	md, err = r.Resolve("comment", nil, &ep)
	require.NoError(t, err)
	assert.Equal(t, LevelEpisode, md.Level)
}

func TestMetricRegistry_Resolve_DemonstrationMustTargetInference(t *testing.T) {
	t.Parallel()
	r := newRegistry()

	ep := uuid.Must(uuid.NewV7())
	_, err := r.Resolve("demonstration", nil, &ep)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	inf := uuid.Must(uuid.NewV7())
	md, err := r.Resolve("demonstration", &inf, nil)
	require.NoError(t, err)
	assert.Equal(t, KindDemonstration, md.Kind)
	assert.Equal(t, LevelInference, md.Level)
}

func TestMetricRegistry_Resolve_ConfiguredMetricEnforcesDeclaredLevel(t *testing.T) {
	t.Parallel()
	r := newRegistry()

	inf := uuid.Must(uuid.NewV7())
	_, err := r.Resolve("user_rating", &inf, nil)
	require.Error(t, err, "user_rating is episode-level, inference_id must be rejected")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	ep := uuid.Must(uuid.NewV7())
	md, err := r.Resolve("user_rating", nil, &ep)
	require.NoError(t, err)
	assert.Equal(t, KindFloat, md.Kind)
	assert.Equal(t, ep, md.TargetID)
}

func TestMetricRegistry_Resolve_UnknownMetric(t *testing.T) {
	t.Parallel()
	r := newRegistry()

	inf := uuid.Must(uuid.NewV7())
	_, err := r.Resolve("does_not_exist", &inf, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrUnknownMetric, types.GetErrorCode(err))
}
