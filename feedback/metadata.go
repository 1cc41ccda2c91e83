package feedback

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tensorzero/gateway/types"
)

// Kind is the tag of the feedback sum type (spec §3 FeedbackMetadata).
type Kind string

const (
	KindComment       Kind = "comment"
	KindDemonstration Kind = "demonstration"
	KindFloat         Kind = "float"
	KindBoolean       Kind = "boolean"
)

// Level is which entity a feedback record targets (spec §3).
type Level string

const (
	LevelInference Level = "inference"
	LevelEpisode   Level = "episode"
)

// MetricConfig is one operator-declared Float or Boolean metric (spec
// §4.F table). Comment and demonstration are built in, not configured.
type MetricConfig struct {
	Name  string
	Kind  Kind // KindFloat | KindBoolean
	Level Level
}

// MetricRegistry is the read-only table of configured metrics (spec §3
// Config is shared read-only by all in-flight requests).
type MetricRegistry struct {
	metrics map[string]MetricConfig
}

// NewMetricRegistry builds a registry from already-converted metric
// config (config.GatewayConfig -> feedback.MetricConfig conversion
// happens in the config package, matching function.Registry's pattern).
func NewMetricRegistry(metrics map[string]MetricConfig) *MetricRegistry {
	return &MetricRegistry{metrics: metrics}
}

// Metadata is the resolved target of one feedback call (spec §3
// FeedbackMetadata).
type Metadata struct {
	MetricName string
	Kind       Kind
	Level      Level
	TargetID   uuid.UUID
}

// Resolve implements spec §4.F's metric-name dispatch table and the
// "exactly one of inference_id/episode_id, matching the required level"
// constraint.
func (r *MetricRegistry) Resolve(metricName string, inferenceID, episodeID *uuid.UUID) (Metadata, error) {
	if (inferenceID == nil) == (episodeID == nil) {
		return Metadata{}, &types.Error{
			Code:    types.ErrInvalidRequest,
			Message: "feedback requires exactly one of inference_id or episode_id",
		}
	}

	var kind Kind
	var level Level
	switch metricName {
	case "comment":
		kind = KindComment
		if inferenceID != nil {
			level = LevelInference
		} else {
			level = LevelEpisode
		}
	case "demonstration":
		kind = KindDemonstration
		level = LevelInference
		if episodeID != nil {
			return Metadata{}, &types.Error{
				Code:    types.ErrInvalidRequest,
				Message: "demonstration feedback must target an inference_id, not an episode_id",
			}
		}
	default:
		m, ok := r.metrics[metricName]
		if !ok {
			return Metadata{}, &types.Error{
				Code:    types.ErrUnknownMetric,
				Message: fmt.Sprintf("unknown metric %q", metricName),
			}
		}
		kind = m.Kind
		level = m.Level
	}

	var targetID uuid.UUID
	switch level {
	case LevelInference:
		if inferenceID == nil {
			return Metadata{}, &types.Error{
				Code:    types.ErrInvalidRequest,
				Message: fmt.Sprintf("metric %q is inference-level but episode_id was given", metricName),
			}
		}
		targetID = *inferenceID
	case LevelEpisode:
		if episodeID == nil {
			return Metadata{}, &types.Error{
				Code:    types.ErrInvalidRequest,
				Message: fmt.Sprintf("metric %q is episode-level but inference_id was given", metricName),
			}
		}
		targetID = *episodeID
	}

	return Metadata{MetricName: metricName, Kind: kind, Level: level, TargetID: targetID}, nil
}
