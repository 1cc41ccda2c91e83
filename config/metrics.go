package config

import (
	"fmt"

	"github.com/tensorzero/gateway/feedback"
)

// BuildMetricRegistry converts the YAML metrics document into the
// runtime feedback.MetricRegistry the feedback correlator consumes
// (spec §4.F's configured-metric table; comment/demonstration are
// built in and never declared here).
func (c *GatewayConfig) BuildMetricRegistry() (*feedback.MetricRegistry, error) {
	metrics := make(map[string]feedback.MetricConfig, len(c.Metrics))
	for name, spec := range c.Metrics {
		kind := feedback.Kind(spec.Type)
		switch kind {
		case feedback.KindFloat, feedback.KindBoolean:
		default:
			return nil, fmt.Errorf("metric %q: unsupported configured type %q (must be float or boolean)", name, spec.Type)
		}

		level := feedback.Level(spec.Level)
		switch level {
		case feedback.LevelInference, feedback.LevelEpisode:
		case "":
			level = feedback.LevelInference
		default:
			return nil, fmt.Errorf("metric %q: unknown level %q", name, spec.Level)
		}

		metrics[name] = feedback.MetricConfig{Name: name, Kind: kind, Level: level}
	}
	return feedback.NewMetricRegistry(metrics), nil
}
