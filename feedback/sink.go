package feedback

import (
	"time"

	"github.com/google/uuid"
)

// Sink is the narrow write path the correlator needs from the
// persistence layer. It takes already-validated, already-resolved
// values rather than persistence's row types, so this package has no
// dependency on persistence - persistence.Sink satisfies this interface
// from the other side instead (spec §4.G "the core only enqueues").
type Sink interface {
	EnqueueComment(id uuid.UUID, targetType string, targetID uuid.UUID, value string, tags map[string]string, createdAt time.Time)
	EnqueueDemonstration(id uuid.UUID, inferenceID uuid.UUID, value []byte, tags map[string]string, createdAt time.Time)
	EnqueueFloatMetric(id uuid.UUID, targetID uuid.UUID, metricName string, value float64, tags map[string]string, createdAt time.Time)
	EnqueueBooleanMetric(id uuid.UUID, targetID uuid.UUID, metricName string, value bool, tags map[string]string, createdAt time.Time)
}
