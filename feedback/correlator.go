package feedback

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tensorzero/gateway/types"
)

// Request is one feedback call's already-parsed parameters (spec §4.F).
// Exactly one of InferenceID/EpisodeID must be set; Resolve enforces this.
type Request struct {
	MetricName  string
	InferenceID *uuid.UUID
	EpisodeID   *uuid.UUID
	Value       Value
	Tags        map[string]string
	Dryrun      bool
}

// Response is the result of a successful feedback call.
type Response struct {
	FeedbackID uuid.UUID
}

// Correlator is the feedback endpoint's core (spec §4.F): resolve the
// metric, confirm the target exists, validate the payload, mint an id,
// and enqueue a durable record - or, under Dryrun, do everything except
// the last step.
type Correlator struct {
	Metrics *MetricRegistry
	Store   TargetStore
	Sink    Sink
	Now     func() time.Time
	Logger  *zap.Logger
}

// NewCorrelator builds a Correlator with the production clock.
func NewCorrelator(metrics *MetricRegistry, store TargetStore, sink Sink, logger *zap.Logger) *Correlator {
	return &Correlator{Metrics: metrics, Store: store, Sink: sink, Now: time.Now, Logger: logger}
}

// Process implements the full spec §4.F algorithm.
func (c *Correlator) Process(ctx context.Context, req Request) (*Response, error) {
	if err := types.ValidateTags(req.Tags, false); err != nil {
		return nil, err
	}

	md, err := c.Metrics.Resolve(req.MetricName, req.InferenceID, req.EpisodeID)
	if err != nil {
		return nil, err
	}

	if err := awaitTarget(ctx, md.Level, md.TargetID, c.Store, c.Now); err != nil {
		return nil, err
	}

	var snapshot *InferenceSnapshot
	if md.Kind == KindDemonstration {
		snapshot, err = c.Store.InferenceSnapshot(ctx, md.TargetID)
		if err != nil {
			return nil, err
		}
	}

	value, err := validatePayload(md, req.Value, snapshot)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	if req.Dryrun {
		c.Logger.Debug("feedback dryrun, skipping persistence", zap.String("feedback_id", id.String()))
		return &Response{FeedbackID: id}, nil
	}

	now := c.Now()
	switch md.Kind {
	case KindComment:
		c.Sink.EnqueueComment(id, string(md.Level), md.TargetID, req.Value.Comment, req.Tags, now)
	case KindDemonstration:
		c.Sink.EnqueueDemonstration(id, md.TargetID, value, req.Tags, now)
	case KindFloat:
		c.Sink.EnqueueFloatMetric(id, md.TargetID, md.MetricName, req.Value.Float, req.Tags, now)
	case KindBoolean:
		c.Sink.EnqueueBooleanMetric(id, md.TargetID, md.MetricName, req.Value.Boolean, req.Tags, now)
	}

	return &Response{FeedbackID: id}, nil
}
