package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedComment struct {
	id, targetID uuid.UUID
	targetType   string
	value        string
	tags         map[string]string
}

type fakeSink struct {
	comments []recordedComment
}

func (s *fakeSink) EnqueueComment(id uuid.UUID, targetType string, targetID uuid.UUID, value string, tags map[string]string, createdAt time.Time) {
	s.comments = append(s.comments, recordedComment{id: id, targetID: targetID, targetType: targetType, value: value, tags: tags})
}
func (s *fakeSink) EnqueueDemonstration(id uuid.UUID, inferenceID uuid.UUID, value []byte, tags map[string]string, createdAt time.Time) {
}
func (s *fakeSink) EnqueueFloatMetric(id uuid.UUID, targetID uuid.UUID, metricName string, value float64, tags map[string]string, createdAt time.Time) {
}
func (s *fakeSink) EnqueueBooleanMetric(id uuid.UUID, targetID uuid.UUID, metricName string, value bool, tags map[string]string, createdAt time.Time) {
}

func newTestCorrelator(found bool) (*Correlator, *fakeSink) {
	store := &fakeTargetStore{existsAfter: 1}
	now := time.Now
	if !found {
		store.existsAfter = 1 << 30
		// Jump the clock past the polling deadline after the first
		// observation so this test doesn't actually block for Cooldown.
		base := time.Now()
		var calls int32
		now = func() time.Time {
			calls++
			if calls <= 1 {
				return base
			}
			return base.Add(Cooldown + time.Second)
		}
	}
	sink := &fakeSink{}
	c := &Correlator{
		Metrics: newRegistry(),
		Store:   store,
		Sink:    sink,
		Now:     now,
		Logger:  zap.NewNop(),
	}
	return c, sink
}

func TestCorrelator_Process_CommentHappyPath(t *testing.T) {
	t.Parallel()

	c, sink := newTestCorrelator(true)
	inf := uuid.Must(uuid.NewV7())

	resp, err := c.Process(context.Background(), Request{
		MetricName:  "comment",
		InferenceID: &inf,
		Value:       Value{Comment: "great"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.UUID{}, resp.FeedbackID)
	require.Len(t, sink.comments, 1)
	assert.Equal(t, "great", sink.comments[0].value)
	assert.Equal(t, inf, sink.comments[0].targetID)
}

func TestCorrelator_Process_DryrunSkipsPersistence(t *testing.T) {
	t.Parallel()

	c, sink := newTestCorrelator(true)
	inf := uuid.Must(uuid.NewV7())

	resp, err := c.Process(context.Background(), Request{
		MetricName:  "comment",
		InferenceID: &inf,
		Value:       Value{Comment: "great"},
		Dryrun:      true,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.UUID{}, resp.FeedbackID)
	assert.Empty(t, sink.comments)
}

func TestCorrelator_Process_RejectsReservedTagsFromExternalCallers(t *testing.T) {
	t.Parallel()

	c, _ := newTestCorrelator(true)
	inf := uuid.Must(uuid.NewV7())

	_, err := c.Process(context.Background(), Request{
		MetricName:  "comment",
		InferenceID: &inf,
		Value:       Value{Comment: "x"},
		Tags:        map[string]string{"tensorzero::internal": "1"},
	})
	require.Error(t, err)
}

func TestCorrelator_Process_UnknownTargetFails(t *testing.T) {
	t.Parallel()

	c, _ := newTestCorrelator(false)
	inf := uuid.Must(uuid.NewV7())

	_, err := c.Process(context.Background(), Request{
		MetricName:  "comment",
		InferenceID: &inf,
		Value:       Value{Comment: "x"},
	})
	require.Error(t, err)
}
