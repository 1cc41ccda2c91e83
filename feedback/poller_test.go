package feedback

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorzero/gateway/types"
)

type fakeTargetStore struct {
	existsAfter int32 // InferenceExists returns true once calls >= this
	calls       int32
}

func (s *fakeTargetStore) InferenceExists(ctx context.Context, id uuid.UUID) (bool, error) {
	n := atomic.AddInt32(&s.calls, 1)
	return n >= s.existsAfter, nil
}

func (s *fakeTargetStore) EpisodeExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.InferenceExists(ctx, id)
}

func (s *fakeTargetStore) InferenceSnapshot(ctx context.Context, id uuid.UUID) (*InferenceSnapshot, error) {
	return nil, nil
}

func TestElapsedSince_FloorsAtZeroForFutureTimestamp(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV7())
	past := time.UnixMilli(uuidV7UnixMillis(id)).Add(-time.Hour)
	assert.Equal(t, time.Duration(0), elapsedSince(id, past))
}

func TestElapsedSince_MeasuresFromEmbeddedTimestamp(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV7())
	later := time.UnixMilli(uuidV7UnixMillis(id)).Add(3 * time.Second)
	assert.InDelta(t, 3*time.Second, elapsedSince(id, later), float64(50*time.Millisecond))
}

func TestAwaitTarget_ReturnsImmediatelyOnFirstCheck(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV7())
	store := &fakeTargetStore{existsAfter: 1}
	now := func() time.Time { return time.Now() }

	err := awaitTarget(context.Background(), LevelInference, id, store, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.calls)
}

func TestAwaitTarget_PollsUntilFoundWithinDeadline(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV7())
	store := &fakeTargetStore{existsAfter: 2}
	now := func() time.Time { return time.Now() }

	err := awaitTarget(context.Background(), LevelInference, id, store, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, store.calls, int32(2))
}

func TestAwaitTarget_TimesOutAsInvalidRequest(t *testing.T) {
	t.Parallel()

	// Fresh id: wait = Cooldown. Fake clock advances past the deadline on
	// the second observation so the test doesn't actually sleep 6s+.
	id := uuid.Must(uuid.NewV7())
	store := &fakeTargetStore{existsAfter: 1 << 30} // never found
	base := time.Now()
	var calls int32
	now := func() time.Time {
		n := atomic.AddInt32(&calls, 1)
		if n <= 1 {
			return base
		}
		return base.Add(Cooldown + time.Second)
	}

	err := awaitTarget(context.Background(), LevelInference, id, store, now)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestAwaitTarget_ContextCancellation(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV7())
	store := &fakeTargetStore{existsAfter: 1 << 30}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := awaitTarget(ctx, LevelInference, id, store, time.Now)
	require.Error(t, err)
}
