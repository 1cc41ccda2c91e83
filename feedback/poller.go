package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tensorzero/gateway/types"
)

// Recommended constants (spec §4.F) grounded verbatim on the original
// implementation's FEEDBACK_COOLDOWN_PERIOD / FEEDBACK_MINIMUM_WAIT_TIME /
// FEEDBACK_TARGET_POLL_INTERVAL.
const (
	Cooldown     = 6 * time.Second
	MinWait      = 1 * time.Second
	PollInterval = 2 * time.Second
)

// TargetStore is the narrow read path the correlator needs from the
// persistence layer: existence checks for the read-after-write race
// window, and the inference's persisted configuration snapshot for
// demonstration validation (spec §4.F).
type TargetStore interface {
	InferenceExists(ctx context.Context, id uuid.UUID) (bool, error)
	EpisodeExists(ctx context.Context, id uuid.UUID) (bool, error)
	InferenceSnapshot(ctx context.Context, id uuid.UUID) (*InferenceSnapshot, error)
}

// InferenceSnapshot is the runtime configuration an inference row was
// actually served under, fetched from the persisted row rather than the
// function's *current* static config so demonstration validation checks
// against the configuration the demonstration is actually a demonstration
// of (spec §4.F payload validation, §3 "a demonstration valid against the
// function's current static config but invalid against the runtime
// snapshot is rejected, and vice versa").
type InferenceSnapshot struct {
	FunctionName string
	FunctionType string // "chat" | "json"
	OutputSchema []byte // json functions
	Tools        []types.ToolSchema
}

// uuidV7UnixMillis extracts the 48-bit millisecond timestamp UUIDv7 embeds
// in its first 6 bytes (RFC 9562 §5.7), independent of whichever uuid
// library version is linked.
func uuidV7UnixMillis(id uuid.UUID) int64 {
	return int64(id[0])<<40 | int64(id[1])<<32 | int64(id[2])<<24 | int64(id[3])<<16 | int64(id[4])<<8 | int64(id[5])
}

// elapsedSince returns now - id's embedded timestamp, floored at zero for
// an id that is nominally in the future (clock skew, or a caller-supplied
// id minted just now) (spec §4.F "elapsed = now - id.timestamp(), floored
// at zero").
func elapsedSince(id uuid.UUID, now time.Time) time.Duration {
	ts := time.UnixMilli(uuidV7UnixMillis(id))
	d := now.Sub(ts)
	if d < 0 {
		return 0
	}
	return d
}

// awaitTarget implements spec §4.F's existence-check throttle, grounded
// verbatim on the original's throttled_get_function_info: check
// immediately; on a miss, sleep PollInterval and check again, until
// max(Cooldown-elapsed, MinWait) has passed, at which point a miss
// becomes a timeout (spec §8 property 6).
func awaitTarget(ctx context.Context, level Level, id uuid.UUID, store TargetStore, now func() time.Time) error {
	exists := func(ctx context.Context) (bool, error) {
		if level == LevelEpisode {
			return store.EpisodeExists(ctx, id)
		}
		return store.InferenceExists(ctx, id)
	}

	start := now()
	wait := Cooldown - elapsedSince(id, start)
	if wait < MinWait {
		wait = MinWait
	}
	deadline := start.Add(wait)

	for {
		ok, err := exists(ctx)
		if err != nil {
			return fmt.Errorf("feedback: checking %s %s existence: %w", level, id, err)
		}
		if ok {
			return nil
		}
		if !now().Before(deadline) {
			return &types.Error{
				Code:    types.ErrInvalidRequest,
				Message: fmt.Sprintf("%s ID %s does not exist", level, id),
			}
		}

		timer := time.NewTimer(PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
