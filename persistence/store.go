package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"github.com/tensorzero/gateway/feedback"
	"github.com/tensorzero/gateway/types"
)

// Store is the read path over the analytical store (spec §4.F's
// read-after-write existence checks, and the demonstration-validation
// configuration snapshot). It shares the Sink's connection but is kept
// as its own type since it is a query surface, not a writer.
type Store struct {
	conn driver.Conn
}

var _ feedback.TargetStore = (*Store)(nil)

// NewStore wraps an already-open ClickHouse connection for reads. Pass
// the same conn the Sink for this process was built with, or a
// read-replica conn if one is configured.
func NewStore(conn driver.Conn) *Store {
	return &Store{conn: conn}
}

// InferenceExists implements feedback.TargetStore (spec §4.F). An
// inference is either a ChatInference or a JsonInference row.
func (s *Store) InferenceExists(ctx context.Context, id uuid.UUID) (bool, error) {
	for _, table := range [...]string{"ChatInference", "JsonInference"} {
		ok, err := s.existsByID(ctx, table, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// EpisodeExists implements feedback.TargetStore. Episodes are not a
// first-class table (spec §6); an episode exists once at least one
// inference row carries that episode_id.
func (s *Store) EpisodeExists(ctx context.Context, id uuid.UUID) (bool, error) {
	for _, table := range [...]string{"ChatInference", "JsonInference"} {
		var count uint64
		q := fmt.Sprintf("SELECT count() FROM %s WHERE episode_id = ?", table)
		if err := s.conn.QueryRow(ctx, q, id).Scan(&count); err != nil {
			return false, fmt.Errorf("persistence: checking episode existence in %s: %w", table, err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) existsByID(ctx context.Context, table string, id uuid.UUID) (bool, error) {
	var count uint64
	q := fmt.Sprintf("SELECT count() FROM %s WHERE id = ?", table)
	if err := s.conn.QueryRow(ctx, q, id).Scan(&count); err != nil {
		return false, fmt.Errorf("persistence: checking existence in %s: %w", table, err)
	}
	return count > 0, nil
}

// InferenceSnapshot implements feedback.TargetStore: it returns the
// runtime configuration the inference was actually served under, read
// back from the persisted row rather than the function's current static
// config (spec §3 invariant).
func (s *Store) InferenceSnapshot(ctx context.Context, id uuid.UUID) (*feedback.InferenceSnapshot, error) {
	if snap, err := s.chatSnapshot(ctx, id); err == nil {
		return snap, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	snap, err := s.jsonSnapshot(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &types.Error{Code: types.ErrUnknownCandidate, Message: fmt.Sprintf("no inference found with id %s", id)}
		}
		return nil, err
	}
	return snap, nil
}

func (s *Store) chatSnapshot(ctx context.Context, id uuid.UUID) (*feedback.InferenceSnapshot, error) {
	var functionName string
	var toolParams json.RawMessage
	err := s.conn.QueryRow(ctx, "SELECT function_name, tool_params FROM ChatInference WHERE id = ?", id).Scan(&functionName, &toolParams)
	if err != nil {
		return nil, err
	}

	var tools []types.ToolSchema
	if len(toolParams) > 0 {
		var decoded struct {
			Tools []types.ToolSchema `json:"tools"`
		}
		if jsonErr := json.Unmarshal(toolParams, &decoded); jsonErr == nil {
			tools = decoded.Tools
		}
	}

	return &feedback.InferenceSnapshot{
		FunctionName: functionName,
		FunctionType: "chat",
		Tools:        tools,
	}, nil
}

func (s *Store) jsonSnapshot(ctx context.Context, id uuid.UUID) (*feedback.InferenceSnapshot, error) {
	var functionName string
	var outputSchema []byte
	err := s.conn.QueryRow(ctx, "SELECT function_name, output_schema FROM JsonInference WHERE id = ?", id).Scan(&functionName, &outputSchema)
	if err != nil {
		return nil, err
	}

	return &feedback.InferenceSnapshot{
		FunctionName: functionName,
		FunctionType: "json",
		OutputSchema: outputSchema,
	}, nil
}
