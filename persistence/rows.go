package persistence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// The row shapes below are the logical schemas from spec §6. Column
// ordering here is what Append(...) on each table's ClickHouse batch must
// match; see sink.go.

// ChatInferenceRow is one row of the ChatInference table (spec §6).
type ChatInferenceRow struct {
	ID               uuid.UUID
	FunctionName     string
	VariantName      string
	EpisodeID        uuid.UUID
	Input            json.RawMessage
	Output           json.RawMessage
	ToolParams       json.RawMessage
	InferenceParams  json.RawMessage
	ProcessingTimeMS int64
	TTFTMS           *int64
	Tags             map[string]string
	ExtraBody        json.RawMessage
	SnapshotHash     string
	CreatedAt        time.Time
}

func (ChatInferenceRow) table() string { return "ChatInference" }

// JsonInferenceRow is one row of the JsonInference table (spec §6).
type JsonInferenceRow struct {
	ID               uuid.UUID
	FunctionName     string
	VariantName      string
	EpisodeID        uuid.UUID
	Input            json.RawMessage
	Output           json.RawMessage
	OutputSchema     json.RawMessage
	InferenceParams  json.RawMessage
	ProcessingTimeMS int64
	TTFTMS           *int64
	Tags             map[string]string
	ExtraBody        json.RawMessage
	AuxiliaryContent json.RawMessage
	SnapshotHash     string
	CreatedAt        time.Time
}

func (JsonInferenceRow) table() string { return "JsonInference" }

// ModelInferenceRow is one row of the ModelInference table (spec §6): one
// physical provider call.
type ModelInferenceRow struct {
	ID                 uuid.UUID
	InferenceID        uuid.UUID
	ModelName          string
	ModelProviderName  string
	RawRequest         string
	RawResponse        string
	InputTokens        int
	OutputTokens       int
	ResponseTimeMS     int64
	TTFTMS             *int64
	Cached             bool
	CreatedAt          time.Time
}

func (ModelInferenceRow) table() string { return "ModelInference" }

// CommentFeedbackRow is one row of the CommentFeedback table (spec §6).
type CommentFeedbackRow struct {
	ID         uuid.UUID
	TargetType string // "inference" | "episode"
	TargetID   uuid.UUID
	Value      string
	Tags       map[string]string
	CreatedAt  time.Time
}

func (CommentFeedbackRow) table() string { return "CommentFeedback" }

// DemonstrationFeedbackRow is one row of the DemonstrationFeedback table
// (spec §6). Value is the canonical {raw, parsed} object for Json
// functions, or the raw string value for Chat functions.
type DemonstrationFeedbackRow struct {
	ID          uuid.UUID
	InferenceID uuid.UUID
	Value       json.RawMessage
	Tags        map[string]string
	CreatedAt   time.Time
}

func (DemonstrationFeedbackRow) table() string { return "DemonstrationFeedback" }

// FloatMetricFeedbackRow is one row of the FloatMetricFeedback table
// (spec §6).
type FloatMetricFeedbackRow struct {
	ID         uuid.UUID
	TargetID   uuid.UUID
	MetricName string
	Value      float64
	Tags       map[string]string
	CreatedAt  time.Time
}

func (FloatMetricFeedbackRow) table() string { return "FloatMetricFeedback" }

// BooleanMetricFeedbackRow is one row of the BooleanMetricFeedback table
// (spec §6).
type BooleanMetricFeedbackRow struct {
	ID         uuid.UUID
	TargetID   uuid.UUID
	MetricName string
	Value      bool
	Tags       map[string]string
	CreatedAt  time.Time
}

func (BooleanMetricFeedbackRow) table() string { return "BooleanMetricFeedback" }
