package inference

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// The record types below are the façade's view of spec §6's persisted
// rows: exactly the fields the façade can populate once a variant call
// returns. They exist so this package never imports persistence (the
// same narrow-interface shape feedback.Sink uses) - persistence.Sink
// implements Sink by copying these fields into its own row types.

// ChatInferenceRecord is one completed Chat-function inference.
type ChatInferenceRecord struct {
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

// JsonInferenceRecord is one completed Json-function inference.
type JsonInferenceRecord struct {
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

// ModelInferenceRecord is one constituent physical provider call.
type ModelInferenceRecord struct {
	ID                uuid.UUID
	InferenceID       uuid.UUID
	ModelName         string
	ModelProviderName string
	RawRequest        string
	RawResponse       string
	InputTokens       int
	OutputTokens      int
	ResponseTimeMS    int64
	TTFTMS            *int64
	Cached            bool
	CreatedAt         time.Time
}

// Sink is the narrow write path the request façade needs from the
// persistence layer (spec §4.H step 4, §4.G). Fire-and-forget: these
// calls never return an error, matching "a sink failure must not fail
// the inference response" (spec §4.G).
type Sink interface {
	EnqueueChatInference(rec ChatInferenceRecord)
	EnqueueJsonInference(rec JsonInferenceRecord)
	EnqueueModelInference(rec ModelInferenceRecord)
}
