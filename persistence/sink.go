package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tensorzero/gateway/feedback"
	"github.com/tensorzero/gateway/inference"
)

// ClickHouseConfig is the subset of connection parameters the sink needs
// (spec §4.A-adjacent: this is infrastructure config, not model config).
type ClickHouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// Sink is the batched, asynchronous writer for every table in spec §6. It
// satisfies feedback.Sink structurally so the feedback package never
// needs to import persistence. One batcher runs per table so a slow
// table (e.g. ModelInference, much higher volume than feedback tables)
// never backs up the others.
type Sink struct {
	conn   driver.Conn
	logger *zap.Logger

	chatInference         *batcher[ChatInferenceRow]
	jsonInference         *batcher[JsonInferenceRow]
	modelInference        *batcher[ModelInferenceRow]
	commentFeedback       *batcher[CommentFeedbackRow]
	demonstrationFeedback *batcher[DemonstrationFeedbackRow]
	floatMetricFeedback   *batcher[FloatMetricFeedbackRow]
	booleanMetricFeedback *batcher[BooleanMetricFeedbackRow]

	batchers []interface {
		run(wg *sync.WaitGroup)
		stop()
	}
	wg sync.WaitGroup
}

var (
	_ feedback.Sink  = (*Sink)(nil)
	_ inference.Sink = (*Sink)(nil)
)

// NewSink opens the ClickHouse connection and starts one background
// flush goroutine per table.
func NewSink(cfg ClickHouseConfig, logger *zap.Logger) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("persistence: opening clickhouse connection: %w", err)
	}

	s := &Sink{conn: conn, logger: logger.With(zap.String("component", "persistence_sink"))}

	s.chatInference = newBatcher[ChatInferenceRow]("ChatInference", s.writeChatInference, logger)
	s.jsonInference = newBatcher[JsonInferenceRow]("JsonInference", s.writeJsonInference, logger)
	s.modelInference = newBatcher[ModelInferenceRow]("ModelInference", s.writeModelInference, logger)
	s.commentFeedback = newBatcher[CommentFeedbackRow]("CommentFeedback", s.writeCommentFeedback, logger)
	s.demonstrationFeedback = newBatcher[DemonstrationFeedbackRow]("DemonstrationFeedback", s.writeDemonstrationFeedback, logger)
	s.floatMetricFeedback = newBatcher[FloatMetricFeedbackRow]("FloatMetricFeedback", s.writeFloatMetricFeedback, logger)
	s.booleanMetricFeedback = newBatcher[BooleanMetricFeedbackRow]("BooleanMetricFeedback", s.writeBooleanMetricFeedback, logger)

	s.batchers = []interface {
		run(wg *sync.WaitGroup)
		stop()
	}{
		s.chatInference, s.jsonInference, s.modelInference,
		s.commentFeedback, s.demonstrationFeedback,
		s.floatMetricFeedback, s.booleanMetricFeedback,
	}
	for _, b := range s.batchers {
		s.wg.Add(1)
		go b.run(&s.wg)
	}

	logger.Info("persistence sink started", zap.Strings("clickhouse_addr", cfg.Addr))
	return s, nil
}

// Conn exposes the underlying connection so a Store can share it rather
// than opening a second connection pool for reads.
func (s *Sink) Conn() driver.Conn { return s.conn }

// Close stops every batcher, flushing whatever remains queued, then waits
// for the flush goroutines to exit before closing the connection.
func (s *Sink) Close() error {
	for _, b := range s.batchers {
		b.stop()
	}
	s.wg.Wait()
	return s.conn.Close()
}

// --- inference.Sink implementation (spec §4.H step 4) ---
// Each method copies the façade's record into this package's row type
// rather than taking persistence.*Row directly, so package inference
// never needs to import persistence.

func (s *Sink) EnqueueChatInference(rec inference.ChatInferenceRecord) {
	s.chatInference.enqueue(ChatInferenceRow{
		ID: rec.ID, FunctionName: rec.FunctionName, VariantName: rec.VariantName, EpisodeID: rec.EpisodeID,
		Input: rec.Input, Output: rec.Output, ToolParams: rec.ToolParams, InferenceParams: rec.InferenceParams,
		ProcessingTimeMS: rec.ProcessingTimeMS, TTFTMS: rec.TTFTMS, Tags: rec.Tags, ExtraBody: rec.ExtraBody,
		SnapshotHash: rec.SnapshotHash, CreatedAt: rec.CreatedAt,
	})
}

func (s *Sink) EnqueueJsonInference(rec inference.JsonInferenceRecord) {
	s.jsonInference.enqueue(JsonInferenceRow{
		ID: rec.ID, FunctionName: rec.FunctionName, VariantName: rec.VariantName, EpisodeID: rec.EpisodeID,
		Input: rec.Input, Output: rec.Output, OutputSchema: rec.OutputSchema, InferenceParams: rec.InferenceParams,
		ProcessingTimeMS: rec.ProcessingTimeMS, TTFTMS: rec.TTFTMS, Tags: rec.Tags, ExtraBody: rec.ExtraBody,
		AuxiliaryContent: rec.AuxiliaryContent, SnapshotHash: rec.SnapshotHash, CreatedAt: rec.CreatedAt,
	})
}

func (s *Sink) EnqueueModelInference(rec inference.ModelInferenceRecord) {
	s.modelInference.enqueue(ModelInferenceRow{
		ID: rec.ID, InferenceID: rec.InferenceID, ModelName: rec.ModelName, ModelProviderName: rec.ModelProviderName,
		RawRequest: rec.RawRequest, RawResponse: rec.RawResponse, InputTokens: rec.InputTokens, OutputTokens: rec.OutputTokens,
		ResponseTimeMS: rec.ResponseTimeMS, TTFTMS: rec.TTFTMS, Cached: rec.Cached, CreatedAt: rec.CreatedAt,
	})
}

// --- feedback.Sink implementation (spec §4.F) ---

func (s *Sink) EnqueueComment(id uuid.UUID, targetType string, targetID uuid.UUID, value string, tags map[string]string, createdAt time.Time) {
	s.commentFeedback.enqueue(CommentFeedbackRow{ID: id, TargetType: targetType, TargetID: targetID, Value: value, Tags: tags, CreatedAt: createdAt})
}

func (s *Sink) EnqueueDemonstration(id uuid.UUID, inferenceID uuid.UUID, value []byte, tags map[string]string, createdAt time.Time) {
	s.demonstrationFeedback.enqueue(DemonstrationFeedbackRow{ID: id, InferenceID: inferenceID, Value: value, Tags: tags, CreatedAt: createdAt})
}

func (s *Sink) EnqueueFloatMetric(id uuid.UUID, targetID uuid.UUID, metricName string, value float64, tags map[string]string, createdAt time.Time) {
	s.floatMetricFeedback.enqueue(FloatMetricFeedbackRow{ID: id, TargetID: targetID, MetricName: metricName, Value: value, Tags: tags, CreatedAt: createdAt})
}

func (s *Sink) EnqueueBooleanMetric(id uuid.UUID, targetID uuid.UUID, metricName string, value bool, tags map[string]string, createdAt time.Time) {
	s.booleanMetricFeedback.enqueue(BooleanMetricFeedbackRow{ID: id, TargetID: targetID, MetricName: metricName, Value: value, Tags: tags, CreatedAt: createdAt})
}

// --- ClickHouse batch writers ---
// Each follows the same clickhouse-go/v2 shape: PrepareBatch once per
// flush, Append one row at a time, Send.

func (s *Sink) writeChatInference(ctx context.Context, rows []ChatInferenceRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO ChatInference")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.ID, r.FunctionName, r.VariantName, r.EpisodeID, r.Input, r.Output, r.ToolParams, r.InferenceParams, r.ProcessingTimeMS, r.TTFTMS, r.Tags, r.ExtraBody, r.SnapshotHash, r.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Sink) writeJsonInference(ctx context.Context, rows []JsonInferenceRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO JsonInference")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.ID, r.FunctionName, r.VariantName, r.EpisodeID, r.Input, r.Output, r.OutputSchema, r.InferenceParams, r.ProcessingTimeMS, r.TTFTMS, r.Tags, r.ExtraBody, r.AuxiliaryContent, r.SnapshotHash, r.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Sink) writeModelInference(ctx context.Context, rows []ModelInferenceRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO ModelInference")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.ID, r.InferenceID, r.ModelName, r.ModelProviderName, r.RawRequest, r.RawResponse, r.InputTokens, r.OutputTokens, r.ResponseTimeMS, r.TTFTMS, r.Cached, r.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Sink) writeCommentFeedback(ctx context.Context, rows []CommentFeedbackRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO CommentFeedback")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.ID, r.TargetType, r.TargetID, r.Value, r.Tags, r.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Sink) writeDemonstrationFeedback(ctx context.Context, rows []DemonstrationFeedbackRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO DemonstrationFeedback")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.ID, r.InferenceID, r.Value, r.Tags, r.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Sink) writeFloatMetricFeedback(ctx context.Context, rows []FloatMetricFeedbackRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO FloatMetricFeedback")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.ID, r.TargetID, r.MetricName, r.Value, r.Tags, r.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (s *Sink) writeBooleanMetricFeedback(ctx context.Context, rows []BooleanMetricFeedbackRow) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO BooleanMetricFeedback")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := batch.Append(r.ID, r.TargetID, r.MetricName, r.Value, r.Tags, r.CreatedAt); err != nil {
			return err
		}
	}
	return batch.Send()
}
