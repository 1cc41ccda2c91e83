package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tensorzero/gateway/llm/retry"
)

// defaultMaxBatchSize and defaultFlushInterval bound how long a row can
// sit unflushed in memory (spec §4.G "flushes on size or timeout").
const (
	defaultMaxBatchSize  = 500
	defaultFlushInterval = 1 * time.Second
	defaultQueueDepth    = 10000
)

// writeFunc persists one flushed batch of rows to the analytical store.
type writeFunc[T any] func(ctx context.Context, rows []T) error

// batcher is a single table's queue: a bounded channel feeding an
// in-memory buffer that flushes on size or on a ticker, with bounded
// exponential-backoff retry on flush failure (spec §4.G). Grounded on the
// teacher's background-goroutine-with-ticker cache/pool-manager shape and
// WithTransactionRetry's backoff discipline, generalized to a generic
// per-table queue.
type batcher[T any] struct {
	table   string
	queue   chan T
	write   writeFunc[T]
	retryer retry.Retryer
	logger  *zap.Logger

	maxSize  int
	interval time.Duration

	done chan struct{}
}

func newBatcher[T any](table string, write writeFunc[T], logger *zap.Logger) *batcher[T] {
	return &batcher[T]{
		table:    table,
		queue:    make(chan T, defaultQueueDepth),
		write:    write,
		retryer:  retry.NewBackoffRetryer(&retry.RetryPolicy{MaxRetries: 4, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: true}, logger),
		logger:   logger.With(zap.String("table", table)),
		maxSize:  defaultMaxBatchSize,
		interval: defaultFlushInterval,
		done:     make(chan struct{}),
	}
}

// enqueue is the fire-and-forget write path the request façade and
// feedback correlator call (spec §4.G "the core only enqueues"). A full
// queue drops the row rather than blocking the caller - backpressure on
// the persistence sink must never slow down an inference response.
func (b *batcher[T]) enqueue(row T) {
	select {
	case b.queue <- row:
	default:
		b.logger.Warn("persistence queue full, dropping row")
	}
}

// run drains the queue until it is closed (via stop), batching by size or
// by ticker, and flushing the final partial batch on shutdown.
func (b *batcher[T]) run(wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]T, 0, b.maxSize)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	flush := func() {
		if len(buf) == 0 {
			return
		}
		rows := buf
		buf = make([]T, 0, b.maxSize)
		b.flush(rows)
	}

	for {
		select {
		case row, ok := <-b.queue:
			if !ok {
				flush()
				return
			}
			buf = append(buf, row)
			if len(buf) >= b.maxSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flush writes one batch with bounded retry; exhaustion is logged and the
// batch is dropped (spec §4.G, §7 "Persistence sink errors - never
// surfaced to caller").
func (b *batcher[T]) flush(rows []T) {
	err := b.retryer.Do(context.Background(), func() error {
		return b.write(context.Background(), rows)
	})
	if err != nil {
		b.logger.Error("batch flush failed after retries, dropping rows", zap.Int("rows", len(rows)), zap.Error(err))
	}
}

// stop closes the queue, signaling run to flush whatever remains and
// return.
func (b *batcher[T]) stop() {
	close(b.queue)
}
