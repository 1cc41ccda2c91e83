// Package persistence implements the persistence sink (spec §4.G): the
// asynchronous, batched writers for inference rows, model-inference rows,
// and feedback rows, plus the logical row schemas those writers persist
// (spec §6). The core only enqueues; the sink drains in the background
// and is explicitly fire-and-forget from the request path - a sink
// failure must never fail an inference or feedback response.
//
// Grounded on the teacher's connection-lifecycle / health-check-loop
// pool-manager shape (WithTransactionRetry's exponential backoff, reused
// here for batch-flush retry) and its background-goroutine-with-ticker
// cache-manager shape. The analytical store driver is
// github.com/ClickHouse/clickhouse-go/v2, the natural fit for "durable
// logging of requests and results to analytical storage" (spec §1).
package persistence
