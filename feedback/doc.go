// Package feedback implements the feedback correlator (spec §4.F): given
// an external target id, confirm the referenced inference or episode
// exists (bounded polling over the read-after-write race window),
// validate the feedback payload against the metric's declared kind and
// level, and enqueue a durable record.
//
// Grounded on _examples/original_source/tensorzero-core/src/endpoints/
// feedback/mod.rs for the exact cooldown/minimum-wait/poll-interval
// throttle and the metric-dispatch rules; translated to idiomatic Go with
// context.Context and time.Ticker rather than the original's async Rust.
package feedback
