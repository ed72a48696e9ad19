// Package progress carries dashboard events (task completions, health status,
// metrics snapshots, log lines and alerts) from the scheduler to subscribers.
// The Hub never blocks emitters; it batches events on a background goroutine
// and fans them out to pluggable sinks such as Prometheus, the run store,
// Pub/Sub and WebSocket clients.
package progress
