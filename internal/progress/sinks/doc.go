// Package sinks implements concrete event consumers: Prometheus collectors, the
// task run repository, a Pub/Sub style publisher and structured logging. Each
// sink satisfies progress.Sink and is safe for repeated Consume/Close cycles.
package sinks
