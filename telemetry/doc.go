// Package telemetry records MCP operations as span records and ships them
// to a collector on a best-effort basis.
//
// Instrument turns each handled operation into a Record. A Batcher buffers
// records and hands batches to a ResilientExporter, which makes exactly one
// attempt per batch through a circuit breaker. Export never returns an error
// and never panics: a failing or slow collector is only visible in logs and
// metrics, never on the request path.
//
// Two sinks are provided. HTTPSink posts OTLP/JSON to the mcp-obs collector;
// RedisSink appends batches to a Redis stream for an out-of-process shipper.
package telemetry
