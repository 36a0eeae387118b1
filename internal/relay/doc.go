// Package relay forwards row changes to external observers.
//
// A Relay accepts events without blocking, so it can be fed from inside the
// engine's update hook, and publishes them from its own goroutine to one or
// more sinks at a bounded rate. Events that do not fit in the buffer are
// dropped and counted.
//
// Sinks:
//   - RedisSink publishes JSON events to a Redis pub/sub channel.
//   - KafkaSink writes JSON events to a Kafka topic keyed by table name.
//   - LogSink writes one structured log line per event.
package relay
