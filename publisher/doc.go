// Package publisher ships a summary of every executed poll cycle to external
// systems (NATS JetStream, Kafka).
//
// Each configured sink gets its own Worker with a bounded in-memory queue.
// Publish never blocks the poll loop: when a queue is full the outcome is
// dropped and counted. Workers deliver with exponential backoff and give up
// on an outcome after MaxRetries attempts.
//
// Outcomes are encoded with msgpack and published to the topic
// "{topic_prefix}.{worker}", keyed by worker name so a Kafka partition sees
// one worker's cycles in order.
//
// Sinks register themselves by type through RegisterSink; import
// publisher/sink for the built-in "nats" and "kafka" types.
package publisher
