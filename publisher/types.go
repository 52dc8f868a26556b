package publisher

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Outcome summarizes one executed poll cycle
type Outcome struct {
	InstanceID uint64   `msgpack:"instance"` // Originating process
	Worker     string   `msgpack:"worker"`
	Database   string   `msgpack:"db"`
	StartedAt  int64    `msgpack:"ts"` // Unix ms
	DurationMS int64    `msgpack:"dur_ms"`
	Executed   int      `msgpack:"executed"` // Queries executed
	Gated      bool     `msgpack:"gated"`    // Extension check stopped the cycle
	Messages   []string `msgpack:"messages"` // Non-null diagnostic rows
	Error      string   `msgpack:"error,omitempty"`
}

// Encode serializes the outcome with msgpack
func (o Outcome) Encode() ([]byte, error) {
	return msgpack.Marshal(o)
}

// DecodeOutcome parses an encoded outcome
func DecodeOutcome(data []byte) (Outcome, error) {
	var o Outcome
	err := msgpack.Unmarshal(data, &o)
	return o, err
}

// Sink represents a destination for outcomes (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends an encoded outcome to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Filter determines whether a worker's outcomes are published
type Filter interface {
	// Match returns true if outcomes of worker should be published
	Match(worker string) bool
}
