package sink

import (
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultKafkaConfig(t *testing.T) {
	config := DefaultKafkaConfig([]string{"localhost:9092", "localhost:9093"})

	assert.Len(t, config.Brokers, 2)
	assert.Equal(t, DefaultKafkaBatchSize, config.BatchSize)
	assert.Equal(t, DefaultKafkaBatchTimeout, config.BatchTimeout)
	assert.Equal(t, kafka.RequireAll, config.RequiredAcks)
	assert.True(t, config.AutoCreateTopics)
}

func TestNewKafkaSink(t *testing.T) {
	sink, err := NewKafkaSink(KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		BatchSize:    5,
		BatchTimeout: time.Second,
		RequiredAcks: kafka.RequireOne,
	})
	require.NoError(t, err)
	defer sink.Close()

	assert.Equal(t, 5, sink.writer.BatchSize)
	assert.Equal(t, time.Second, sink.writer.BatchTimeout)
	assert.Equal(t, kafka.RequireOne, sink.writer.RequiredAcks)
	assert.False(t, sink.writer.Async)
}

func TestNewKafkaSink_Defaults(t *testing.T) {
	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	defer sink.Close()

	assert.Equal(t, DefaultKafkaBatchSize, sink.writer.BatchSize)
	assert.Equal(t, DefaultKafkaBatchTimeout, sink.writer.BatchTimeout)
}

func TestNewKafkaSink_EmptyBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{})
	assert.Error(t, err)
}

func TestKafkaSink_CloseNilWriter(t *testing.T) {
	assert.NoError(t, (&KafkaSink{}).Close())
}

func TestSanitizeStreamName(t *testing.T) {
	tests := map[string]string{
		"slotsync.outcomes.launcher": "slotsync_outcomes_launcher",
		"plain":                      "plain",
		"a.*.>":                      "a____",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeStreamName(in), in)
	}
}

func TestMockSink(t *testing.T) {
	m := &MockSink{}
	require.NoError(t, m.Publish("t", "k", []byte("v")))
	assert.Len(t, m.Published(), 1)

	m.PublishErr = errors.New("down")
	assert.Error(t, m.Publish("t", "k", nil))
	assert.Len(t, m.Published(), 1)

	m.Reset()
	assert.Empty(t, m.Published())
}
