package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mu        sync.Mutex
	calls     []mockPublishCall
	failCount atomic.Int32 // Number of times to fail before succeeding
	block     chan struct{}
	closed    atomic.Bool
}

type mockPublishCall struct {
	topic string
	key   string
	value []byte
}

func (m *mockSink) Publish(topic, key string, value []byte) error {
	if m.block != nil {
		<-m.block
	}
	if m.failCount.Load() > 0 {
		m.failCount.Add(-1)
		return fmt.Errorf("mock publish failure")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockPublishCall{topic: topic, key: key, value: value})
	return nil
}

func (m *mockSink) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockSink) get(i int) mockPublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

func allowAll(t *testing.T) Filter {
	f, err := NewGlobFilter(nil)
	require.NoError(t, err)
	return f
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Sink: &mockSink{}, Filter: allowAll(t)})
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{Name: "s", Filter: allowAll(t)})
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{Name: "s", Sink: &mockSink{}})
	assert.Error(t, err)
}

func TestNewWorker_Defaults(t *testing.T) {
	w, err := NewWorker(WorkerConfig{Name: "s", Sink: &mockSink{}, Filter: allowAll(t)})
	require.NoError(t, err)

	assert.Equal(t, DefaultTopicPrefix, w.config.TopicPrefix)
	assert.Equal(t, DefaultQueueSize, cap(w.queue))
	assert.Equal(t, DefaultRetryInitial, w.config.RetryInitial)
	assert.Equal(t, DefaultRetryMax, w.config.RetryMax)
	assert.Equal(t, DefaultRetryMultiplier, w.config.RetryMultiplier)
	assert.Equal(t, DefaultMaxRetries, w.config.MaxRetries)
}

func TestWorker_DeliversOutcome(t *testing.T) {
	sink := &mockSink{}
	w, err := NewWorker(WorkerConfig{Name: "events", Sink: sink, Filter: allowAll(t), TopicPrefix: "pg"})
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	require.True(t, w.Enqueue(Outcome{Worker: "launcher", Executed: 2}))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	call := sink.get(0)
	assert.Equal(t, "pg.launcher", call.topic)
	assert.Equal(t, "launcher", call.key)

	decoded, err := DecodeOutcome(call.value)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Executed)
}

func TestWorker_FilteredOutcomeNotQueued(t *testing.T) {
	filter, err := NewGlobFilter([]string{"slot_*"})
	require.NoError(t, err)

	w, err := NewWorker(WorkerConfig{Name: "events", Sink: &mockSink{}, Filter: filter})
	require.NoError(t, err)

	assert.False(t, w.Enqueue(Outcome{Worker: "launcher"}))
	assert.True(t, w.Enqueue(Outcome{Worker: "slot_sync"}))
	assert.Len(t, w.queue, 1)
}

func TestWorker_RetriesWithBackoff(t *testing.T) {
	sink := &mockSink{}
	sink.failCount.Store(2)

	w, err := NewWorker(WorkerConfig{
		Name:         "events",
		Sink:         sink,
		Filter:       allowAll(t),
		RetryInitial: time.Millisecond,
		RetryMax:     2 * time.Millisecond,
		MaxRetries:   5,
	})
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	w.Enqueue(Outcome{Worker: "slot_sync"})
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	published, failed, _ := w.Stats()
	assert.Equal(t, uint64(1), published)
	assert.Equal(t, uint64(0), failed)
}

func TestWorker_GivesUpAfterMaxRetries(t *testing.T) {
	sink := &mockSink{}
	sink.failCount.Store(100)

	w, err := NewWorker(WorkerConfig{
		Name:         "events",
		Sink:         sink,
		Filter:       allowAll(t),
		RetryInitial: time.Millisecond,
		RetryMax:     time.Millisecond,
		MaxRetries:   3,
	})
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	w.Enqueue(Outcome{Worker: "slot_sync"})
	require.Eventually(t, func() bool {
		_, failed, _ := w.Stats()
		return failed == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(97), sink.failCount.Load())
	assert.Equal(t, 0, sink.count())
}

func TestWorker_DropsWhenQueueFull(t *testing.T) {
	sink := &mockSink{block: make(chan struct{})}

	w, err := NewWorker(WorkerConfig{Name: "events", Sink: sink, Filter: allowAll(t), QueueSize: 1})
	require.NoError(t, err)

	w.Start()

	// First outcome is picked up and blocks in Publish, second fills the queue
	require.True(t, w.Enqueue(Outcome{Worker: "a"}))
	require.Eventually(t, func() bool { return len(w.queue) == 0 }, time.Second, time.Millisecond)
	require.True(t, w.Enqueue(Outcome{Worker: "b"}))

	done := make(chan bool)
	go func() { done <- w.Enqueue(Outcome{Worker: "c"}) }()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	_, _, dropped := w.Stats()
	assert.Equal(t, uint64(1), dropped)

	close(sink.block)
	w.Stop()
	assert.Equal(t, 2, sink.count())
}

func TestWorker_StartStopIdempotent(t *testing.T) {
	w, err := NewWorker(WorkerConfig{Name: "events", Sink: &mockSink{}, Filter: allowAll(t)})
	require.NoError(t, err)

	w.Stop()
	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}

func TestWorker_StopDrainsQueue(t *testing.T) {
	sink := &mockSink{}
	w, err := NewWorker(WorkerConfig{Name: "events", Sink: sink, Filter: allowAll(t)})
	require.NoError(t, err)

	// Not started: outcomes stay queued until the loop runs
	w.Enqueue(Outcome{Worker: "a"})
	w.Enqueue(Outcome{Worker: "b"})

	w.Start()
	w.Stop()

	assert.Equal(t, 2, sink.count())
}
