package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/slotsync/cfg"
)

func TestRegistry_UnknownSinkType(t *testing.T) {
	_, err := NewRegistry([]cfg.SinkConfiguration{{Name: "x", Type: "carrier-pigeon"}})
	assert.Error(t, err)
}

func TestRegistry_FactoryRegistration(t *testing.T) {
	created := &mockSink{}
	RegisterSink("test-registry", func(c cfg.SinkConfiguration) (Sink, error) {
		return created, nil
	})

	r, err := NewRegistry([]cfg.SinkConfiguration{{Name: "one", Type: "test-registry"}})
	require.NoError(t, err)
	require.Len(t, r.workers, 1)
	assert.Same(t, created, r.workers[0].config.Sink)
}

func TestRegistry_InvalidFilterClosesSink(t *testing.T) {
	created := &mockSink{}
	RegisterSink("test-bad-filter", func(c cfg.SinkConfiguration) (Sink, error) {
		return created, nil
	})

	_, err := NewRegistry([]cfg.SinkConfiguration{{Name: "one", Type: "test-bad-filter", FilterWorkers: []string{"[oops"}}})
	assert.Error(t, err)
	assert.True(t, created.closed.Load())
}

func TestRegistry_PublishFansOut(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	all := &mockSink{}
	slotOnly := &mockSink{}
	require.NoError(t, r.addWorker(cfg.SinkConfiguration{Name: "all"}, all))
	require.NoError(t, r.addWorker(cfg.SinkConfiguration{Name: "slot", FilterWorkers: []string{"slot_*"}}, slotOnly))

	// Not running: dropped silently
	r.Publish(Outcome{Worker: "slot_sync"})

	require.NoError(t, r.Start())
	assert.Error(t, r.Start())

	r.Publish(Outcome{Worker: "slot_sync"})
	r.Publish(Outcome{Worker: "launcher"})

	require.Eventually(t, func() bool {
		return all.count() == 2 && slotOnly.count() == 1
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.True(t, all.closed.Load())
	assert.True(t, slotOnly.closed.Load())
}
