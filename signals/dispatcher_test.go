//go:build !windows

package signals

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTerminate, Classify(syscall.SIGTERM))
	assert.Equal(t, KindTerminate, Classify(syscall.SIGINT))
	assert.Equal(t, KindReload, Classify(syscall.SIGHUP))
	assert.Equal(t, KindIgnore, Classify(syscall.SIGUSR1))
}

func TestDispatcher_BroadcastToAll(t *testing.T) {
	d := NewDispatcher()
	b1 := NewBridge()
	b2 := NewBridge()

	cancel1 := d.Subscribe(b1)
	defer cancel1()
	cancel2 := d.Subscribe(b2)
	defer cancel2()

	d.Broadcast(KindReload)
	assert.True(t, b1.ReloadPending())
	assert.True(t, b2.ReloadPending())
	assert.False(t, b1.TerminateRequested())

	d.Broadcast(KindTerminate)
	assert.True(t, b1.TerminateRequested())
	assert.True(t, b2.TerminateRequested())
}

func TestDispatcher_CancelIsIdempotent(t *testing.T) {
	d := NewDispatcher()
	b := NewBridge()

	cancel := d.Subscribe(b)
	cancel()
	cancel()

	d.Broadcast(KindTerminate)
	assert.False(t, b.TerminateRequested())
}

func TestDispatcher_IgnoreKind(t *testing.T) {
	d := NewDispatcher()
	b := NewBridge()
	defer d.Subscribe(b)()

	d.Broadcast(KindIgnore)
	assert.False(t, b.ReloadPending())
	assert.False(t, b.TerminateRequested())
}

func TestDispatcher_ForwardsProcessSignal(t *testing.T) {
	d := NewDispatcher()
	b := NewBridge()
	defer d.Subscribe(b)()

	d.Start()
	defer d.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	require.Eventually(t, b.ReloadPending, 2*time.Second, 10*time.Millisecond)
	assert.False(t, b.TerminateRequested())
}

func TestDispatcher_StopTwice(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	d.Stop()
	d.Stop()
}
