package signals

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/slotsync/latch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_InitialState(t *testing.T) {
	b := NewBridge()
	assert.False(t, b.TerminateRequested())
	assert.False(t, b.ReloadPending())
	assert.False(t, b.TakeReload())
}

func TestBridge_RequestsWithoutLatch(t *testing.T) {
	b := NewBridge()

	// No latch attached: flags still flip, nothing panics
	b.RequestReload()
	b.RequestTerminate()

	assert.True(t, b.ReloadPending())
	assert.True(t, b.TerminateRequested())
}

func TestBridge_TakeReloadClears(t *testing.T) {
	b := NewBridge()
	b.RequestReload()

	assert.True(t, b.TakeReload())
	assert.False(t, b.TakeReload())
	assert.False(t, b.ReloadPending())
}

func TestBridge_TerminateIsSticky(t *testing.T) {
	b := NewBridge()
	b.RequestTerminate()

	assert.True(t, b.TerminateRequested())
	assert.True(t, b.TerminateRequested())
}

func TestBridge_WakesAttachedLatch(t *testing.T) {
	b := NewBridge()
	l := latch.New()
	b.Attach(l)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.RequestReload()
	}()

	reason := l.Wait(context.Background(), 5*time.Second, nil)
	assert.Equal(t, latch.WokenBySet, reason)
	assert.True(t, b.TakeReload())
}

func TestBridge_Detach(t *testing.T) {
	b := NewBridge()
	l := latch.New()
	b.Attach(l)
	b.Attach(nil)

	b.RequestTerminate()
	assert.False(t, l.IsSet())
	assert.True(t, b.TerminateRequested())
}

func TestBridge_ConcurrentRequests(t *testing.T) {
	b := NewBridge()
	l := latch.New()
	b.Attach(l)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.RequestReload()
		}()
		go func() {
			defer wg.Done()
			b.RequestTerminate()
		}()
	}
	wg.Wait()

	require.True(t, l.IsSet())
	assert.True(t, b.TakeReload())
	assert.True(t, b.TerminateRequested())
}
