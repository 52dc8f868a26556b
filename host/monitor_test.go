package host

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNever(t *testing.T) {
	var m Monitor = Never{}
	assert.Nil(t, m.Dead())
	m.Stop()
}

func TestParentWatcher_DetectsReparent(t *testing.T) {
	var ppid atomic.Int64
	ppid.Store(4242)

	w := newParentWatcher(5*time.Millisecond, func() int { return int(ppid.Load()) })
	defer w.Stop()

	select {
	case <-w.Dead():
		t.Fatal("host reported dead while parent is alive")
	case <-time.After(30 * time.Millisecond):
	}

	ppid.Store(1)

	select {
	case <-w.Dead():
	case <-time.After(time.Second):
		t.Fatal("host death not detected")
	}
}

func TestParentWatcher_StopKeepsAlive(t *testing.T) {
	w := newParentWatcher(5*time.Millisecond, func() int { return 77 })
	w.Stop()
	w.Stop()

	select {
	case <-w.Dead():
		t.Fatal("stopped watcher must not report death")
	default:
	}
}

func TestParentWatcher_DefaultInterval(t *testing.T) {
	w := newParentWatcher(0, func() int { return 1 })
	defer w.Stop()
	assert.Equal(t, time.Second, w.interval)
}
