package signals

import (
	"sync/atomic"

	"github.com/maxpert/slotsync/latch"
)

// State holds the two pending-request flags of a worker.
type State struct {
	terminate atomic.Bool
	reload    atomic.Bool
}

// Bridge turns asynchronous terminate/reload notifications into flags plus a
// latch wake-up. Request methods only flip a flag and do a non-blocking latch
// set; they never log, lock or allocate.
type Bridge struct {
	state State
	latch atomic.Pointer[latch.Latch]
}

// NewBridge creates a bridge with both flags cleared.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach sets the latch to wake on requests. Passing nil detaches it.
func (b *Bridge) Attach(l *latch.Latch) {
	b.latch.Store(l)
}

// RequestTerminate marks termination as requested and wakes the loop.
func (b *Bridge) RequestTerminate() {
	b.state.terminate.Store(true)
	b.wake()
}

// RequestReload marks a configuration reload as requested and wakes the loop.
func (b *Bridge) RequestReload() {
	b.state.reload.Store(true)
	b.wake()
}

func (b *Bridge) wake() {
	if l := b.latch.Load(); l != nil {
		l.Set()
	}
}

// TakeReload returns true once per reload request and clears the flag.
func (b *Bridge) TakeReload() bool {
	return b.state.reload.Swap(false)
}

// ReloadPending reports the reload flag without clearing it.
func (b *Bridge) ReloadPending() bool {
	return b.state.reload.Load()
}

// TerminateRequested reports whether termination was requested.
// The flag stays set until process exit.
func (b *Bridge) TerminateRequested() bool {
	return b.state.terminate.Load()
}
