package latch

import (
	"context"
	"time"
)

// WakeReason is a bit set describing why Wait returned.
type WakeReason uint8

const (
	// WokenBySet means Set was called since the last Reset.
	WokenBySet WakeReason = 1 << iota
	// WokenByTimeout means the timeout elapsed.
	WokenByTimeout
	// WokenByHostDeath means the host death channel fired.
	WokenByHostDeath
	// WokenByContext means the caller's context was cancelled.
	WokenByContext
)

// Has reports whether r contains flag.
func (r WakeReason) Has(flag WakeReason) bool {
	return r&flag != 0
}

func (r WakeReason) String() string {
	switch {
	case r.Has(WokenByHostDeath):
		return "host_death"
	case r.Has(WokenByContext):
		return "context"
	case r.Has(WokenBySet):
		return "set"
	case r.Has(WokenByTimeout):
		return "timeout"
	}
	return "none"
}

// Latch is a one-slot wake-up primitive. Set never blocks and never
// allocates, so it is safe to call from a signal-forwarding goroutine.
// A Set that happens while nobody waits is remembered until the next Wait
// or Reset.
type Latch struct {
	ch chan struct{}
}

// New creates an unset latch.
func New() *Latch {
	return &Latch{ch: make(chan struct{}, 1)}
}

// Set wakes the waiter, or marks the latch so the next Wait returns at once.
func (l *Latch) Set() {
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

// Reset clears a pending Set.
func (l *Latch) Reset() {
	select {
	case <-l.ch:
	default:
	}
}

// IsSet reports whether a Set is pending. Intended for tests and status.
func (l *Latch) IsSet() bool {
	return len(l.ch) > 0
}

// Wait blocks until the latch is set, timeout elapses, hostDead is closed
// or ctx is done. A nil hostDead channel never fires. A non-positive
// timeout waits without a deadline.
func (l *Latch) Wait(ctx context.Context, timeout time.Duration, hostDead <-chan struct{}) WakeReason {
	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-hostDead:
		return WokenByHostDeath
	case <-ctx.Done():
		return WokenByContext
	case <-l.ch:
		// Consumed the pending set; the caller's Reset is then a no-op.
		return WokenBySet
	case <-timerC:
		return WokenByTimeout
	}
}
