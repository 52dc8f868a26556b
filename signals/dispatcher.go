package signals

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Kind classifies an OS signal for the workers.
type Kind int

const (
	KindIgnore Kind = iota
	KindTerminate
	KindReload
)

// subscription is one bridge registered with the dispatcher.
type subscription struct {
	id     uint64
	bridge *Bridge
	closed atomic.Bool
}

// Dispatcher receives OS signals and forwards them to every subscribed
// bridge. Safe for concurrent use.
type Dispatcher struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64

	sigCh  chan os.Signal
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewDispatcher creates a dispatcher. Call Start to begin receiving signals.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscriptions: make(map[uint64]*subscription),
		sigCh:         make(chan os.Signal, 4),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Subscribe registers a bridge and returns an idempotent cancel func.
func (d *Dispatcher) Subscribe(b *Bridge) func() {
	sub := &subscription{
		id:     d.nextID.Add(1),
		bridge: b,
	}

	d.mu.Lock()
	d.subscriptions[sub.id] = sub
	d.mu.Unlock()

	return func() {
		if !sub.closed.CompareAndSwap(false, true) {
			return
		}
		d.mu.Lock()
		delete(d.subscriptions, sub.id)
		d.mu.Unlock()
	}
}

// Broadcast delivers a signal kind to every subscriber.
func (d *Dispatcher) Broadcast(kind Kind) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, sub := range d.subscriptions {
		switch kind {
		case KindTerminate:
			sub.bridge.RequestTerminate()
		case KindReload:
			sub.bridge.RequestReload()
		}
	}
}

// Start registers with os/signal for the platform's terminate and reload
// signals and forwards them until Stop.
func (d *Dispatcher) Start() {
	signal.Notify(d.sigCh, handledSignals()...)
	go d.loop()
}

// Stop unregisters from os/signal and waits for the forwarding goroutine.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		signal.Stop(d.sigCh)
		close(d.stopCh)
		<-d.doneCh
	})
}

func (d *Dispatcher) loop() {
	defer close(d.doneCh)

	for {
		select {
		case <-d.stopCh:
			return
		case sig := <-d.sigCh:
			kind := Classify(sig)
			if kind == KindIgnore {
				continue
			}
			log.Debug().Str("signal", sig.String()).Msg("Forwarding signal to workers")
			d.Broadcast(kind)
		}
	}
}
