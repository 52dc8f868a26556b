package host

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Monitor reports the death of the process hosting the workers.
type Monitor interface {
	// Dead returns a channel closed once the host is gone. A nil channel
	// means the host is never observed to die.
	Dead() <-chan struct{}
	Stop()
}

// Never is a Monitor whose host never dies.
type Never struct{}

func (Never) Dead() <-chan struct{} { return nil }
func (Never) Stop()                 {}

// ParentWatcher treats the parent process as the host and reports its death
// when the process gets re-parented (the parent PID changes).
type ParentWatcher struct {
	interval time.Duration
	initial  int
	getppid  func() int

	dead   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewParentWatcher starts watching the current parent process.
func NewParentWatcher(interval time.Duration) *ParentWatcher {
	return newParentWatcher(interval, os.Getppid)
}

func newParentWatcher(interval time.Duration, getppid func() int) *ParentWatcher {
	if interval <= 0 {
		interval = time.Second
	}

	w := &ParentWatcher{
		interval: interval,
		initial:  getppid(),
		getppid:  getppid,
		dead:     make(chan struct{}),
		stopCh:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.watchLoop()

	log.Debug().Int("parent_pid", w.initial).Dur("interval", interval).Msg("Watching parent process")
	return w
}

// Dead implements Monitor.
func (w *ParentWatcher) Dead() <-chan struct{} {
	return w.dead
}

// Stop ends the watch goroutine. The Dead channel stays open if the parent
// was still alive.
func (w *ParentWatcher) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
}

func (w *ParentWatcher) watchLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if ppid := w.getppid(); ppid != w.initial {
				log.Error().
					Int("parent_pid", w.initial).
					Int("current_parent_pid", ppid).
					Msg("Host process is gone")
				close(w.dead)
				return
			}
		}
	}
}
