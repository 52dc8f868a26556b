// Package activity tracks what each worker is doing, for the admin API and
// the worker gauges.
package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/maxpert/slotsync/telemetry"
)

// State of a worker
type State string

const (
	StateStarting State = "starting"
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
)

// Cycle summarizes one completed unit of work
type Cycle struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Executed int           `json:"executed"` // Queries executed, a closed gate stops early
	Rows     int           `json:"rows"`     // Non-null diagnostic rows
	Error    string        `json:"error,omitempty"`
}

// Status is a snapshot of a tracker
type Status struct {
	Worker    string    `json:"worker"`
	Database  string    `json:"database"`
	State     State     `json:"state"`
	Query     string    `json:"query,omitempty"`
	Since     time.Time `json:"since"`
	Cycles    uint64    `json:"cycles"`
	Failures  uint64    `json:"failures"`
	LastCycle *Cycle    `json:"last_cycle,omitempty"`
	Error     string    `json:"error,omitempty"` // Set when the worker stopped on an error
}

// Tracker holds the activity of one worker. Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time
}

// NewTracker creates a tracker in the starting state
func NewTracker(worker string) *Tracker {
	t := &Tracker{now: time.Now}
	t.status = Status{
		Worker: worker,
		State:  StateStarting,
		Since:  t.now(),
	}
	return t
}

// Name returns the worker name
func (t *Tracker) Name() string {
	return t.status.Worker
}

// SetDatabase records the database the worker is connected to
func (t *Tracker) SetDatabase(database string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Database = database
}

// Running reports that query is executing
func (t *Tracker) Running(query string) {
	t.mu.Lock()
	t.status.State = StateRunning
	t.status.Query = query
	t.status.Since = t.now()
	t.mu.Unlock()

	telemetry.WorkerRunning.With(t.status.Worker).Set(1)
}

// Idle reports that no query is executing
func (t *Tracker) Idle() {
	t.mu.Lock()
	t.status.State = StateIdle
	t.status.Query = ""
	t.status.Since = t.now()
	t.mu.Unlock()

	telemetry.WorkerRunning.With(t.status.Worker).Set(0)
}

// RecordCycle stores the summary of a completed unit of work
func (t *Tracker) RecordCycle(c Cycle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Cycles++
	if c.Error != "" {
		t.status.Failures++
	}
	t.status.LastCycle = &c
}

// Stopped reports that the worker exited, with err when it failed
func (t *Tracker) Stopped(err error) {
	t.mu.Lock()
	t.status.State = StateStopped
	t.status.Query = ""
	t.status.Since = t.now()
	if err != nil {
		t.status.Error = err.Error()
	}
	t.mu.Unlock()

	telemetry.WorkerRunning.With(t.status.Worker).Set(0)
}

// Status returns a copy of the current status
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.status
	if s.LastCycle != nil {
		c := *s.LastCycle
		s.LastCycle = &c
	}
	return s
}

// Registry holds the trackers of all workers in the process
type Registry struct {
	trackers *xsync.MapOf[string, *Tracker]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{trackers: xsync.NewMapOf[string, *Tracker]()}
}

// Register returns the tracker for worker, creating it on first use
func (r *Registry) Register(worker string) *Tracker {
	t, _ := r.trackers.LoadOrCompute(worker, func() *Tracker {
		return NewTracker(worker)
	})
	return t
}

// Get returns the tracker of worker
func (r *Registry) Get(worker string) (*Tracker, bool) {
	return r.trackers.Load(worker)
}

// All returns the status of every worker ordered by name
func (r *Registry) All() []Status {
	out := make([]Status, 0, r.trackers.Size())
	r.trackers.Range(func(_ string, t *Tracker) bool {
		out = append(out, t.Status())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Worker < out[j].Worker })
	return out
}

// WorkerSamples implements telemetry.WorkerLister
func (r *Registry) WorkerSamples() []telemetry.WorkerSample {
	statuses := r.All()
	samples := make([]telemetry.WorkerSample, 0, len(statuses))
	for _, s := range statuses {
		sample := telemetry.WorkerSample{
			Name:    s.Worker,
			Running: s.State == StateRunning,
		}
		if s.LastCycle != nil {
			sample.LastCycle = s.LastCycle.Started.Add(s.LastCycle.Duration)
		}
		samples = append(samples, sample)
	}
	return samples
}
