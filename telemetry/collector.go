package telemetry

import (
	"sync"
	"time"
)

// WorkerSample is a point-in-time view of one worker
type WorkerSample struct {
	Name      string
	Running   bool
	LastCycle time.Time // Zero until the first cycle completes
}

// WorkerLister provides samples of all registered workers
type WorkerLister interface {
	WorkerSamples() []WorkerSample
}

// MetricsCollector periodically samples workers and updates telemetry gauges
type MetricsCollector struct {
	lister   WorkerLister
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(lister WorkerLister, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MetricsCollector{
		lister:   lister,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	mc.once.Do(func() {
		close(mc.stopCh)
	})
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.lister == nil {
		return
	}

	now := mc.now()
	for _, s := range mc.lister.WorkerSamples() {
		running := 0.0
		if s.Running {
			running = 1
		}
		WorkerRunning.With(s.Name).Set(running)

		if !s.LastCycle.IsZero() {
			LastCycleAgeSeconds.With(s.Name).Set(now.Sub(s.LastCycle).Seconds())
		}
	}
}
