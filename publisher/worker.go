package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maxpert/slotsync/telemetry"
)

const (
	// Default number of outcomes buffered per sink
	DefaultQueueSize = 256
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum number of attempts before an outcome is dropped
	DefaultMaxRetries = 10
	// Default topic prefix
	DefaultTopicPrefix = "slotsync.outcomes"
)

// WorkerConfig configures a sink worker
type WorkerConfig struct {
	Name            string        // Sink name
	Sink            Sink          // Destination sink
	Filter          Filter        // Worker filter
	TopicPrefix     string        // Topic prefix (e.g., "slotsync.outcomes")
	QueueSize       int           // Buffered outcomes
	RetryInitial    time.Duration // Initial retry delay
	RetryMax        time.Duration // Max retry delay
	RetryMultiplier float64       // Backoff multiplier
	MaxRetries      int           // Maximum attempts per outcome
}

// Worker delivers queued outcomes to one sink
type Worker struct {
	config      WorkerConfig
	queue       chan Outcome
	stopCh      chan struct{} // Stop signal
	doneCh      chan struct{} // Done signal
	running     atomic.Bool
	lifecycleMu sync.Mutex // Protects Start/Stop lifecycle operations

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewWorker creates a new sink worker
func NewWorker(config WorkerConfig) (*Worker, error) {
	// Validate config
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Filter == nil {
		return nil, fmt.Errorf("filter is required")
	}

	// Set defaults
	if config.TopicPrefix == "" {
		config.TopicPrefix = DefaultTopicPrefix
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	return &Worker{
		config: config,
		queue:  make(chan Outcome, config.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Enqueue queues o for delivery without blocking. Returns false when the
// outcome was filtered out or dropped because the queue is full.
func (w *Worker) Enqueue(o Outcome) bool {
	if !w.config.Filter.Match(o.Worker) {
		return false
	}

	select {
	case w.queue <- o:
		return true
	default:
		w.dropped.Add(1)
		telemetry.PublishTotal.With(w.config.Name, "dropped").Inc()
		log.Warn().
			Str("sink", w.config.Name).
			Str("worker", o.Worker).
			Msg("Outcome queue full, dropping outcome")
		return false
	}
}

// Stats returns delivery counters
func (w *Worker) Stats() (published, failed, dropped uint64) {
	return w.published.Load(), w.failed.Load(), w.dropped.Load()
}

// Start starts the worker goroutine
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return // Already running
	}

	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	log.Info().Str("sink", w.config.Name).Msg("Starting outcome publisher")

	go w.deliverLoop()
}

// Stop stops the worker. Outcomes still queued are delivered once, without
// retry, before it returns.
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Load() {
		return // Not running
	}

	close(w.stopCh)
	<-w.doneCh // Wait for goroutine to finish
	w.running.Store(false)

	log.Info().Str("sink", w.config.Name).Msg("Outcome publisher stopped")
}

func (w *Worker) deliverLoop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			w.drain()
			return
		case o := <-w.queue:
			w.deliver(o)
		}
	}
}

// drain makes one attempt for every outcome left in the queue
func (w *Worker) drain() {
	for {
		select {
		case o := <-w.queue:
			data, err := o.Encode()
			if err == nil {
				err = w.config.Sink.Publish(w.buildTopic(o.Worker), o.Worker, data)
			}
			w.count(err)
		default:
			return
		}
	}
}

func (w *Worker) deliver(o Outcome) {
	data, err := o.Encode()
	if err != nil {
		w.count(err)
		log.Error().Err(err).Str("sink", w.config.Name).Msg("Failed to encode outcome")
		return
	}

	start := time.Now()
	err = w.publishWithRetry(w.buildTopic(o.Worker), o.Worker, data)
	telemetry.PublishDurationSeconds.With(w.config.Name).Observe(time.Since(start).Seconds())
	w.count(err)

	if err != nil {
		log.Error().
			Err(err).
			Str("sink", w.config.Name).
			Str("worker", o.Worker).
			Msg("Failed to publish outcome")
	}
}

func (w *Worker) count(err error) {
	if err != nil {
		w.failed.Add(1)
		telemetry.PublishTotal.With(w.config.Name, "failed").Inc()
		return
	}
	w.published.Add(1)
	telemetry.PublishTotal.With(w.config.Name, "success").Inc()
}

// buildTopic builds the topic name for a worker's outcomes
func (w *Worker) buildTopic(worker string) string {
	return fmt.Sprintf("%s.%s", w.config.TopicPrefix, worker)
}

// publishWithRetry publishes data with exponential backoff retry
// Returns error if max retries exhausted or worker stopped
func (w *Worker) publishWithRetry(topic, key string, data []byte) error {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		err := w.config.Sink.Publish(topic, key, data)
		if err == nil {
			return nil
		}

		attempts++

		if attempts >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("sink", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish outcome, retrying")

		// Sleep with stop check
		if !w.sleep(delay) {
			return fmt.Errorf("worker stopped during retry")
		}

		// Exponential backoff
		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}
}

// sleep sleeps for the given duration, checking stopCh
// Returns true if sleep completed, false if stopped
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
