// Package worker runs the poll loop shared by the slot sync worker and the
// synchronize launcher.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/slotsync/activity"
	"github.com/maxpert/slotsync/cfg"
	"github.com/maxpert/slotsync/host"
	"github.com/maxpert/slotsync/latch"
	"github.com/maxpert/slotsync/publisher"
	"github.com/maxpert/slotsync/query"
	"github.com/maxpert/slotsync/signals"
	"github.com/maxpert/slotsync/telemetry"
	"github.com/maxpert/slotsync/uow"
)

var (
	// ErrHostDied is returned when the host process is observed to be gone
	ErrHostDied = errors.New("host process died")
	// ErrFatal wraps errors the worker cannot continue after
	ErrFatal = errors.New("fatal worker error")
)

// ConfigSource serves configuration snapshots. *cfg.Store implements it.
type ConfigSource interface {
	Current() *cfg.Configuration
	Reload() (*cfg.Configuration, error)
}

// OutcomePublisher receives a summary of every executed cycle. Publish must
// not block.
type OutcomePublisher interface {
	Publish(o publisher.Outcome)
}

// Config holds the collaborators of a worker. Store and Connect are
// required; a nil Bridge, Host or Tracker gets a default.
type Config struct {
	Store     ConfigSource
	Connect   uow.Connector
	Bridge    *signals.Bridge
	Host      host.Monitor
	Tracker   *activity.Tracker
	Publisher OutcomePublisher
}

// Worker is one polling loop. Run it once.
type Worker struct {
	variant Variant
	config  Config
	latch   *latch.Latch
	base    zerolog.Logger
	logger  zerolog.Logger
	unit    time.Duration

	snapshot *cfg.Configuration
	section  cfg.WorkerConfiguration
	queries  []query.Prepared
	session  uow.Session
	runner   *uow.Runner

	// Called with every wait duration, tests only
	waitObserver func(d time.Duration, idle bool)
}

// New creates a worker for variant
func New(variant Variant, config Config) (*Worker, error) {
	if variant.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if variant.Builder == nil {
		return nil, fmt.Errorf("query builder is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("config source is required")
	}
	if config.Connect == nil {
		return nil, fmt.Errorf("connector is required")
	}

	if config.Bridge == nil {
		config.Bridge = signals.NewBridge()
	}
	if config.Host == nil {
		config.Host = host.Never{}
	}
	if config.Tracker == nil {
		config.Tracker = activity.NewTracker(variant.Name)
	}

	return &Worker{
		variant: variant,
		config:  config,
		latch:   latch.New(),
		base:    log.Logger,
		logger:  log.With().Str("worker", variant.Name).Logger(),
		unit:    time.Second,
	}, nil
}

// NewSlotSync creates the slot sync worker
func NewSlotSync(config Config) (*Worker, error) {
	return New(SlotSyncVariant(), config)
}

// NewLauncher creates the synchronize launcher
func NewLauncher(config Config) (*Worker, error) {
	return New(LauncherVariant(), config)
}

// Name returns the worker name
func (w *Worker) Name() string {
	return w.variant.Name
}

// Bridge returns the bridge that delivers terminate and reload requests
func (w *Worker) Bridge() *signals.Bridge {
	return w.config.Bridge
}

// Tracker returns the activity tracker of the worker
func (w *Worker) Tracker() *activity.Tracker {
	return w.config.Tracker
}

// Run connects and polls until terminated. It returns nil after a terminate
// request, a cancelled ctx or the worker being disabled by configuration,
// ErrHostDied when the host is gone and an error wrapping ErrFatal otherwise.
func (w *Worker) Run(ctx context.Context) (err error) {
	w.config.Bridge.Attach(w.latch)
	defer func() {
		w.config.Bridge.Attach(nil)
		w.closeSession()
		w.config.Tracker.Stopped(err)
	}()

	if err := w.apply(ctx, w.config.Store.Current()); err != nil {
		return err
	}

	if !w.section.Enabled {
		w.logger.Info().Msg("Worker disabled by configuration")
		return nil
	}

	w.logger.Info().
		Int("interval_seconds", w.section.IntervalSeconds).
		Msg("Worker started")

	for {
		wait, idle := waitFor(w.section, w.unit)
		if w.waitObserver != nil {
			w.waitObserver(wait, idle)
		}

		reason := w.latch.Wait(ctx, wait, w.config.Host.Dead())
		w.latch.Reset()

		if reason.Has(latch.WokenByHostDeath) {
			w.logger.WithLevel(zerolog.FatalLevel).Msg("Host process is gone, exiting")
			return ErrHostDied
		}

		if w.config.Bridge.TakeReload() {
			if err := w.reload(ctx); err != nil {
				return err
			}
		}

		if w.config.Bridge.TerminateRequested() {
			w.logger.Info().Msg("Processed terminate request")
			return nil
		}

		if ctx.Err() != nil {
			w.logger.Info().Msg("Shutdown requested by host")
			return nil
		}

		if !w.section.Enabled {
			w.logger.Info().Msg("Worker disabled by configuration")
			return nil
		}

		if idle {
			w.logger.Debug().Msg("Nothing to do, interval is zero")
			telemetry.CyclesTotal.With(w.variant.Name, "idle").Inc()
			continue
		}

		if err := w.runCycle(ctx); err != nil {
			return err
		}
	}
}

// reload re-reads configuration and applies it. A rejected configuration
// leaves the worker running on the previous snapshot.
func (w *Worker) reload(ctx context.Context) error {
	next, err := w.config.Store.Reload()
	if err != nil {
		telemetry.ReloadsTotal.With(w.variant.Name, "rejected").Inc()
		w.logger.Warn().Err(err).Msg("Processed reload request, configuration rejected")
		return nil
	}

	telemetry.ReloadsTotal.With(w.variant.Name, "applied").Inc()
	w.logger.Info().Msg("Processed reload request")
	return w.apply(ctx, next)
}

// apply makes next the active snapshot: queries are rebuilt when their text
// changes and the session is replaced when the target database changes.
func (w *Worker) apply(ctx context.Context, next *cfg.Configuration) error {
	section, ok := next.Worker(w.variant.Name)
	if !ok {
		return fmt.Errorf("%w: no configuration section for worker %s", ErrFatal, w.variant.Name)
	}

	queries, err := w.variant.Builder.Build(section)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}

	if !query.Equal(queries, w.queries) {
		if w.queries != nil {
			w.logger.Info().Msg("Configuration changed query text, rebuilt queries")
		}
		w.queries = queries
	}

	reconnect := w.session == nil ||
		section.Database != w.section.Database ||
		next.Postgres != w.snapshot.Postgres
	w.snapshot = next
	w.section = section

	if !reconnect || !section.Enabled {
		return nil
	}

	if w.session != nil {
		w.logger.Info().Str("database", section.Database).Msg("Target database changed, reconnecting")
		telemetry.ReconnectsTotal.With(w.variant.Name).Inc()
		w.closeSession()
	}

	session, err := w.config.Connect(ctx, section.Database)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}

	w.session = session
	w.runner = uow.NewRunner(session, w.config.Tracker)
	w.logger = w.base.With().
		Str("worker", w.variant.Name).
		Str("database", session.Database()).
		Logger()
	w.config.Tracker.SetDatabase(session.Database())
	w.config.Tracker.Idle()

	w.logger.Info().Msg("Connected to database")
	return nil
}

func (w *Worker) closeSession() {
	if w.session == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.session.Close(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to close database session")
	}
	w.session = nil
	w.runner = nil
}

// execute runs one unit of work, logging every non-null diagnostic row
func (w *Worker) execute(ctx context.Context) (uow.Result, error) {
	var messages []string

	res, err := w.runner.Run(ctx, w.queries, func(row uow.Row) error {
		text, ok := row.Text()
		if !ok {
			return nil
		}
		messages = append(messages, text)
		w.logger.WithLevel(w.variant.RowLevel).Str("query", row.Query).Msg(text)
		return nil
	})

	w.record(res, messages, err)
	return res, err
}

func (w *Worker) record(res uow.Result, messages []string, err error) {
	result := "success"
	switch {
	case err != nil:
		result = "failed"
	case res.Gated:
		result = "gated"
	}

	telemetry.CyclesTotal.With(w.variant.Name, result).Inc()
	telemetry.CycleDurationSeconds.With(w.variant.Name).Observe(res.Duration.Seconds())
	telemetry.DiagnosticRowsTotal.With(w.variant.Name).Add(float64(len(messages)))

	cycle := activity.Cycle{
		Started:  res.Started,
		Duration: res.Duration,
		Executed: res.Executed,
		Rows:     len(messages),
	}
	if err != nil {
		cycle.Error = err.Error()
	}
	w.config.Tracker.RecordCycle(cycle)

	if res.Gated {
		w.logger.Debug().Msg("Extension not installed, nothing to do")
	}

	if w.config.Publisher == nil {
		return
	}

	w.config.Publisher.Publish(publisher.Outcome{
		InstanceID: w.snapshot.InstanceID,
		Worker:     w.variant.Name,
		Database:   w.section.Database,
		StartedAt:  res.Started.UnixMilli(),
		DurationMS: res.Duration.Milliseconds(),
		Executed:   res.Executed,
		Gated:      res.Gated,
		Messages:   messages,
		Error:      cycle.Error,
	})
}
