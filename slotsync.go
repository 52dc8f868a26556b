package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/maxpert/slotsync/activity"
	"github.com/maxpert/slotsync/admin"
	"github.com/maxpert/slotsync/cfg"
	"github.com/maxpert/slotsync/host"
	"github.com/maxpert/slotsync/publisher"
	_ "github.com/maxpert/slotsync/publisher/sink"
	"github.com/maxpert/slotsync/signals"
	"github.com/maxpert/slotsync/telemetry"
	"github.com/maxpert/slotsync/uow"
	"github.com/maxpert/slotsync/worker"
)

// Process exit codes
const (
	exitClean    = 0 // Terminated on request
	exitHostDied = 1 // Host gone, do not restart
	exitFatal    = 2 // Failed, restart after the advertised delay
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	// Load configuration
	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Failed to load configuration")
		return exitFatal
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Invalid configuration")
		return exitFatal
	}

	setupLogging(cfg.Config)

	log.Info().Msg("slotsync - logical replication slot synchronization")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	store := cfg.NewStore(*cfg.ConfigPathFlag, cfg.Config)

	monitor := newHostMonitor(cfg.Config.Host)
	defer monitor.Stop()

	var outcomes worker.OutcomePublisher
	if cfg.Config.Publisher.Enabled {
		registry, err := publisher.NewRegistry(cfg.Config.Publisher.Sinks)
		if err != nil {
			log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Failed to initialize publisher")
			return exitFatal
		}
		if err := registry.Start(); err != nil {
			log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Failed to start publisher")
			return exitFatal
		}
		defer registry.Stop()
		outcomes = registry
	}

	activityRegistry := activity.NewRegistry()
	dispatcher := signals.NewDispatcher()

	workers, err := buildWorkers(cfg.Config, store, monitor, activityRegistry, outcomes)
	if err != nil {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Failed to create workers")
		return exitFatal
	}

	reloaders := make(map[string]admin.Reloader, len(workers))
	for _, w := range workers {
		defer dispatcher.Subscribe(w.Bridge())()
		reloaders[w.Name()] = w.Bridge()
	}
	dispatcher.Start()
	defer dispatcher.Stop()

	if cfg.Config.WatchConfig {
		watcher, err := cfg.NewWatcher(store.Path(), func() {
			dispatcher.Broadcast(signals.KindReload)
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config file watching unavailable")
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	collector := telemetry.NewMetricsCollector(activityRegistry, 0)
	collector.Start()
	defer collector.Stop()

	if cfg.Config.Admin.Enabled {
		handlers := admin.NewAdminHandlers(activityRegistry, reloaders, store)
		server, err := admin.NewServer(cfg.Config.Admin.Address, cfg.Config.Admin.Port, cfg.Config.Admin.Secret, handlers)
		if err != nil {
			log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Failed to start admin server")
			return exitFatal
		}
		server.Start()
		defer server.Stop()
	}

	log.Info().
		Uint64("instance_id", cfg.Config.InstanceID).
		Int("workers", len(workers)).
		Msg("slotsync started successfully")

	err = runWorkers(context.Background(), workers)
	code := exitCode(err)

	switch code {
	case exitClean:
		log.Info().Msg("All workers stopped")
	case exitHostDied:
		log.Error().Err(err).Msg("Host process died, exiting")
	default:
		log.WithLevel(zerolog.FatalLevel).
			Err(err).
			Int("restart_delay_seconds", store.Current().RestartDelaySeconds).
			Msg("Worker failed, exiting for restart")
	}
	return code
}

func setupLogging(c *cfg.Configuration) {
	var writer io.Writer = zerolog.NewConsoleWriter()
	if c.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("instance_id", c.InstanceID).
		Logger()

	if c.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}
}

func newHostMonitor(c cfg.HostConfiguration) host.Monitor {
	if !c.ExitOnParentDeath {
		return host.Never{}
	}
	return host.NewParentWatcher(time.Duration(c.CheckIntervalMS) * time.Millisecond)
}

// buildWorkers creates the workers enabled in c
func buildWorkers(
	c *cfg.Configuration,
	store *cfg.Store,
	monitor host.Monitor,
	registry *activity.Registry,
	outcomes worker.OutcomePublisher,
) ([]*worker.Worker, error) {
	variants := []worker.Variant{worker.SlotSyncVariant(), worker.LauncherVariant()}

	workers := make([]*worker.Worker, 0, len(variants))
	for _, variant := range variants {
		section, ok := c.Worker(variant.Name)
		if !ok {
			return nil, fmt.Errorf("no configuration section for worker %s", variant.Name)
		}
		if !section.Enabled {
			log.Info().Str("worker", variant.Name).Msg("Worker not enabled, skipping")
			continue
		}

		w, err := worker.New(variant, worker.Config{
			Store:     store,
			Connect:   uow.PgxConnector(postgresSettings(store), variant.Name),
			Bridge:    signals.NewBridge(),
			Host:      monitor,
			Tracker:   registry.Register(variant.Name),
			Publisher: outcomes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create worker %s: %w", variant.Name, err)
		}
		workers = append(workers, w)
	}
	return workers, nil
}

func postgresSettings(store *cfg.Store) func() cfg.PostgresConfiguration {
	return func() cfg.PostgresConfiguration {
		return store.Current().Postgres
	}
}

// runWorkers runs every worker until all of them return. The first error
// cancels the others; a worker returning nil leaves the rest running.
func runWorkers(ctx context.Context, workers []*worker.Worker) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	return g.Wait()
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitClean
	case errors.Is(err, worker.ErrHostDied):
		return exitHostDied
	default:
		return exitFatal
	}
}
