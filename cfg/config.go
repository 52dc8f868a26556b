package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// FailurePolicy decides what a worker does when a sync query fails
type FailurePolicy string

const (
	FailureFatal FailurePolicy = "fatal" // Stop the process (default)
	FailureRetry FailurePolicy = "retry" // Re-run the cycle with exponential backoff
	FailureSkip  FailurePolicy = "skip"  // Log and wait for the next cycle
)

// Worker names, also used as config section names and metric labels
const (
	WorkerSlotSync = "slot_sync"
	WorkerLauncher = "launcher"
)

// WorkerConfiguration holds the tunables of one polling worker
type WorkerConfiguration struct {
	Enabled         bool   `toml:"enabled"`
	Database        string `toml:"database"`         // Database the worker connects to
	IntervalSeconds int    `toml:"interval_seconds"` // Wait between cycles
	Gateway         string `toml:"gateway"`          // Foreign server pointing at the primary (slot_sync only)
	MarkerExtension string `toml:"marker_extension"` // Extension whose presence gates the sync call
}

// PostgresConfiguration describes how to reach the server
type PostgresConfiguration struct {
	DSN                   string `toml:"dsn"` // Database name is replaced per worker
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	ApplicationName       string `toml:"application_name"`
}

// FailureConfiguration controls the reaction to failed sync queries
type FailureConfiguration struct {
	Policy          FailurePolicy `toml:"policy"`
	RetryInitialMS  int           `toml:"retry_initial_ms"`
	RetryMaxMS      int           `toml:"retry_max_ms"`
	RetryMultiplier float64       `toml:"retry_multiplier"`
	MaxRetries      int           `toml:"max_retries"` // Attempts before giving up, 0 = unlimited
}

// HostConfiguration controls host death detection
type HostConfiguration struct {
	ExitOnParentDeath bool `toml:"exit_on_parent_death"`
	CheckIntervalMS   int  `toml:"check_interval_ms"`
}

// SinkConfiguration describes one outcome publishing destination
type SinkConfiguration struct {
	Name            string   `toml:"name"`
	Type            string   `toml:"type"` // "nats" or "kafka"
	NatsURL         string   `toml:"nats_url"`
	Brokers         []string `toml:"brokers"`
	TopicPrefix     string   `toml:"topic_prefix"`
	FilterWorkers   []string `toml:"filter_workers"` // Glob patterns, empty = all
	QueueSize       int      `toml:"queue_size"`
	RetryInitialMS  int      `toml:"retry_initial_ms"`
	RetryMaxMS      int      `toml:"retry_max_ms"`
	RetryMultiplier float64  `toml:"retry_multiplier"`
	MaxRetries      int      `toml:"max_retries"`
}

// PublisherConfiguration controls outcome publishing
type PublisherConfiguration struct {
	Enabled bool                `toml:"enabled"`
	Sinks   []SinkConfiguration `toml:"sinks"`
}

// AdminConfiguration for the HTTP admin API
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
	Secret  string `toml:"secret"` // Empty disables authentication
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics, served by the admin listener
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	InstanceID          uint64 `toml:"instance_id"`
	RestartDelaySeconds int    `toml:"restart_delay_seconds"` // Advertised to supervisors on fatal exit
	WatchConfig         bool   `toml:"watch_config"`          // Reload when the config file changes

	Postgres   PostgresConfiguration   `toml:"postgres"`
	SlotSync   WorkerConfiguration     `toml:"slot_sync"`
	Launcher   WorkerConfiguration     `toml:"launcher"`
	Failure    FailureConfiguration    `toml:"failure"`
	Host       HostConfiguration       `toml:"host"`
	Publisher  PublisherConfiguration  `toml:"publisher"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "slotsync.toml", "Path to configuration file")
	DSNFlag        = flag.String("dsn", "", "PostgreSQL connection string (overrides config)")
	WorkerFlag     = flag.String("worker", "", "Run only this worker: slot_sync or launcher (overrides config)")
)

// Default returns a fresh copy of the default configuration
func Default() *Configuration {
	return &Configuration{
		InstanceID:          0, // Auto-generate
		RestartDelaySeconds: 10,
		WatchConfig:         false,

		Postgres: PostgresConfiguration{
			DSN:                   "postgres://postgres@localhost:5432/postgres?sslmode=disable",
			ConnectTimeoutSeconds: 10,
			ApplicationName:       "slotsync",
		},

		SlotSync: WorkerConfiguration{
			Enabled:         true,
			Database:        "postgres",
			IntervalSeconds: 1, // sync_max_idle_time
			Gateway:         "master_fdw",
			MarkerExtension: "slot_timelines",
		},

		Launcher: WorkerConfiguration{
			Enabled:         true,
			Database:        "postgres",
			IntervalSeconds: 60,
			MarkerExtension: "synchronize_logical_slots",
		},

		Failure: FailureConfiguration{
			Policy:          FailureFatal,
			RetryInitialMS:  500,
			RetryMaxMS:      30000,
			RetryMultiplier: 2.0,
			MaxRetries:      5,
		},

		Host: HostConfiguration{
			ExitOnParentDeath: false,
			CheckIntervalMS:   1000,
		},

		Publisher: PublisherConfiguration{
			Enabled: false,
			Sinks:   []SinkConfiguration{},
		},

		Admin: AdminConfiguration{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    9187,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},
	}
}

// Config is the configuration loaded at startup
var Config = Default()

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	c, err := loadFile(configPath)
	if err != nil {
		return err
	}

	// Auto-generate instance ID if not set
	if c.InstanceID == 0 {
		c.InstanceID = generateInstanceID()
		log.Info().Uint64("instance_id", c.InstanceID).Msg("Auto-generated instance ID")
	}

	Config = c
	return nil
}

// loadFile decodes configPath on top of the defaults. A missing file is not
// an error; the defaults are used.
func loadFile(configPath string) (*Configuration, error) {
	c := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, c); err != nil {
				return nil, fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	applyOverrides(c)
	return c, nil
}

func applyOverrides(c *Configuration) {
	if *DSNFlag != "" {
		c.Postgres.DSN = *DSNFlag
	}

	switch *WorkerFlag {
	case WorkerSlotSync:
		c.Launcher.Enabled = false
	case WorkerLauncher:
		c.SlotSync.Enabled = false
	}
}

// generateInstanceID derives a stable ID from the machine ID, falling back to
// the hostname where no machine ID is available (minimal containers)
func generateInstanceID() uint64 {
	id, err := machineid.ProtectedID("slotsync")
	if err != nil {
		log.Warn().Err(err).Msg("Machine ID unavailable, deriving instance ID from hostname")
		id, _ = os.Hostname()
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

// Validate checks the loaded configuration for errors
func Validate() error {
	return Config.Validate()
}

// Validate checks configuration for errors
func (c *Configuration) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn is required")
	}

	if c.Postgres.ConnectTimeoutSeconds < 0 {
		return fmt.Errorf("postgres connect timeout must be >= 0")
	}

	if !c.SlotSync.Enabled && !c.Launcher.Enabled {
		return fmt.Errorf("at least one worker must be enabled")
	}

	if err := c.SlotSync.validate(WorkerSlotSync); err != nil {
		return err
	}

	if c.SlotSync.Enabled && c.SlotSync.Gateway == "" {
		return fmt.Errorf("slot_sync gateway is required")
	}

	if err := c.Launcher.validate(WorkerLauncher); err != nil {
		return err
	}

	if c.RestartDelaySeconds < 0 {
		return fmt.Errorf("restart delay must be >= 0")
	}

	// Validate failure policy
	switch c.Failure.Policy {
	case FailureFatal, FailureRetry, FailureSkip:
	default:
		return fmt.Errorf("invalid failure policy: %s", c.Failure.Policy)
	}

	if c.Failure.Policy == FailureRetry {
		if c.Failure.RetryInitialMS < 1 {
			return fmt.Errorf("failure retry initial delay must be >= 1ms")
		}
		if c.Failure.RetryMaxMS < c.Failure.RetryInitialMS {
			return fmt.Errorf("failure retry max delay must be >= initial delay")
		}
		if c.Failure.RetryMultiplier < 1 {
			return fmt.Errorf("failure retry multiplier must be >= 1")
		}
		if c.Failure.MaxRetries < 0 {
			return fmt.Errorf("failure max retries must be >= 0")
		}
	}

	if c.Host.ExitOnParentDeath && c.Host.CheckIntervalMS < 1 {
		return fmt.Errorf("host check interval must be >= 1ms")
	}

	if c.Admin.Enabled && (c.Admin.Port < 1 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}

	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if c.Publisher.Enabled {
		names := make(map[string]bool)
		for _, sink := range c.Publisher.Sinks {
			if err := sink.validate(); err != nil {
				return err
			}
			if names[sink.Name] {
				return fmt.Errorf("duplicate sink name: %s", sink.Name)
			}
			names[sink.Name] = true
		}
	}

	return nil
}

func (w *WorkerConfiguration) validate(name string) error {
	if !w.Enabled {
		return nil
	}

	if w.Database == "" {
		return fmt.Errorf("%s database is required", name)
	}

	if w.IntervalSeconds < 0 {
		return fmt.Errorf("%s interval must be >= 0 seconds", name)
	}

	if w.MarkerExtension == "" {
		return fmt.Errorf("%s marker extension is required", name)
	}

	return nil
}

func (s *SinkConfiguration) validate() error {
	if s.Name == "" {
		return fmt.Errorf("sink name is required")
	}

	switch s.Type {
	case "nats":
		if s.NatsURL == "" {
			return fmt.Errorf("sink %s: nats_url is required", s.Name)
		}
	case "kafka":
		if len(s.Brokers) == 0 {
			return fmt.Errorf("sink %s: at least one broker is required", s.Name)
		}
	default:
		return fmt.Errorf("sink %s: unknown type %q", s.Name, s.Type)
	}

	if s.QueueSize < 0 {
		return fmt.Errorf("sink %s: queue size must be >= 0", s.Name)
	}

	return nil
}

// Worker returns the configuration section of the named worker
func (c *Configuration) Worker(name string) (WorkerConfiguration, bool) {
	switch name {
	case WorkerSlotSync:
		return c.SlotSync, true
	case WorkerLauncher:
		return c.Launcher, true
	}
	return WorkerConfiguration{}, false
}
