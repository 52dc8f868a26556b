package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// CycleBuckets for one unit of work against the local server; slot sync
	// through the gateway can take seconds when the primary is far away
	CycleBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	// PublishBuckets for delivering one outcome to a sink
	PublishBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

// Worker Metrics
var (
	// CyclesTotal counts poll cycles by worker and result (success, failed, gated, idle)
	CyclesTotal CounterVec = noopCounterVec{}

	// CycleDurationSeconds measures unit of work latency by worker
	CycleDurationSeconds HistogramVec = noopHistogramVec{}

	// DiagnosticRowsTotal counts non-null diagnostic rows logged by worker
	DiagnosticRowsTotal CounterVec = noopCounterVec{}

	// ReloadsTotal counts configuration reloads by worker and result (applied, rejected)
	ReloadsTotal CounterVec = noopCounterVec{}

	// RetriesTotal counts cycle retries under the retry failure policy
	RetriesTotal CounterVec = noopCounterVec{}

	// ReconnectsTotal counts reconnects after the target database changed
	ReconnectsTotal CounterVec = noopCounterVec{}

	// WorkerRunning is 1 while the worker executes a query, 0 otherwise
	WorkerRunning GaugeVec = noopGaugeVec{}

	// LastCycleAgeSeconds tracks seconds since the last completed cycle
	LastCycleAgeSeconds GaugeVec = noopGaugeVec{}
)

// Publisher Metrics
var (
	// PublishTotal counts outcome deliveries by sink and result (success, failed, dropped)
	PublishTotal CounterVec = noopCounterVec{}

	// PublishDurationSeconds measures outcome delivery latency by sink
	PublishDurationSeconds HistogramVec = noopHistogramVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Worker Metrics
	CyclesTotal = NewCounterVec(
		"cycles_total",
		"Poll cycles by worker and result",
		[]string{"worker", "result"},
	)
	CycleDurationSeconds = NewHistogramVec(
		"cycle_duration_seconds",
		"Unit of work duration in seconds",
		[]string{"worker"},
		CycleBuckets,
	)
	DiagnosticRowsTotal = NewCounterVec(
		"diagnostic_rows_total",
		"Non-null diagnostic rows logged",
		[]string{"worker"},
	)
	ReloadsTotal = NewCounterVec(
		"reloads_total",
		"Configuration reloads by worker and result",
		[]string{"worker", "result"},
	)
	RetriesTotal = NewCounterVec(
		"retries_total",
		"Cycle retries under the retry failure policy",
		[]string{"worker"},
	)
	ReconnectsTotal = NewCounterVec(
		"reconnects_total",
		"Reconnects after the target database changed",
		[]string{"worker"},
	)
	WorkerRunning = NewGaugeVec(
		"worker_running",
		"Whether the worker is executing a query (1=yes, 0=no)",
		[]string{"worker"},
	)
	LastCycleAgeSeconds = NewGaugeVec(
		"last_cycle_age_seconds",
		"Seconds since the last completed cycle",
		[]string{"worker"},
	)

	// Publisher Metrics
	PublishTotal = NewCounterVec(
		"publish_total",
		"Outcome deliveries by sink and result",
		[]string{"sink", "result"},
	)
	PublishDurationSeconds = NewHistogramVec(
		"publish_duration_seconds",
		"Outcome delivery duration in seconds",
		[]string{"sink"},
		PublishBuckets,
	)
}
