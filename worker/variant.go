package worker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/maxpert/slotsync/cfg"
	"github.com/maxpert/slotsync/query"
)

// IdleWaitSeconds is how long an idle worker sleeps between wake-ups
const IdleWaitSeconds = 10

// Variant is what differs between the two workers; the loop is shared
type Variant struct {
	Name    string
	Builder query.Builder
	// RowLevel is the log level of diagnostic rows
	RowLevel zerolog.Level
}

// SlotSyncVariant runs the gated slot sync call every interval
func SlotSyncVariant() Variant {
	return Variant{
		Name:     cfg.WorkerSlotSync,
		Builder:  query.SlotSync{},
		RowLevel: zerolog.InfoLevel,
	}
}

// LauncherVariant checks for the synchronize extension, then calls it
func LauncherVariant() Variant {
	return Variant{
		Name:     cfg.WorkerLauncher,
		Builder:  query.Launcher{},
		RowLevel: zerolog.DebugLevel,
	}
}

// waitFor returns how long to sleep before the next cycle and whether the
// cycle is idle. A zero interval never means polling continuously. unit is
// one second outside tests.
func waitFor(c cfg.WorkerConfiguration, unit time.Duration) (time.Duration, bool) {
	if c.IntervalSeconds <= 0 {
		return IdleWaitSeconds * unit, true
	}
	return time.Duration(c.IntervalSeconds) * unit, false
}
