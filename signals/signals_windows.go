//go:build windows

package signals

import (
	"os"
	"syscall"
)

// No SIGHUP on Windows; reloads come from the admin API or the file watcher.
func handledSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

// Classify maps an OS signal to what the workers should do with it.
func Classify(sig os.Signal) Kind {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return KindTerminate
	default:
		return KindIgnore
	}
}
