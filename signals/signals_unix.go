//go:build !windows

package signals

import (
	"os"
	"syscall"
)

func handledSignals() []os.Signal {
	return []os.Signal{syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP}
}

// Classify maps an OS signal to what the workers should do with it.
func Classify(sig os.Signal) Kind {
	switch sig {
	case syscall.SIGTERM, syscall.SIGINT:
		return KindTerminate
	case syscall.SIGHUP:
		return KindReload
	default:
		return KindIgnore
	}
}
