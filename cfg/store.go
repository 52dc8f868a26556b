package cfg

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Store holds the current configuration snapshot and re-reads it from the
// config file on demand. Snapshots are immutable once published; Reload
// swaps in a new one only after it validates.
type Store struct {
	path    string
	current atomic.Pointer[Configuration]
}

// NewStore creates a store serving initial until the first Reload
func NewStore(path string, initial *Configuration) *Store {
	s := &Store{path: path}
	s.current.Store(initial)
	return s
}

// Path returns the config file path
func (s *Store) Path() string {
	return s.path
}

// Current returns the current snapshot. Callers must not modify it.
func (s *Store) Current() *Configuration {
	return s.current.Load()
}

// Reload re-reads the config file. Invalid configuration is rejected and the
// previous snapshot stays current; the returned configuration is always the
// one in effect after the call.
func (s *Store) Reload() (*Configuration, error) {
	prev := s.current.Load()

	next, err := loadFile(s.path)
	if err != nil {
		return prev, err
	}

	// Instance identity does not change across reloads
	if next.InstanceID == 0 && prev != nil {
		next.InstanceID = prev.InstanceID
	}

	if err := next.Validate(); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Rejected invalid configuration, keeping previous")
		return prev, fmt.Errorf("invalid configuration: %w", err)
	}

	s.current.Store(next)
	return next, nil
}
