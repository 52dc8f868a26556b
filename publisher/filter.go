package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter filters outcomes by worker name using glob patterns
type GlobFilter struct {
	workerGlobs []glob.Glob
}

// NewGlobFilter creates a new glob-based filter
// Empty patterns match everything
func NewGlobFilter(workerPatterns []string) (*GlobFilter, error) {
	filter := &GlobFilter{
		workerGlobs: make([]glob.Glob, 0, len(workerPatterns)),
	}

	for _, pattern := range workerPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid worker pattern %q: %w", pattern, err)
		}
		filter.workerGlobs = append(filter.workerGlobs, g)
	}

	return filter, nil
}

// Match returns true if worker matches any configured pattern
func (f *GlobFilter) Match(worker string) bool {
	if len(f.workerGlobs) == 0 {
		return true
	}
	for _, g := range f.workerGlobs {
		if g.Match(worker) {
			return true
		}
	}
	return false
}
