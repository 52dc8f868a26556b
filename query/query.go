// Package query builds the SQL each worker runs per cycle. Builders are pure:
// the same configuration always yields byte-identical text.
package query

import (
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/maxpert/slotsync/cfg"
)

// Functions installed by the slot sync extensions
const (
	SlotSyncFunction    = "standby_update_logical_slots"
	SynchronizeFunction = "synchronize_logical_slots"
)

var dialect = goqu.Dialect("postgres")

// Prepared is one query of a cycle
type Prepared struct {
	Name string
	Text string
	// Gate marks an existence check; the queries after it only run when it
	// returns a true row
	Gate bool
}

// Builder produces the queries for one worker variant
type Builder interface {
	Build(c cfg.WorkerConfiguration) ([]Prepared, error)
}

// BuilderFunc adapts a function to Builder
type BuilderFunc func(c cfg.WorkerConfiguration) ([]Prepared, error)

func (f BuilderFunc) Build(c cfg.WorkerConfiguration) ([]Prepared, error) {
	return f(c)
}

// SlotSync builds the single slot sync query. The catalog predicate keeps the
// call from running when the marker extension is missing.
type SlotSync struct{}

func (SlotSync) Build(c cfg.WorkerConfiguration) ([]Prepared, error) {
	text, _, err := fromMarker(c.MarkerExtension).
		Select(goqu.Func(SlotSyncFunction, c.Gateway)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build slot sync query: %w", err)
	}

	return []Prepared{{Name: SlotSyncFunction, Text: text}}, nil
}

// Launcher builds the extension existence check followed by the
// synchronization call.
type Launcher struct{}

func (Launcher) Build(c cfg.WorkerConfiguration) ([]Prepared, error) {
	gate, _, err := fromMarker(c.MarkerExtension).
		Select(goqu.COUNT(goqu.Star()).Gt(0)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build extension check: %w", err)
	}

	action, _, err := fromMarker(c.MarkerExtension).
		Select(goqu.Func(SynchronizeFunction)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build synchronize query: %w", err)
	}

	return []Prepared{
		{Name: "extension_check", Text: gate, Gate: true},
		{Name: SynchronizeFunction, Text: action},
	}, nil
}

func fromMarker(marker string) *goqu.SelectDataset {
	return dialect.
		From(goqu.S("pg_catalog").Table("pg_extension")).
		Where(goqu.Ex{"extname": marker})
}

// Equal reports whether two query sets have identical text and shape
func Equal(a, b []Prepared) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
