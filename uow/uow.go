// Package uow wraps one poll cycle's database work in a unit of work: a
// transaction whose snapshot covers every query of the cycle, released on
// every exit path.
package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/maxpert/slotsync/query"
)

// ErrUnexpectedResult is returned when a query completes as anything but a SELECT
var ErrUnexpectedResult = errors.New("unexpected query result")

// Rows is a result set. pgx.Rows satisfies it.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
	// CommandTag is valid once the rows are closed
	CommandTag() pgconn.CommandTag
}

// Tx is an open transaction
type Tx interface {
	Query(ctx context.Context, sql string) (Rows, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Session is a connection to one database
type Session interface {
	Begin(ctx context.Context) (Tx, error)
	Database() string
	Close(ctx context.Context) error
}

// Reporter receives activity updates while a unit of work runs
type Reporter interface {
	Running(query string)
	Idle()
}

type nopReporter struct{}

func (nopReporter) Running(string) {}
func (nopReporter) Idle()          {}

// Row is one result row of a query
type Row struct {
	Query  string // Name of the prepared query
	Values []any
}

// Value returns the first column, nil when absent or NULL
func (r Row) Value() any {
	if len(r.Values) == 0 {
		return nil
	}
	return r.Values[0]
}

// Text returns the first column as text; false when it is NULL
func (r Row) Text() (string, bool) {
	switch v := r.Value().(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return fmt.Sprint(v), true
	}
}

// Bool reports whether the first column is true
func (r Row) Bool() bool {
	switch v := r.Value().(type) {
	case bool:
		return v
	case string:
		return v == "t" || v == "true"
	}
	return false
}

// Result summarizes a unit of work
type Result struct {
	Started  time.Time
	Duration time.Duration
	Executed int  // Queries executed
	Rows     int  // Rows delivered to the callback
	Gated    bool // A gate query returned no true row and stopped the cycle
}

// Runner executes query sets against a session
type Runner struct {
	session  Session
	reporter Reporter
	now      func() time.Time
}

// NewRunner creates a runner; reporter may be nil
func NewRunner(session Session, reporter Reporter) *Runner {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Runner{session: session, reporter: reporter, now: time.Now}
}

// Session returns the session the runner executes against
func (r *Runner) Session() Session {
	return r.session
}

// Run executes queries in order inside one repeatable read transaction.
// A gate query whose rows hold no true value ends the cycle successfully
// without running the rest. Rows of the other queries are passed to onRow
// as they are read, so rows delivered before a failure stay delivered. The
// transaction is committed only when every executed query succeeded.
func (r *Runner) Run(ctx context.Context, queries []query.Prepared, onRow func(Row) error) (res Result, err error) {
	res.Started = r.now()
	defer func() {
		res.Duration = r.now().Sub(res.Started)
	}()

	tx, err := r.session.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to begin unit of work: %w", err)
	}

	defer func() {
		if err != nil {
			// Rollback must run even when ctx is what failed
			rbErr := tx.Rollback(context.WithoutCancel(ctx))
			if rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Warn().Err(rbErr).Str("database", r.session.Database()).Msg("Failed to roll back unit of work")
			}
		}
		r.reporter.Idle()
	}()

	for _, q := range queries {
		r.reporter.Running(q.Text)

		open, delivered, qErr := r.execute(ctx, tx, q, onRow)
		res.Rows += delivered
		if qErr != nil {
			return res, fmt.Errorf("query %s failed: %w", q.Name, qErr)
		}
		res.Executed++

		if q.Gate && !open {
			res.Gated = true
			break
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("failed to commit unit of work: %w", err)
	}

	return res, nil
}

func (r *Runner) execute(ctx context.Context, tx Tx, q query.Prepared, onRow func(Row) error) (open bool, delivered int, err error) {
	rows, err := tx.Query(ctx, q.Text)
	if err != nil {
		return false, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return open, delivered, err
		}

		row := Row{Query: q.Name, Values: values}
		if q.Gate {
			open = open || row.Bool()
			continue
		}

		delivered++
		if onRow != nil {
			if err := onRow(row); err != nil {
				return open, delivered, err
			}
		}
	}

	rows.Close()
	if err := rows.Err(); err != nil {
		return open, delivered, err
	}

	if tag := rows.CommandTag(); !tag.Select() {
		return open, delivered, fmt.Errorf("%w: %q", ErrUnexpectedResult, tag.String())
	}

	return open, delivered, nil
}
