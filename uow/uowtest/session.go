// Package uowtest provides an in-memory uow.Session for tests.
package uowtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maxpert/slotsync/uow"
)

// Response is what the session returns for one query
type Response struct {
	Rows    [][]any
	Tag     string // Defaults to "SELECT <n>"
	Err     error  // Returned by Query
	RowsErr error  // Returned by Rows.Err after iteration
}

// Session records every call and answers queries through Respond
type Session struct {
	DB        string
	BeginErr  error
	CommitErr error
	Respond   func(sql string) Response

	mu        sync.Mutex
	queries   []string
	begins    int
	commits   int
	rollbacks int
	open      int
	closed    bool
}

// NewSession creates a session answering every query with resp
func NewSession(db string, resp func(sql string) Response) *Session {
	return &Session{DB: db, Respond: resp}
}

// Rows is a shorthand for single column rows
func Rows(values ...any) [][]any {
	rows := make([][]any, len(values))
	for i, v := range values {
		rows[i] = []any{v}
	}
	return rows
}

func (s *Session) Begin(ctx context.Context) (uow.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.BeginErr != nil {
		return nil, s.BeginErr
	}
	s.begins++
	s.open++
	return &tx{s: s}, nil
}

func (s *Session) Database() string {
	return s.DB
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Queries returns the SQL text of every executed query in order
func (s *Session) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Begins returns the number of transactions started
func (s *Session) Begins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins
}

// Commits returns the number of committed transactions
func (s *Session) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Rollbacks returns the number of rolled back transactions
func (s *Session) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

// Open returns the number of transactions neither committed nor rolled back
func (s *Session) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Closed reports whether Close was called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type tx struct {
	s    *Session
	done bool
}

func (t *tx) Query(ctx context.Context, sql string) (uow.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.s.mu.Lock()
	t.s.queries = append(t.s.queries, sql)
	respond := t.s.Respond
	t.s.mu.Unlock()

	var resp Response
	if respond != nil {
		resp = respond(sql)
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	tag := resp.Tag
	if tag == "" {
		tag = fmt.Sprintf("SELECT %d", len(resp.Rows))
	}
	return &rows{data: resp.Rows, err: resp.RowsErr, tag: pgconn.NewCommandTag(tag), pos: -1}, nil
}

func (t *tx) Commit(ctx context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.done {
		return fmt.Errorf("tx is closed")
	}
	t.done = true
	t.s.open--
	if t.s.CommitErr != nil {
		t.s.rollbacks++
		return t.s.CommitErr
	}
	t.s.commits++
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.done {
		return nil
	}
	t.done = true
	t.s.open--
	t.s.rollbacks++
	return nil
}

type rows struct {
	data [][]any
	err  error
	tag  pgconn.CommandTag
	pos  int
}

func (r *rows) Next() bool {
	if r.pos+1 >= len(r.data) {
		r.pos = len(r.data)
		return false
	}
	r.pos++
	return true
}

func (r *rows) Values() ([]any, error) {
	return r.data[r.pos], nil
}

func (r *rows) Err() error {
	if r.pos >= len(r.data) {
		return r.err
	}
	return nil
}

func (r *rows) Close() {}

func (r *rows) CommandTag() pgconn.CommandTag {
	return r.tag
}
