package uow

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maxpert/slotsync/cfg"
)

// Connector opens a session to database
type Connector func(ctx context.Context, database string) (Session, error)

// PgxSession is a Session over a single connection
type PgxSession struct {
	conn     *pgx.Conn
	database string
}

// Connect opens a connection to database using the DSN of pg. The connection
// is tagged with application name so it can be found in pg_stat_activity.
func Connect(ctx context.Context, pg cfg.PostgresConfiguration, database, applicationName string) (*PgxSession, error) {
	config, err := pgx.ParseConfig(pg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}

	if database != "" {
		config.Database = database
	}
	if applicationName != "" {
		config.RuntimeParams["application_name"] = applicationName
	}
	if pg.ConnectTimeoutSeconds > 0 {
		config.ConnectTimeout = time.Duration(pg.ConnectTimeoutSeconds) * time.Second
	}

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", config.Database, err)
	}

	return &PgxSession{conn: conn, database: config.Database}, nil
}

// PgxConnector returns a Connector for the named worker. settings is read on
// every connect so reconnects pick up reloaded Postgres configuration.
func PgxConnector(settings func() cfg.PostgresConfiguration, worker string) Connector {
	return func(ctx context.Context, database string) (Session, error) {
		pg := settings()
		s, err := Connect(ctx, pg, database, ApplicationName(pg, worker))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// ApplicationName is the application_name a worker reports to the server
func ApplicationName(pg cfg.PostgresConfiguration, worker string) string {
	if pg.ApplicationName == "" {
		return worker
	}
	return pg.ApplicationName + "/" + worker
}

// Begin starts a repeatable read transaction; its snapshot is shared by every
// query of the unit of work
func (s *PgxSession) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

// Database returns the connected database name
func (s *PgxSession) Database() string {
	return s.database
}

// Close closes the connection
func (s *PgxSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Query(ctx context.Context, sql string) (Rows, error) {
	rows, err := t.tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
