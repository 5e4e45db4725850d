package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DB is a handle to a DuckDB database. There is only ever one writer per
// pipeline run, so connections are scoped resources: acquired once, used for
// the run, and closed on completion or failure.
type DB interface {
	Path() string
	Close() error
	Conn(ctx context.Context) (Connection, error)
}

type Connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type duckDB struct {
	log    *slog.Logger
	dbPath string
	db     *sql.DB
}

type duckDBConn struct {
	conn *sql.Conn
}

// NewDB opens (creating if necessary) the DuckDB database at dbPath. An empty
// path opens an in-memory database, which is how the tests run.
func NewDB(ctx context.Context, dbPath string, log *slog.Logger) (DB, error) {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify the connection works before handing the handle out.
	var database string
	if err := db.QueryRowContext(ctx, "SELECT current_database()").Scan(&database); err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	log.Debug("opened database", "path", dbPath, "database", database)

	return &duckDB{
		log:    log,
		dbPath: dbPath,
		db:     db,
	}, nil
}

func (d *duckDB) Path() string {
	return d.dbPath
}

func (d *duckDB) Close() error {
	return d.db.Close()
}

func (d *duckDB) Conn(ctx context.Context) (Connection, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	return &duckDBConn{conn: conn}, nil
}

func (c *duckDBConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *duckDBConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *duckDBConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *duckDBConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.conn.BeginTx(ctx, opts)
}

func (c *duckDBConn) Close() error {
	return c.conn.Close()
}
