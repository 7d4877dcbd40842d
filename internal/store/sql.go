package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/seantiz/vexing/internal/bounded"
	"github.com/seantiz/vexing/internal/deadline"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

const createStoredRequestsTable = `
CREATE TABLE IF NOT EXISTS stored_requests (
    kind       TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (kind, id)
)`

// Compile-time interface satisfaction check.
var _ Store = (*Client)(nil)

// Client wraps a database/sql pool. Queries issued through Query are bounded
// by a deadline.
type Client struct {
	db     *sql.DB
	driver string
	runner *bounded.Runner
}

// Open connects to the database identified by driver and dsn and runs migrations.
func Open(ctx context.Context, driver, dsn string, runner *bounded.Runner) (*Client, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if runner == nil {
		runner = bounded.NewRunner(nil, nil)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		// An in-memory database exists per connection, and SQLite serialises
		// writers anyway.
		db.SetMaxOpenConns(1)

		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}

	c := &Client{db: db, driver: driver, runner: runner}
	if err := c.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Migrate creates the schema if it does not exist.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, createStoredRequestsTable); err != nil {
		return fmt.Errorf("create stored_requests table: %w", err)
	}
	return nil
}

// Initialize acquires and releases one connection to prove the pool is usable.
func (c *Client) Initialize(ctx context.Context) error {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Ping checks database connectivity within d.
func (c *Client) Ping(ctx context.Context, d deadline.Deadline) error {
	_, err := bounded.Run(ctx, c.runner, d, "database ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.db.PingContext(ctx)
	})
	return err
}

// Driver returns the database/sql driver name.
func (c *Client) Driver() string {
	return c.driver
}

// Close closes the underlying pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Rebind rewrites ? placeholders into the driver's native form.
func (c *Client) Rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Placeholders returns n comma-separated ? placeholders for an IN list.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// RowMapper converts a result set into a caller type. It must not close rows.
type RowMapper[T any] func(rows *sql.Rows) (T, error)

// Query acquires a connection, executes statement with params and maps the
// rows through mapper, all within d. Statements use ? placeholders.
//
// An expired deadline fails with a *bounded.TimeoutError before a connection is
// requested. Connection, query and mapping errors are returned as produced.
func Query[T any](ctx context.Context, c *Client, d deadline.Deadline, statement string, params []any, mapper RowMapper[T]) (T, error) {
	statement = c.Rebind(statement)
	return bounded.Run(ctx, c.runner, d, "SQL query", func(ctx context.Context) (T, error) {
		var zero T

		conn, err := c.db.Conn(ctx)
		if err != nil {
			return zero, err
		}
		defer conn.Close()

		rows, err := conn.QueryContext(ctx, statement, params...)
		if err != nil {
			return zero, err
		}
		defer rows.Close()

		v, err := mapper(rows)
		if err != nil {
			return zero, err
		}
		if err := rows.Err(); err != nil {
			return zero, err
		}
		return v, nil
	})
}
