package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConnector hands out connections from a pgx pool
type PostgresConnector struct {
	pool *pgxpool.Pool
}

// NewPostgresConnector creates a connection pool and verifies it with a ping
func NewPostgresConnector(ctx context.Context, databaseURL string) (*PostgresConnector, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresConnector{pool: pool}, nil
}

// Acquire checks out one pooled connection; callers must Release it
func (c *PostgresConnector) Acquire(ctx context.Context) (Conn, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, &QueryError{Kind: KindTransport, Err: fmt.Errorf("failed to acquire connection: %w", err)}
	}
	return &pgConn{conn: conn}, nil
}

// Ping checks database connectivity
func (c *PostgresConnector) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close closes the pool
func (c *PostgresConnector) Close() {
	c.pool.Close()
}

type pgConn struct {
	conn *pgxpool.Conn
}

func (c *pgConn) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, &QueryError{Kind: classifyPgError(err), Err: err}
	}
	return &pgRows{rows: rows}, nil
}

func (c *pgConn) Release() {
	c.conn.Release()
}

type pgRows struct {
	rows pgx.Rows
}

func (r *pgRows) Next() bool             { return r.rows.Next() }
func (r *pgRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgRows) Close()                 { r.rows.Close() }

func (r *pgRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return &QueryError{Kind: classifyPgError(err), Err: err}
	}
	return nil
}

// classifyPgError separates server-side statement errors from connectivity failures
func classifyPgError(err error) ErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return KindQuery
	}
	return KindTransport
}
