package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
)

// SQLiteConnector hands out connections from a database/sql pool backed by SQLite
type SQLiteConnector struct {
	db *sql.DB
}

// NewSQLiteConnector opens a SQLite database connection
func NewSQLiteConnector(ctx context.Context, dbPath string) (*SQLiteConnector, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLiteConnectorFromDB(db), nil
}

// NewSQLiteConnectorFromDB wraps an already opened database
func NewSQLiteConnectorFromDB(db *sql.DB) *SQLiteConnector {
	return &SQLiteConnector{db: db}
}

// Acquire checks out one connection from the pool; callers must Release it
func (c *SQLiteConnector) Acquire(ctx context.Context) (Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, &QueryError{Kind: KindTransport, Err: fmt.Errorf("failed to acquire connection: %w", err)}
	}
	return &sqlConn{conn: conn}, nil
}

// Ping checks database connectivity
func (c *SQLiteConnector) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database
func (c *SQLiteConnector) Close() {
	c.db.Close()
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Kind: classifySQLiteError(err), Err: err}
	}
	return &sqlRows{rows: rows}, nil
}

func (c *sqlConn) Release() {
	c.conn.Close()
}

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Close()                 { r.rows.Close() }

func (r *sqlRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return &QueryError{Kind: classifySQLiteError(err), Err: err}
	}
	return nil
}

func classifySQLiteError(err error) ErrorKind {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return KindQuery
	}
	return KindTransport
}
