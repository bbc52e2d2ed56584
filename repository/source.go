package repository

import (
	"context"
	"errors"
	"fmt"
)

// Connector hands out scoped connections to the frequency store.
// PostgresConnector and SQLiteConnector implement it.
type Connector interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close()
}

// Conn is a single connection checked out for the duration of one query
type Conn interface {
	Query(ctx context.Context, query string) (Rows, error)
	Release()
}

// Rows iterates positional result columns
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// ErrNoResults is returned when a query succeeds but yields zero rows
var ErrNoResults = errors.New("no results")

// ErrorKind classifies why a load failed
type ErrorKind string

const (
	// KindTransport covers connection acquisition and connectivity failures
	KindTransport ErrorKind = "transport"
	// KindQuery means the database rejected the statement
	KindQuery ErrorKind = "query"
	// KindDecode means a row could not be converted to the response shape
	KindDecode ErrorKind = "decode"
)

// QueryError wraps a failed load with its table and kind
type QueryError struct {
	Kind  ErrorKind
	Table string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s error loading %s: %v", e.Kind, e.Table, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
