// Package sqlite is the crawshaw.io/sqlite-backed implementation of the
// db package's storage interfaces. It is grounded on
// caasmo/restinpieces/db/crawshaw: a read pool for concurrent lookups plus
// a single dedicated writer connection serialized through a channel, which
// stands in for Postgres's row-level locking (spec.md §4.D, §9 "Claim
// semantics").
package sqlite

import (
	"context"
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Db is the shared connection manager for every store in this package.
// Reads go through the pool; writes that need BEGIN IMMEDIATE semantics
// (the idempotency claim, the delivery-queue claim) go through the single
// writer connection handed out by takeWriter/putWriter, so at most one
// write transaction is ever open at a time — the SQLite analogue of the
// Postgres row lock the spec assumes.
type Db struct {
	pool   *sqlitex.Pool
	writer chan *sqlite.Conn
}

// New opens (creating if necessary) the SQLite database at path in WAL
// mode and returns a Db ready for use by the stores in this package.
func New(path string) (*Db, error) {
	initString := fmt.Sprintf("file:%s", path)
	pool, err := sqlitex.Open(initString, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open pool: %w", err)
	}

	writerConn := pool.Get(nil)
	if writerConn == nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: failed to reserve writer connection")
	}
	if err := sqlitex.ExecTransient(writerConn, "PRAGMA busy_timeout = 5000;", nil); err != nil {
		pool.Put(writerConn)
		pool.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	writer := make(chan *sqlite.Conn, 1)
	writer <- writerConn

	return &Db{pool: pool, writer: writer}, nil
}

// Close releases all pooled connections, including the writer.
func (d *Db) Close() error {
	return d.pool.Close()
}

// takeWriter blocks until the single writer connection is available or ctx
// is done.
func (d *Db) takeWriter(ctx context.Context) (*sqlite.Conn, error) {
	select {
	case conn := <-d.writer:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// putWriter returns the writer connection so the next claimant can take
// it.
func (d *Db) putWriter(conn *sqlite.Conn) {
	d.writer <- conn
}

// takeReader borrows a read-pool connection for the duration of fn.
func (d *Db) takeReader(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn := d.pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer d.pool.Put(conn)
	return fn(conn)
}
