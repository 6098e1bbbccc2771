// Package db is the data-access layer for raw_events, outbox_events,
// processed_events, the presence/license/customer tables, and the geo
// reference tables. Follows the sqlc-generated package shape
// (db.DBTX, db.New, db.Queries, one file per query group), hand-authored
// against the call sites in internal/ingest, internal/outboxpub, and
// internal/processor.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries implements Querier against any DBTX — a pool for read paths,
// a transaction for the write paths that must stay atomic with an
// outbox insert.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}
