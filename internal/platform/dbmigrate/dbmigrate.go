// Package dbmigrate applies the authoritative schema migration at ingest
// boot, behind a Postgres advisory lock. Ingest is the only component
// that runs DDL; the outbox publisher and processor only assert that the
// schema is present.
package dbmigrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// advisoryLockID is an arbitrary constant shared by every ingest replica
// so only one at a time runs migrations; the others block until it
// releases the lock, then see the schema already applied.
const advisoryLockID = 0x53454e54 // "SENT"

// EnsureSchema runs every pending goose migration embedded in this
// package, holding a session-level advisory lock for the duration so
// concurrent ingest replicas never race on DDL.
func EnsureSchema(ctx context.Context, pgURL string) error {
	db, err := sql.Open("pgx", pgURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	defer conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "sql"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// AssertSchema is the read-only existence check the outbox publisher and
// processor use instead of EnsureSchema — they never run DDL themselves.
func AssertSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `SELECT to_regclass('public.outbox_events')`
	var tbl *string
	if err := pool.QueryRow(ctx, q).Scan(&tbl); err != nil {
		return fmt.Errorf("assert schema: %w", err)
	}
	if tbl == nil {
		return fmt.Errorf("assert schema: outbox_events table missing — has ingest run its migrations?")
	}
	return nil
}
