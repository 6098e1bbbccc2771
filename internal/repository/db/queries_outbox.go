package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// LeaseOutboxEvents selects up to limit pending unleased rows due for
// delivery, locking them with FOR UPDATE SKIP LOCKED and stamping
// locked_at so a concurrent publisher replica cannot pick up the same
// rows. A row stays leased until its finalizer or the stale-lease
// reaper clears locked_at.
func (q *Queries) LeaseOutboxEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	const query = `
		WITH leased AS (
			SELECT id FROM outbox_events
			WHERE status = 'pending' AND next_attempt_at <= now() AND locked_at IS NULL
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o
		SET locked_at = now()
		FROM leased
		WHERE o.id = leased.id
		RETURNING o.id, o.created_at, o.locked_at, o.app_uuid, o.event_id, o.trace_id,
			o.occurred_at, o.routing_key, o.payload, o.status, o.retries,
			o.next_attempt_at, o.last_error`

	rows, err := q.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var r OutboxEvent
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.LockedAt, &r.AppUUID, &r.EventID, &r.TraceID,
			&r.OccurredAt, &r.RoutingKey, &r.Payload, &r.Status, &r.Retries,
			&r.NextAttemptAt, &r.LastError); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkOutboxSent finalizes a successfully published row.
func (q *Queries) MarkOutboxSent(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `
		UPDATE outbox_events SET status = 'sent', locked_at = NULL WHERE id = $1`, id)
	return err
}

// MarkOutboxFailed records a transient publish failure, releasing the
// lease and scheduling the next attempt per the caller's backoff policy.
func (q *Queries) MarkOutboxFailed(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE outbox_events
		SET locked_at = NULL, retries = retries + 1, next_attempt_at = $2, last_error = $3
		WHERE id = $1`, id, nextAttemptAt, pgtype.Text{String: lastError, Valid: true})
	return err
}

// MarkOutboxDead marks a row permanently failed (retry cap exceeded or a
// publish error classified permanent).
func (q *Queries) MarkOutboxDead(ctx context.Context, id int64, lastError string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'failed', locked_at = NULL, last_error = $2
		WHERE id = $1`, id, pgtype.Text{String: lastError, Valid: true})
	return err
}

// ReapStaleLeases re-admits rows whose lease has outlived the configured
// timeout to the next lease query, tolerating a publisher killed
// mid-lease.
func (q *Queries) ReapStaleLeases(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE outbox_events
		SET locked_at = NULL
		WHERE status = 'pending' AND locked_at IS NOT NULL AND locked_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
