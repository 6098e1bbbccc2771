package db

import (
	"context"
)

// IsOptedOut reports whether (app_uuid, anon_user_id) appears in the
// opt_out registry.
func (q *Queries) IsOptedOut(ctx context.Context, appUUID, anonUserID string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM opt_out WHERE app_uuid = $1 AND anon_user_id = $2)`,
		appUUID, anonUserID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// UpsertOptOut idempotently records an opt-out registration.
func (q *Queries) UpsertOptOut(ctx context.Context, appUUID, anonUserID string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO opt_out (app_uuid, anon_user_id)
		VALUES ($1, $2)
		ON CONFLICT (app_uuid, anon_user_id) DO NOTHING`,
		appUUID, anonUserID)
	return err
}

// ListDeviceHashesForUser resolves the distinct device hashes a user's
// raw events were recorded under. device_hourly_presence is keyed by
// device_id_hash, not anon_user_id, so a privacy delete must resolve
// the affected devices before it removes the raw_events rows.
func (q *Queries) ListDeviceHashesForUser(ctx context.Context, appUUID, anonUserID string) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT DISTINCT device_id_hash FROM raw_events
		WHERE app_uuid = $1 AND anon_user_id = $2`, appUUID, anonUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteRawEventsForUser removes a user's raw events, returning the row count.
func (q *Queries) DeleteRawEventsForUser(ctx context.Context, appUUID, anonUserID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM raw_events WHERE app_uuid = $1 AND anon_user_id = $2`, appUUID, anonUserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteLicenseStateForUser removes a user's license snapshot.
func (q *Queries) DeleteLicenseStateForUser(ctx context.Context, appUUID, anonUserID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM license_state WHERE app_uuid = $1 AND anon_user_id = $2`, appUUID, anonUserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteDeviceHourlyPresenceForDevices removes presence facts for the
// given device hashes.
func (q *Queries) DeleteDeviceHourlyPresenceForDevices(ctx context.Context, appUUID string, deviceHashes []string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM device_hourly_presence
		WHERE app_uuid = $1 AND device_id_hash = ANY($2)`, appUUID, deviceHashes)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteUserHourlyPresenceForUser removes a user's presence facts.
func (q *Queries) DeleteUserHourlyPresenceForUser(ctx context.Context, appUUID, anonUserID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM user_hourly_presence WHERE app_uuid = $1 AND anon_user_id = $2`, appUUID, anonUserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteCustomer360ForUser removes a user's customer rollup row.
func (q *Queries) DeleteCustomer360ForUser(ctx context.Context, appUUID, anonUserID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM customer_360 WHERE app_uuid = $1 AND anon_user_id = $2`, appUUID, anonUserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteOptOut removes a user's opt-out registration.
func (q *Queries) DeleteOptOut(ctx context.Context, appUUID, anonUserID string) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM opt_out WHERE app_uuid = $1 AND anon_user_id = $2`, appUUID, anonUserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
