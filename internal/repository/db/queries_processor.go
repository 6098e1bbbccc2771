package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// InsertProcessedEvent records (consumer, app_uuid, event_id) in the
// idempotency ledger, returning false when the row already existed —
// the at-least-once de-duplication gate the processor checks before
// dispatching to any family handler.
func (q *Queries) InsertProcessedEvent(ctx context.Context, consumer string, appUUID, eventID pgtype.UUID) (bool, error) {
	const query = `
		INSERT INTO processed_events (consumer, app_uuid, event_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (consumer, app_uuid, event_id) DO NOTHING`
	tag, err := q.db.Exec(ctx, query, consumer, appUUID, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// HourlyPresenceUpsertParams carries a single geo ping's derived fields
// for either presence table.
type HourlyPresenceUpsertParams struct {
	AppUUID           pgtype.UUID
	HourBucket        time.Time
	EntityID          string
	EventTS           time.Time
	GeoPrecisionClass string
	H3R7, H3R9, H3R11 pgtype.Text
	PlaceID           pgtype.Text
	CountryCode       pgtype.Text
	ProvinceCode      pgtype.Text
	MunicipalityCode  pgtype.Text
	SectorCode        pgtype.Text
}

// UpsertDeviceHourlyPresence applies the precision-monotonic upsert
// policy: on conflict, geo dimensions are overwritten only when the
// incoming precision is strictly better than the stored one, and
// first_event_ts always takes the min of old and new. Returns
// true when a new row was inserted (the agg tables' increment gate).
func (q *Queries) UpsertDeviceHourlyPresence(ctx context.Context, p HourlyPresenceUpsertParams) (bool, error) {
	return q.upsertPresence(ctx, "device_hourly_presence", "device_id_hash", p)
}

// UpsertUserHourlyPresence is UpsertDeviceHourlyPresence for
// user_hourly_presence, keyed by anon_user_id instead of device_id_hash.
func (q *Queries) UpsertUserHourlyPresence(ctx context.Context, p HourlyPresenceUpsertParams) (bool, error) {
	return q.upsertPresence(ctx, "user_hourly_presence", "anon_user_id", p)
}

func (q *Queries) upsertPresence(ctx context.Context, table, entityColumn string, p HourlyPresenceUpsertParams) (bool, error) {
	query := `
		INSERT INTO ` + table + ` (
			app_uuid, hour_bucket, ` + entityColumn + `, first_event_ts,
			geo_precision_class, h3_r7, h3_r9, h3_r11,
			place_id, country_code, province_code, municipality_code, sector_code
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (app_uuid, hour_bucket, ` + entityColumn + `) DO UPDATE SET
			first_event_ts = LEAST(` + table + `.first_event_ts, EXCLUDED.first_event_ts),
			geo_precision_class = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.geo_precision_class ELSE ` + table + `.geo_precision_class END,
			h3_r7 = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.h3_r7 ELSE ` + table + `.h3_r7 END,
			h3_r9 = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.h3_r9 ELSE ` + table + `.h3_r9 END,
			h3_r11 = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.h3_r11 ELSE ` + table + `.h3_r11 END,
			place_id = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.place_id ELSE ` + table + `.place_id END,
			country_code = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.country_code ELSE ` + table + `.country_code END,
			province_code = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.province_code ELSE ` + table + `.province_code END,
			municipality_code = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.municipality_code ELSE ` + table + `.municipality_code END,
			sector_code = CASE WHEN (` + precisionRankCaseFor("EXCLUDED") + `) > (` + precisionRankCaseFor(table) + `)
				THEN EXCLUDED.sector_code ELSE ` + table + `.sector_code END
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := q.db.QueryRow(ctx, query,
		p.AppUUID, p.HourBucket, p.EntityID, p.EventTS,
		p.GeoPrecisionClass, p.H3R7, p.H3R9, p.H3R11,
		p.PlaceID, p.CountryCode, p.ProvinceCode, p.MunicipalityCode, p.SectorCode,
	).Scan(&inserted)
	return inserted, err
}

func precisionRankCaseFor(alias string) string {
	return `CASE ` + alias + `.geo_precision_class WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END`
}

// UpsertLicenseStateParams carries one license event's fields.
type UpsertLicenseStateParams struct {
	AppUUID       pgtype.UUID
	AnonUserID    string
	PlanType      pgtype.Text
	LicenseStatus pgtype.Text
	StartedAt     pgtype.Timestamptz
	RenewedAt     pgtype.Timestamptz
	ExpiresAt     pgtype.Timestamptz
	EventTS       time.Time
}

// UpsertLicenseState applies the event-time update gate: the row is
// overwritten only if the incoming event_ts is at or after the stored
// updated_at (last-writer-wins by event time, not by arrival time).
// Returns whether the row was actually written, so callers can skip
// mirroring a rejected late-arriving update into customer_360.
func (q *Queries) UpsertLicenseState(ctx context.Context, p UpsertLicenseStateParams) (bool, error) {
	const query = `
		INSERT INTO license_state (
			app_uuid, anon_user_id, plan_type, license_status, started_at, renewed_at, expires_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (app_uuid, anon_user_id) DO UPDATE SET
			plan_type = EXCLUDED.plan_type,
			license_status = EXCLUDED.license_status,
			started_at = COALESCE(EXCLUDED.started_at, license_state.started_at),
			renewed_at = COALESCE(EXCLUDED.renewed_at, license_state.renewed_at),
			expires_at = COALESCE(EXCLUDED.expires_at, license_state.expires_at),
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.updated_at >= license_state.updated_at`
	tag, err := q.db.Exec(ctx, query,
		p.AppUUID, p.AnonUserID, p.PlanType, p.LicenseStatus, p.StartedAt, p.RenewedAt, p.ExpiresAt, p.EventTS)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementAggH3Hourly increments the h3-r9 hourly activity counter,
// inserting a fresh zero-based row on first sight.
func (q *Queries) IncrementAggH3Hourly(ctx context.Context, appUUID pgtype.UUID, hourBucket time.Time, h3R9 string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO agg_h3_r9_hourly (app_uuid, hour_bucket, h3_r9, count)
		VALUES ($1,$2,$3,1)
		ON CONFLICT (app_uuid, hour_bucket, h3_r9) DO UPDATE SET count = agg_h3_r9_hourly.count + 1`,
		appUUID, hourBucket, h3R9)
	return err
}

// IncrementAggPlaceHourly increments the place hourly activity counter.
func (q *Queries) IncrementAggPlaceHourly(ctx context.Context, appUUID pgtype.UUID, hourBucket time.Time, placeID string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO agg_place_hourly (app_uuid, hour_bucket, place_id, count)
		VALUES ($1,$2,$3,1)
		ON CONFLICT (app_uuid, hour_bucket, place_id) DO UPDATE SET count = agg_place_hourly.count + 1`,
		appUUID, hourBucket, placeID)
	return err
}

// IncrementAggAdminHourly increments the admin-area hourly activity counter.
func (q *Queries) IncrementAggAdminHourly(ctx context.Context, appUUID pgtype.UUID, hourBucket time.Time, adminID string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO agg_admin_hourly (app_uuid, hour_bucket, admin_id, count)
		VALUES ($1,$2,$3,1)
		ON CONFLICT (app_uuid, hour_bucket, admin_id) DO UPDATE SET count = agg_admin_hourly.count + 1`,
		appUUID, hourBucket, adminID)
	return err
}

// TouchCustomer360 refreshes the customer-level rollup after any event,
// keyed by (app_uuid, anon_user_id); counters are incremented by the
// caller's classification of the event family.
type TouchCustomer360Params struct {
	AppUUID         pgtype.UUID
	AnonUserID      string
	EventTS         time.Time
	EventType       string
	GeoH3R9         pgtype.Text
	GeoPlaceID      pgtype.Text
	GeoCountryCode  pgtype.Text
	IncGeoEvents    int64
	IncLicenseEvent int64
	// IncDeviceHours/IncUserHours are the distinct device-hour/user-hour
	// rolling counters: the caller sets these to 1 only when the
	// corresponding presence upsert inserted a fresh row (the same delta
	// gate the agg_*_hourly counters use), never on an update of an
	// existing presence row.
	IncDeviceHours int64
	IncUserHours   int64
}

// last_event_type and the three last_geo_* columns only ever move
// forward in event time: a redelivered or out-of-order older ping must
// not regress the customer's last-known activity or location, so every
// one of those columns is gated on EXCLUDED.last_event_ts >=
// customer_360.last_event_ts, mirroring the counters that are additive
// regardless of arrival order.
func (q *Queries) TouchCustomer360(ctx context.Context, p TouchCustomer360Params) error {
	const query = `
		INSERT INTO customer_360 (
			app_uuid, anon_user_id, first_seen, last_seen, last_event_type, last_event_ts,
			last_geo_h3_r9, last_geo_place_id, last_geo_country_code,
			geo_events_count, license_events_count, device_hours_count, user_hours_count
		) VALUES ($1,$2,$3,$3,$4,$3,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (app_uuid, anon_user_id) DO UPDATE SET
			first_seen = LEAST(customer_360.first_seen, EXCLUDED.first_seen),
			last_seen = GREATEST(customer_360.last_seen, EXCLUDED.last_seen),
			last_event_type = CASE WHEN customer_360.last_event_ts IS NULL OR EXCLUDED.last_event_ts >= customer_360.last_event_ts
				THEN EXCLUDED.last_event_type ELSE customer_360.last_event_type END,
			last_event_ts = GREATEST(customer_360.last_event_ts, EXCLUDED.last_event_ts),
			last_geo_h3_r9 = CASE WHEN customer_360.last_event_ts IS NULL OR EXCLUDED.last_event_ts >= customer_360.last_event_ts
				THEN COALESCE(EXCLUDED.last_geo_h3_r9, customer_360.last_geo_h3_r9) ELSE customer_360.last_geo_h3_r9 END,
			last_geo_place_id = CASE WHEN customer_360.last_event_ts IS NULL OR EXCLUDED.last_event_ts >= customer_360.last_event_ts
				THEN COALESCE(EXCLUDED.last_geo_place_id, customer_360.last_geo_place_id) ELSE customer_360.last_geo_place_id END,
			last_geo_country_code = CASE WHEN customer_360.last_event_ts IS NULL OR EXCLUDED.last_event_ts >= customer_360.last_event_ts
				THEN COALESCE(EXCLUDED.last_geo_country_code, customer_360.last_geo_country_code) ELSE customer_360.last_geo_country_code END,
			geo_events_count = customer_360.geo_events_count + EXCLUDED.geo_events_count,
			license_events_count = customer_360.license_events_count + EXCLUDED.license_events_count,
			device_hours_count = customer_360.device_hours_count + EXCLUDED.device_hours_count,
			user_hours_count = customer_360.user_hours_count + EXCLUDED.user_hours_count`
	_, err := q.db.Exec(ctx, query,
		p.AppUUID, p.AnonUserID, p.EventTS, p.EventType,
		p.GeoH3R9, p.GeoPlaceID, p.GeoCountryCode,
		p.IncGeoEvents, p.IncLicenseEvent, p.IncDeviceHours, p.IncUserHours)
	return err
}

// SyncCustomer360License mirrors a license_state change into
// customer_360's denormalized license columns.
func (q *Queries) SyncCustomer360License(ctx context.Context, p UpsertLicenseStateParams) error {
	const query = `
		INSERT INTO customer_360 (app_uuid, anon_user_id, license_plan_type, license_status, license_expires_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (app_uuid, anon_user_id) DO UPDATE SET
			license_plan_type = EXCLUDED.license_plan_type,
			license_status = EXCLUDED.license_status,
			license_expires_at = EXCLUDED.license_expires_at`
	_, err := q.db.Exec(ctx, query, p.AppUUID, p.AnonUserID, p.PlanType, p.LicenseStatus, p.ExpiresAt)
	return err
}
