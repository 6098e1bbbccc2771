package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// InsertRawEventParams mirrors the fields required to insert a row into
// raw_events.
type InsertRawEventParams struct {
	EventID      pgtype.UUID
	TraceID      pgtype.UUID
	Producer     string
	Actor        string
	AppUUID      pgtype.UUID
	EventType    string
	EventTS      time.Time
	AnonUserID   string
	DeviceIDHash string
	SessionID    string
	SDKVersion   pgtype.Text
	EventVersion pgtype.Text
	GeoLat       pgtype.Float8
	GeoLon       pgtype.Float8
	GeoAccuracyM pgtype.Float8
	GeoSource    pgtype.Text
	Payload      json.RawMessage
	Context      json.RawMessage
	RawDocument  json.RawMessage
}

// InsertRawEvent writes one raw_events row. Dedup on (app_uuid,
// event_id) is enforced by the partial unique index; ON CONFLICT DO
// NOTHING RETURNING with a zero-row result signals a duplicate.
func (q *Queries) InsertRawEvent(ctx context.Context, p InsertRawEventParams) (RawEvent, bool, error) {
	const query = `
		INSERT INTO raw_events (
			event_id, trace_id, producer, actor, app_uuid, event_type, event_ts,
			anon_user_id, device_id_hash, session_id, sdk_version, event_version,
			geo_lat, geo_lon, geo_accuracy_m, geo_source, payload, context, raw_document
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (app_uuid, event_id) WHERE event_id IS NOT NULL DO NOTHING
		RETURNING id, received_at`

	var row RawEvent
	row.EventID, row.TraceID, row.Producer, row.Actor, row.AppUUID = p.EventID, p.TraceID, p.Producer, p.Actor, p.AppUUID
	row.EventType, row.EventTS = p.EventType, p.EventTS
	row.AnonUserID, row.DeviceIDHash, row.SessionID = p.AnonUserID, p.DeviceIDHash, p.SessionID
	row.SDKVersion, row.EventVersion = p.SDKVersion, p.EventVersion
	row.GeoLat, row.GeoLon, row.GeoAccuracyM, row.GeoSource = p.GeoLat, p.GeoLon, p.GeoAccuracyM, p.GeoSource
	row.Payload, row.Context, row.RawDocument = p.Payload, p.Context, p.RawDocument

	err := q.db.QueryRow(ctx, query,
		p.EventID, p.TraceID, p.Producer, p.Actor, p.AppUUID, p.EventType, p.EventTS,
		p.AnonUserID, p.DeviceIDHash, p.SessionID, p.SDKVersion, p.EventVersion,
		p.GeoLat, p.GeoLon, p.GeoAccuracyM, p.GeoSource, p.Payload, p.Context, p.RawDocument,
	).Scan(&row.ID, &row.ReceivedAt)
	if err != nil {
		if isNoRows(err) {
			return RawEvent{}, false, nil
		}
		return RawEvent{}, false, err
	}
	return row, true, nil
}

// InsertOutboxEventParams mirrors the fields required to insert a row
// into outbox_events.
type InsertOutboxEventParams struct {
	AppUUID    pgtype.UUID
	EventID    pgtype.UUID
	TraceID    pgtype.UUID
	OccurredAt time.Time
	RoutingKey string
	Payload    json.RawMessage
}

// InsertOutboxEvent writes one outbox_events row in the pending state,
// silently skipping an already-present (app_uuid, event_id, routing_key)
// combination via the table's unique index.
func (q *Queries) InsertOutboxEvent(ctx context.Context, p InsertOutboxEventParams) error {
	const query = `
		INSERT INTO outbox_events (app_uuid, event_id, trace_id, occurred_at, routing_key, payload)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (app_uuid, event_id, routing_key) WHERE event_id IS NOT NULL DO NOTHING`

	_, err := q.db.Exec(ctx, query, p.AppUUID, p.EventID, p.TraceID, p.OccurredAt, p.RoutingKey, p.Payload)
	return err
}
