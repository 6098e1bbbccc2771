// Package ingest implements the event ingest front-end: envelope
// validation, opt-out enforcement, and the atomic raw_event+outbox
// write, with no broker contact.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/optout"
	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
	"github.com/arc-self/sentinel-pipeline/internal/routing"
	"github.com/arc-self/sentinel-pipeline/internal/validation"
)

// ItemResult is one batch item's outcome, the shape behind the
// `rejected[]` entries of the /v1/events response.
type ItemResult struct {
	Index   int
	Code    string
	Message string
}

// BatchResult is the full /v1/events response body shape. Deduped has
// one entry per submitted item; a resubmission that collided on the
// (app_uuid, event_id) unique index still counts as accepted, with its
// Deduped entry set.
type BatchResult struct {
	Accepted int
	Rejected []ItemResult
	Deduped  []bool
}

// Service wires validation, opt-out enforcement, and the transactional
// raw_event+outbox write together.
type Service struct {
	pool    *pgxpool.Pool
	optOut  *optout.Registry
	dialect model.Dialect
}

func NewService(pool *pgxpool.Pool, optOut *optout.Registry, dialect model.Dialect) *Service {
	return &Service{pool: pool, optOut: optOut, dialect: dialect}
}

// IngestBatch runs each item through validation, then opt-out checking,
// then commits the raw_event and its outbox rows atomically. A DB
// outage is surfaced to the caller as an error so the HTTP layer can
// return 5xx for the whole batch; per-item validation and opt-out
// failures never fail the batch.
func (s *Service) IngestBatch(ctx context.Context, raws []model.RawEnvelope) (BatchResult, error) {
	result := BatchResult{Deduped: make([]bool, len(raws))}

	for i, raw := range raws {
		normalized, rej := validation.Validate(s.dialect, raw)
		if rej != nil {
			result.Rejected = append(result.Rejected, ItemResult{Index: i, Code: string(rej.Code), Message: rej.Message})
			continue
		}

		optedOut, err := s.optOut.IsOptedOut(ctx, normalized.AppUUID, normalized.AnonUserID)
		if err != nil {
			return BatchResult{}, fmt.Errorf("opt-out check: %w", err)
		}
		if optedOut {
			result.Rejected = append(result.Rejected, ItemResult{
				Index: i, Code: string(validation.CodeOptedOut), Message: "identifier has opted out",
			})
			continue
		}

		deduped, err := s.writeOne(ctx, normalized)
		if err != nil {
			return BatchResult{}, fmt.Errorf("write item %d: %w", i, err)
		}
		// A dedup collision is not an error: the event is already durably
		// stored, so the item counts as accepted.
		result.Deduped[i] = deduped
		result.Accepted++
	}

	return result, nil
}

// writeOne commits one raw_event row plus its outbox rows atomically.
// Returns true when the raw_event insert collided on the unique
// (app_uuid, event_id) index.
func (s *Service) writeOne(ctx context.Context, ev model.NormalizedEvent) (bool, error) {
	var deduped bool

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		q := db.New(tx)

		appUUID, err := pgUUID(ev.AppUUID)
		if err != nil {
			return fmt.Errorf("app_uuid: %w", err)
		}
		eventID, err := pgUUID(ev.EventID)
		if err != nil {
			return fmt.Errorf("event_id: %w", err)
		}
		traceID, err := pgUUID(ev.TraceID)
		if err != nil {
			return fmt.Errorf("trace_id: %w", err)
		}

		var geoLat, geoLon, geoAccuracy pgtype.Float8
		var geoSource pgtype.Text
		if ev.Geo != nil {
			geoLat = pgtype.Float8{Float64: ev.Geo.Lat, Valid: true}
			geoLon = pgtype.Float8{Float64: ev.Geo.Lon, Valid: true}
			geoAccuracy = pgtype.Float8{Float64: ev.Geo.AccuracyM, Valid: true}
			geoSource = pgtype.Text{String: ev.Geo.Source, Valid: true}
		}

		_, inserted, err := q.InsertRawEvent(ctx, db.InsertRawEventParams{
			EventID: eventID, TraceID: traceID, Producer: ev.Producer, Actor: ev.Actor,
			AppUUID: appUUID, EventType: ev.EventName, EventTS: ev.OccurredAt,
			AnonUserID: ev.AnonUserID, DeviceIDHash: ev.DeviceIDHash, SessionID: ev.SessionID,
			SDKVersion:   pgtype.Text{String: ev.SDKVersion, Valid: ev.SDKVersion != ""},
			EventVersion: pgtype.Text{String: ev.EventVersion, Valid: ev.EventVersion != ""},
			GeoLat:       geoLat, GeoLon: geoLon, GeoAccuracyM: geoAccuracy, GeoSource: geoSource,
			Payload: orEmptyObject(ev.Payload), Context: orEmptyObject(ev.Context), RawDocument: ev.RawDocument,
		})
		if err != nil {
			return fmt.Errorf("insert raw_event: %w", err)
		}
		if !inserted {
			deduped = true
			return nil
		}

		outboxPayload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal outbox payload: %w", err)
		}
		for _, key := range routing.RoutingKeysFor(ev.EventName) {
			if err := q.InsertOutboxEvent(ctx, db.InsertOutboxEventParams{
				AppUUID: appUUID, EventID: eventID, TraceID: traceID,
				OccurredAt: ev.OccurredAt, RoutingKey: key, Payload: outboxPayload,
			}); err != nil {
				return fmt.Errorf("insert outbox_event %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return deduped, nil
}

func pgUUID(s string) (pgtype.UUID, error) {
	var u pgtype.UUID
	if err := u.Scan(s); err != nil {
		return pgtype.UUID{}, err
	}
	return u, nil
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
