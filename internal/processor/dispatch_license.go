package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
	"github.com/arc-self/sentinel-pipeline/internal/retry"
)

// licensePayload is the subset of the license family's payload this
// dispatch cares about.
type licensePayload struct {
	PlanType  string     `json:"plan_type"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"started_at"`
	RenewedAt *time.Time `json:"renewed_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// dispatchLicense implements the license family's materialization
// contract: last-writer-wins-by-event-time upsert into license_state,
// mirrored into customer_360.
func (w *Worker) dispatchLicense(ctx context.Context, q *db.Queries, ev model.NormalizedEvent) error {
	var payload licensePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("%w: decode license payload: %v", retry.ErrPermanent, err)
	}
	if payload.Status == "" {
		return fmt.Errorf("%w: license event missing status", retry.ErrPermanent)
	}

	appUUID, err := pgUUID(ev.AppUUID)
	if err != nil {
		return fmt.Errorf("%w: %v", retry.ErrPermanent, err)
	}

	params := db.UpsertLicenseStateParams{
		AppUUID:       appUUID,
		AnonUserID:    ev.AnonUserID,
		PlanType:      pgText(payload.PlanType),
		LicenseStatus: pgText(payload.Status),
		StartedAt:     pgTimestamptz(payload.StartedAt),
		RenewedAt:     pgTimestamptz(payload.RenewedAt),
		ExpiresAt:     pgTimestamptz(payload.ExpiresAt),
		EventTS:       ev.OccurredAt,
	}

	applied, err := q.UpsertLicenseState(ctx, params)
	if err != nil {
		return fmt.Errorf("upsert license_state: %w", err)
	}
	// A late-arriving event that lost license_state's updated_at gate
	// must not overwrite customer_360's newer license mirror either —
	// the mirror follows the same upsert, it isn't a second independent
	// write.
	if applied {
		if err := q.SyncCustomer360License(ctx, params); err != nil {
			return fmt.Errorf("sync customer_360 license: %w", err)
		}
	}
	if err := q.TouchCustomer360(ctx, db.TouchCustomer360Params{
		AppUUID: appUUID, AnonUserID: ev.AnonUserID, EventTS: ev.OccurredAt, EventType: ev.EventName,
		IncLicenseEvent: 1,
	}); err != nil {
		return fmt.Errorf("touch customer_360: %w", err)
	}

	return nil
}

func pgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
