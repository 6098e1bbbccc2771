package processor

import (
	"context"
	"fmt"

	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
	"github.com/arc-self/sentinel-pipeline/internal/retry"
)

// dispatchGeneric handles every family with no dedicated materialization
// contract (raw, session, screen, ui, system): verify the envelope
// minima and touch customer_360's last-event columns. These queues are
// reserved for future materializers; for now they only keep the
// idempotency ledger and the customer rollup current.
func (w *Worker) dispatchGeneric(ctx context.Context, q *db.Queries, ev model.NormalizedEvent) error {
	if ev.AnonUserID == "" && ev.DeviceIDHash == "" && ev.SessionID == "" {
		return fmt.Errorf("%w: event carries no subject identifier", retry.ErrPermanent)
	}

	appUUID, err := pgUUID(ev.AppUUID)
	if err != nil {
		return fmt.Errorf("%w: %v", retry.ErrPermanent, err)
	}

	if err := q.TouchCustomer360(ctx, db.TouchCustomer360Params{
		AppUUID: appUUID, AnonUserID: ev.AnonUserID, EventTS: ev.OccurredAt, EventType: ev.EventName,
	}); err != nil {
		return fmt.Errorf("touch customer_360: %w", err)
	}

	return nil
}
