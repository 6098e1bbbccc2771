// Package optout implements the opt-out registry and the privacy
// delete: ingest rejects any event whose (app_uuid, anon_user_id)
// identifiers appear in the opt_out table.
package optout

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
)

// Store is the slice of the query surface the registry needs;
// *db.Queries satisfies it.
type Store interface {
	IsOptedOut(ctx context.Context, appUUID, anonUserID string) (bool, error)
	UpsertOptOut(ctx context.Context, appUUID, anonUserID string) error
}

// Registry checks and records opt-out status.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// IsOptedOut reports whether (appUUID, anonUserID) has opted out.
func (r *Registry) IsOptedOut(ctx context.Context, appUUID, anonUserID string) (bool, error) {
	optedOut, err := r.store.IsOptedOut(ctx, appUUID, anonUserID)
	if err != nil {
		return false, fmt.Errorf("check opt_out: %w", err)
	}
	return optedOut, nil
}

// Register idempotently upserts an opt-out registration.
func (r *Registry) Register(ctx context.Context, appUUID, anonUserID string) error {
	if err := r.store.UpsertOptOut(ctx, appUUID, anonUserID); err != nil {
		return fmt.Errorf("upsert opt_out: %w", err)
	}
	return nil
}

// DeleteResult carries the per-table row counts from a privacy delete.
type DeleteResult struct {
	RawEvents            int64
	LicenseState         int64
	DeviceHourlyPresence int64
	UserHourlyPresence   int64
	Customer360          int64
	OptOutRemoved        bool
}

// Delete purges every table holding data for (appUUID, anonUserID) in a
// single transaction, preserving the opt_out row unless deleteOptOut is
// set.
func Delete(ctx context.Context, pool *pgxpool.Pool, appUUID, anonUserID string, deleteOptOut bool) (DeleteResult, error) {
	var result DeleteResult

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		q := db.New(tx)

		// The affected devices must be resolved from raw_events before
		// those rows are deleted.
		deviceHashes, err := q.ListDeviceHashesForUser(ctx, appUUID, anonUserID)
		if err != nil {
			return fmt.Errorf("resolve device hashes: %w", err)
		}

		if result.RawEvents, err = q.DeleteRawEventsForUser(ctx, appUUID, anonUserID); err != nil {
			return fmt.Errorf("delete raw_events: %w", err)
		}
		if result.LicenseState, err = q.DeleteLicenseStateForUser(ctx, appUUID, anonUserID); err != nil {
			return fmt.Errorf("delete license_state: %w", err)
		}
		if len(deviceHashes) > 0 {
			if result.DeviceHourlyPresence, err = q.DeleteDeviceHourlyPresenceForDevices(ctx, appUUID, deviceHashes); err != nil {
				return fmt.Errorf("delete device_hourly_presence: %w", err)
			}
		}
		if result.UserHourlyPresence, err = q.DeleteUserHourlyPresenceForUser(ctx, appUUID, anonUserID); err != nil {
			return fmt.Errorf("delete user_hourly_presence: %w", err)
		}
		if result.Customer360, err = q.DeleteCustomer360ForUser(ctx, appUUID, anonUserID); err != nil {
			return fmt.Errorf("delete customer_360: %w", err)
		}

		if deleteOptOut {
			if _, err := q.DeleteOptOut(ctx, appUUID, anonUserID); err != nil {
				return fmt.Errorf("delete opt_out: %w", err)
			}
			result.OptOutRemoved = true
		}

		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return result, nil
}
