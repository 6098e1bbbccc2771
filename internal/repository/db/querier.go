package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is the interface *Queries implements. It documents the full
// query surface in one place.
type Querier interface {
	InsertRawEvent(ctx context.Context, p InsertRawEventParams) (RawEvent, bool, error)
	InsertOutboxEvent(ctx context.Context, p InsertOutboxEventParams) error

	LeaseOutboxEvents(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) error
	MarkOutboxDead(ctx context.Context, id int64, lastError string) error
	ReapStaleLeases(ctx context.Context, olderThan time.Duration) (int64, error)

	IsOptedOut(ctx context.Context, appUUID, anonUserID string) (bool, error)
	UpsertOptOut(ctx context.Context, appUUID, anonUserID string) error
	ListDeviceHashesForUser(ctx context.Context, appUUID, anonUserID string) ([]string, error)
	DeleteRawEventsForUser(ctx context.Context, appUUID, anonUserID string) (int64, error)
	DeleteLicenseStateForUser(ctx context.Context, appUUID, anonUserID string) (int64, error)
	DeleteDeviceHourlyPresenceForDevices(ctx context.Context, appUUID string, deviceHashes []string) (int64, error)
	DeleteUserHourlyPresenceForUser(ctx context.Context, appUUID, anonUserID string) (int64, error)
	DeleteCustomer360ForUser(ctx context.Context, appUUID, anonUserID string) (int64, error)
	DeleteOptOut(ctx context.Context, appUUID, anonUserID string) (int64, error)

	InsertProcessedEvent(ctx context.Context, consumer string, appUUID, eventID pgtype.UUID) (bool, error)
	UpsertDeviceHourlyPresence(ctx context.Context, p HourlyPresenceUpsertParams) (bool, error)
	UpsertUserHourlyPresence(ctx context.Context, p HourlyPresenceUpsertParams) (bool, error)
	UpsertLicenseState(ctx context.Context, p UpsertLicenseStateParams) (bool, error)
	IncrementAggH3Hourly(ctx context.Context, appUUID pgtype.UUID, hourBucket time.Time, h3R9 string) error
	IncrementAggPlaceHourly(ctx context.Context, appUUID pgtype.UUID, hourBucket time.Time, placeID string) error
	IncrementAggAdminHourly(ctx context.Context, appUUID pgtype.UUID, hourBucket time.Time, adminID string) error
	TouchCustomer360(ctx context.Context, p TouchCustomer360Params) error
	SyncCustomer360License(ctx context.Context, p UpsertLicenseStateParams) error
}

var _ Querier = (*Queries)(nil)
