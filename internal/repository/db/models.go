package db

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// RawEvent mirrors the raw_events table.
type RawEvent struct {
	ID           int64
	ReceivedAt   time.Time
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

// OutboxEvent mirrors the outbox_events table.
type OutboxEvent struct {
	ID            int64
	CreatedAt     time.Time
	LockedAt      pgtype.Timestamptz
	AppUUID       pgtype.UUID
	EventID       pgtype.UUID
	TraceID       pgtype.UUID
	OccurredAt    time.Time
	RoutingKey    string
	Payload       json.RawMessage
	Status        string
	Retries       int32
	NextAttemptAt time.Time
	LastError     pgtype.Text
}

// HourlyPresenceRow is the shared row shape of both presence tables
// (device_hourly_presence and user_hourly_presence differ only in their
// entity column name). The presence upserts return only the inserted
// flag, not this row.
type HourlyPresenceRow struct {
	AppUUID           pgtype.UUID
	HourBucket        time.Time
	EntityID          string
	FirstEventTS      time.Time
	GeoPrecisionClass string
	H3R7              pgtype.Text
	H3R9              pgtype.Text
	H3R11             pgtype.Text
	PlaceID           pgtype.Text
	CountryCode       pgtype.Text
	ProvinceCode      pgtype.Text
	MunicipalityCode  pgtype.Text
	SectorCode        pgtype.Text
	Inserted          bool
}

// LicenseState mirrors the license_state table.
type LicenseState struct {
	AppUUID       pgtype.UUID
	AnonUserID    string
	PlanType      pgtype.Text
	LicenseStatus pgtype.Text
	StartedAt     pgtype.Timestamptz
	RenewedAt     pgtype.Timestamptz
	ExpiresAt     pgtype.Timestamptz
	UpdatedAt     time.Time
}

// Customer360 mirrors the customer_360 table.
type Customer360 struct {
	AppUUID            pgtype.UUID
	AnonUserID         string
	FirstSeen          pgtype.Timestamptz
	LastSeen           pgtype.Timestamptz
	LastEventType      pgtype.Text
	LastEventTS        pgtype.Timestamptz
	LastGeoH3R9        pgtype.Text
	LastGeoPlaceID     pgtype.Text
	LastGeoCountryCode pgtype.Text
	GeoEventsCount     int64
	LicenseEventsCount int64
	DeviceHoursCount   int64
	UserHoursCount     int64
	LicensePlanType    pgtype.Text
	LicenseStatus      pgtype.Text
	LicenseExpiresAt   pgtype.Timestamptz
}
