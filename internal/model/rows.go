package model

import (
	"encoding/json"
	"time"
)

// OutboxStatus enumerates outbox_events.status.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// PrecisionClass buckets geo accuracy, ordered worst-to-best so callers
// can compare with simple integer comparisons: coarse < medium < high.
type PrecisionClass int

const (
	PrecisionCoarse PrecisionClass = iota
	PrecisionMedium
	PrecisionHigh
)

func (p PrecisionClass) String() string {
	switch p {
	case PrecisionHigh:
		return "high"
	case PrecisionMedium:
		return "medium"
	default:
		return "coarse"
	}
}

// ParsePrecisionClass parses the string form stored in Postgres back into
// a PrecisionClass, defaulting to coarse on unrecognized input.
func ParsePrecisionClass(s string) PrecisionClass {
	switch s {
	case "high":
		return PrecisionHigh
	case "medium":
		return PrecisionMedium
	default:
		return PrecisionCoarse
	}
}

// GeoDimensions is the set of derived geo columns shared by both
// presence tables.
type GeoDimensions struct {
	PrecisionClass   PrecisionClass
	H3R7             string
	H3R9             string
	H3R11            string
	PlaceID          *string
	CountryCode      *string
	ProvinceCode     *string
	MunicipalityCode *string
	SectorCode       *string
}

// HourlyPresence is the shared shape of device_hourly_presence and
// user_hourly_presence rows.
type HourlyPresence struct {
	AppUUID      string
	HourBucket   time.Time
	EntityID     string // device_id_hash or anon_user_id
	FirstEventTS time.Time
	Geo          GeoDimensions
}

// LicenseState mirrors the license_state table.
type LicenseState struct {
	AppUUID       string
	AnonUserID    string
	PlanType      *string
	LicenseStatus *string
	StartedAt     *time.Time
	RenewedAt     *time.Time
	ExpiresAt     *time.Time
	UpdatedAt     time.Time
}

// Customer360 mirrors the customer_360 table.
type Customer360 struct {
	AppUUID            string
	AnonUserID         string
	FirstSeen          *time.Time
	LastSeen           *time.Time
	LastEventType      *string
	LastEventTS        *time.Time
	LastGeoH3R9        *string
	LastGeoPlaceID     *string
	LastGeoCountryCode *string
	GeoEventsCount     int64
	LicenseEventsCount int64
	DeviceHoursCount   int64
	UserHoursCount     int64
	LicensePlanType    *string
	LicenseStatus      *string
	LicenseExpiresAt   *time.Time
}

// DLQReason enumerates the DLQ envelope's reason codes.
type DLQReason string

const (
	DLQReasonJSONDecode        DLQReason = "json_decode"
	DLQReasonInvalidDocType    DLQReason = "invalid_document_type"
	DLQReasonMinimalEvent      DLQReason = "minimal_event"
	DLQReasonPermanentBusiness DLQReason = "permanent_business"
)

// DLQSource identifies where the failing message came from.
type DLQSource struct {
	Queue       string `json:"queue"`
	RoutingKey  string `json:"routing_key"`
	DeliveryTag string `json:"delivery_tag"`
}

// DLQPayload carries the raw (base64) and, when decodable, the decoded
// message body.
type DLQPayload struct {
	RawValueB64 string          `json:"raw_value_b64"`
	Decoded     json.RawMessage `json:"decoded,omitempty"`
}

// DLQErrorInfo carries the Go error type and message.
type DLQErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// DLQEnvelope is the wire shape written to the dead-letter queue.
type DLQEnvelope struct {
	FailedAt time.Time    `json:"failed_at"`
	Reason   DLQReason    `json:"reason"`
	Source   DLQSource    `json:"source"`
	Payload  DLQPayload   `json:"payload"`
	Error    DLQErrorInfo `json:"error"`
}
