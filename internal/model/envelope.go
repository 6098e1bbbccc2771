// Package model holds the wire and domain types shared by ingest, the
// outbox publisher, and the processor: the envelope dialects, the
// normalized internal event record, and every persisted row shape.
package model

import (
	"encoding/json"
	"time"
)

// Dialect selects which envelope shape ingest accepts.
type Dialect int

const (
	DialectStrict Dialect = iota
	DialectLax
)

// Geo is the optional context.geo payload carried by an envelope.
type Geo struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	AccuracyM float64 `json:"accuracy_m"`
	Source    string  `json:"source"`
}

// RawEnvelope is the wire shape accepted from producers before
// normalization, wide enough to cover both the strict dialect's required
// fields and the lax dialect's legacy aliases.
type RawEnvelope struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	EventType string `json:"event_type"` // lax alias for EventName

	OccurredAt json.RawMessage `json:"occurred_at"`
	Timestamp  json.RawMessage `json:"timestamp"` // lax alias for OccurredAt

	TraceID      string `json:"trace_id"`
	Producer     string `json:"producer"`
	Actor        string `json:"actor"`
	AppUUID      string `json:"app_uuid"`
	AnonUserID   string `json:"anon_user_id"`
	DeviceIDHash string `json:"device_id_hash"`
	SessionID    string `json:"session_id"`
	SDKVersion   string `json:"sdk_version"`
	EventVersion string `json:"event_version"`

	Payload json.RawMessage `json:"payload"`
	Context json.RawMessage `json:"context"`
}

// NormalizedEvent is the single internal record downstream code works
// with, regardless of which envelope dialect produced it.
type NormalizedEvent struct {
	EventID      string          `json:"event_id"`
	EventName    string          `json:"event_name"`
	OccurredAt   time.Time       `json:"occurred_at"`
	TraceID      string          `json:"trace_id"`
	Producer     string          `json:"producer"`
	Actor        string          `json:"actor"`
	AppUUID      string          `json:"app_uuid"`
	AnonUserID   string          `json:"anon_user_id"`
	DeviceIDHash string          `json:"device_id_hash"`
	SessionID    string          `json:"session_id"`
	SDKVersion   string          `json:"sdk_version"`
	EventVersion string          `json:"event_version"`
	Geo          *Geo            `json:"geo,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Context      json.RawMessage `json:"context"`
	RawDocument  json.RawMessage `json:"raw_document"`
}
