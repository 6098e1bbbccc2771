// Package validation implements the strict and lax envelope dialects:
// field validation plus normalization into a single
// model.NormalizedEvent, so nothing downstream ever branches on which
// dialect an event arrived in.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/arc-self/sentinel-pipeline/internal/model"
)

// RejectionCode enumerates the per-item code values returned in the
// ingest response's rejected[] entries.
type RejectionCode string

const (
	CodeMissingField  RejectionCode = "missing_field"
	CodeInvalidFormat RejectionCode = "invalid_format"
	CodeOptedOut      RejectionCode = "opted_out"
)

// Rejection describes why a single batch item was rejected.
type Rejection struct {
	Code    RejectionCode
	Message string
}

func (r Rejection) Error() string { return string(r.Code) + ": " + r.Message }

// anonIDPattern enforces a minimum-length pattern for every anonymized
// identifier, with no escape hatch for raw PII.
var anonIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{6,128}$`)

// Validate normalizes a raw envelope according to the configured
// dialect, returning either a NormalizedEvent or a Rejection. It never
// returns a Go error for malformed input — validation failures are
// first-class per-item results, not exceptions; a batch with some
// rejected items still gets a 2xx response (only a strict-dialect batch
// in which every item is rejected gets 422).
func Validate(dialect model.Dialect, raw model.RawEnvelope) (model.NormalizedEvent, *Rejection) {
	if dialect == model.DialectLax {
		return validateLax(raw)
	}
	return validateStrict(raw)
}

func validateStrict(raw model.RawEnvelope) (model.NormalizedEvent, *Rejection) {
	if id, err := uuid.Parse(raw.EventID); err != nil || id.Version() != 4 {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "event_id must be a v4 UUID"}
	}
	if raw.EventName == "" {
		return model.NormalizedEvent{}, &Rejection{CodeMissingField, "event_name is required"}
	}
	occurredAt, err := parseTimestamp(raw.OccurredAt)
	if err != nil {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "occurred_at must be ISO-8601 UTC: " + err.Error()}
	}
	if _, err := uuid.Parse(raw.TraceID); err != nil {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "trace_id must be a UUID"}
	}
	if raw.Producer == "" {
		return model.NormalizedEvent{}, &Rejection{CodeMissingField, "producer is required"}
	}
	if raw.Actor == "" {
		return model.NormalizedEvent{}, &Rejection{CodeMissingField, "actor is required"}
	}
	if _, err := uuid.Parse(raw.AppUUID); err != nil {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "app_uuid must be a UUID"}
	}
	for name, v := range map[string]string{
		"anon_user_id":   raw.AnonUserID,
		"device_id_hash": raw.DeviceIDHash,
		"session_id":     raw.SessionID,
	} {
		if !anonIDPattern.MatchString(v) {
			return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, fmt.Sprintf("%s fails minimum-length anonymized-id pattern", name)}
		}
	}
	if raw.SDKVersion == "" {
		return model.NormalizedEvent{}, &Rejection{CodeMissingField, "sdk_version is required"}
	}
	if raw.EventVersion == "" {
		return model.NormalizedEvent{}, &Rejection{CodeMissingField, "event_version is required"}
	}
	if len(raw.Payload) == 0 {
		return model.NormalizedEvent{}, &Rejection{CodeMissingField, "payload is required"}
	}
	if len(raw.Context) == 0 {
		return model.NormalizedEvent{}, &Rejection{CodeMissingField, "context is required"}
	}

	geo, err := extractGeo(raw.Context)
	if err != nil {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "context.geo: " + err.Error()}
	}

	return normalize(raw, occurredAt, geo), nil
}

// validateLax applies legacy field aliasing and defaulting before
// falling through to the same field-shape checks strict uses for the
// remaining required fields.
func validateLax(raw model.RawEnvelope) (model.NormalizedEvent, *Rejection) {
	if raw.EventName == "" {
		raw.EventName = raw.EventType
	}
	if raw.EventName == "" {
		return model.NormalizedEvent{}, &Rejection{CodeMissingField, "event_name is required"}
	}
	if len(raw.OccurredAt) == 0 {
		raw.OccurredAt = raw.Timestamp
	}
	occurredAt, err := parseTimestamp(raw.OccurredAt)
	if err != nil {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "occurred_at/timestamp must be ISO-8601 UTC: " + err.Error()}
	}
	if raw.EventID == "" {
		raw.EventID = uuid.NewString()
	} else if id, err := uuid.Parse(raw.EventID); err != nil || id.Version() != 4 {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "event_id must be a v4 UUID when present"}
	}
	if raw.TraceID == "" {
		raw.TraceID = uuid.NewString()
	} else if _, err := uuid.Parse(raw.TraceID); err != nil {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "trace_id must be a UUID when present"}
	}
	if raw.Producer == "" {
		raw.Producer = "unknown"
	}
	if raw.Actor == "" {
		raw.Actor = "anonymous"
	}
	if _, err := uuid.Parse(raw.AppUUID); err != nil {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "app_uuid must be a UUID"}
	}
	for name, v := range map[string]string{
		"anon_user_id":   raw.AnonUserID,
		"device_id_hash": raw.DeviceIDHash,
		"session_id":     raw.SessionID,
	} {
		if !anonIDPattern.MatchString(v) {
			return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, fmt.Sprintf("%s fails minimum-length anonymized-id pattern", name)}
		}
	}

	geo, err := extractGeo(raw.Context)
	if err != nil {
		return model.NormalizedEvent{}, &Rejection{CodeInvalidFormat, "context.geo: " + err.Error()}
	}

	return normalize(raw, occurredAt, geo), nil
}

func normalize(raw model.RawEnvelope, occurredAt time.Time, geo *model.Geo) model.NormalizedEvent {
	rawDoc, _ := json.Marshal(raw)
	return model.NormalizedEvent{
		EventID:      raw.EventID,
		EventName:    raw.EventName,
		OccurredAt:   occurredAt,
		TraceID:      raw.TraceID,
		Producer:     raw.Producer,
		Actor:        raw.Actor,
		AppUUID:      raw.AppUUID,
		AnonUserID:   raw.AnonUserID,
		DeviceIDHash: raw.DeviceIDHash,
		SessionID:    raw.SessionID,
		SDKVersion:   raw.SDKVersion,
		EventVersion: raw.EventVersion,
		Geo:          geo,
		Payload:      raw.Payload,
		Context:      raw.Context,
		RawDocument:  rawDoc,
	}
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("timestamp must be a string")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC(), nil
}

// contextEnvelope mirrors the subset of "context" this package inspects.
type contextEnvelope struct {
	Geo *model.Geo `json:"geo"`
}

func extractGeo(raw json.RawMessage) (*model.Geo, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ce contextEnvelope
	if err := json.Unmarshal(raw, &ce); err != nil {
		return nil, err
	}
	if ce.Geo == nil {
		return nil, nil
	}
	if ce.Geo.Source == "" {
		return nil, fmt.Errorf("geo.source is required when geo is present")
	}
	return ce.Geo, nil
}
