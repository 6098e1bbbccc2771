package validation

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/sentinel-pipeline/internal/model"
)

func strictEnvelope() model.RawEnvelope {
	return model.RawEnvelope{
		EventID:      uuid.NewString(),
		EventName:    "session.started",
		OccurredAt:   json.RawMessage(`"2026-07-31T10:00:00Z"`),
		TraceID:      uuid.NewString(),
		Producer:     "sdk-ios",
		Actor:        "device",
		AppUUID:      uuid.NewString(),
		AnonUserID:   "anon_abcdef123456",
		DeviceIDHash: "device_abcdef123456",
		SessionID:    "session_abcdef123456",
		SDKVersion:   "1.2.3",
		EventVersion: "1",
		Payload:      json.RawMessage(`{"k":"v"}`),
		Context:      json.RawMessage(`{"geo":{"lat":1,"lon":2,"accuracy_m":5,"source":"gps"}}`),
	}
}

func TestValidateStrictAccepts(t *testing.T) {
	ev, rej := Validate(model.DialectStrict, strictEnvelope())
	require.Nil(t, rej)
	assert.Equal(t, "session.started", ev.EventName)
	require.NotNil(t, ev.Geo)
	assert.Equal(t, "gps", ev.Geo.Source)
}

func TestValidateStrictRejectsMissingEventID(t *testing.T) {
	raw := strictEnvelope()
	raw.EventID = ""
	_, rej := Validate(model.DialectStrict, raw)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInvalidFormat, rej.Code)
}

func TestValidateStrictRejectsShortAnonID(t *testing.T) {
	raw := strictEnvelope()
	raw.AnonUserID = "abc"
	_, rej := Validate(model.DialectStrict, raw)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInvalidFormat, rej.Code)
}

func TestValidateLaxAppliesAliasesAndDefaults(t *testing.T) {
	raw := model.RawEnvelope{
		EventType:    "legacy.tap",
		Timestamp:    json.RawMessage(`"2026-07-31T10:00:00Z"`),
		AppUUID:      uuid.NewString(),
		AnonUserID:   "anon_abcdef123456",
		DeviceIDHash: "device_abcdef123456",
		SessionID:    "session_abcdef123456",
	}

	ev, rej := Validate(model.DialectLax, raw)
	require.Nil(t, rej)
	assert.Equal(t, "legacy.tap", ev.EventName)
	assert.Equal(t, "unknown", ev.Producer)
	assert.Equal(t, "anonymous", ev.Actor)
	_, err := uuid.Parse(ev.EventID)
	assert.NoError(t, err)
	_, err = uuid.Parse(ev.TraceID)
	assert.NoError(t, err)
}

func TestValidateLaxRejectsMissingEventName(t *testing.T) {
	raw := model.RawEnvelope{
		Timestamp:    json.RawMessage(`"2026-07-31T10:00:00Z"`),
		AppUUID:      uuid.NewString(),
		AnonUserID:   "anon_abcdef123456",
		DeviceIDHash: "device_abcdef123456",
		SessionID:    "session_abcdef123456",
	}
	_, rej := Validate(model.DialectLax, raw)
	require.NotNil(t, rej)
	assert.Equal(t, CodeMissingField, rej.Code)
}

func TestExtractGeoRequiresSource(t *testing.T) {
	_, err := extractGeo(json.RawMessage(`{"geo":{"lat":1,"lon":2}}`))
	assert.Error(t, err)
}
