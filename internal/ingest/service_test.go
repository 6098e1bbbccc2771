package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/optout"
	"github.com/arc-self/sentinel-pipeline/internal/validation"
)

// The transactional write path needs a live Postgres connection, so it
// is covered by integration tests rather than here. This file exercises
// the pieces that don't require a pool: per-item validation, the
// opt-out gate, and the opted_out/strict-422 classification the handler
// builds on.

// optOutStore is a canned optout.Store: every identifier reads as
// registered.
type optOutStore struct{}

func (optOutStore) IsOptedOut(context.Context, string, string) (bool, error) { return true, nil }
func (optOutStore) UpsertOptOut(context.Context, string, string) error       { return nil }

func validEnvelope() model.RawEnvelope {
	return model.RawEnvelope{
		EventID:      uuid.NewString(),
		EventName:    "geo.ping",
		OccurredAt:   json.RawMessage(`"2026-01-25T10:05:00Z"`),
		TraceID:      uuid.NewString(),
		Producer:     "sdk-ios",
		Actor:        "device",
		AppUUID:      uuid.NewString(),
		AnonUserID:   "anon_abcdef123456",
		DeviceIDHash: "device_abcdef123456",
		SessionID:    "session_abcdef123456",
		SDKVersion:   "1.2.3",
		EventVersion: "1",
		Payload:      json.RawMessage(`{}`),
		Context:      json.RawMessage(`{}`),
	}
}

// After an identifier opts out, a subsequent batch for it is rejected
// with opted_out and no raw_event write is attempted — the nil pool
// would panic if IngestBatch reached writeOne.
func TestIngestBatchRejectsOptedOut(t *testing.T) {
	svc := NewService(nil, optout.NewRegistry(optOutStore{}), model.DialectStrict)

	result, err := svc.IngestBatch(context.Background(), []model.RawEnvelope{validEnvelope()})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Accepted)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, string(validation.CodeOptedOut), result.Rejected[0].Code)
	assert.False(t, result.Deduped[0])
}

func TestIngestBatchRejectsInvalidBeforeOptOutCheck(t *testing.T) {
	svc := NewService(nil, optout.NewRegistry(optOutStore{}), model.DialectStrict)

	raw := validEnvelope()
	raw.EventID = "not-a-uuid"
	result, err := svc.IngestBatch(context.Background(), []model.RawEnvelope{raw})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Accepted)
	require.Len(t, result.Rejected, 1)
	assert.Equal(t, string(validation.CodeInvalidFormat), result.Rejected[0].Code)
}

func TestAllRejectedStrictYieldsNoAccepted(t *testing.T) {
	raw := model.RawEnvelope{AppUUID: uuid.NewString()} // missing everything else
	_, rej := validation.Validate(model.DialectStrict, raw)
	assert.NotNil(t, rej)

	svc := NewService(nil, optout.NewRegistry(optOutStore{}), model.DialectStrict)
	result, err := svc.IngestBatch(context.Background(), []model.RawEnvelope{raw, raw})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Accepted)
	assert.Len(t, result.Rejected, 2)
}

func TestOrEmptyObjectDefaultsEmptyPayload(t *testing.T) {
	assert.Equal(t, json.RawMessage("{}"), orEmptyObject(nil))
	assert.Equal(t, json.RawMessage(`{"a":1}`), orEmptyObject(json.RawMessage(`{"a":1}`)))
}

func TestPgUUIDRoundTrip(t *testing.T) {
	id := uuid.NewString()
	u, err := pgUUID(id)
	assert.NoError(t, err)
	assert.True(t, u.Valid)
}

func TestPgUUIDRejectsInvalid(t *testing.T) {
	_, err := pgUUID("not-a-uuid")
	assert.Error(t, err)
}
