package processor

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/arc-self/sentinel-pipeline/internal/model"
)

// processEvent's decode/validate branches run before any DB access, so
// they're exercised directly against a nil pool.

func TestProcessEventRejectsInvalidJSON(t *testing.T) {
	w := &Worker{durable: "sb.events.geo.q"}

	outcome := w.processEvent(context.Background(), []byte("not json"), "")

	assert.Equal(t, actionDLQ, outcome.action)
	assert.Equal(t, model.DLQReasonJSONDecode, outcome.reason)
}

func TestProcessEventRejectsBadAppUUID(t *testing.T) {
	w := &Worker{durable: "sb.events.geo.q"}

	outcome := w.processEvent(context.Background(), []byte(`{"app_uuid":"not-a-uuid","event_id":"11111111-1111-1111-1111-111111111111"}`), "")

	assert.Equal(t, actionDLQ, outcome.action)
	assert.Equal(t, model.DLQReasonInvalidDocType, outcome.reason)
}

func TestProcessEventRejectsBadEventID(t *testing.T) {
	w := &Worker{durable: "sb.events.geo.q"}

	outcome := w.processEvent(context.Background(), []byte(`{"app_uuid":"11111111-1111-1111-1111-111111111111","event_id":"nope"}`), "")

	assert.Equal(t, actionDLQ, outcome.action)
	assert.Equal(t, model.DLQReasonInvalidDocType, outcome.reason)
}

func TestDispatchGeoRejectsMissingGeo(t *testing.T) {
	w := &Worker{durable: "sb.events.geo.q"}

	ev := model.NormalizedEvent{AppUUID: "11111111-1111-1111-1111-111111111111"}
	err := w.dispatchGeo(context.Background(), nil, ev)

	assert.Error(t, err)
}

func TestDispatchGenericRejectsNoSubject(t *testing.T) {
	w := &Worker{durable: "sb.events.system.q"}

	ev := model.NormalizedEvent{AppUUID: "11111111-1111-1111-1111-111111111111"}
	err := w.dispatchGeneric(context.Background(), nil, ev)

	assert.Error(t, err)
}

func TestDispatchLicenseRejectsMissingStatus(t *testing.T) {
	w := &Worker{durable: "sb.events.license.q"}

	ev := model.NormalizedEvent{AppUUID: "11111111-1111-1111-1111-111111111111", Payload: []byte(`{}`)}
	err := w.dispatchLicense(context.Background(), nil, ev)

	assert.Error(t, err)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	first := backoffDelay(1e9, 30e9, 0)
	grown := backoffDelay(1e9, 30e9, 10)
	capped := backoffDelay(1e9, 5e9, 50)

	assert.True(t, grown >= first)
	assert.True(t, capped <= 5e9)
}

func TestRetryCountOfDefaultsZero(t *testing.T) {
	assert.Equal(t, 0, retryCountOf(nats.NewMsg("sb.events.geo")))
}
