package broker

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
)

// Headers carried on every publish.
const (
	HeaderEventID    = "event_id"
	HeaderTraceID    = "trace_id"
	HeaderOccurredAt = "occurred_at"
	HeaderAppUUID    = "app_uuid"
	// HeaderRetryCount carries the processor's local retry counter on
	// republished messages.
	HeaderRetryCount = "sb_retry"
)

// PublishMeta is the set of header values attached to a published message.
type PublishMeta struct {
	EventID    string
	TraceID    string
	OccurredAt time.Time
	AppUUID    string
}

// Publish sends payload to routingKey with a publisher-confirm contract:
// JS.PublishMsg blocks until the broker acks the write, giving a
// persistent-delivery, publish-confirmed guarantee rather than a
// fire-and-forget send. It returns the stream sequence number on success.
func Publish(ctx context.Context, js nats.JetStreamContext, routingKey string, payload []byte, meta PublishMeta) (uint64, error) {
	msg := nats.NewMsg(routingKey)
	msg.Data = payload
	msg.Header.Set(HeaderEventID, meta.EventID)
	msg.Header.Set(HeaderTraceID, meta.TraceID)
	msg.Header.Set(HeaderOccurredAt, meta.OccurredAt.UTC().Format(time.RFC3339Nano))
	msg.Header.Set(HeaderAppUUID, meta.AppUUID)

	ack, err := js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return 0, err
	}
	return ack.Sequence, nil
}
