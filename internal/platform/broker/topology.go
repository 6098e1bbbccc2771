package broker

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// StreamEvents is the durable JetStream stream standing in for the
// "sb.events" topic exchange. All routing-key subjects are rooted
// under it.
const StreamEvents = "SB_EVENTS"

// Routing keys, one per event family plus the raw copy and the DLQ.
const (
	RoutingKeyRaw     = "sb.events.raw"
	RoutingKeyGeo     = "sb.events.geo"
	RoutingKeyLicense = "sb.events.license"
	RoutingKeySession = "sb.events.session"
	RoutingKeyScreen  = "sb.events.screen"
	RoutingKeyUI      = "sb.events.ui"
	RoutingKeySystem  = "sb.events.system"
	RoutingKeyDLQ     = "sb.events.dlq"
)

// Durable consumer names, one per bound queue.
const (
	QueueRaw     = "sb.events.raw.q"
	QueueGeo     = "sb.events.geo.q"
	QueueLicense = "sb.events.license.q"
	QueueSession = "sb.events.session.q"
	QueueScreen  = "sb.events.screen.q"
	QueueUI      = "sb.events.ui.q"
	QueueSystem  = "sb.events.system.q"
	QueueDLQ     = "sb.events.dlq.q"
)

// AllRoutingKeys enumerates every subject the stream must capture.
var AllRoutingKeys = []string{
	RoutingKeyRaw, RoutingKeyGeo, RoutingKeyLicense, RoutingKeySession,
	RoutingKeyScreen, RoutingKeyUI, RoutingKeySystem, RoutingKeyDLQ,
}

// queueBinding pairs a durable consumer name with the routing key (NATS
// subject) it is bound to: each durable's name is its routing key's
// queue stem with a ".q" suffix.
type queueBinding struct {
	durable string
	subject string
}

// AllQueueBindings enumerates every durable queue binding, including the DLQ.
var AllQueueBindings = []queueBinding{
	{QueueRaw, RoutingKeyRaw},
	{QueueGeo, RoutingKeyGeo},
	{QueueLicense, RoutingKeyLicense},
	{QueueSession, RoutingKeySession},
	{QueueScreen, RoutingKeyScreen},
	{QueueUI, RoutingKeyUI},
	{QueueSystem, RoutingKeySystem},
	{QueueDLQ, RoutingKeyDLQ},
}

// ProvisionTopology idempotently declares the SB_EVENTS stream, its
// subject filter, and every durable consumer, creating only what is
// missing. The outbox publisher and the processor both call it on boot,
// so whichever starts first creates the topology and the other finds it
// already in place.
func (c *Client) ProvisionTopology() error {
	if err := c.provisionStream(); err != nil {
		return err
	}
	for _, b := range AllQueueBindings {
		if err := c.provisionConsumer(b); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) provisionStream() error {
	_, err := c.JS.StreamInfo(StreamEvents)
	if err == nil {
		c.Log.Info("JetStream stream already exists", zap.String("stream", StreamEvents))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamEvents,
		Subjects:  AllRoutingKeys,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		// Protective policy. JetStream's stream-level MaxAge/MaxMsgs/Discard
		// are the closest analogue to AMQP's
		// message-ttl/max-length/overflow=drop-head; they apply to every
		// subject in the stream, the DLQ included.
		MaxAge:   maxAgeProtected,
		MaxMsgs:  maxMsgsProtected,
		Discard:  nats.DiscardOld,
		Replicas: 1,
	}

	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	c.Log.Info("JetStream stream provisioned",
		zap.String("stream", StreamEvents),
		zap.Strings("subjects", AllRoutingKeys),
	)
	return nil
}

func (c *Client) provisionConsumer(b queueBinding) error {
	_, err := c.JS.ConsumerInfo(StreamEvents, b.durable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("consumer info %s: %w", b.durable, err)
	}

	_, err = c.JS.AddConsumer(StreamEvents, &nats.ConsumerConfig{
		Durable:       b.durable,
		FilterSubject: b.subject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    -1,
		DeliverPolicy: nats.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", b.durable, err)
	}

	c.Log.Info("JetStream durable consumer provisioned",
		zap.String("durable", b.durable),
		zap.String("subject", b.subject),
	)
	return nil
}
