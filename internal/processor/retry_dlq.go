package processor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/platform/broker"
)

// republishWithBackoff re-publishes a transient failure onto its
// originating subject with an incremented sb_retry header and a
// jittered delay, so retries are local republishes rather than
// broker-level redeliveries. A message that has exhausted the retry
// cap is routed to the DLQ instead, same as a permanent failure.
func (w *Worker) republishWithBackoff(ctx context.Context, msg *nats.Msg, outcome eventOutcome) {
	retries := retryCountOf(msg)

	if int32(retries) >= w.cfg.RetryCap {
		w.publishDLQ(ctx, msg, eventOutcome{reason: model.DLQReasonMinimalEvent, err: outcome.err})
		return
	}

	delay := backoffDelay(w.cfg.BackoffBase, w.cfg.BackoffMax, retries)
	time.Sleep(delay)

	next := nats.NewMsg(msg.Subject)
	next.Data = msg.Data
	next.Header = msg.Header.Clone()
	next.Header.Set(broker.HeaderRetryCount, strconv.Itoa(retries+1))

	if _, err := w.broker.JS.PublishMsg(next, nats.Context(ctx)); err != nil {
		w.log.Error("retry republish failed", zap.Error(err), zap.Error(outcome.err))
	}
}

// publishDLQ wraps the failing message in a DLQEnvelope and publishes it
// to the dead letter subject.
func (w *Worker) publishDLQ(ctx context.Context, msg *nats.Msg, outcome eventOutcome) {
	errInfo := model.DLQErrorInfo{}
	if outcome.err != nil {
		errInfo.Type = errorTypeName(outcome.err)
		errInfo.Message = outcome.err.Error()
	}

	envelope := model.DLQEnvelope{
		FailedAt: time.Now().UTC(),
		Reason:   outcome.reason,
		Source: model.DLQSource{
			Queue:       w.durable,
			RoutingKey:  msg.Subject,
			DeliveryTag: msg.Header.Get(broker.HeaderEventID),
		},
		Payload: model.DLQPayload{
			RawValueB64: base64.StdEncoding.EncodeToString(msg.Data),
		},
		Error: errInfo,
	}

	encoded, err := json.Marshal(envelope)
	if err != nil {
		w.log.Error("dlq envelope marshal failed", zap.Error(err))
		return
	}

	if _, err := broker.Publish(ctx, w.broker.JS, broker.RoutingKeyDLQ, encoded, broker.PublishMeta{
		EventID:    msg.Header.Get(broker.HeaderEventID),
		TraceID:    msg.Header.Get(broker.HeaderTraceID),
		OccurredAt: time.Now().UTC(),
		AppUUID:    msg.Header.Get(broker.HeaderAppUUID),
	}); err != nil {
		w.log.Error("dlq publish failed", zap.Error(err), zap.String("reason", string(outcome.reason)))
	}
}

func retryCountOf(msg *nats.Msg) int {
	raw := msg.Header.Get(broker.HeaderRetryCount)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// backoffDelay computes the jittered exponential delay for the given
// retry count (the message's sb_retry header) from a fresh backoff
// instance, so no backoff state is shared between messages.
func backoffDelay(base, max time.Duration, retries int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0

	delay := b.NextBackOff()
	for i := 0; i < retries; i++ {
		delay = b.NextBackOff()
	}
	// NextBackOff jitters around the current interval, so it can
	// overshoot MaxInterval by the randomization factor.
	if delay > max {
		delay = max
	}
	return delay
}

func errorTypeName(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%T", err)
}
