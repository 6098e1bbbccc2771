// Package processor implements the event processor: one worker pool per
// durable consumer (raw, geo, license, session, screen, ui, system),
// each a JetStream pull subscriber. Ack-handling
// (processMessage) is kept separate from the pure, testable
// processEvent/dispatch* functions.
package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/arc-self/sentinel-pipeline/internal/geo"
	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/platform/broker"
	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
	"github.com/arc-self/sentinel-pipeline/internal/retry"
)

const (
	fetchTimeout = 5 * time.Second
)

// Config tunes worker behavior.
type Config struct {
	FetchBatch  int
	RetryCap    int32
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Worker pulls from one durable consumer binding and dispatches by
// event family.
type Worker struct {
	durable    string
	subject    string
	pool       *pgxpool.Pool
	broker     *broker.Client
	classifier *geo.Classifier
	cfg        Config
	log        *zap.Logger
}

func NewWorker(binding QueueBinding, pool *pgxpool.Pool, brokerClient *broker.Client, classifier *geo.Classifier, cfg Config, log *zap.Logger) *Worker {
	return &Worker{
		durable: binding.Durable, subject: binding.Subject,
		pool: pool, broker: brokerClient, classifier: classifier, cfg: cfg,
		log: log.With(zap.String("durable", binding.Durable)),
	}
}

// QueueBinding names a durable consumer this worker pulls from.
type QueueBinding struct {
	Durable string
	Subject string
}

// Run pulls and processes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.broker.JS.PullSubscribe(w.subject, w.durable, nats.AckExplicit(), nats.ManualAck())
	if err != nil {
		return err
	}

	w.log.Info("processor worker started", zap.String("subject", w.subject))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("processor worker stopping")
			return nil
		default:
		}

		msgs, err := sub.Fetch(w.cfg.FetchBatch, nats.MaxWait(fetchTimeout))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			w.log.Error("fetch error", zap.Error(err))
			continue
		}

		for _, msg := range msgs {
			w.processMessage(ctx, msg)
		}
	}
}

// processMessage owns ack handling: every outcome ends in an Ack (after a
// retry republish or a DLQ publish where needed); it never Naks or Terms.
// All decision logic lives in processEvent so it can be unit tested
// without a live NATS message.
func (w *Worker) processMessage(ctx context.Context, msg *nats.Msg) {
	outcome := w.processEvent(ctx, msg.Data, msg.Header.Get(broker.HeaderRetryCount))

	switch outcome.action {
	case actionAck:
		msg.Ack()
	case actionRetry:
		w.republishWithBackoff(ctx, msg, outcome)
		msg.Ack()
	case actionDLQ:
		w.publishDLQ(ctx, msg, outcome)
		msg.Ack()
	}
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDLQ
)

// eventOutcome is processEvent's pure result: what the caller should do
// next, with enough context to act on it.
type eventOutcome struct {
	action action
	reason model.DLQReason
	err    error
}

// processEvent implements the processor's per-message state machine
// (received → decoded → dedup-checked → dispatched → acked, with
// retried/dlq side exits): decode, classify, dedup, then dispatch by
// family.
func (w *Worker) processEvent(ctx context.Context, raw []byte, retryHeader string) eventOutcome {
	var ev model.NormalizedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return eventOutcome{action: actionDLQ, reason: model.DLQReasonJSONDecode, err: err}
	}

	appUUID, err := pgUUID(ev.AppUUID)
	if err != nil {
		return eventOutcome{action: actionDLQ, reason: model.DLQReasonInvalidDocType, err: err}
	}
	eventID, err := pgUUID(ev.EventID)
	if err != nil {
		return eventOutcome{action: actionDLQ, reason: model.DLQReasonInvalidDocType, err: err}
	}

	// The idempotency-ledger insert and the dispatch's side effects share
	// one transaction, so a crash between the two never leaves a
	// processed_events row with no corresponding materialization.
	var fresh bool
	var ledgerErr, dispatchErr error
	txErr := pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		q := db.New(tx)

		f, err := q.InsertProcessedEvent(ctx, w.durable, appUUID, eventID)
		if err != nil {
			ledgerErr = err
			return err
		}
		fresh = f
		if !fresh {
			return nil
		}

		if err := w.dispatch(ctx, q, ev); err != nil {
			dispatchErr = err
			return err
		}
		return nil
	})

	switch {
	case ledgerErr != nil:
		if retry.Classify(ledgerErr) == retry.KindTransient {
			return eventOutcome{action: actionRetry, err: ledgerErr}
		}
		return eventOutcome{action: actionDLQ, reason: model.DLQReasonPermanentBusiness, err: ledgerErr}
	case dispatchErr != nil:
		if retry.Classify(dispatchErr) == retry.KindTransient {
			return eventOutcome{action: actionRetry, err: dispatchErr}
		}
		return eventOutcome{action: actionDLQ, reason: model.DLQReasonMinimalEvent, err: dispatchErr}
	case txErr != nil:
		// Commit/begin failure neither tagged above: treat as transient,
		// same as any other connection-layer error class.
		return eventOutcome{action: actionRetry, err: txErr}
	default:
		return eventOutcome{action: actionAck}
	}
}

// dispatch routes a normalized event to its family handler by durable
// consumer name.
func (w *Worker) dispatch(ctx context.Context, q *db.Queries, ev model.NormalizedEvent) error {
	switch w.durable {
	case broker.QueueGeo:
		return w.dispatchGeo(ctx, q, ev)
	case broker.QueueLicense:
		return w.dispatchLicense(ctx, q, ev)
	default:
		return w.dispatchGeneric(ctx, q, ev)
	}
}
