// Package outboxpub implements the outbox publisher: a long-lived
// lease/publish/finalize loop over outbox_events, with a stale-lease
// reaper and exponential backoff on transient failures. Leasing uses
// FOR UPDATE SKIP LOCKED plus explicit locked_at bookkeeping so
// publisher replicas scale horizontally.
package outboxpub

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arc-self/sentinel-pipeline/internal/platform/broker"
	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
	"github.com/arc-self/sentinel-pipeline/internal/retry"
)

// Config tunes the publisher loop.
type Config struct {
	LeaseSize    int32
	PollInterval time.Duration
	LeaseTimeout time.Duration
	RetryCap     int32
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

// Publisher runs the lease/publish/finalize loop.
type Publisher struct {
	pool   *pgxpool.Pool
	broker *broker.Client
	cfg    Config
	log    *zap.Logger
}

func NewPublisher(pool *pgxpool.Pool, brokerClient *broker.Client, cfg Config, log *zap.Logger) *Publisher {
	return &Publisher{pool: pool, broker: brokerClient, cfg: cfg, log: log}
}

// Run loops until ctx is cancelled, leasing and publishing a batch on
// every tick of PollInterval.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.log.Info("outbox publisher started",
		zap.Int32("lease_size", p.cfg.LeaseSize),
		zap.Duration("poll_interval", p.cfg.PollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("outbox publisher stopping")
			return nil
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil {
				p.log.Error("publish batch failed", zap.Error(err))
			}
		}
	}
}

// publishBatch leases up to LeaseSize pending rows and publishes each,
// finalizing individually so one bad row never blocks the rest of the
// batch.
func (p *Publisher) publishBatch(ctx context.Context) error {
	q := db.New(p.pool)

	rows, err := q.LeaseOutboxEvents(ctx, p.cfg.LeaseSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	p.log.Debug("leased outbox rows", zap.Int("count", len(rows)))

	for _, row := range rows {
		p.publishOne(ctx, q, row)
	}
	return nil
}

func (p *Publisher) publishOne(ctx context.Context, q *db.Queries, row db.OutboxEvent) {
	meta := broker.PublishMeta{
		EventID:    uuidString(row.EventID),
		TraceID:    uuidString(row.TraceID),
		OccurredAt: row.OccurredAt,
		AppUUID:    uuidString(row.AppUUID),
	}

	_, err := broker.Publish(ctx, p.broker.JS, row.RoutingKey, row.Payload, meta)
	if err == nil {
		if err := q.MarkOutboxSent(ctx, row.ID); err != nil {
			p.log.Error("mark outbox sent failed", zap.Int64("id", row.ID), zap.Error(err))
		}
		return
	}

	p.log.Warn("publish failed", zap.Int64("id", row.ID), zap.String("routing_key", row.RoutingKey), zap.Error(err))

	if retry.Classify(err) == retry.KindPermanent || row.Retries+1 > p.cfg.RetryCap {
		if markErr := q.MarkOutboxDead(ctx, row.ID, err.Error()); markErr != nil {
			p.log.Error("mark outbox dead failed", zap.Int64("id", row.ID), zap.Error(markErr))
		}
		return
	}

	next := p.nextAttempt(row.Retries)
	if markErr := q.MarkOutboxFailed(ctx, row.ID, next, err.Error()); markErr != nil {
		p.log.Error("mark outbox failed failed", zap.Int64("id", row.ID), zap.Error(markErr))
	}
}

// nextAttempt computes the backoff delay for a row's (retries+1)'th
// attempt, exponential with jitter, capped.
func (p *Publisher) nextAttempt(retries int32) time.Time {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BackoffBase
	b.MaxInterval = p.cfg.BackoffMax
	b.MaxElapsedTime = 0

	delay := b.NextBackOff()
	for i := int32(0); i < retries; i++ {
		delay = b.NextBackOff()
	}
	// NextBackOff jitters around the current interval, so it can
	// overshoot MaxInterval by the randomization factor.
	if delay > p.cfg.BackoffMax {
		delay = p.cfg.BackoffMax
	}
	return time.Now().Add(delay)
}

func uuidString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
