package outboxpub

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
)

// StartStaleLeaseReaper runs a cron job every minute that re-admits
// outbox rows whose locked_at has outlived leaseTimeout, tolerating a
// publisher replica killed mid-lease. Returns the running *cron.Cron so
// the caller can Stop() it on shutdown.
func StartStaleLeaseReaper(ctx context.Context, pool *pgxpool.Pool, cfg Config, log *zap.Logger) *cron.Cron {
	c := cron.New()
	q := db.New(pool)

	_, err := c.AddFunc("@every 1m", func() {
		reaped, err := q.ReapStaleLeases(ctx, cfg.LeaseTimeout)
		if err != nil {
			log.Error("stale lease reap failed", zap.Error(err))
			return
		}
		if reaped > 0 {
			log.Info("reaped stale outbox leases", zap.Int64("count", reaped))
		}
	})
	if err != nil {
		log.Error("failed to schedule stale lease reaper", zap.Error(err))
	}

	c.Start()
	return c
}
