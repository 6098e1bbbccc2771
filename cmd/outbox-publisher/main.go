package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arc-self/sentinel-pipeline/internal/outboxpub"
	"github.com/arc-self/sentinel-pipeline/internal/platform/broker"
	appconfig "github.com/arc-self/sentinel-pipeline/internal/platform/config"
	"github.com/arc-self/sentinel-pipeline/internal/platform/dbmigrate"
	"github.com/arc-self/sentinel-pipeline/internal/platform/obs"
)

func main() {
	logger, _ := obs.NewLogger()
	defer logger.Sync()

	cfg := appconfig.Load()

	if cfg.OTelEndpoint != "" {
		tp, err := obs.InitTracer(context.Background(), "sentinel-outbox-publisher", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
		mp, err := obs.InitMeterProvider(context.Background(), "sentinel-outbox-publisher", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
		}
	}

	if cfg.VaultSecretPath != "" {
		vaultManager, err := appconfig.NewSecretManager(cfg.VaultAddr, cfg.VaultToken)
		if err != nil {
			logger.Fatal("Vault connection failed", zap.Error(err))
		}
		secrets, err := vaultManager.GetKV2(cfg.VaultSecretPath)
		if err != nil {
			logger.Fatal("Failed to load secrets from Vault", zap.Error(err))
		}
		cfg.ApplyVaultOverlay(secrets)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolCfg, err := pgxpool.ParseConfig(cfg.PGURL)
	if err != nil {
		logger.Fatal("failed to parse PG_URL", zap.Error(err))
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// The publisher only asserts schema presence; ingest owns migrations.
	if err := dbmigrate.AssertSchema(ctx, pool); err != nil {
		logger.Fatal("schema assertion failed", zap.Error(err))
	}

	// --- NATS JetStream: the publisher is the one component that
	// declares topology on first boot.
	brokerClient, err := broker.NewClient(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer brokerClient.Close()

	if err := brokerClient.ProvisionTopology(); err != nil {
		logger.Fatal("NATS topology provisioning failed", zap.Error(err))
	}
	logger.Info("NATS topology provisioned")

	pubCfg := outboxpub.Config{
		LeaseSize:    int32(cfg.OutboxLeaseSize),
		PollInterval: 1 * time.Second,
		LeaseTimeout: cfg.OutboxLeaseTimeout,
		RetryCap:     int32(cfg.OutboxRetryCap),
		BackoffBase:  cfg.OutboxBackoffBase,
		BackoffMax:   cfg.OutboxBackoffMax,
	}

	reaper := outboxpub.StartStaleLeaseReaper(ctx, pool, pubCfg, logger)

	publisher := outboxpub.NewPublisher(pool, brokerClient, pubCfg, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- publisher.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining outbox publisher")
	case err := <-errCh:
		if err != nil {
			logger.Error("outbox publisher exited with error", zap.Error(err))
		}
	}

	<-reaper.Stop().Done()
	logger.Info("sentinel-outbox-publisher shut down cleanly")
}
