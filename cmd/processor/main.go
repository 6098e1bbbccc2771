package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arc-self/sentinel-pipeline/internal/geo"
	"github.com/arc-self/sentinel-pipeline/internal/platform/broker"
	appconfig "github.com/arc-self/sentinel-pipeline/internal/platform/config"
	"github.com/arc-self/sentinel-pipeline/internal/platform/dbmigrate"
	"github.com/arc-self/sentinel-pipeline/internal/platform/obs"
	"github.com/arc-self/sentinel-pipeline/internal/processor"
)

// bindings is every durable consumer the processor pulls from except the
// DLQ, which has no consumer — this process is the only consumer of the
// domain queues.
var bindings = []processor.QueueBinding{
	{Durable: broker.QueueRaw, Subject: broker.RoutingKeyRaw},
	{Durable: broker.QueueGeo, Subject: broker.RoutingKeyGeo},
	{Durable: broker.QueueLicense, Subject: broker.RoutingKeyLicense},
	{Durable: broker.QueueSession, Subject: broker.RoutingKeySession},
	{Durable: broker.QueueScreen, Subject: broker.RoutingKeyScreen},
	{Durable: broker.QueueUI, Subject: broker.RoutingKeyUI},
	{Durable: broker.QueueSystem, Subject: broker.RoutingKeySystem},
}

func main() {
	logger, _ := obs.NewLogger()
	defer logger.Sync()

	cfg := appconfig.Load()

	if cfg.OTelEndpoint != "" {
		tp, err := obs.InitTracer(context.Background(), "sentinel-processor", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
		mp, err := obs.InitMeterProvider(context.Background(), "sentinel-processor", cfg.OTelEndpoint)
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

	if err := dbmigrate.AssertSchema(ctx, pool); err != nil {
		logger.Fatal("schema assertion failed", zap.Error(err))
	}

	brokerClient, err := broker.NewClient(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal("NATS connection failed", zap.Error(err))
	}
	defer brokerClient.Close()

	// The processor runs the same idempotent ProvisionTopology as the
	// outbox publisher; it creates only stream or consumer declarations
	// that are still missing.
	if err := brokerClient.ProvisionTopology(); err != nil {
		logger.Fatal("NATS topology assertion failed", zap.Error(err))
	}

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer cache.Close()
	}
	classifier := geo.NewClassifier(pool, cache, logger)

	workerCfg := processor.Config{
		FetchBatch:  cfg.ProcessorFetchBatch,
		RetryCap:    int32(cfg.ProcessorRetryCap),
		BackoffBase: cfg.ProcessorBackoffBase,
		BackoffMax:  cfg.ProcessorBackoffMax,
	}

	var wg sync.WaitGroup
	for _, binding := range bindings {
		w := processor.NewWorker(binding, pool, brokerClient, classifier, workerCfg, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("worker exited with error", zap.String("durable", binding.Durable), zap.Error(err))
			}
		}()
	}

	logger.Info("sentinel-processor started", zap.Int("workers", len(bindings)))

	<-ctx.Done()
	logger.Info("shutdown signal received, draining processor workers")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("sentinel-processor shut down cleanly")
	case <-time.After(15 * time.Second):
		logger.Warn("processor shutdown deadline exceeded, exiting anyway")
	}
}
