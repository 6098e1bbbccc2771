// @title        Sentinel Ingest API
// @version      1.0
// @description  Event ingest front-end: envelope validation, opt-out
// @description  enforcement, and the atomic raw_event+outbox write.
// @host         localhost:8080
// @BasePath     /
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/sentinel-pipeline/internal/ingest"
	"github.com/arc-self/sentinel-pipeline/internal/model"
	"github.com/arc-self/sentinel-pipeline/internal/optout"
	appconfig "github.com/arc-self/sentinel-pipeline/internal/platform/config"
	"github.com/arc-self/sentinel-pipeline/internal/platform/dbmigrate"
	"github.com/arc-self/sentinel-pipeline/internal/platform/httpmw"
	"github.com/arc-self/sentinel-pipeline/internal/platform/obs"
	"github.com/arc-self/sentinel-pipeline/internal/repository/db"
)

func main() {
	logger, _ := obs.NewLogger()
	defer logger.Sync()

	cfg := appconfig.Load()

	// --- OpenTelemetry ---
	if cfg.OTelEndpoint != "" {
		tp, err := obs.InitTracer(context.Background(), "sentinel-ingest", cfg.OTelEndpoint)
		if err != nil {
			logger.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
			logger.Info("OTel tracer initialized", zap.String("endpoint", cfg.OTelEndpoint))
		}
	}

	// --- Vault Secret Loading ---
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

	// --- Schema: ingest is the one component that runs migrations ---
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbmigrate.EnsureSchema(migrateCtx, cfg.PGURL); err != nil {
		migrateCancel()
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	migrateCancel()

	// --- Database ---
	poolCfg, err := pgxpool.ParseConfig(cfg.PGURL)
	if err != nil {
		logger.Fatal("failed to parse PG_URL", zap.Error(err))
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database (OTel-instrumented)")

	// --- Services ---
	optOutRegistry := optout.NewRegistry(db.New(pool))
	dialect := model.DialectLax
	if cfg.StrictEnvelope {
		dialect = model.DialectStrict
	}
	svc := ingest.NewService(pool, optOutRegistry, dialect)

	// --- HTTP Server ---
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("sentinel-ingest"))
	e.Use(httpmw.TraceContext(cfg.TraceHeader))
	e.Use(httpmw.RequestLogger(logger))
	e.Use(httpmw.Recover())

	ingest.NewHandler(svc, optOutRegistry, pool).Register(e)

	go func() {
		logger.Info("sentinel-ingest HTTP server listening on :8080")
		if err := e.Start(":8080"); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failure", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Echo shutdown error", zap.Error(err))
	}
	logger.Info("sentinel-ingest shut down cleanly")
}
