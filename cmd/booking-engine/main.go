package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/api"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/application"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/config"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/infrastructure/db"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/infrastructure/memory"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/infrastructure/messaging"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/infrastructure/observability"
	outboxinfra "github.com/RodolfoDevApp/roomstay-booking-go/internal/infrastructure/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// Store
	var (
		txManager  domain.TxManager
		outboxRepo domain.OutboxRepository
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		dbConn, err := sql.Open("pgx", cfg.PgDsn)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer dbConn.Close()

		if err := dbConn.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		if err := db.Migrate(dbConn); err != nil {
			logger.Fatal("failed to migrate postgres", zap.Error(err))
		}
		txManager = db.NewPgTxManager(dbConn)
		outboxRepo = db.NewPgOutboxRepository(dbConn)
	case config.StoreMemory:
		store := memory.NewStore()
		txManager = store
		outboxRepo = store.Outbox()
	}
	logger.Info("store ready", zap.String("driver", cfg.StoreDriver))

	// Application services
	clock := domain.SystemClock{}
	audit := application.NewAuditRecorder()
	availability := application.NewAvailabilityChecker()
	coordinator := application.NewReservationCoordinator(audit)
	orchestrator := application.NewOrchestrator(coordinator)
	outboxWriter := application.NewOutboxWriter()

	bookingSvc := application.NewBookingService(
		txManager, availability, orchestrator, audit, outboxWriter, clock, logger.Named("bookings"),
	)
	horizonSvc := application.NewHorizonService(
		txManager, audit, clock, cfg.HorizonDays, logger.Named("horizon"),
	)

	// Messaging: outbox dispatch + catalog consumer
	var schedulerDone <-chan struct{}
	if cfg.MessagingEnabled {
		producer := messaging.NewProducerBus(cfg.RabbitUri)
		dispatcher := outboxinfra.NewDispatcher(
			outboxRepo,
			producer,
			cfg.OutboxMaxRetry,
			cfg.OutboxBatchSize,
			logger.Named("outbox"),
		)
		scheduler := outboxinfra.NewScheduler(dispatcher, cfg.OutboxIntervalSec, logger.Named("outbox"))
		schedulerDone = scheduler.Start(ctx)

		catalogBus := messaging.NewCatalogEventBus(cfg.RabbitUri, "booking.catalog-events.v1")
		resourceTypeCreated := application.NewResourceTypeCreatedHandler(horizonSvc, logger.Named("catalog"))
		if err := messaging.RegisterCatalogSubscriptions(ctx, catalogBus, resourceTypeCreated, logger); err != nil {
			logger.Fatal("failed to start catalog subscriptions", zap.Error(err))
		}
	}

	// HTTP API
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	apiServer := api.NewServer(bookingSvc, horizonSvc, logger.Named("http"))
	httpSrv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP listening", zap.String("port", cfg.HttpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down booking engine", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
	cancel()
	if schedulerDone != nil {
		<-schedulerDone
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}
}
