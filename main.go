package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/lotline/lotline-engine/pkg/config"
	"github.com/lotline/lotline-engine/pkg/database"
	"github.com/lotline/lotline-engine/pkg/handlers"
	"github.com/lotline/lotline-engine/pkg/llm"
	"github.com/lotline/lotline-engine/pkg/logging"
	"github.com/lotline/lotline-engine/pkg/middleware"
	"github.com/lotline/lotline-engine/pkg/models"
	"github.com/lotline/lotline-engine/pkg/offline"
	"github.com/lotline/lotline-engine/pkg/push"
	"github.com/lotline/lotline-engine/pkg/repositories"
	"github.com/lotline/lotline-engine/pkg/services"
	"github.com/lotline/lotline-engine/pkg/services/dispatch"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Bool("ai_configured", cfg.AI.IsConfigured()))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	rdb, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis",
			zap.String("error", logging.SanitizeError(err)))
	}
	if rdb == nil {
		logger.Warn("Redis not configured; live timeline delivery disabled")
	}

	classifier, err := llm.NewClassifier(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to create classifier", zap.Error(err))
	}
	if classifier == nil {
		logger.Warn("Classifier not configured; all messages get the fallback interpretation")
	}

	// Repositories
	sites := repositories.NewSiteRepository(db)
	lots := repositories.NewLotRepository(db)
	blocking := repositories.NewBlockingItemRepository(db)
	gates := repositories.NewGateCheckRepository(db)
	timeline := repositories.NewTimelineRepository(db)
	materials := repositories.NewMaterialRequestRepository(db)
	devices := repositories.NewDeviceRepository(db)
	membership := repositories.NewMembershipRepository(db)
	operations := repositories.NewOperationRepository(db)

	// Background dispatch pool for notification fan-out
	queue := dispatch.New(logger, cfg.Notify.QueueWorkers, cfg.Notify.QueueCapacity)
	defer queue.Close()

	var transport push.Transport
	if t := push.NewHTTPTransport(cfg.Push.Endpoint, cfg.Push.APIKey, logger); t != nil {
		transport = t
	} else {
		logger.Warn("Push endpoint not configured; notifications disabled")
	}

	// Services
	catalog := models.DefaultCatalog()
	flowService := services.NewFlowService(lots, blocking, gates, catalog, logger)
	notificationService := services.NewNotificationService(sites, membership, devices, transport, cfg.Notify, logger)
	timelineService := services.NewTimelineService(timeline, rdb, cfg.Timeline, logger)
	materialService := services.NewMaterialService(materials, logger)
	mediationService, err := services.NewMediationService(
		timeline, sites, lots, materials, classifier, notificationService, queue, cfg.Mediation, logger)
	if err != nil {
		logger.Fatal("Failed to create mediation service", zap.Error(err))
	}

	// Offline sync
	store, err := offline.NewStore(cfg.Sync.QueuePath)
	if err != nil {
		logger.Fatal("Failed to open offline queue", zap.Error(err))
	}
	applier := services.NewSyncApplier(operations, timelineService, flowService, materialService, logger)
	syncManager := offline.NewManager(store, applier, cfg.Sync.MaxAttempts, nil, logger)
	defer syncManager.Close()
	syncManager.SetOnline(true)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewLotsHandler(flowService, logger).RegisterRoutes(mux)
	handlers.NewTimelineHandler(timelineService, mediationService, logger).RegisterRoutes(mux)
	handlers.NewMaterialsHandler(materialService, logger).RegisterRoutes(mux)
	handlers.NewDevicesHandler(devices, logger).RegisterRoutes(mux)
	handlers.NewSyncHandler(syncManager, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	go func() {
		logger.Info("Starting lotline-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host,
		cfg.Database.Port, cfg.Database.Database, cfg.Database.SSLMode)

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
