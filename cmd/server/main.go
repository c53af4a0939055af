package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sample-interp-server/internal/api"
	"github.com/sample-interp-server/internal/audit"
	"github.com/sample-interp-server/internal/cache"
	"github.com/sample-interp-server/internal/config"
	"github.com/sample-interp-server/internal/configstore"
	"github.com/sample-interp-server/internal/database"
	"github.com/sample-interp-server/internal/domain"
	"github.com/sample-interp-server/internal/repository"
	"github.com/sample-interp-server/internal/service"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database pool and schema
	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	migrations, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize migrations")
	}
	if err := migrations.Up(); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	migrations.Close()

	// Stores
	samples := repository.NewSampleRepository(db.Pool, logger)
	findings := repository.NewFindingRepository(db.Pool, logger)
	annotationRepo := repository.NewAnnotationRepository(db.Pool, logger)
	snapshots := repository.NewSnapshotRepository(db.Pool, logger)

	artifacts, err := repository.NewFilesystemArtifactStore(cfg.Reports.ArtifactDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize artifact store")
	}

	configs, err := configstore.NewSQLiteStore(cfg.Database.ConfigStorePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open governance store")
	}
	defer configs.Close()

	// Resolution cache degrades to a no-op when disabled or unreachable
	var resolutionCache domain.ResolutionCache = cache.NopResolutionCache{}
	if cfg.Cache.Enabled {
		redisCache, err := cache.NewRedisResolutionCache(cfg.Cache, logger)
		if err != nil {
			logger.WithError(err).Warn("Resolution cache unavailable, continuing without caching")
		} else {
			defer redisCache.Close()
			resolutionCache = redisCache
		}
	}

	var auditPublisher domain.AuditPublisher = audit.NopPublisher{}
	if cfg.Audit.Enabled {
		kafkaPublisher := audit.NewKafkaPublisher(cfg.Audit, logger)
		defer kafkaPublisher.Close()
		auditPublisher = kafkaPublisher
	}

	// Services
	assayConfig, err := service.NewAssayConfigProvider(cfg.Policy, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build assay config provider")
	}
	resolver := service.NewResolver(annotationRepo, resolutionCache, assayConfig, logger)
	reports := service.NewReportService(samples, findings, snapshots, artifacts, resolver, auditPublisher, cfg.Reports, logger)
	annotations := service.NewAnnotationService(annotationRepo, resolutionCache, auditPublisher, logger)

	server := api.NewServer(cfg, logger, samples, findings, snapshots, artifacts, configs,
		resolver, reports, annotations, db)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
