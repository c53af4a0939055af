package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
	"github.com/sample-interp-server/internal/middleware"
	"github.com/sample-interp-server/internal/service"
)

// HealthChecker reports backing store liveness for the health endpoint
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the HTTP boundary of the interpretation service
type Server struct {
	cfg    *domain.Config
	log    *logrus.Logger
	router *gin.Engine
	server *http.Server

	samples     domain.SampleStore
	findings    domain.FindingStore
	snapshots   domain.SnapshotStore
	artifacts   domain.ArtifactStore
	configs     domain.ConfigEntityStore
	resolver    *service.Resolver
	reports     *service.ReportService
	annotations *service.AnnotationService
	health      HealthChecker
}

// NewServer wires routes and middleware around the service layer.
func NewServer(
	cfg *domain.Config,
	logger *logrus.Logger,
	samples domain.SampleStore,
	findings domain.FindingStore,
	snapshots domain.SnapshotStore,
	artifacts domain.ArtifactStore,
	configs domain.ConfigEntityStore,
	resolver *service.Resolver,
	reports *service.ReportService,
	annotations *service.AnnotationService,
	health HealthChecker,
) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())

	s := &Server{
		cfg:         cfg,
		log:         logger,
		router:      router,
		samples:     samples,
		findings:    findings,
		snapshots:   snapshots,
		artifacts:   artifacts,
		configs:     configs,
		resolver:    resolver,
		reports:     reports,
		annotations: annotations,
		health:      health,
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	auth := s.cfg.Auth

	timeout := s.cfg.Server.WriteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(timeout))
	v1.Use(middleware.TokenAuth(auth))
	v1.Use(middleware.RateLimit(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst))
	{
		v1.POST("/samples", s.handleCreateSample)
		v1.GET("/samples/:id", s.handleGetSample)
		v1.PUT("/samples/:id/filters", s.handleUpdateFilters)
		v1.GET("/samples/:id/findings", s.handleListFindings)
		v1.POST("/samples/:id/findings", s.handleIngestFinding)

		v1.GET("/samples/:id/report/preview", s.handlePreviewReport)
		v1.POST("/samples/:id/report",
			middleware.RequirePermission(auth, "reports.save"), s.handleSaveReport)
		v1.GET("/samples/:id/reports/:reportID", s.handleGetReport)

		v1.POST("/annotations/classifications",
			middleware.RequirePermission(auth, "annotations.write"), s.handleRecordClassification)
		v1.POST("/annotations/texts",
			middleware.RequirePermission(auth, "annotations.write"), s.handleRecordText)

		v1.GET("/config/:kind/:id", s.handleReadConfig)
		v1.GET("/config/:kind/:id/history", s.handleConfigHistory)
		v1.PUT("/config/:kind/:id",
			middleware.RequirePermission(auth, "config.write"), s.handleSaveConfig)
	}
}
