package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/prestafacil/loandocs-api/api/swagger"
	"github.com/prestafacil/loandocs-api/internal/handler"
	"github.com/prestafacil/loandocs-api/internal/middleware"
	"github.com/prestafacil/loandocs-api/internal/repository"
	"github.com/prestafacil/loandocs-api/internal/service"
	"github.com/prestafacil/loandocs-api/pkg/cache"
	"github.com/prestafacil/loandocs-api/pkg/config"
	"github.com/prestafacil/loandocs-api/pkg/database"
	"github.com/prestafacil/loandocs-api/pkg/jobs"
	"github.com/prestafacil/loandocs-api/pkg/logger"
	corsmiddleware "github.com/prestafacil/loandocs-api/pkg/middleware/cors"
	reqidmiddleware "github.com/prestafacil/loandocs-api/pkg/middleware/requestid"
	"github.com/prestafacil/loandocs-api/pkg/storage"
)

// @title LoanDocs API
// @version 1.0.0
// @description Document lifecycle and supersession engine for loan origination
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	blobs, err := storage.NewLocalBlobStore(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init blob store", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	docRepo := repository.NewDocumentRepository(db)
	relRepo := repository.NewRelationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	activationSvc := service.NewActivationService(docRepo, logr,
		service.WithActivationRetries(cfg.Documents.ActivationMaxRetries, cfg.Documents.ActivationBackoff),
		service.WithActivationMetrics(metricsSvc),
	)
	attachSvc := service.NewAttachmentService(activationSvc, relRepo, logr)
	docSvc := service.NewDocumentService(docRepo, relRepo, blobs, signer, activationSvc, attachSvc, auditRepo, cacheRepo, cfg.Documents, validator.New(), logr)
	historySvc := service.NewHistoryService(docRepo, relRepo, auditRepo, cacheRepo, cfg.Documents.CacheTTL, logr)
	expirySvc := service.NewExpiryService(docRepo, auditRepo, cfg.Documents.ApprovedValidity, logr)

	docHandler := handler.NewDocumentHandler(docSvc, attachSvc)
	historyHandler := handler.NewHistoryHandler(historySvc, nil, nil)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var expiryQueue *jobs.Queue
	if cfg.Documents.ExpiryEnabled {
		expiryQueue = jobs.NewQueue("document-expiry", expirySvc.HandleJob, jobs.QueueConfig{
			Workers: cfg.Documents.ExpiryWorkers,
			Logger:  logr,
		})
		expiryQueue.Start(ctx)
		go func() {
			ticker := time.NewTicker(cfg.Documents.ExpiryInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := expiryQueue.Enqueue(jobs.Job{Type: "document.expiry"}); err != nil {
						logr.Sugar().Warnw("failed to enqueue expiry sweep", "error", err)
					}
				}
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/downloads/:token", docHandler.Download)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Tenant())
	{
		api.POST("/documents", docHandler.Upload)
		api.GET("/documents/active", docHandler.Active)
		api.GET("/documents/valid-at", historyHandler.ValidAt)
		api.GET("/documents/timeline", historyHandler.Timeline)
		api.GET("/documents/timeline/export", historyHandler.TimelineExport)
		api.GET("/documents/:id", docHandler.Get)
		api.POST("/documents/:id/attach", middleware.Audit(auditRepo, "DOCUMENT_ATTACH", "document"), docHandler.Attach)
		api.POST("/documents/:id/review", docHandler.Review)
		api.GET("/documents/:id/chain", historyHandler.Chain)
		api.GET("/documents/:id/consumers", historyHandler.Consumers)
		api.GET("/documents/:id/audit", historyHandler.AuditTrail)
		api.GET("/documents/:id/download-url", docHandler.DownloadURL)
		api.GET("/consumers/documents", historyHandler.ConsumerDocuments)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	if expiryQueue != nil {
		expiryQueue.Stop()
	}
}
