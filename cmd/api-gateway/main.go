package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-engine/api/swagger"
	"github.com/noah-isme/timetable-engine/internal/handler"
	internalmiddleware "github.com/noah-isme/timetable-engine/internal/middleware"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/cache"
	"github.com/noah-isme/timetable-engine/pkg/config"
	"github.com/noah-isme/timetable-engine/pkg/database"
	"github.com/noah-isme/timetable-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/timetable-engine/pkg/middleware/requestid"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

// @title Timetable Engine API
// @version 1.0.0
// @description Asynchronous course timetabling over stored study plans, staff and facilities
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.Database.Driver == config.DriverSQLite {
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate sqlite schema: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, run snapshots stay in memory", zap.Error(err))
		redisClient = nil
	}
	snapshots := repository.NewCacheRepository(redisClient, "timetable:", logr)
	defer snapshots.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()
	datasets := repository.NewDatasetRepository(db)
	engineCfg := service.EngineConfigFrom(cfg)

	generator := service.NewScheduleGeneratorService(datasets, snapshots, metrics, validate, logr, service.ScheduleGeneratorConfig{
		Engine:      engineCfg,
		RunTTL:      cfg.Scheduler.RunTTL,
		SnapshotTTL: cfg.Scheduler.SnapshotTTL,
		Workers:     cfg.Scheduler.Workers,
		QueueSize:   cfg.Scheduler.QueueSize,
		APIPrefix:   cfg.APIPrefix,
	})
	generator.Start(ctx)
	defer generator.Stop()

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exports := service.NewExportService(generator, files, signer, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Scheduler.RunTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		DayStart:        cfg.Grid.DayStart,
		PeriodLength:    cfg.Grid.PeriodLength,
	}, validate, logr)
	exports.StartCleanup(ctx)
	defer exports.StopCleanup()

	validation := service.NewValidationService(datasets, engineCfg.Grid, validate, logr)
	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.Expiration,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))

	registerRoutes(r, cfg, routeDeps{
		metrics:    handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient)),
		runs:       handler.NewScheduleGeneratorHandler(generator),
		exports:    handler.NewExportHandler(exports),
		validation: handler.NewValidationHandler(validation),
		tokens:     tokens,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routeDeps struct {
	metrics    *handler.MetricsHandler
	runs       *handler.ScheduleGeneratorHandler
	exports    *handler.ExportHandler
	validation *handler.ValidationHandler
	tokens     *service.TokenService
}

func registerRoutes(r *gin.Engine, cfg *config.Config, deps routeDeps) {
	r.GET("/health", deps.metrics.Health)
	r.GET("/ready", deps.metrics.Ready)
	r.GET("/metrics", deps.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// The signed token is the credential for downloads.
	api.GET("/schedules/exports/:token", deps.exports.Download)

	secured := api.Group("/schedules", internalmiddleware.JWT(deps.tokens))
	read := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleScheduler, models.RoleViewer)
	write := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleScheduler)

	secured.POST("/runs", write, deps.runs.Create)
	secured.GET("/runs/:id", read, deps.runs.Get)
	secured.GET("/runs/:id/progress", read, deps.runs.Progress)
	secured.GET("/runs/:id/events", read, deps.runs.Events)
	secured.POST("/runs/:id/cancel", write, deps.runs.Cancel)
	secured.POST("/runs/:id/exports", write, deps.exports.Create)
	secured.POST("/validate", write, deps.validation.Validate)
}

func readinessChecks(db *sqlx.DB, client *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return checks
}
