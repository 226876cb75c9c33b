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

	_ "github.com/noah-isme/adg-admissions-api/api/swagger"
	"github.com/noah-isme/adg-admissions-api/internal/app"
	"github.com/noah-isme/adg-admissions-api/internal/handler"
	"github.com/noah-isme/adg-admissions-api/internal/service"
	"github.com/noah-isme/adg-admissions-api/migrations"
	"github.com/noah-isme/adg-admissions-api/pkg/cache"
	"github.com/noah-isme/adg-admissions-api/pkg/config"
	"github.com/noah-isme/adg-admissions-api/pkg/database"
	"github.com/noah-isme/adg-admissions-api/pkg/jobs"
	"github.com/noah-isme/adg-admissions-api/pkg/logger"
)

// @title ADG Admissions API
// @version 1.0.0
// @description Application hub, written application and webinar endpoints of the admissions program
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
	defer db.Close() //nolint:errcheck
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, migrations.FS, logr); err != nil {
			logr.Sugar().Fatalw("failed to apply migrations", "error", err)
		}
	}

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	queue := jobs.NewQueue("notifications", jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnResult:   metrics.ObserveJob,
	})

	svc, err := app.Build(cfg, db, rdb, queue, metrics, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to wire services", "error", err)
	}

	router := handler.NewRouter(handler.RouterDependencies{
		Application:      handler.NewApplicationHandler(svc.Applications),
		Experience:       handler.NewExperienceHandler(svc.Experiences),
		Course:           handler.NewCourseHandler(svc.Eligibility),
		File:             handler.NewFileHandler(svc.Signer, svc.Files),
		Webinar:          handler.NewWebinarHandler(svc.Webinars),
		BusinessLine:     handler.NewBusinessLineHandler(svc.BusinessLines),
		AdminApplication: handler.NewAdminApplicationHandler(svc.ApplicationAdmin, svc.PrerequisiteSync),
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
			"postgres": db,
			"redis":    handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}),
		Auth:       svc.Auth,
		MetricsSvc: metrics,
		Limiter:    cache.NewLimiter(rdb, "admissions:ratelimit:"),
		AuditStore: svc.Users,
		Logger:     logr,
		Options: handler.RouterOptions{
			APIPrefix:           cfg.APIPrefix,
			AllowedOrigins:      cfg.CORS.AllowedOrigins,
			EnableDocs:          cfg.Env != config.EnvProduction,
			MediaDir:            cfg.Uploads.StorageDir,
			ApplicationsEnabled: cfg.Applications.Enabled,
			WebinarsEnabled:     cfg.Webinars.Enabled,
			RegistrationLimit:   cfg.Webinars.RegistrationLimit,
			RegistrationWindow:  cfg.Webinars.RegistrationWindow,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	queue.Start(ctx)
	go svc.Notifications.RunReminderLoop(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	queue.Stop()
}
