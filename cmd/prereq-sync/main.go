// Command prereq-sync sets the prerequisite flags of every learner who has
// passed their prerequisite courses. It is meant to run from cron.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/noah-isme/adg-admissions-api/internal/app"
	"github.com/noah-isme/adg-admissions-api/internal/service"
	"github.com/noah-isme/adg-admissions-api/pkg/cache"
	"github.com/noah-isme/adg-admissions-api/pkg/config"
	"github.com/noah-isme/adg-admissions-api/pkg/database"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/jobs"
	"github.com/noah-isme/adg-admissions-api/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 1
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return 1
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Errorw("failed to connect to postgres", "error", err)
		return 1
	}
	defer db.Close() //nolint:errcheck

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Errorw("failed to connect to redis", "error", err)
		return 1
	}
	defer rdb.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	// Not started: emails triggered by the run are sent inline.
	queue := jobs.NewQueue("prereq-sync", jobs.QueueConfig{
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnResult:   metrics.ObserveJob,
	})
	svc, err := app.Build(cfg, db, rdb, queue, metrics, logr)
	if err != nil {
		logr.Sugar().Errorw("failed to wire services", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := svc.PrerequisiteSync.Run(ctx)
	if err != nil {
		if errors.Is(err, appErrors.ErrNoPrerequisiteGroups) {
			logr.Sugar().Errorw("no prerequisite course groups are configured", "error", err)
			return 2
		}
		logr.Sugar().Errorw("prerequisite sync failed", "error", err)
		return 1
	}
	logr.Sugar().Infow("prerequisite sync finished",
		"checked", summary.Checked,
		"prerequisites_updated", summary.PrerequisitesUpdated,
		"business_line_checked", summary.BusinessLineChecked,
		"business_line_updated", summary.BusinessLineUpdated,
		"failed", summary.Failed,
	)
	return 0
}
