// Package app assembles repositories and services shared by the binaries.
package app

import (
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/repository"
	"github.com/noah-isme/adg-admissions-api/internal/service"
	"github.com/noah-isme/adg-admissions-api/pkg/config"
	"github.com/noah-isme/adg-admissions-api/pkg/jobs"
	"github.com/noah-isme/adg-admissions-api/pkg/lms"
	"github.com/noah-isme/adg-admissions-api/pkg/mailer"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
	"github.com/noah-isme/adg-admissions-api/pkg/validation"
)

const (
	// MediaURLPrefix serves public images from the upload directory.
	MediaURLPrefix = "/media/"
	// FileURLPrefix serves private documents through signed tokens.
	FileURLPrefix = "/files/"
)

// Services is the wired service graph.
type Services struct {
	Metrics          *service.MetricsService
	Auth             *service.AuthService
	Notifications    *service.NotificationService
	Eligibility      *service.CourseEligibilityService
	Applications     *service.ApplicationService
	Experiences      *service.ExperienceService
	PrerequisiteSync *service.PrerequisiteSyncService
	Webinars         *service.WebinarService
	BusinessLines    *service.BusinessLineService
	ApplicationAdmin *service.ApplicationAdminService

	Users  *repository.UserRepository
	Files  *storage.LocalStorage
	Signer *storage.SignedURLSigner
}

// NewDispatcher selects the email provider.
func NewDispatcher(cfg config.MailConfig, logger *zap.Logger) mailer.Dispatcher {
	if cfg.Provider == config.MailProviderSendGrid {
		return mailer.NewSendGridDispatcher(mailer.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			Host:      cfg.SendGridHost,
			FromName:  cfg.FromName,
			FromEmail: cfg.FromEmail,
			Templates: cfg.Templates,
		}, logger)
	}
	return mailer.NewConsoleDispatcher(logger)
}

// Build wires every repository and service. metrics may be shared with the
// queue's result hook, so it is created by the caller.
func Build(cfg *config.Config, db *sqlx.DB, rdb redis.UniversalClient, queue *jobs.Queue, metrics *service.MetricsService, logger *zap.Logger) (*Services, error) {
	files, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	validate := validation.New()

	users := repository.NewUserRepository(db)
	hubs := repository.NewApplicationHubRepository(db)
	applications := repository.NewUserApplicationRepository(db)
	businessLines := repository.NewBusinessLineRepository(db)
	courses := repository.NewCourseRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	experiences := repository.NewExperienceRepository(db)
	webinars := repository.NewWebinarRepository(db)
	registrations := repository.NewWebinarRegistrationRepository(db)
	reminders := repository.NewWebinarReminderRepository(db)

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(rdb, "admissions:", logger), metrics, cfg.LMS.GradeCacheTTL, logger, true)
	grades := lms.NewClient(cfg.LMS.BaseURL, cfg.LMS.Token, cfg.LMS.Timeout, &http.Client{})

	notifications := service.NewNotificationService(queue, NewDispatcher(cfg.Mail, logger), reminders, registrations, service.NotificationConfig{
		HandoffWindow: cfg.Notifications.ReminderHandoff,
		PollInterval:  cfg.Notifications.ReminderPollInterval,
	}, metrics, logger)
	eligibility := service.NewCourseEligibilityService(grades, enrollments, courses, cacheSvc, cfg.LMS.GradeCacheTTL, logger)
	applicationSvc := service.NewApplicationService(hubs, applications, businessLines, eligibility, notifications, files, signer, validate, service.ApplicationConfig{
		ResumePolicy:         storage.UploadPolicy{MaxBytes: cfg.Uploads.ResumeMaxBytes, Extensions: cfg.Uploads.ResumeExtensions},
		CoverLetterPolicy:    storage.UploadPolicy{MaxBytes: cfg.Uploads.ResumeMaxBytes, Extensions: cfg.Uploads.ResumeExtensions},
		CoverLetterWordLimit: cfg.Applications.CoverLetterWordLimit,
		CourseCatalogURL:     cfg.Applications.CourseCatalogURL,
		FileURLPrefix:        FileURLPrefix,
	}, logger)

	return &Services{
		Metrics:          metrics,
		Auth:             service.NewAuthService(users, cacheSvc, logger, service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}),
		Notifications:    notifications,
		Eligibility:      eligibility,
		Applications:     applicationSvc,
		Experiences:      service.NewExperienceService(experiences, applications, validate, logger),
		PrerequisiteSync: service.NewPrerequisiteSyncService(courses, enrollments, hubs, users, eligibility, applicationSvc, queue, metrics, logger),
		Webinars: service.NewWebinarService(webinars, registrations, users, notifications, files, validate, service.WebinarConfig{
			BannerPolicy:         storage.UploadPolicy{MaxBytes: cfg.Uploads.BannerMaxBytes, Extensions: cfg.Uploads.BannerExtensions, MaxDimension: cfg.Uploads.ImageMaxDimension},
			BannerURLPrefix:      MediaURLPrefix,
			ReminderStartingSoon: cfg.Webinars.ReminderStartingSoon,
			ReminderWeekBefore:   cfg.Webinars.ReminderWeekBefore,
		}, logger),
		BusinessLines: service.NewBusinessLineService(businessLines, files, cacheSvc, validate,
			storage.UploadPolicy{MaxBytes: cfg.Uploads.LogoMaxBytes, Extensions: cfg.Uploads.LogoExtensions, MaxDimension: cfg.Uploads.ImageMaxDimension}, logger),
		ApplicationAdmin: service.NewApplicationAdminService(applications, experiences, users, eligibility, signer, validate, FileURLPrefix, logger),

		Users:  users,
		Files:  files,
		Signer: signer,
	}, nil
}
