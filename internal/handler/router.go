package handler

import (
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/middleware"
	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/internal/repository"
	"github.com/noah-isme/adg-admissions-api/internal/service"
	"github.com/noah-isme/adg-admissions-api/pkg/cache"
	"github.com/noah-isme/adg-admissions-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/adg-admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/adg-admissions-api/pkg/middleware/requestid"
)

// RouterOptions tunes the route table.
type RouterOptions struct {
	APIPrefix           string
	AllowedOrigins      []string
	EnableDocs          bool
	MediaDir            string
	ApplicationsEnabled bool
	WebinarsEnabled     bool
	RegistrationLimit   int
	RegistrationWindow  time.Duration
}

// RouterDependencies carries everything the route table needs.
type RouterDependencies struct {
	Application      *ApplicationHandler
	Experience       *ExperienceHandler
	Course           *CourseHandler
	File             *FileHandler
	Webinar          *WebinarHandler
	BusinessLine     *BusinessLineHandler
	AdminApplication *AdminApplicationHandler
	Metrics          *MetricsHandler

	Auth       *service.AuthService
	MetricsSvc *service.MetricsService
	Limiter    *cache.Limiter
	AuditStore *repository.UserRepository
	Logger     *zap.Logger
	Options    RouterOptions
}

// NewRouter builds the gin engine with every route of the service.
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	opts := deps.Options
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(deps.MetricsSvc))

	r.GET("/health", deps.Metrics.Health)
	r.GET("/ready", deps.Metrics.Ready)
	r.GET("/metrics", deps.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if opts.MediaDir != "" {
		// Only public images are served statically; documents go through signed links.
		r.Static("/media/webinars/banners", filepath.Join(opts.MediaDir, "webinars", "banners"))
		r.Static("/media/business_lines", filepath.Join(opts.MediaDir, "business_lines"))
	}

	jwt := middleware.JWT(deps.Auth)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.AuditStore, log, action, resource)
	}
	api := r.Group(opts.APIPrefix)
	authed := api.Group("", jwt)
	admin := api.Group("/admin", jwt, middleware.RequireStaff())

	if opts.ApplicationsEnabled {
		forms := r.Group("/application", jwt)
		forms.GET("/", deps.Application.Hub)
		forms.POST("/", deps.Application.Submit)
		forms.GET("/contact", deps.Application.Contact)
		forms.POST("/contact", deps.Application.SaveContact)
		forms.GET("/education_experience", deps.Application.Education)
		forms.POST("/education_experience", deps.Application.CompleteEducation)
		forms.GET("/cover_letter", deps.Application.CoverLetter)
		forms.POST("/cover_letter", deps.Application.SaveCoverLetter)
		forms.GET("/success", deps.Application.Success)
		forms.GET("/business_line_interest", deps.Application.BusinessLineInterest)
		forms.POST("/business_line_interest", deps.Application.SetBusinessLineInterest)

		r.GET("/files/:token", jwt, deps.File.Download)

		education := authed.Group("/applications/education")
		education.GET("/", deps.Experience.ListEducation)
		education.POST("/", deps.Experience.CreateEducation)
		education.GET("/:id", deps.Experience.GetEducation)
		education.PATCH("/:id", deps.Experience.UpdateEducation)
		education.DELETE("/:id", deps.Experience.DeleteEducation)

		work := authed.Group("/applications/work_experience")
		work.GET("/", deps.Experience.ListWorkExperience)
		work.POST("/", deps.Experience.CreateWorkExperience)
		work.PATCH("/update_is_not_applicable/", deps.Experience.SetWorkExperienceNotApplicable)
		work.GET("/:id", deps.Experience.GetWorkExperience)
		work.PATCH("/:id", deps.Experience.UpdateWorkExperience)
		work.DELETE("/:id", deps.Experience.DeleteWorkExperience)

		authed.GET("/courses/prerequisites", deps.Course.Prerequisites)
		authed.GET("/business-lines", deps.BusinessLine.List)

		lines := admin.Group("/business-lines")
		lines.GET("", deps.BusinessLine.List)
		lines.POST("", audit(models.AuditActionBusinessLineCreate, "business_line"), deps.BusinessLine.Create)
		lines.GET("/:id", deps.BusinessLine.Get)
		lines.PATCH("/:id", audit(models.AuditActionBusinessLineUpdate, "business_line"), deps.BusinessLine.Update)
		lines.DELETE("/:id", audit(models.AuditActionBusinessLineDelete, "business_line"), deps.BusinessLine.Delete)

		applications := admin.Group("/applications")
		applications.GET("", deps.AdminApplication.List)
		applications.POST("/prerequisites/sync", audit(models.AuditActionPrerequisiteSync, "application_hub"), deps.AdminApplication.SyncPrerequisites)
		applications.GET("/:id", deps.AdminApplication.Get)
		applications.PATCH("/:id/review", audit(models.AuditActionApplicationReview, "user_application"), deps.AdminApplication.Review)
		applications.GET("/:id/export.pdf", deps.AdminApplication.ExportPDF)
	}

	if opts.WebinarsEnabled {
		public := api.Group("/webinars", middleware.OptionalJWT(deps.Auth))
		public.GET("", deps.Webinar.List)
		public.GET("/:id", deps.Webinar.Get)

		limit := middleware.RateLimit(deps.Limiter, opts.RegistrationLimit, opts.RegistrationWindow, log)
		r.POST("/webinars/:id/:action", jwt, limit, deps.Webinar.Registration)

		webinars := admin.Group("/webinars")
		webinars.GET("", deps.Webinar.List)
		webinars.POST("", audit(models.AuditActionWebinarCreate, "webinar"), deps.Webinar.Create)
		webinars.GET("/:id", deps.Webinar.Get)
		webinars.PATCH("/:id", audit(models.AuditActionWebinarUpdate, "webinar"), deps.Webinar.Update)
		webinars.DELETE("/:id", audit(models.AuditActionWebinarCancel, "webinar"), deps.Webinar.Cancel)
		webinars.GET("/:id/registrations", deps.Webinar.Registrants)
		webinars.GET("/:id/registrations.csv", deps.Webinar.RegistrantsCSV)
	}

	return r
}
