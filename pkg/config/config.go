package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	MailProviderConsole  = "console"
	MailProviderSendGrid = "sendgrid"
)

type Config struct {
	Env             string
	Port            int
	APIPrefix       string
	ShutdownTimeout time.Duration

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Mail          MailConfig
	Notifications NotificationsConfig
	LMS           LMSConfig
	Uploads       UploadsConfig
	Webinars      WebinarsConfig
	Applications  ApplicationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig validates access tokens issued by the LMS.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level        string
	Format       string
	RollbarToken string
	CodeVersion  string
}

// MailConfig selects the transactional email provider and its templates.
type MailConfig struct {
	Provider       string
	SendGridAPIKey string
	SendGridHost   string
	FromName       string
	FromEmail      string
	// Templates maps a template slug to the provider template identifier.
	Templates map[string]string
}

// NotificationsConfig tunes the in-process job queue used for email side effects.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// ReminderHandoff is how far ahead of its send time a stored reminder is
	// handed to the mail provider.
	ReminderHandoff      time.Duration
	ReminderPollInterval time.Duration
}

// LMSConfig points at the grades API of the learning platform.
type LMSConfig struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	GradeCacheTTL time.Duration
}

// UploadsConfig limits and locates user uploads.
type UploadsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	ResumeMaxBytes    int64
	ResumeExtensions  []string
	BannerMaxBytes    int64
	BannerExtensions  []string
	LogoMaxBytes      int64
	LogoExtensions    []string
	ImageMaxDimension int
}

// WebinarsConfig gates the webinar endpoints and registration throttling.
type WebinarsConfig struct {
	Enabled              bool
	RegistrationLimit    int
	RegistrationWindow   time.Duration
	ReminderStartingSoon time.Duration
	ReminderWeekBefore   time.Duration
}

// ApplicationsConfig gates the application workflow.
type ApplicationsConfig struct {
	Enabled              bool
	CoverLetterWordLimit int
	CourseCatalogURL     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ShutdownTimeout = parseDuration(v.GetString("SHUTDOWN_TIMEOUT"), 10*time.Second)

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:        v.GetString("LOG_LEVEL"),
		Format:       v.GetString("LOG_FORMAT"),
		RollbarToken: v.GetString("ROLLBAR_TOKEN"),
		CodeVersion:  v.GetString("CODE_VERSION"),
	}

	cfg.Mail = MailConfig{
		Provider:       strings.ToLower(v.GetString("MAIL_PROVIDER")),
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		SendGridHost:   v.GetString("SENDGRID_HOST"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromEmail:      v.GetString("MAIL_FROM_EMAIL"),
		Templates:      parseTemplates(v.GetString("MAIL_TEMPLATES")),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATIONS_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATIONS_BUFFER"),
		MaxRetries: v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 5*time.Second),

		ReminderHandoff:      parseDuration(v.GetString("NOTIFICATIONS_REMINDER_HANDOFF"), 48*time.Hour),
		ReminderPollInterval: parseDuration(v.GetString("NOTIFICATIONS_REMINDER_POLL_INTERVAL"), 5*time.Minute),
	}

	cfg.LMS = LMSConfig{
		BaseURL:       strings.TrimRight(v.GetString("LMS_BASE_URL"), "/"),
		Token:         v.GetString("LMS_API_TOKEN"),
		Timeout:       parseDuration(v.GetString("LMS_TIMEOUT"), 5*time.Second),
		GradeCacheTTL: parseDuration(v.GetString("LMS_GRADE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Uploads = UploadsConfig{
		StorageDir:        v.GetString("UPLOADS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("UPLOADS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("UPLOADS_SIGNED_URL_TTL"), 30*time.Minute),
		ResumeMaxBytes:    positiveInt64(v.GetInt64("RESUME_MAX_FILE_SIZE"), 4*1024*1024),
		ResumeExtensions:  splitAndTrim(v.GetString("RESUME_ALLOWED_EXTENSIONS")),
		BannerMaxBytes:    positiveInt64(v.GetInt64("WEBINAR_BANNER_MAX_FILE_SIZE"), 2*1024*1024),
		BannerExtensions:  splitAndTrim(v.GetString("WEBINAR_BANNER_ALLOWED_EXTENSIONS")),
		LogoMaxBytes:      positiveInt64(v.GetInt64("BUSINESS_LINE_LOGO_MAX_FILE_SIZE"), 200*1024),
		LogoExtensions:    splitAndTrim(v.GetString("BUSINESS_LINE_LOGO_ALLOWED_EXTENSIONS")),
		ImageMaxDimension: v.GetInt("UPLOADS_IMAGE_MAX_DIMENSION"),
	}

	cfg.Webinars = WebinarsConfig{
		Enabled:              v.GetBool("ENABLE_WEBINARS"),
		RegistrationLimit:    v.GetInt("WEBINAR_REGISTRATION_LIMIT"),
		RegistrationWindow:   parseDuration(v.GetString("WEBINAR_REGISTRATION_WINDOW"), time.Minute),
		ReminderStartingSoon: parseDuration(v.GetString("WEBINAR_REMINDER_STARTING_SOON"), 2*time.Hour),
		ReminderWeekBefore:   parseDuration(v.GetString("WEBINAR_REMINDER_WEEK_BEFORE"), 7*24*time.Hour),
	}

	cfg.Applications = ApplicationsConfig{
		Enabled:              v.GetBool("ENABLE_APPLICATIONS"),
		CoverLetterWordLimit: v.GetInt("COVER_LETTER_WORD_LIMIT"),
		CourseCatalogURL:     v.GetString("COURSE_CATALOG_URL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "adg_admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("CODE_VERSION", "dev")

	v.SetDefault("MAIL_PROVIDER", MailProviderConsole)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("SENDGRID_HOST", "https://api.sendgrid.com")
	v.SetDefault("MAIL_FROM_NAME", "Al-Dabbagh Group")
	v.SetDefault("MAIL_FROM_EMAIL", "no-reply@example.com")
	v.SetDefault("MAIL_TEMPLATES", "")

	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_BUFFER", 256)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "5s")
	v.SetDefault("NOTIFICATIONS_REMINDER_HANDOFF", "48h")
	v.SetDefault("NOTIFICATIONS_REMINDER_POLL_INTERVAL", "5m")

	v.SetDefault("LMS_BASE_URL", "http://localhost:18000")
	v.SetDefault("LMS_API_TOKEN", "")
	v.SetDefault("LMS_TIMEOUT", "5s")
	v.SetDefault("LMS_GRADE_CACHE_TTL", "5m")

	v.SetDefault("UPLOADS_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOADS_SIGNED_URL_SECRET", "dev_uploads_secret")
	v.SetDefault("UPLOADS_SIGNED_URL_TTL", "30m")
	v.SetDefault("RESUME_MAX_FILE_SIZE", 4*1024*1024)
	v.SetDefault("RESUME_ALLOWED_EXTENSIONS", "pdf,doc,jpg,png")
	v.SetDefault("WEBINAR_BANNER_MAX_FILE_SIZE", 2*1024*1024)
	v.SetDefault("WEBINAR_BANNER_ALLOWED_EXTENSIONS", "png,jpg,jpeg,svg")
	v.SetDefault("BUSINESS_LINE_LOGO_MAX_FILE_SIZE", 200*1024)
	v.SetDefault("BUSINESS_LINE_LOGO_ALLOWED_EXTENSIONS", "png,jpg,svg")
	v.SetDefault("UPLOADS_IMAGE_MAX_DIMENSION", 1600)

	v.SetDefault("ENABLE_WEBINARS", true)
	v.SetDefault("WEBINAR_REGISTRATION_LIMIT", 10)
	v.SetDefault("WEBINAR_REGISTRATION_WINDOW", "1m")
	v.SetDefault("WEBINAR_REMINDER_STARTING_SOON", "2h")
	v.SetDefault("WEBINAR_REMINDER_WEEK_BEFORE", "168h")

	v.SetDefault("ENABLE_APPLICATIONS", true)
	v.SetDefault("COVER_LETTER_WORD_LIMIT", 500)
	v.SetDefault("COURSE_CATALOG_URL", "http://localhost:18000/courses")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveInt64(value, fallback int64) int64 {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseTemplates reads "slug=template-id" pairs separated by commas.
func parseTemplates(raw string) map[string]string {
	templates := make(map[string]string)
	for _, pair := range splitAndTrim(raw) {
		slug, id, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		slug = strings.TrimSpace(slug)
		id = strings.TrimSpace(id)
		if slug != "" && id != "" {
			templates[slug] = id
		}
	}
	return templates
}

