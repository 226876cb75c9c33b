package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTemplates(t *testing.T) {
	templates := parseTemplates("webinar-cancellation = d-123, broken, webinar-invitation=d-456,=d-789")

	assert.Equal(t, map[string]string{
		"webinar-cancellation": "d-123",
		"webinar-invitation":   "d-456",
	}, templates)
	assert.Empty(t, parseTemplates(""))
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, 2*time.Hour, parseDuration("2h", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAIL_PROVIDER", "SendGrid")
	t.Setenv("LMS_BASE_URL", "http://lms.local/")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, MailProviderSendGrid, cfg.Mail.Provider)
	assert.Equal(t, "http://lms.local", cfg.LMS.BaseURL)
	assert.Equal(t, int64(4*1024*1024), cfg.Uploads.ResumeMaxBytes)
	assert.Equal(t, []string{"pdf", "doc", "jpg", "png"}, cfg.Uploads.ResumeExtensions)
	assert.Equal(t, 2*time.Hour, cfg.Webinars.ReminderStartingSoon)
	assert.Equal(t, 500, cfg.Applications.CoverLetterWordLimit)
	assert.Equal(t, 48*time.Hour, cfg.Notifications.ReminderHandoff)
	assert.Equal(t, 5*time.Minute, cfg.Notifications.ReminderPollInterval)
}
