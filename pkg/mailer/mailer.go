// Package mailer sends templated transactional email and manages scheduled
// sends through a pluggable provider.
package mailer

import (
	"context"
	"errors"
	"time"
)

// ErrScheduleTooFar is returned when a provider cannot hold a message until SendAt.
var ErrScheduleTooFar = errors.New("send time beyond the provider scheduling window")

// Template slugs known to the providers.
const (
	TemplateApplicationSubmission = "application-submission-confirmation"
	TemplateWebinarInvitation     = "webinar-invitation"
	TemplateWebinarCancellation   = "webinar-cancellation"
	TemplateWebinarUpdate         = "webinar-update"
	TemplateWebinarRegistration   = "webinar-registration-confirmation"
	TemplateWebinarStartingSoon   = "webinar-reminder-starting-soon"
	TemplateWebinarWeekBefore     = "webinar-reminder-week-before"
)

// Message is one templated email addressed to every recipient individually.
type Message struct {
	Template   string
	Recipients []string
	Data       map[string]interface{}
	// SendAt schedules delivery. Nil sends immediately.
	SendAt *time.Time
}

// MessageID is the provider handle of a message for one recipient. Handles of
// scheduled messages can be passed to Cancel.
type MessageID struct {
	Email string `json:"email"`
	ID    string `json:"id"`
}

// Dispatcher sends and cancels templated email.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) ([]MessageID, error)
	Cancel(ctx context.Context, ids []string) error
}

// Windowed is implemented by dispatchers that only accept SendAt up to a
// fixed distance in the future.
type Windowed interface {
	ScheduleWindow() time.Duration
}

// Unique returns recipients without duplicates or blanks, keeping first-seen order.
func Unique(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
