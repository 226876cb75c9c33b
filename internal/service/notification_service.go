package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/pkg/jobs"
	"github.com/noah-isme/adg-admissions-api/pkg/mailer"
)

// Job types handled by the notification service.
const (
	JobEmailSend       = "email.send"
	JobEmailCancel     = "email.cancel"
	JobWebinarReminder = "webinar.reminder"
	JobReminderFlush   = "webinar.reminder.flush"
)

type jobQueue interface {
	Register(jobType string, handler jobs.Handler)
	Submit(ctx context.Context, jobType string, payload interface{}) error
}

type reminderStore interface {
	Create(ctx context.Context, reminder *models.WebinarReminder) error
	Claim(ctx context.Context, id string, horizon time.Time) (*models.WebinarReminder, error)
	ClaimDue(ctx context.Context, horizon, staleBefore time.Time, limit int) ([]models.WebinarReminder, error)
	MarkScheduled(ctx context.Context, id, providerID string) (bool, error)
	Release(ctx context.Context, id string) error
	Cancel(ctx context.Context, ids []string) ([]string, error)
}

type reminderHandleStore interface {
	SetReminderID(ctx context.Context, webinarID, userID string, kind models.ReminderKind, id *string) error
}

// ReminderRequest schedules one reminder email for one registration.
type ReminderRequest struct {
	WebinarID string
	UserID    string
	Email     string
	Kind      models.ReminderKind
	SendAt    time.Time
	Data      map[string]interface{}
}

// NotificationConfig controls when stored reminders reach the provider.
type NotificationConfig struct {
	// HandoffWindow is how far ahead of its send time a reminder is given
	// to the dispatcher. It is capped by the dispatcher's own window.
	HandoffWindow time.Duration
	PollInterval  time.Duration
	// SubmitTimeout releases reminders whose hand-off never completed.
	SubmitTimeout time.Duration
	BatchSize     int
}

// NotificationService turns email side effects into queue jobs. Failures are
// retried by the queue and logged, never returned to callers.
//
// Reminders are stored locally first; the stored id is the handle kept on the
// registration. A reminder is handed to the dispatcher once its send time
// falls inside the hand-off window.
type NotificationService struct {
	queue      jobQueue
	dispatcher mailer.Dispatcher
	reminders  reminderStore
	handles    reminderHandleStore
	config     NotificationConfig
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewNotificationService registers the notification job handlers on queue.
func NewNotificationService(
	queue jobQueue,
	dispatcher mailer.Dispatcher,
	reminders reminderStore,
	handles reminderHandleStore,
	config NotificationConfig,
	metrics *MetricsService,
	logger *zap.Logger,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.HandoffWindow <= 0 {
		config.HandoffWindow = 48 * time.Hour
	}
	if windowed, ok := dispatcher.(mailer.Windowed); ok {
		// Leave room for the poll interval and clock skew.
		if limit := windowed.ScheduleWindow() - time.Hour; config.HandoffWindow > limit {
			config.HandoffWindow = limit
		}
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Minute
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = 10 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	s := &NotificationService{
		queue:      queue,
		dispatcher: dispatcher,
		reminders:  reminders,
		handles:    handles,
		config:     config,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
	queue.Register(JobEmailSend, s.handleSend)
	queue.Register(JobEmailCancel, s.handleCancel)
	queue.Register(JobWebinarReminder, s.handleReminder)
	queue.Register(JobReminderFlush, s.handleFlush)
	return s
}

// Send queues a templated email to every recipient.
func (s *NotificationService) Send(ctx context.Context, msg mailer.Message) {
	msg.Recipients = mailer.Unique(msg.Recipients)
	if len(msg.Recipients) == 0 {
		return
	}
	s.metrics.RecordEmailQueued(msg.Template)
	s.submit(ctx, JobEmailSend, msg)
}

// Cancel queues the cancellation of provider scheduled sends.
func (s *NotificationService) Cancel(ctx context.Context, ids []string) {
	ids = mailer.Unique(ids)
	if len(ids) == 0 {
		return
	}
	s.submit(ctx, JobEmailCancel, ids)
}

// ScheduleReminder stores a reminder and its handle on the registration
// before returning. Send times in the past are sent right away; reminders
// inside the hand-off window are submitted at once, later ones by the flush.
func (s *NotificationService) ScheduleReminder(ctx context.Context, req ReminderRequest) {
	if req.Email == "" {
		return
	}
	now := s.now()
	if req.SendAt.Before(now) {
		req.SendAt = now
	}
	data, err := json.Marshal(req.Data)
	if err != nil {
		s.logger.Error("failed to encode reminder data", zap.String("webinar_id", req.WebinarID), zap.Error(err))
		return
	}
	reminder := &models.WebinarReminder{
		WebinarID: req.WebinarID,
		UserID:    req.UserID,
		Kind:      req.Kind,
		Email:     req.Email,
		SendAt:    req.SendAt.UTC(),
		Data:      data,
	}
	if err := s.reminders.Create(ctx, reminder); err != nil {
		s.logger.Error("failed to store reminder", zap.String("webinar_id", req.WebinarID), zap.String("user_id", req.UserID), zap.Error(err))
		return
	}
	id := reminder.ID
	if err := s.handles.SetReminderID(ctx, req.WebinarID, req.UserID, req.Kind, &id); err != nil {
		s.logger.Error("failed to store reminder id", zap.String("webinar_id", req.WebinarID), zap.String("user_id", req.UserID), zap.Error(err))
	}
	s.metrics.RecordEmailQueued(reminderTemplate(req.Kind))
	if !req.SendAt.After(s.horizon()) {
		s.submit(ctx, JobWebinarReminder, reminder.ID)
	}
}

// CancelReminders cancels stored reminders by handle. Reminders the provider
// already holds are cancelled there too.
func (s *NotificationService) CancelReminders(ctx context.Context, ids []string) {
	ids = mailer.Unique(ids)
	if len(ids) == 0 {
		return
	}
	providerIDs, err := s.reminders.Cancel(ctx, ids)
	if err != nil {
		s.logger.Error("failed to cancel reminders", zap.Strings("reminder_ids", ids), zap.Error(err))
		return
	}
	s.Cancel(ctx, providerIDs)
}

// FlushDueReminders hands every stored reminder inside the hand-off window to
// the dispatcher. It returns how many were handed off.
func (s *NotificationService) FlushDueReminders(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.reminders.ClaimDue(ctx, s.horizon(), now.Add(-s.config.SubmitTimeout), s.config.BatchSize)
	if err != nil {
		return 0, err
	}
	handed := 0
	for i := range due {
		if err := s.dispatch(ctx, &due[i]); err != nil {
			s.logger.Warn("reminder hand-off failed", zap.String("reminder_id", due[i].ID), zap.Error(err))
			continue
		}
		handed++
	}
	if len(due) > 0 {
		s.logger.Info("reminders flushed", zap.Int("due", len(due)), zap.Int("handed_off", handed))
	}
	return handed, nil
}

// RunReminderLoop submits a flush job every poll interval until ctx ends.
func (s *NotificationService) RunReminderLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	s.submit(ctx, JobReminderFlush, nil)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.submit(ctx, JobReminderFlush, nil)
		}
	}
}

func (s *NotificationService) horizon() time.Time {
	return s.now().Add(s.config.HandoffWindow)
}

func (s *NotificationService) submit(ctx context.Context, jobType string, payload interface{}) {
	if err := s.queue.Submit(ctx, jobType, payload); err != nil {
		s.logger.Error("notification job failed", zap.String("type", jobType), zap.Error(err))
	}
}

func (s *NotificationService) handleSend(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	_, err := s.dispatcher.Send(ctx, msg)
	return err
}

func (s *NotificationService) handleCancel(ctx context.Context, job jobs.Job) error {
	ids, ok := job.Payload.([]string)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	return s.dispatcher.Cancel(ctx, ids)
}

func (s *NotificationService) handleReminder(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", job.Payload, job.Type)
	}
	reminder, err := s.reminders.Claim(ctx, id, s.horizon())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Cancelled, already handed off or not due yet.
			return nil
		}
		return err
	}
	return s.dispatch(ctx, reminder)
}

func (s *NotificationService) handleFlush(ctx context.Context, _ jobs.Job) error {
	_, err := s.FlushDueReminders(ctx)
	return err
}

// dispatch hands a claimed reminder to the dispatcher. A reminder cancelled
// while the dispatcher held it is cancelled at the provider straight away.
func (s *NotificationService) dispatch(ctx context.Context, reminder *models.WebinarReminder) error {
	var data map[string]interface{}
	if err := reminder.Data.Unmarshal(&data); err != nil {
		s.logger.Warn("invalid reminder data", zap.String("reminder_id", reminder.ID), zap.Error(err))
	}
	sendAt := reminder.SendAt
	if now := s.now(); sendAt.Before(now) {
		sendAt = now
	}
	ids, err := s.dispatcher.Send(ctx, mailer.Message{
		Template:   reminderTemplate(reminder.Kind),
		Recipients: []string{reminder.Email},
		Data:       data,
		SendAt:     &sendAt,
	})
	if err != nil {
		if releaseErr := s.reminders.Release(ctx, reminder.ID); releaseErr != nil {
			s.logger.Error("failed to release reminder", zap.String("reminder_id", reminder.ID), zap.Error(releaseErr))
		}
		return err
	}
	var providerID string
	if len(ids) > 0 {
		providerID = ids[0].ID
	}
	scheduled, err := s.reminders.MarkScheduled(ctx, reminder.ID, providerID)
	if err != nil {
		// The email is scheduled already; retrying would schedule a duplicate.
		s.logger.Error("failed to store provider handle", zap.String("reminder_id", reminder.ID), zap.Error(err))
		return nil
	}
	if !scheduled && providerID != "" {
		if err := s.dispatcher.Cancel(ctx, []string{providerID}); err != nil {
			s.logger.Error("failed to cancel superseded reminder", zap.String("reminder_id", reminder.ID), zap.Error(err))
		}
	}
	return nil
}

func reminderTemplate(kind models.ReminderKind) string {
	if kind == models.ReminderWeekBefore {
		return mailer.TemplateWebinarWeekBefore
	}
	return mailer.TemplateWebinarStartingSoon
}
