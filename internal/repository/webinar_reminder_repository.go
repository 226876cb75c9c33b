package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const reminderColumns = `id, webinar_id, user_id, kind, email, send_at, data, status, provider_id, created_at, updated_at`

// WebinarReminderRepository keeps reminders until they are handed to the
// mail provider.
type WebinarReminderRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewWebinarReminderRepository constructs the repository.
func NewWebinarReminderRepository(db *sqlx.DB) *WebinarReminderRepository {
	return &WebinarReminderRepository{db: db, now: time.Now}
}

// Create stores a pending reminder.
func (r *WebinarReminderRepository) Create(ctx context.Context, reminder *models.WebinarReminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	now := r.now().UTC()
	reminder.CreatedAt, reminder.UpdatedAt = now, now
	reminder.Status = models.ReminderPending
	if len(reminder.Data) == 0 {
		reminder.Data = []byte("{}")
	}
	const query = `INSERT INTO webinar_reminders (` + reminderColumns + `) VALUES (:id, :webinar_id, :user_id, :kind, :email,
:send_at, :data, :status, :provider_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reminder); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// Claim moves one pending reminder due before horizon to SUBMITTING. It
// returns sql.ErrNoRows when the reminder is not claimable.
func (r *WebinarReminderRepository) Claim(ctx context.Context, id string, horizon time.Time) (*models.WebinarReminder, error) {
	const query = `UPDATE webinar_reminders SET status = 'SUBMITTING', updated_at = $3
WHERE id = $1 AND status = 'PENDING' AND send_at <= $2
RETURNING ` + reminderColumns
	var reminder models.WebinarReminder
	if err := r.db.GetContext(ctx, &reminder, query, id, horizon.UTC(), r.now().UTC()); err != nil {
		return nil, err
	}
	return &reminder, nil
}

// ClaimDue moves up to limit reminders due before horizon to SUBMITTING.
// Reminders stuck in SUBMITTING since before staleBefore are claimed again.
func (r *WebinarReminderRepository) ClaimDue(ctx context.Context, horizon, staleBefore time.Time, limit int) ([]models.WebinarReminder, error) {
	const query = `UPDATE webinar_reminders SET status = 'SUBMITTING', updated_at = $4
WHERE id IN (
    SELECT id FROM webinar_reminders
    WHERE send_at <= $1 AND (status = 'PENDING' OR (status = 'SUBMITTING' AND updated_at < $2))
    ORDER BY send_at
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + reminderColumns
	var reminders []models.WebinarReminder
	if err := r.db.SelectContext(ctx, &reminders, query, horizon.UTC(), staleBefore.UTC(), limit, r.now().UTC()); err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	return reminders, nil
}

// MarkScheduled records the provider handle of a submitted reminder. It
// reports false when the reminder was cancelled during submission.
func (r *WebinarReminderRepository) MarkScheduled(ctx context.Context, id, providerID string) (bool, error) {
	const query = `UPDATE webinar_reminders SET status = 'SCHEDULED', provider_id = $2, updated_at = $3
WHERE id = $1 AND status = 'SUBMITTING'`
	res, err := r.db.ExecContext(ctx, query, id, providerID, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark reminder scheduled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark reminder scheduled rows: %w", err)
	}
	return affected == 1, nil
}

// Release returns a reminder whose submission failed to PENDING.
func (r *WebinarReminderRepository) Release(ctx context.Context, id string) error {
	const query = `UPDATE webinar_reminders SET status = 'PENDING', updated_at = $2 WHERE id = $1 AND status = 'SUBMITTING'`
	if _, err := r.db.ExecContext(ctx, query, id, r.now().UTC()); err != nil {
		return fmt.Errorf("release reminder: %w", err)
	}
	return nil
}

// Cancel marks the reminders cancelled and returns the provider handles of
// those the provider already holds.
func (r *WebinarReminderRepository) Cancel(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `UPDATE webinar_reminders SET status = 'CANCELLED', updated_at = $2
WHERE id = ANY($1) AND status <> 'CANCELLED'
RETURNING provider_id`
	var handles []sql.NullString
	if err := r.db.SelectContext(ctx, &handles, query, pq.Array(ids), r.now().UTC()); err != nil {
		return nil, fmt.Errorf("cancel reminders: %w", err)
	}
	var providerIDs []string
	for _, h := range handles {
		if h.Valid && h.String != "" {
			providerIDs = append(providerIDs, h.String)
		}
	}
	return providerIDs, nil
}
