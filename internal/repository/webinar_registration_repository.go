package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const registrationColumns = `id, webinar_id, user_id, is_registered, is_team_member, starting_soon_reminder_id,
week_before_reminder_id, created_at, updated_at`

// WebinarRegistrationRepository persists registrations keyed by (webinar, user).
type WebinarRegistrationRepository struct {
	db *sqlx.DB
}

// NewWebinarRegistrationRepository constructs the repository.
func NewWebinarRegistrationRepository(db *sqlx.DB) *WebinarRegistrationRepository {
	return &WebinarRegistrationRepository{db: db}
}

// Find returns the registration of userID or sql.ErrNoRows.
func (r *WebinarRegistrationRepository) Find(ctx context.Context, webinarID, userID string) (*models.WebinarRegistration, error) {
	const query = `SELECT ` + registrationColumns + ` FROM webinar_registrations WHERE webinar_id = $1 AND user_id = $2`
	var reg models.WebinarRegistration
	if err := r.db.GetContext(ctx, &reg, query, webinarID, userID); err != nil {
		return nil, err
	}
	return &reg, nil
}

// SetRegistered upserts is_registered for the pair. It reports whether the
// stored value changed.
func (r *WebinarRegistrationRepository) SetRegistered(ctx context.Context, webinarID, userID string, registered bool) (*models.WebinarRegistration, bool, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO webinar_registrations (id, webinar_id, user_id, is_registered, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (webinar_id, user_id) DO UPDATE SET is_registered = EXCLUDED.is_registered, updated_at = EXCLUDED.updated_at
WHERE webinar_registrations.is_registered IS DISTINCT FROM EXCLUDED.is_registered
RETURNING ` + registrationColumns
	var reg models.WebinarRegistration
	err := r.db.GetContext(ctx, &reg, query, uuid.NewString(), webinarID, userID, registered, now)
	if err == nil {
		return &reg, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("upsert registration: %w", err)
	}
	existing, err := r.Find(ctx, webinarID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("reload registration: %w", err)
	}
	return existing, false, nil
}

// SetReminderID stores the dispatcher handle of one reminder kind. A nil id clears it.
func (r *WebinarRegistrationRepository) SetReminderID(ctx context.Context, webinarID, userID string, kind models.ReminderKind, id *string) error {
	var column string
	switch kind {
	case models.ReminderStartingSoon:
		column = "starting_soon_reminder_id"
	case models.ReminderWeekBefore:
		column = "week_before_reminder_id"
	default:
		return fmt.Errorf("unknown reminder kind %q", kind)
	}
	query := fmt.Sprintf(`UPDATE webinar_registrations SET %s = $3, updated_at = $4 WHERE webinar_id = $1 AND user_id = $2`, column)
	if _, err := r.db.ExecContext(ctx, query, webinarID, userID, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("set reminder id: %w", err)
	}
	return nil
}

// ClearReminderIDs drops both reminder handles of the registration.
func (r *WebinarRegistrationRepository) ClearReminderIDs(ctx context.Context, webinarID, userID string) error {
	const query = `UPDATE webinar_registrations SET starting_soon_reminder_id = NULL, week_before_reminder_id = NULL, updated_at = $3
WHERE webinar_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, webinarID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear reminder ids: %w", err)
	}
	return nil
}

// ListActive returns the registrations that receive webinar email: registered
// users and every team member, even one who unregistered.
func (r *WebinarRegistrationRepository) ListActive(ctx context.Context, webinarID string) ([]models.WebinarRegistration, error) {
	const query = `SELECT ` + registrationColumns + ` FROM webinar_registrations
WHERE webinar_id = $1 AND (is_registered = TRUE OR is_team_member = TRUE) ORDER BY created_at`
	var rows []models.WebinarRegistration
	if err := r.db.SelectContext(ctx, &rows, query, webinarID); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return rows, nil
}

// ListRegistrants returns active registrations joined with user contact details.
func (r *WebinarRegistrationRepository) ListRegistrants(ctx context.Context, webinarID string) ([]models.Registrant, error) {
	const query = `SELECT r.id, r.webinar_id, r.user_id, r.is_registered, r.is_team_member, r.starting_soon_reminder_id,
r.week_before_reminder_id, r.created_at, r.updated_at, u.email, u.full_name
FROM webinar_registrations r JOIN users u ON u.id = r.user_id
WHERE r.webinar_id = $1 AND r.is_registered = TRUE
ORDER BY r.is_team_member DESC, u.email`
	var rows []models.Registrant
	if err := r.db.SelectContext(ctx, &rows, query, webinarID); err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	return rows, nil
}

// upsertTeamRegistration registers a team member for the webinar on q, which
// is the transaction writing the team.
func upsertTeamRegistration(ctx context.Context, q sqlx.QueryerContext, webinarID, userID string, now time.Time) (*models.WebinarRegistration, error) {
	const query = `INSERT INTO webinar_registrations (id, webinar_id, user_id, is_registered, is_team_member, created_at, updated_at)
VALUES ($1, $2, $3, TRUE, TRUE, $4, $4)
ON CONFLICT (webinar_id, user_id) DO UPDATE SET is_registered = TRUE, is_team_member = TRUE, updated_at = EXCLUDED.updated_at
RETURNING ` + registrationColumns
	var reg models.WebinarRegistration
	if err := sqlx.GetContext(ctx, q, &reg, query, uuid.NewString(), webinarID, userID, now); err != nil {
		return nil, fmt.Errorf("upsert team registration: %w", err)
	}
	return &reg, nil
}

// deleteRegistration removes the registration and returns it. A missing row
// yields nil without error.
func deleteRegistration(ctx context.Context, q sqlx.QueryerContext, webinarID, userID string) (*models.WebinarRegistration, error) {
	const query = `DELETE FROM webinar_registrations WHERE webinar_id = $1 AND user_id = $2 RETURNING ` + registrationColumns
	var reg models.WebinarRegistration
	if err := sqlx.GetContext(ctx, q, &reg, query, webinarID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("delete registration: %w", err)
	}
	return &reg, nil
}
