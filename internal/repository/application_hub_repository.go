package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const hubColumns = `id, user_id, is_prerequisite_courses_passed, is_bu_prerequisite_courses_passed,
is_written_application_started, is_written_application_completed, is_application_submitted,
written_application_date, submission_date, created_at, updated_at`

// ApplicationHubRepository persists application hubs. Flag writes only ever
// set flags, so concurrent updates cannot clear progress.
type ApplicationHubRepository struct {
	db *sqlx.DB
}

// NewApplicationHubRepository constructs the repository.
func NewApplicationHubRepository(db *sqlx.DB) *ApplicationHubRepository {
	return &ApplicationHubRepository{db: db}
}

// FindByUserID returns the hub of userID or sql.ErrNoRows.
func (r *ApplicationHubRepository) FindByUserID(ctx context.Context, userID string) (*models.ApplicationHub, error) {
	const query = `SELECT ` + hubColumns + ` FROM application_hubs WHERE user_id = $1`
	var hub models.ApplicationHub
	if err := r.db.GetContext(ctx, &hub, query, userID); err != nil {
		return nil, err
	}
	return &hub, nil
}

// GetOrCreate returns the hub of userID, inserting an empty one if missing.
func (r *ApplicationHubRepository) GetOrCreate(ctx context.Context, userID string) (*models.ApplicationHub, error) {
	hub, err := r.FindByUserID(ctx, userID)
	if err == nil {
		return hub, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find application hub: %w", err)
	}

	now := time.Now().UTC()
	const insert = `INSERT INTO application_hubs (id, user_id, created_at, updated_at) VALUES ($1, $2, $3, $3)
ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), userID, now); err != nil {
		return nil, fmt.Errorf("create application hub: %w", err)
	}
	hub, err = r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload application hub: %w", err)
	}
	return hub, nil
}

// MarkPrerequisitesPassed sets the prerequisite flag.
func (r *ApplicationHubRepository) MarkPrerequisitesPassed(ctx context.Context, userID string) error {
	const query = `UPDATE application_hubs SET is_prerequisite_courses_passed = TRUE, updated_at = $2
WHERE user_id = $1 AND is_prerequisite_courses_passed = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark prerequisites passed: %w", err)
	}
	return nil
}

// MarkBUPrerequisitesPassed sets the business line prerequisite flag.
func (r *ApplicationHubRepository) MarkBUPrerequisitesPassed(ctx context.Context, userID string) error {
	const query = `UPDATE application_hubs SET is_bu_prerequisite_courses_passed = TRUE, updated_at = $2
WHERE user_id = $1 AND is_bu_prerequisite_courses_passed = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark business line prerequisites passed: %w", err)
	}
	return nil
}

// MarkWrittenApplicationStarted sets the started flag.
func (r *ApplicationHubRepository) MarkWrittenApplicationStarted(ctx context.Context, userID string) error {
	const query = `UPDATE application_hubs SET is_written_application_started = TRUE, updated_at = $2
WHERE user_id = $1 AND is_written_application_started = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark written application started: %w", err)
	}
	return nil
}

// MarkWrittenApplicationCompleted sets the completed flag and stamps the date once.
func (r *ApplicationHubRepository) MarkWrittenApplicationCompleted(ctx context.Context, userID string, on time.Time) error {
	const query = `UPDATE application_hubs SET is_written_application_started = TRUE, is_written_application_completed = TRUE,
written_application_date = $2, updated_at = $3
WHERE user_id = $1 AND is_written_application_completed = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, on, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark written application completed: %w", err)
	}
	return nil
}

// Submit transitions the hub to submitted when both objectives are complete
// and it was not yet submitted. It reports whether this call made the transition.
func (r *ApplicationHubRepository) Submit(ctx context.Context, userID string, on time.Time) (bool, error) {
	const query = `UPDATE application_hubs SET is_application_submitted = TRUE, submission_date = $2, updated_at = $3
WHERE user_id = $1 AND is_application_submitted = FALSE
AND is_prerequisite_courses_passed = TRUE AND is_written_application_completed = TRUE`
	res, err := r.db.ExecContext(ctx, query, userID, on, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("submit application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("submit application rows: %w", err)
	}
	return affected == 1, nil
}

// UsersPendingPrerequisites returns, among candidates, the users without a hub
// or whose prerequisite flag is still false.
func (r *ApplicationHubRepository) UsersPendingPrerequisites(ctx context.Context, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	const query = `SELECT u.id FROM unnest($1::text[]) AS u(id)
LEFT JOIN application_hubs h ON h.user_id = u.id
WHERE h.id IS NULL OR h.is_prerequisite_courses_passed = FALSE
ORDER BY u.id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(candidates)); err != nil {
		return nil, fmt.Errorf("users pending prerequisites: %w", err)
	}
	return ids, nil
}

// UsersPendingBUPrerequisites returns hub owners who chose businessLineID and
// have not yet passed its prerequisite courses.
func (r *ApplicationHubRepository) UsersPendingBUPrerequisites(ctx context.Context, businessLineID string) ([]string, error) {
	const query = `SELECT h.user_id FROM application_hubs h
JOIN user_applications a ON a.user_id = h.user_id
WHERE a.business_line_id = $1 AND h.is_bu_prerequisite_courses_passed = FALSE
ORDER BY h.user_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, businessLineID); err != nil {
		return nil, fmt.Errorf("users pending business line prerequisites: %w", err)
	}
	return ids, nil
}
