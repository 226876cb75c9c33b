package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const userApplicationColumns = `a.id, a.user_id, a.business_line_id, a.organization, a.linkedin_url, a.resume_path,
a.cover_letter, a.cover_letter_path, a.is_work_experience_not_applicable, a.is_education_experience_completed,
a.status, a.reviewed_by, a.internal_admin_note, a.created_at, a.updated_at`

// UserApplicationRepository persists written applications.
type UserApplicationRepository struct {
	db *sqlx.DB
}

// NewUserApplicationRepository constructs the repository.
func NewUserApplicationRepository(db *sqlx.DB) *UserApplicationRepository {
	return &UserApplicationRepository{db: db}
}

// FindByUserID returns the written application of userID or sql.ErrNoRows.
func (r *UserApplicationRepository) FindByUserID(ctx context.Context, userID string) (*models.UserApplication, error) {
	query := `SELECT ` + userApplicationColumns + ` FROM user_applications a WHERE a.user_id = $1`
	var app models.UserApplication
	if err := r.db.GetContext(ctx, &app, query, userID); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindByID returns an application by ID or sql.ErrNoRows.
func (r *UserApplicationRepository) FindByID(ctx context.Context, id string) (*models.UserApplication, error) {
	query := `SELECT ` + userApplicationColumns + ` FROM user_applications a WHERE a.id = $1`
	var app models.UserApplication
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetOrCreate returns the application of userID, creating an empty one if missing.
func (r *UserApplicationRepository) GetOrCreate(ctx context.Context, userID string) (*models.UserApplication, error) {
	app, err := r.FindByUserID(ctx, userID)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find user application: %w", err)
	}
	const insert = `INSERT INTO user_applications (id, user_id, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), userID, models.ApplicationStatusOpen, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("create user application: %w", err)
	}
	app, err = r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload user application: %w", err)
	}
	return app, nil
}

// UpdateContact stores the contact step fields.
func (r *UserApplicationRepository) UpdateContact(ctx context.Context, app *models.UserApplication) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE user_applications SET organization = :organization, linkedin_url = :linkedin_url,
resume_path = :resume_path, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("update contact information: %w", err)
	}
	return nil
}

// UpdateCoverLetter stores the cover letter step fields.
func (r *UserApplicationRepository) UpdateCoverLetter(ctx context.Context, app *models.UserApplication) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE user_applications SET business_line_id = :business_line_id, cover_letter = :cover_letter,
cover_letter_path = :cover_letter_path, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("update cover letter: %w", err)
	}
	return nil
}

// SetBusinessLine records the business line of interest.
func (r *UserApplicationRepository) SetBusinessLine(ctx context.Context, id, businessLineID string) error {
	const query = `UPDATE user_applications SET business_line_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, businessLineID, time.Now().UTC()); err != nil {
		return fmt.Errorf("set business line: %w", err)
	}
	return nil
}

// MarkEducationExperienceCompleted flags the education step as done.
func (r *UserApplicationRepository) MarkEducationExperienceCompleted(ctx context.Context, id string) error {
	const query = `UPDATE user_applications SET is_education_experience_completed = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("complete education experience: %w", err)
	}
	return nil
}

// Review stores an admin decision.
func (r *UserApplicationRepository) Review(ctx context.Context, id string, status models.ApplicationStatus, note *string, reviewer string) error {
	const query = `UPDATE user_applications SET status = $2, internal_admin_note = $3, reviewed_by = $4, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, note, reviewer, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("review application: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns application summaries for the admin listing.
func (r *UserApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationSummary, int, error) {
	page, size := models.NormalizePage(filter.Page, filter.PageSize)

	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if filter.BusinessLineID != "" {
		args = append(args, filter.BusinessLineID)
		conditions = append(conditions, fmt.Sprintf("a.business_line_id = $%d", len(args)))
	}
	if filter.SubmittedOnly {
		conditions = append(conditions, "h.is_application_submitted = TRUE")
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.email) LIKE $%d OR LOWER(u.full_name) LIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	from := ` FROM user_applications a
JOIN users u ON u.id = a.user_id
LEFT JOIN application_hubs h ON h.user_id = a.user_id
LEFT JOIN business_lines b ON b.id = a.business_line_id`

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+from+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	listArgs := append(append([]interface{}{}, args...), size, (page-1)*size)
	query := `SELECT ` + userApplicationColumns + `, u.email, u.full_name, b.title AS business_line_title,
COALESCE(h.is_application_submitted, FALSE) AS is_application_submitted, h.submission_date` + from + where +
		fmt.Sprintf(" ORDER BY h.submission_date DESC NULLS LAST, a.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	var rows []models.ApplicationSummary
	if err := r.db.SelectContext(ctx, &rows, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	return rows, total, nil
}

// Summary returns one application summary by application ID.
func (r *UserApplicationRepository) Summary(ctx context.Context, id string) (*models.ApplicationSummary, error) {
	query := `SELECT ` + userApplicationColumns + `, u.email, u.full_name, b.title AS business_line_title,
COALESCE(h.is_application_submitted, FALSE) AS is_application_submitted, h.submission_date
FROM user_applications a
JOIN users u ON u.id = a.user_id
LEFT JOIN application_hubs h ON h.user_id = a.user_id
LEFT JOIN business_lines b ON b.id = a.business_line_id
WHERE a.id = $1`
	var row models.ApplicationSummary
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	return &row, nil
}
