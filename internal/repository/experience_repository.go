package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const (
	educationColumns = `id, user_application_id, name_of_school, degree, area_of_study, is_in_progress,
date_started_month, date_started_year, date_completed_month, date_completed_year, created_at, updated_at`
	workExperienceColumns = `id, user_application_id, name_of_organization, job_position_title, is_current_position,
job_responsibilities, date_started_month, date_started_year, date_completed_month, date_completed_year, created_at, updated_at`
)

// ExperienceRepository persists education and work entries scoped to one application.
type ExperienceRepository struct {
	db *sqlx.DB
}

// NewExperienceRepository constructs the repository.
func NewExperienceRepository(db *sqlx.DB) *ExperienceRepository {
	return &ExperienceRepository{db: db}
}

// ListEducation returns the education entries of an application.
func (r *ExperienceRepository) ListEducation(ctx context.Context, applicationID string) ([]models.Education, error) {
	const query = `SELECT ` + educationColumns + ` FROM educations WHERE user_application_id = $1 ORDER BY date_started_year DESC, date_started_month DESC`
	var rows []models.Education
	if err := r.db.SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("list educations: %w", err)
	}
	return rows, nil
}

// GetEducation returns one entry of the application or sql.ErrNoRows.
func (r *ExperienceRepository) GetEducation(ctx context.Context, applicationID, id string) (*models.Education, error) {
	const query = `SELECT ` + educationColumns + ` FROM educations WHERE id = $1 AND user_application_id = $2`
	var row models.Education
	if err := r.db.GetContext(ctx, &row, query, id, applicationID); err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateEducation inserts an education entry.
func (r *ExperienceRepository) CreateEducation(ctx context.Context, e *models.Education) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	const query = `INSERT INTO educations (` + educationColumns + `) VALUES (:id, :user_application_id, :name_of_school, :degree, :area_of_study,
:is_in_progress, :date_started_month, :date_started_year, :date_completed_month, :date_completed_year, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("create education: %w", err)
	}
	return nil
}

// UpdateEducation replaces an education entry of the application.
func (r *ExperienceRepository) UpdateEducation(ctx context.Context, e *models.Education) error {
	e.UpdatedAt = time.Now().UTC()
	const query = `UPDATE educations SET name_of_school = :name_of_school, degree = :degree, area_of_study = :area_of_study,
is_in_progress = :is_in_progress, date_started_month = :date_started_month, date_started_year = :date_started_year,
date_completed_month = :date_completed_month, date_completed_year = :date_completed_year, updated_at = :updated_at
WHERE id = :id AND user_application_id = :user_application_id`
	res, err := r.db.NamedExecContext(ctx, query, e)
	if err != nil {
		return fmt.Errorf("update education: %w", err)
	}
	return requireAffected(res)
}

// DeleteEducation removes an education entry of the application.
func (r *ExperienceRepository) DeleteEducation(ctx context.Context, applicationID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM educations WHERE id = $1 AND user_application_id = $2`, id, applicationID)
	if err != nil {
		return fmt.Errorf("delete education: %w", err)
	}
	return requireAffected(res)
}

// ListWorkExperience returns the work entries of an application.
func (r *ExperienceRepository) ListWorkExperience(ctx context.Context, applicationID string) ([]models.WorkExperience, error) {
	const query = `SELECT ` + workExperienceColumns + ` FROM work_experiences WHERE user_application_id = $1 ORDER BY date_started_year DESC, date_started_month DESC`
	var rows []models.WorkExperience
	if err := r.db.SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("list work experiences: %w", err)
	}
	return rows, nil
}

// GetWorkExperience returns one entry of the application or sql.ErrNoRows.
func (r *ExperienceRepository) GetWorkExperience(ctx context.Context, applicationID, id string) (*models.WorkExperience, error) {
	const query = `SELECT ` + workExperienceColumns + ` FROM work_experiences WHERE id = $1 AND user_application_id = $2`
	var row models.WorkExperience
	if err := r.db.GetContext(ctx, &row, query, id, applicationID); err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateWorkExperience inserts a work entry.
func (r *ExperienceRepository) CreateWorkExperience(ctx context.Context, w *models.WorkExperience) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	const query = `INSERT INTO work_experiences (` + workExperienceColumns + `) VALUES (:id, :user_application_id, :name_of_organization,
:job_position_title, :is_current_position, :job_responsibilities, :date_started_month, :date_started_year,
:date_completed_month, :date_completed_year, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, w); err != nil {
		return fmt.Errorf("create work experience: %w", err)
	}
	return nil
}

// UpdateWorkExperience replaces a work entry of the application.
func (r *ExperienceRepository) UpdateWorkExperience(ctx context.Context, w *models.WorkExperience) error {
	w.UpdatedAt = time.Now().UTC()
	const query = `UPDATE work_experiences SET name_of_organization = :name_of_organization, job_position_title = :job_position_title,
is_current_position = :is_current_position, job_responsibilities = :job_responsibilities,
date_started_month = :date_started_month, date_started_year = :date_started_year,
date_completed_month = :date_completed_month, date_completed_year = :date_completed_year, updated_at = :updated_at
WHERE id = :id AND user_application_id = :user_application_id`
	res, err := r.db.NamedExecContext(ctx, query, w)
	if err != nil {
		return fmt.Errorf("update work experience: %w", err)
	}
	return requireAffected(res)
}

// DeleteWorkExperience removes a work entry of the application.
func (r *ExperienceRepository) DeleteWorkExperience(ctx context.Context, applicationID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM work_experiences WHERE id = $1 AND user_application_id = $2`, id, applicationID)
	if err != nil {
		return fmt.Errorf("delete work experience: %w", err)
	}
	return requireAffected(res)
}

// SetWorkExperienceNotApplicable toggles the flag. Setting it removes every
// work entry of the application in the same transaction.
func (r *ExperienceRepository) SetWorkExperienceNotApplicable(ctx context.Context, applicationID string, notApplicable bool) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE user_applications SET is_work_experience_not_applicable = $2, updated_at = $3 WHERE id = $1`,
		applicationID, notApplicable, time.Now().UTC()); err != nil {
		return fmt.Errorf("update work experience flag: %w", err)
	}
	if notApplicable {
		if _, err = tx.ExecContext(ctx, `DELETE FROM work_experiences WHERE user_application_id = $1`, applicationID); err != nil {
			return fmt.Errorf("clear work experiences: %w", err)
		}
	}
	return tx.Commit()
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
