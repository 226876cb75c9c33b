package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const businessLineColumns = `id, title, logo_path, description, created_at, updated_at`

// BusinessLineRepository persists business lines.
type BusinessLineRepository struct {
	db *sqlx.DB
}

// NewBusinessLineRepository constructs the repository.
func NewBusinessLineRepository(db *sqlx.DB) *BusinessLineRepository {
	return &BusinessLineRepository{db: db}
}

// List returns all business lines ordered by title.
func (r *BusinessLineRepository) List(ctx context.Context) ([]models.BusinessLine, error) {
	var rows []models.BusinessLine
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+businessLineColumns+` FROM business_lines ORDER BY title`); err != nil {
		return nil, fmt.Errorf("list business lines: %w", err)
	}
	return rows, nil
}

// FindByID returns a business line or sql.ErrNoRows.
func (r *BusinessLineRepository) FindByID(ctx context.Context, id string) (*models.BusinessLine, error) {
	var row models.BusinessLine
	if err := r.db.GetContext(ctx, &row, `SELECT `+businessLineColumns+` FROM business_lines WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// ExistsByTitle reports whether another business line already uses title.
func (r *BusinessLineRepository) ExistsByTitle(ctx context.Context, title, excludeID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM business_lines WHERE LOWER(title) = LOWER($1) AND id <> $2)`
	if err := r.db.GetContext(ctx, &exists, query, title, excludeID); err != nil {
		return false, fmt.Errorf("check business line title: %w", err)
	}
	return exists, nil
}

// Create inserts a business line.
func (r *BusinessLineRepository) Create(ctx context.Context, line *models.BusinessLine) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	line.CreatedAt, line.UpdatedAt = now, now
	const query = `INSERT INTO business_lines (` + businessLineColumns + `) VALUES (:id, :title, :logo_path, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, line); err != nil {
		return fmt.Errorf("create business line: %w", err)
	}
	return nil
}

// Update stores a business line.
func (r *BusinessLineRepository) Update(ctx context.Context, line *models.BusinessLine) error {
	line.UpdatedAt = time.Now().UTC()
	const query = `UPDATE business_lines SET title = :title, logo_path = :logo_path, description = :description, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, line)
	if err != nil {
		return fmt.Errorf("update business line: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a business line.
func (r *BusinessLineRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM business_lines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete business line: %w", err)
	}
	return requireAffected(res)
}
