package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

const userColumns = `id, email, username, full_name, role, active, language, created_at, updated_at`

// UserRepository reads LMS user mirrors and writes the audit trail.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository instantiates a new repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID fetches a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs fetches every active user among ids. Unknown ids are skipped.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) AND active = TRUE ORDER BY email`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return users, nil
}

// Upsert mirrors an LMS account, refreshing its profile on every call.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Language == "" {
		user.Language = "en"
	}
	const query = `INSERT INTO users (id, email, username, full_name, role, active, language, created_at, updated_at)
VALUES (:id, :email, :username, :full_name, :role, :active, :language, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, username = EXCLUDED.username, full_name = EXCLUDED.full_name,
role = EXCLUDED.role, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// CreateAuditLog records an audit entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
