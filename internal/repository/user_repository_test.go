package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "postgres")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "email", "username", "full_name", "role", "active", "language", "created_at", "updated_at"}

func TestUserFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).AddRow("u1", "learner@example.com", "learner", "Lea Rner", string(models.RoleLearner), true, "en", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 LIMIT 1")).WithArgs("u1").WillReturnRows(rows)

	user, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "learner@example.com", user.Email)
	assert.Equal(t, "Lea Rner", user.DisplayName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFindByIDsSkipsEmptyInput(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	users, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFindByIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "a@example.com", "a", "", string(models.RoleStaff), true, "en", now, now).
		AddRow("u2", "b@example.com", "b", "Bee", string(models.RoleLearner), true, "ar", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = ANY($1) AND active = TRUE")).WithArgs(sqlmock.AnyArg()).WillReturnRows(rows)

	users, err := repo.FindByIDs(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].DisplayName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAuditLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{Action: models.AuditActionWebinarCancel, Resource: "webinar"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).WillReturnResult(sqlmock.NewResult(0, 1))

	user := &models.User{ID: "u1", Email: "a@example.com", Username: "a", Role: models.RoleLearner, Active: true}
	require.NoError(t, repo.Upsert(context.Background(), user))
	assert.Equal(t, "en", user.Language)
	assert.False(t, user.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
