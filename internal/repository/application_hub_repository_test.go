package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hubRowColumns = []string{"id", "user_id", "is_prerequisite_courses_passed", "is_bu_prerequisite_courses_passed",
	"is_written_application_started", "is_written_application_completed", "is_application_submitted",
	"written_application_date", "submission_date", "created_at", "updated_at"}

func TestApplicationHubGetOrCreateInsertsMissingHub(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationHubRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM application_hubs WHERE user_id = $1")).WithArgs("u1").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_hubs")).
		WithArgs(sqlmock.AnyArg(), "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM application_hubs WHERE user_id = $1")).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(hubRowColumns).AddRow("h1", "u1", false, false, false, false, false, nil, nil, now, now))

	hub, err := repo.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "h1", hub.ID)
	assert.Equal(t, 0, hub.ObjectivesCompleted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationHubGetOrCreateReturnsExisting(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationHubRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM application_hubs WHERE user_id = $1")).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(hubRowColumns).AddRow("h1", "u1", true, false, true, true, false, now, nil, now, now))

	hub, err := repo.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, hub.ArePrerequisitesAndWrittenAppComplete())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationHubSubmitIsConditional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationHubRepository(db)

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("WHERE user_id = $1 AND is_application_submitted = FALSE")).
		WithArgs("u1", day, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE user_id = $1 AND is_application_submitted = FALSE")).
		WithArgs("u1", day, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.Submit(context.Background(), "u1", day)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Submit(context.Background(), "u1", day)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationHubMarkFlagsOnlySetTrue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationHubRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET is_prerequisite_courses_passed = TRUE")).WithArgs("u1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_bu_prerequisite_courses_passed = TRUE")).WithArgs("u1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SET is_written_application_started = TRUE, updated_at")).WithArgs("u1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("is_written_application_completed = TRUE")).WithArgs("u1", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, repo.MarkPrerequisitesPassed(ctx, "u1"))
	require.NoError(t, repo.MarkBUPrerequisitesPassed(ctx, "u1"))
	require.NoError(t, repo.MarkWrittenApplicationStarted(ctx, "u1"))
	require.NoError(t, repo.MarkWrittenApplicationCompleted(ctx, "u1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationHubUsersPendingPrerequisites(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationHubRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN application_hubs h ON h.user_id = u.id")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1").AddRow("u3"))

	ids, err := repo.UsersPendingPrerequisites(context.Background(), []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
