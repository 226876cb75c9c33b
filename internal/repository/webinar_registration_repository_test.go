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

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

var registrationRowColumns = []string{"id", "webinar_id", "user_id", "is_registered", "is_team_member",
	"starting_soon_reminder_id", "week_before_reminder_id", "created_at", "updated_at"}

func TestSetRegisteredReportsChange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWebinarRegistrationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (webinar_id, user_id) DO UPDATE SET is_registered = EXCLUDED.is_registered")).
		WithArgs(sqlmock.AnyArg(), "w1", "u1", true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).AddRow("r1", "w1", "u1", true, false, nil, nil, now, now))

	reg, changed, err := repo.SetRegistered(context.Background(), "w1", "u1", true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, reg.IsRegistered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRegisteredUnchangedReloadsRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWebinarRegistrationRepository(db)

	now := time.Now()
	soon := "batch-1"
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (webinar_id, user_id)")).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM webinar_registrations WHERE webinar_id = $1 AND user_id = $2")).
		WithArgs("w1", "u1").
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).AddRow("r1", "w1", "u1", true, false, soon, nil, now, now))

	reg, changed, err := repo.SetRegistered(context.Background(), "w1", "u1", true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{"batch-1"}, reg.ReminderIDs())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReminderIDPicksColumn(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWebinarRegistrationRepository(db)

	id := "batch-9"
	mock.ExpectExec(regexp.QuoteMeta("SET week_before_reminder_id = $3")).
		WithArgs("w1", "u1", &id, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetReminderID(context.Background(), "w1", "u1", models.ReminderWeekBefore, &id))
	assert.Error(t, repo.SetReminderID(context.Background(), "w1", "u1", models.ReminderKind("monthly"), &id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRegistrants(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWebinarRegistrationRepository(db)

	now := time.Now()
	columns := append(append([]string{}, registrationRowColumns...), "email", "full_name")
	mock.ExpectQuery(regexp.QuoteMeta("FROM webinar_registrations r JOIN users u ON u.id = r.user_id")).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("r1", "w1", "u1", true, false, nil, nil, now, now, "a@example.com", "Ann"))

	rows, err := repo.ListRegistrants(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a@example.com", rows[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveKeepsTeamMembersWhoUnregistered(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewWebinarRegistrationRepository(db)

	now := time.Now()
	soon := "rem-1"
	mock.ExpectQuery(regexp.QuoteMeta("WHERE webinar_id = $1 AND (is_registered = TRUE OR is_team_member = TRUE)")).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows(registrationRowColumns).
			AddRow("r1", "w1", "presenter", false, true, soon, nil, now, now).
			AddRow("r2", "w1", "u1", true, false, nil, nil, now, now))

	regs, err := repo.ListActive(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.False(t, regs[0].IsRegistered)
	assert.Equal(t, []string{"rem-1"}, regs[0].ReminderIDs())
	assert.NoError(t, mock.ExpectationsWereMet())
}
