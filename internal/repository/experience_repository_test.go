package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/models"
)

func TestSetWorkExperienceNotApplicableClearsEntries(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExperienceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_applications SET is_work_experience_not_applicable = $2")).
		WithArgs("app-1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM work_experiences WHERE user_application_id = $1")).
		WithArgs("app-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, repo.SetWorkExperienceNotApplicable(context.Background(), "app-1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWorkExperienceNotApplicableRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExperienceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_applications SET is_work_experience_not_applicable = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM work_experiences")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.SetWorkExperienceNotApplicable(context.Background(), "app-1", true)
	assert.ErrorContains(t, err, "clear work experiences")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnsetWorkExperienceNotApplicableKeepsEntries(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExperienceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_applications SET is_work_experience_not_applicable = $2")).
		WithArgs("app-1", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetWorkExperienceNotApplicable(context.Background(), "app-1", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEducationScopedToApplication(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExperienceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM educations WHERE id = $1 AND user_application_id = $2")).
		WithArgs("edu-1", "other-app").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteEducation(context.Background(), "other-app", "edu-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWorkExperienceAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExperienceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO work_experiences")).WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.WorkExperience{UserApplicationID: "app-1", NameOfOrganization: "ADG", JobPositionTitle: "Analyst"}
	require.NoError(t, repo.CreateWorkExperience(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
