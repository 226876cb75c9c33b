package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
)

type mockExperienceStore struct {
	education     map[string]*models.Education
	work          map[string]*models.WorkExperience
	notApplicable map[string]bool
	seq           int
}

func newMockExperienceStore() *mockExperienceStore {
	return &mockExperienceStore{education: map[string]*models.Education{}, work: map[string]*models.WorkExperience{}, notApplicable: map[string]bool{}}
}

func (m *mockExperienceStore) ListEducation(ctx context.Context, applicationID string) ([]models.Education, error) {
	var out []models.Education
	for _, e := range m.education {
		if e.UserApplicationID == applicationID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockExperienceStore) GetEducation(ctx context.Context, applicationID, id string) (*models.Education, error) {
	e, ok := m.education[id]
	if !ok || e.UserApplicationID != applicationID {
		return nil, sql.ErrNoRows
	}
	clone := *e
	return &clone, nil
}

func (m *mockExperienceStore) CreateEducation(ctx context.Context, e *models.Education) error {
	m.seq++
	e.ID = "edu-" + string(rune('0'+m.seq))
	clone := *e
	m.education[e.ID] = &clone
	return nil
}

func (m *mockExperienceStore) UpdateEducation(ctx context.Context, e *models.Education) error {
	clone := *e
	m.education[e.ID] = &clone
	return nil
}

func (m *mockExperienceStore) DeleteEducation(ctx context.Context, applicationID, id string) error {
	if e, ok := m.education[id]; !ok || e.UserApplicationID != applicationID {
		return sql.ErrNoRows
	}
	delete(m.education, id)
	return nil
}

func (m *mockExperienceStore) ListWorkExperience(ctx context.Context, applicationID string) ([]models.WorkExperience, error) {
	var out []models.WorkExperience
	for _, w := range m.work {
		if w.UserApplicationID == applicationID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *mockExperienceStore) GetWorkExperience(ctx context.Context, applicationID, id string) (*models.WorkExperience, error) {
	w, ok := m.work[id]
	if !ok || w.UserApplicationID != applicationID {
		return nil, sql.ErrNoRows
	}
	clone := *w
	return &clone, nil
}

func (m *mockExperienceStore) CreateWorkExperience(ctx context.Context, w *models.WorkExperience) error {
	m.seq++
	w.ID = "work-" + string(rune('0'+m.seq))
	clone := *w
	m.work[w.ID] = &clone
	return nil
}

func (m *mockExperienceStore) UpdateWorkExperience(ctx context.Context, w *models.WorkExperience) error {
	clone := *w
	m.work[w.ID] = &clone
	return nil
}

func (m *mockExperienceStore) DeleteWorkExperience(ctx context.Context, applicationID, id string) error {
	if w, ok := m.work[id]; !ok || w.UserApplicationID != applicationID {
		return sql.ErrNoRows
	}
	delete(m.work, id)
	return nil
}

func (m *mockExperienceStore) SetWorkExperienceNotApplicable(ctx context.Context, applicationID string, notApplicable bool) error {
	m.notApplicable[applicationID] = notApplicable
	if notApplicable {
		for id, w := range m.work {
			if w.UserApplicationID == applicationID {
				delete(m.work, id)
			}
		}
	}
	return nil
}

func newExperienceFixture() (*ExperienceService, *mockExperienceStore) {
	store := newMockExperienceStore()
	svc := NewExperienceService(store, newMockApplicationStore(), nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC) }
	return svc, store
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	return appErr.Fields
}

func TestCreateEducationValidatesPeriod(t *testing.T) {
	svc, _ := newExperienceFixture()
	base := models.EducationRequest{NameOfSchool: "KAU", Degree: models.DegreeBachelor, AreaOfStudy: "CS", DateStartedMonth: 9, DateStartedYear: 2018}

	inProgress := base
	inProgress.IsInProgress = true
	inProgress.DateCompletedMonth = intPtr(6)
	_, err := svc.CreateEducation(context.Background(), applicant, inProgress)
	assert.Equal(t, "Date completed month isn't applicable for degree in progress", fieldsOf(t, err)["date_completed_month"])

	_, err = svc.CreateEducation(context.Background(), applicant, base)
	fields := fieldsOf(t, err)
	assert.Equal(t, "Date completed month is required for past degree", fields["date_completed_month"])
	assert.Equal(t, "Date completed year is required for past degree", fields["date_completed_year"])

	backwards := base
	backwards.DateCompletedMonth, backwards.DateCompletedYear = intPtr(9), intPtr(2018)
	_, err = svc.CreateEducation(context.Background(), applicant, backwards)
	assert.Equal(t, "Completion date must come after the start date", fieldsOf(t, err)["date_completed_year"])

	future := base
	future.DateStartedYear = 2030
	future.IsInProgress = true
	_, err = svc.CreateEducation(context.Background(), applicant, future)
	assert.Contains(t, fieldsOf(t, err), "date_started_year")
}

func TestCreateEducationHighSchoolDropsAreaOfStudy(t *testing.T) {
	svc, store := newExperienceFixture()

	entry, err := svc.CreateEducation(context.Background(), applicant, models.EducationRequest{
		NameOfSchool: " Dar Al-Hekma ", Degree: models.DegreeHighSchool, AreaOfStudy: "Science",
		DateStartedMonth: 9, DateStartedYear: 2012, DateCompletedMonth: intPtr(6), DateCompletedYear: intPtr(2015),
	})
	require.NoError(t, err)
	assert.Equal(t, "Dar Al-Hekma", entry.NameOfSchool)
	assert.Empty(t, entry.AreaOfStudy)
	assert.Equal(t, "app-u1", store.education[entry.ID].UserApplicationID)
}

func TestEducationIsScopedToActor(t *testing.T) {
	svc, _ := newExperienceFixture()
	other := &models.JWTClaims{UserID: "u2"}

	entry, err := svc.CreateEducation(context.Background(), applicant, models.EducationRequest{
		NameOfSchool: "KAU", Degree: models.DegreeMaster, DateStartedMonth: 1, DateStartedYear: 2020, IsInProgress: true,
	})
	require.NoError(t, err)

	_, err = svc.GetEducation(context.Background(), other, entry.ID)
	requireAppError(t, err, appErrors.ErrNotFound)
	err = svc.DeleteEducation(context.Background(), other, entry.ID)
	requireAppError(t, err, appErrors.ErrNotFound)

	items, err := svc.ListEducation(context.Background(), applicant)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestUpdateWorkExperienceKeepsIdentity(t *testing.T) {
	svc, _ := newExperienceFixture()
	req := models.WorkExperienceRequest{NameOfOrganization: "ADG", JobPositionTitle: "Analyst", JobResponsibilities: "Reports", IsCurrentPosition: true, DateStartedMonth: 3, DateStartedYear: 2022}

	created, err := svc.CreateWorkExperience(context.Background(), applicant, req)
	require.NoError(t, err)

	req.IsCurrentPosition = false
	req.DateCompletedMonth, req.DateCompletedYear = intPtr(2), intPtr(2024)
	updated, err := svc.UpdateWorkExperience(context.Background(), applicant, created.ID, req)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 2024, *updated.DateCompletedYear)

	current := req
	current.IsCurrentPosition = true
	_, err = svc.UpdateWorkExperience(context.Background(), applicant, created.ID, current)
	assert.Equal(t, "Date completed year isn't applicable for current work experience", fieldsOf(t, err)["date_completed_year"])
}

func TestSetWorkExperienceNotApplicable(t *testing.T) {
	svc, store := newExperienceFixture()
	_, err := svc.CreateWorkExperience(context.Background(), applicant, models.WorkExperienceRequest{
		NameOfOrganization: "ADG", JobPositionTitle: "Analyst", JobResponsibilities: "Reports", IsCurrentPosition: true, DateStartedMonth: 3, DateStartedYear: 2022,
	})
	require.NoError(t, err)

	err = svc.SetWorkExperienceNotApplicable(context.Background(), applicant, models.WorkExperienceNotApplicableRequest{})
	assert.Contains(t, fieldsOf(t, err), "is_work_experience_not_applicable")

	flag := true
	require.NoError(t, svc.SetWorkExperienceNotApplicable(context.Background(), applicant, models.WorkExperienceNotApplicableRequest{IsWorkExperienceNotApplicable: &flag}))
	assert.True(t, store.notApplicable["app-u1"])
	items, err := svc.ListWorkExperience(context.Background(), applicant)
	require.NoError(t, err)
	assert.Empty(t, items)
}
