package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/export"
	"github.com/noah-isme/adg-admissions-api/pkg/lms"
)

type mockReviewStore struct {
	summaries map[string]*models.ApplicationSummary
	filter    models.ApplicationFilter
}

func (m *mockReviewStore) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationSummary, int, error) {
	m.filter = filter
	var out []models.ApplicationSummary
	for _, s := range m.summaries {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockReviewStore) Summary(ctx context.Context, id string) (*models.ApplicationSummary, error) {
	s, ok := m.summaries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *s
	return &clone, nil
}

func (m *mockReviewStore) Review(ctx context.Context, id string, status models.ApplicationStatus, note *string, reviewer string) error {
	s, ok := m.summaries[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	s.InternalAdminNote = note
	s.ReviewedBy = &reviewer
	return nil
}

type stubExperiences struct{}

func (stubExperiences) ListEducation(ctx context.Context, applicationID string) ([]models.Education, error) {
	return []models.Education{{
		NameOfSchool:     "King Abdulaziz University",
		Degree:           models.DegreeBachelor,
		AreaOfStudy:      "Computer Science",
		ExperiencePeriod: models.ExperiencePeriod{DateStartedMonth: 9, DateStartedYear: 2018, DateCompletedMonth: intPtr(6), DateCompletedYear: intPtr(2022)},
	}}, nil
}

func (stubExperiences) ListWorkExperience(ctx context.Context, applicationID string) ([]models.WorkExperience, error) {
	return []models.WorkExperience{{
		NameOfOrganization: "Acme",
		JobPositionTitle:   "Analyst",
		IsCurrentPosition:  true,
		ExperiencePeriod:   models.ExperiencePeriod{DateStartedMonth: 7, DateStartedYear: 2022},
	}}, nil
}

type stubApplicants struct{}

func (stubApplicants) FindByID(ctx context.Context, id string) (*models.User, error) {
	if id != learnerUser.ID {
		return nil, sql.ErrNoRows
	}
	user := learnerUser
	return &user, nil
}

type failingScorer struct{}

func (failingScorer) PrerequisiteScores(ctx context.Context, user models.User) ([]models.CourseScore, error) {
	return nil, appErrors.Wrap(errors.New("lms unavailable"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read course grade")
}

type stubSigner struct{}

func (stubSigner) Generate(subject, relPath string) (string, time.Time, error) {
	return subject + "." + relPath, time.Time{}, nil
}

func newAdminFixture() (*ApplicationAdminService, *mockReviewStore) {
	resume := "applications/u1/resume.pdf"
	submitted := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	retail := "Retail"
	store := &mockReviewStore{summaries: map[string]*models.ApplicationSummary{
		"a1": {
			UserApplication:        models.UserApplication{ID: "a1", UserID: "u1", Organization: "Acme", ResumePath: &resume, CoverLetter: "I would like to join.", Status: models.ApplicationStatusOpen},
			Email:                  "learner@example.com",
			FullName:               "Learner One",
			BusinessLineTitle:      &retail,
			IsApplicationSubmitted: true,
			SubmissionDate:         &submitted,
		},
	}}
	catalog := &mockCourseCatalog{groups: []models.CourseGroup{{ID: "g1", IsPrerequisite: true, Courses: []models.Course{courseA, courseB}}}}
	grades := &mockGradeReader{grades: map[string]*lms.Grade{gradeKey(courseA): {Percent: 0.875, Passed: true}}}
	scorer := NewCourseEligibilityService(grades, &mockEnrollmentChecker{}, catalog, nil, time.Minute, nil)
	return NewApplicationAdminService(store, stubExperiences{}, stubApplicants{}, scorer, stubSigner{}, nil, "/files/", nil), store
}

func TestAdminGetSignsFileURLs(t *testing.T) {
	svc, _ := newAdminFixture()

	detail, err := svc.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "/files/u1.applications/u1/resume.pdf", detail.ResumeURL)
	assert.Empty(t, detail.CoverLetterURL)
	assert.Len(t, detail.Education, 1)
	assert.Len(t, detail.WorkExperience, 1)
	assert.Equal(t, []models.CourseScore{
		{CourseID: courseA.ID, CourseName: "Course A", Percentage: 88},
		{CourseID: courseB.ID, CourseName: "Course B", Percentage: 0},
	}, detail.PrereqCourseScores)

	_, err = svc.Get(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestAdminListNormalizesFilter(t *testing.T) {
	svc, store := newAdminFixture()

	rows, page, err := svc.List(context.Background(), models.ApplicationFilter{Status: models.ApplicationStatusOpen})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, store.filter.Page)

	_, _, err = svc.List(context.Background(), models.ApplicationFilter{Status: "REJECTED"})
	assert.Contains(t, fieldsOf(t, err), "status")
}

func TestAdminReviewRecordsDecision(t *testing.T) {
	svc, store := newAdminFixture()
	note := "strong retail background"

	detail, err := svc.Review(context.Background(), staff, "a1", models.ApplicationReviewRequest{Status: models.ApplicationStatusAccepted, InternalAdminNote: &note})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusAccepted, detail.Status)
	assert.Equal(t, "admin", *store.summaries["a1"].ReviewedBy)

	_, err = svc.Review(context.Background(), staff, "a1", models.ApplicationReviewRequest{Status: "MAYBE"})
	assert.Contains(t, fieldsOf(t, err), "status")
	_, err = svc.Review(context.Background(), staff, "missing", models.ApplicationReviewRequest{Status: models.ApplicationStatusWaitlist})
	requireAppError(t, err, appErrors.ErrNotFound)
}

func TestAdminExportPDF(t *testing.T) {
	svc, _ := newAdminFixture()

	payload, filename, err := svc.ExportPDF(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "application-a1.pdf", filename)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestFormatPeriod(t *testing.T) {
	p := models.ExperiencePeriod{DateStartedMonth: 9, DateStartedYear: 2018, DateCompletedMonth: intPtr(6), DateCompletedYear: intPtr(2022)}
	assert.Equal(t, "09/2018 - 06/2022", formatPeriod(p, false))
	assert.Equal(t, "09/2018 - present", formatPeriod(p, true))
}

func TestAdminGetFailsWhenScoresCannotBeRead(t *testing.T) {
	svc, _ := newAdminFixture()
	svc.scores = failingScorer{}

	_, err := svc.Get(context.Background(), "a1")
	requireAppError(t, err, appErrors.ErrInternal)
}

func TestAdminGetReadsScoresFromCatalog(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxdb := sqlx.NewDb(db, "postgres")

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 LIMIT 1")).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "username", "full_name", "role", "active", "language", "created_at", "updated_at"}).
			AddRow("u1", "learner@example.com", "learner", "Learner One", string(models.RoleLearner), true, "en", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_groups WHERE is_prerequisite = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "is_prerequisite", "business_line_id"}).
			AddRow("g1", "Foundations", true, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM course_group_courses gc")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "id", "course_key", "display_name", "is_open", "language", "prerequisite_course_id", "created_at", "updated_at"}).
			AddRow("g1", courseA.ID, courseA.CourseKey, courseA.DisplayName, true, "en", nil, now, now).
			AddRow("g1", "c-closed", "course-v1:ADG+Z+1", "Retired", false, "en", nil, now, now))

	base, _ := newAdminFixture()
	grades := &mockGradeReader{grades: map[string]*lms.Grade{gradeKey(courseA): {Percent: 0.625}}}
	scorer := NewCourseEligibilityService(grades, &mockEnrollmentChecker{}, repository.NewCourseRepository(sqlxdb), nil, time.Minute, nil)
	svc := NewApplicationAdminService(base.applications, stubExperiences{}, repository.NewUserRepository(sqlxdb), scorer, stubSigner{}, nil, "/files/", nil)

	detail, err := svc.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, []models.CourseScore{{CourseID: courseA.ID, CourseName: "Course A", Percentage: 63}}, detail.PrereqCourseScores)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationDocumentListsPrerequisiteScores(t *testing.T) {
	svc, _ := newAdminFixture()
	detail, err := svc.Get(context.Background(), "a1")
	require.NoError(t, err)

	doc := applicationDocument(detail)
	var table *export.Dataset
	for _, section := range doc.Sections {
		if section.Heading == "Prerequisite Courses" {
			table = section.Table
		}
	}
	require.NotNil(t, table)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "88%", table.Rows[0]["score"])
}
