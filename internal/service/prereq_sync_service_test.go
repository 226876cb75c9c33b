package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/jobs"
	"github.com/noah-isme/adg-admissions-api/pkg/lms"
)

type mockSyncCourses struct {
	prerequisite []models.CourseGroup
	byLine       map[string][]models.CourseGroup
}

func (m *mockSyncCourses) PrerequisiteGroups(ctx context.Context) ([]models.CourseGroup, error) {
	return m.prerequisite, nil
}

func (m *mockSyncCourses) BusinessLineGroups(ctx context.Context, businessLineID string) ([]models.CourseGroup, error) {
	return m.byLine[businessLineID], nil
}

func (m *mockSyncCourses) BusinessLinesWithGroups(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range m.byLine {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type mockSyncEnrollments struct {
	byCourse map[string][]string
}

func (m *mockSyncEnrollments) ActiveUsersInCourses(ctx context.Context, courseIDs []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, id := range courseIDs {
		for _, u := range m.byCourse[id] {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				out = append(out, u)
			}
		}
	}
	return out, nil
}

type mockSyncHubs struct {
	passed   map[string]bool
	buPassed map[string]bool
	buLine   map[string]string
}

func (m *mockSyncHubs) UsersPendingPrerequisites(ctx context.Context, candidates []string) ([]string, error) {
	var out []string
	for _, id := range candidates {
		if !m.passed[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *mockSyncHubs) UsersPendingBUPrerequisites(ctx context.Context, businessLineID string) ([]string, error) {
	var out []string
	for user, line := range m.buLine {
		if line == businessLineID && !m.buPassed[user] {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockSyncHubs) MarkBUPrerequisitesPassed(ctx context.Context, userID string) error {
	m.buPassed[userID] = true
	return nil
}

type mockSyncUsers struct{}

func (mockSyncUsers) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, len(ids))
	for i, id := range ids {
		users[i] = models.User{ID: id, Username: id}
	}
	return users, nil
}

type mockMarker struct {
	hubs *mockSyncHubs
	fail map[string]bool
}

func (m *mockMarker) MarkPrerequisitesPassed(ctx context.Context, userID string) error {
	if m.fail[userID] {
		return errors.New("write failed")
	}
	m.hubs.passed[userID] = true
	return nil
}

type syncFixture struct {
	svc    *PrerequisiteSyncService
	hubs   *mockSyncHubs
	grades map[string]*lms.Grade
	marker *mockMarker
}

func newSyncFixture(queue jobQueue) *syncFixture {
	c1 := models.Course{ID: "c1", CourseKey: "k1", IsOpen: true}
	c2 := models.Course{ID: "c2", CourseKey: "k2", IsOpen: true}
	c3 := models.Course{ID: "c3", CourseKey: "k3", IsOpen: true}
	bu := models.Course{ID: "c4", CourseKey: "k4", IsOpen: true}
	courses := &mockSyncCourses{
		prerequisite: []models.CourseGroup{
			{ID: "g1", Courses: []models.Course{c1, c2}},
			{ID: "g2", Courses: []models.Course{c3}},
			{ID: "empty", Courses: []models.Course{{ID: "closed", IsOpen: false}}},
		},
		byLine: map[string][]models.CourseGroup{"bl1": {{ID: "g-bl1", Courses: []models.Course{bu}}}},
	}
	enrollments := &mockSyncEnrollments{byCourse: map[string][]string{
		"c1": {"alice", "bob"},
		"c2": {"carol"},
		"c3": {"alice", "carol", "dave"},
	}}
	hubs := &mockSyncHubs{passed: map[string]bool{}, buPassed: map[string]bool{}, buLine: map[string]string{"alice": "bl1", "erin": "bl1"}}
	grades := map[string]*lms.Grade{}
	evaluator := NewCourseEligibilityService(&mockGradeReader{grades: grades}, &mockEnrollmentChecker{}, &mockCourseCatalog{}, nil, time.Minute, nil)
	marker := &mockMarker{hubs: hubs, fail: map[string]bool{}}
	svc := NewPrerequisiteSyncService(courses, enrollments, hubs, mockSyncUsers{}, evaluator, marker, queue, NewMetricsService(), nil)
	return &syncFixture{svc: svc, hubs: hubs, grades: grades, marker: marker}
}

func (f *syncFixture) pass(user, courseKey string) {
	f.grades[user+"|"+courseKey] = &lms.Grade{Percent: 0.9, Passed: true}
}

func TestPrerequisiteSyncMarksLearnersWhoPassedEveryGroup(t *testing.T) {
	f := newSyncFixture(nil)
	f.pass("alice", "k1")
	f.pass("alice", "k3")
	f.pass("carol", "k2")
	f.pass("alice", "k4")
	f.pass("erin", "k4")

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.PrerequisitesUpdated)
	assert.True(t, f.hubs.passed["alice"])
	assert.False(t, f.hubs.passed["carol"])
	assert.False(t, f.hubs.passed["bob"])
	assert.Equal(t, 2, summary.BusinessLineChecked)
	assert.Equal(t, 2, summary.BusinessLineUpdated)
	assert.Zero(t, summary.Failed)

	summary, err = f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Zero(t, summary.PrerequisitesUpdated)
	assert.Zero(t, summary.BusinessLineChecked)
}

func TestPrerequisiteSyncCountsFailuresAndContinues(t *testing.T) {
	f := newSyncFixture(nil)
	f.pass("alice", "k1")
	f.pass("alice", "k3")
	f.pass("carol", "k2")
	f.pass("carol", "k3")
	f.marker.fail["alice"] = true

	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.PrerequisitesUpdated)
	assert.True(t, f.hubs.passed["carol"])
}

func TestPrerequisiteSyncWithoutGroups(t *testing.T) {
	svc := NewPrerequisiteSyncService(&mockSyncCourses{}, &mockSyncEnrollments{}, &mockSyncHubs{}, mockSyncUsers{}, nil, nil, nil, nil, nil)

	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrNoPrerequisiteGroups)
	assert.Error(t, svc.Enqueue(context.Background()))
}

func TestPrerequisiteSyncEnqueueRunsJob(t *testing.T) {
	queue := jobs.NewQueue("sync", jobs.QueueConfig{MaxRetries: 1, RetryDelay: time.Millisecond})
	f := newSyncFixture(queue)
	f.pass("alice", "k1")
	f.pass("alice", "k3")

	require.NoError(t, f.svc.Enqueue(context.Background()))
	assert.True(t, f.hubs.passed["alice"])
}

func TestPrerequisiteSyncIgnoresStaleCachedGrades(t *testing.T) {
	f := newSyncFixture(nil)
	cache := NewCacheService(newMemCacheRepo(), nil, time.Minute, nil, true)
	evaluator := NewCourseEligibilityService(&mockGradeReader{grades: f.grades}, &mockEnrollmentChecker{}, &mockCourseCatalog{}, cache, time.Hour, nil)
	f.svc.evaluator = evaluator

	alice := models.User{ID: "alice", Username: "alice"}
	c1 := models.Course{ID: "c1", CourseKey: "k1", IsOpen: true}
	passed, err := evaluator.Passed(context.Background(), alice, c1)
	require.NoError(t, err)
	require.False(t, passed)

	f.pass("alice", "k1")
	f.pass("alice", "k3")
	summary, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PrerequisitesUpdated)
	assert.True(t, f.hubs.passed["alice"])
}
