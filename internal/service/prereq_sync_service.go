package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/jobs"
)

// JobPrerequisiteSync runs the prerequisite sync on the job queue.
const JobPrerequisiteSync = "prerequisites.sync"

type syncCourseReader interface {
	PrerequisiteGroups(ctx context.Context) ([]models.CourseGroup, error)
	BusinessLineGroups(ctx context.Context, businessLineID string) ([]models.CourseGroup, error)
	BusinessLinesWithGroups(ctx context.Context) ([]string, error)
}

type syncEnrollmentReader interface {
	ActiveUsersInCourses(ctx context.Context, courseIDs []string) ([]string, error)
}

type syncHubStore interface {
	UsersPendingPrerequisites(ctx context.Context, candidates []string) ([]string, error)
	UsersPendingBUPrerequisites(ctx context.Context, businessLineID string) ([]string, error)
	MarkBUPrerequisitesPassed(ctx context.Context, userID string) error
}

type syncUserReader interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type prerequisiteEvaluator interface {
	GroupPassed(ctx context.Context, user models.User, group models.CourseGroup) (bool, error)
	AllPassed(ctx context.Context, user models.User, courses []models.Course) (bool, error)
	InvalidateGrades(ctx context.Context, userID string)
}

type prerequisiteMarker interface {
	MarkPrerequisitesPassed(ctx context.Context, userID string) error
}

// SyncSummary reports one prerequisite sync run.
type SyncSummary struct {
	Checked              int `json:"checked"`
	PrerequisitesUpdated int `json:"prerequisites_updated"`
	BusinessLineChecked  int `json:"business_line_checked"`
	BusinessLineUpdated  int `json:"business_line_updated"`
	Failed               int `json:"failed"`
}

// PrerequisiteSyncService sets the prerequisite flags of learners who passed
// their prerequisite courses. It only ever sets flags.
type PrerequisiteSyncService struct {
	courses     syncCourseReader
	enrollments syncEnrollmentReader
	hubs        syncHubStore
	users       syncUserReader
	evaluator   prerequisiteEvaluator
	tracker     prerequisiteMarker
	queue       jobQueue
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewPrerequisiteSyncService wires the sync and registers its job when queue is set.
func NewPrerequisiteSyncService(
	courses syncCourseReader,
	enrollments syncEnrollmentReader,
	hubs syncHubStore,
	users syncUserReader,
	evaluator prerequisiteEvaluator,
	tracker prerequisiteMarker,
	queue jobQueue,
	metrics *MetricsService,
	logger *zap.Logger,
) *PrerequisiteSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PrerequisiteSyncService{
		courses:     courses,
		enrollments: enrollments,
		hubs:        hubs,
		users:       users,
		evaluator:   evaluator,
		tracker:     tracker,
		queue:       queue,
		metrics:     metrics,
		logger:      logger,
	}
	if queue != nil {
		queue.Register(JobPrerequisiteSync, func(ctx context.Context, _ jobs.Job) error {
			_, err := s.Run(ctx)
			return err
		})
	}
	return s
}

// Run checks every pending learner against the prerequisite groups and then
// against the groups of their chosen business line.
func (s *PrerequisiteSyncService) Run(ctx context.Context) (*SyncSummary, error) {
	all, err := s.courses.PrerequisiteGroups(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite groups")
	}
	groups := nonEmptyGroups(all)
	if len(groups) == 0 {
		return nil, appErrors.ErrNoPrerequisiteGroups
	}

	summary := &SyncSummary{}
	refreshed := map[string]bool{}
	candidates, err := s.enrolledInEveryGroup(ctx, groups)
	if err != nil {
		return nil, err
	}
	pending, err := s.hubs.UsersPendingPrerequisites(ctx, candidates)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending learners")
	}
	users, err := s.users.FindByIDs(ctx, pending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learners")
	}

	for _, user := range users {
		summary.Checked++
		s.refreshGrades(ctx, user.ID, refreshed)
		passed, err := s.passedEveryGroup(ctx, user, groups)
		if err != nil {
			summary.Failed++
			s.logger.Warn("prerequisite check failed", zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		if !passed {
			continue
		}
		if err := s.tracker.MarkPrerequisitesPassed(ctx, user.ID); err != nil {
			summary.Failed++
			s.logger.Error("failed to mark prerequisites passed", zap.String("user_id", user.ID), zap.Error(err))
			continue
		}
		summary.PrerequisitesUpdated++
	}

	if err := s.syncBusinessLines(ctx, summary, refreshed); err != nil {
		return nil, err
	}

	s.metrics.RecordSyncUpdates(summary.PrerequisitesUpdated, summary.BusinessLineUpdated)
	s.logger.Info("prerequisite sync finished",
		zap.Int("checked", summary.Checked),
		zap.Int("prerequisites_updated", summary.PrerequisitesUpdated),
		zap.Int("business_line_updated", summary.BusinessLineUpdated),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// Enqueue schedules a sync run on the job queue.
func (s *PrerequisiteSyncService) Enqueue(ctx context.Context) error {
	if s.queue == nil {
		return appErrors.Clone(appErrors.ErrInternal, "job queue is not configured")
	}
	if err := s.queue.Submit(ctx, JobPrerequisiteSync, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue prerequisite sync")
	}
	return nil
}

func (s *PrerequisiteSyncService) enrolledInEveryGroup(ctx context.Context, groups []models.CourseGroup) ([]string, error) {
	var candidates map[string]struct{}
	for _, group := range groups {
		users, err := s.enrollments.ActiveUsersInCourses(ctx, courseIDs(group.OpenCourses()))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled learners")
		}
		next := make(map[string]struct{}, len(users))
		for _, id := range users {
			if _, ok := candidates[id]; candidates == nil || ok {
				next[id] = struct{}{}
			}
		}
		candidates = next
	}
	out := make([]string, 0, len(candidates))
	for id := range candidates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *PrerequisiteSyncService) passedEveryGroup(ctx context.Context, user models.User, groups []models.CourseGroup) (bool, error) {
	for _, group := range groups {
		passed, err := s.evaluator.GroupPassed(ctx, user, group)
		if err != nil || !passed {
			return false, err
		}
	}
	return true, nil
}

// refreshGrades drops the cached grades of a learner once per run so the
// sync never decides on a grade older than the run.
func (s *PrerequisiteSyncService) refreshGrades(ctx context.Context, userID string, refreshed map[string]bool) {
	if refreshed[userID] {
		return
	}
	refreshed[userID] = true
	s.evaluator.InvalidateGrades(ctx, userID)
}

func (s *PrerequisiteSyncService) syncBusinessLines(ctx context.Context, summary *SyncSummary, refreshed map[string]bool) error {
	lines, err := s.courses.BusinessLinesWithGroups(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list business line groups")
	}
	for _, lineID := range lines {
		groups, err := s.courses.BusinessLineGroups(ctx, lineID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load business line groups")
		}
		var courses []models.Course
		for _, group := range groups {
			courses = append(courses, group.OpenCourses()...)
		}
		if len(courses) == 0 {
			continue
		}
		pending, err := s.hubs.UsersPendingBUPrerequisites(ctx, lineID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending learners")
		}
		users, err := s.users.FindByIDs(ctx, pending)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learners")
		}
		for _, user := range users {
			summary.BusinessLineChecked++
			s.refreshGrades(ctx, user.ID, refreshed)
			passed, err := s.evaluator.AllPassed(ctx, user, courses)
			if err != nil {
				summary.Failed++
				s.logger.Warn("business line prerequisite check failed", zap.String("user_id", user.ID), zap.Error(err))
				continue
			}
			if !passed {
				continue
			}
			if err := s.hubs.MarkBUPrerequisitesPassed(ctx, user.ID); err != nil {
				summary.Failed++
				s.logger.Error("failed to mark business line prerequisites passed", zap.String("user_id", user.ID), zap.Error(err))
				continue
			}
			summary.BusinessLineUpdated++
		}
	}
	return nil
}

func nonEmptyGroups(groups []models.CourseGroup) []models.CourseGroup {
	out := make([]models.CourseGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.OpenCourses()) > 0 {
			out = append(out, g)
		}
	}
	return out
}

func courseIDs(courses []models.Course) []string {
	ids := make([]string, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}
	return ids
}
