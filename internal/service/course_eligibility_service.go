package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/lms"
)

type gradeReader interface {
	ReadGrade(ctx context.Context, username, courseKey string) (*lms.Grade, error)
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

type courseCatalog interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	PrerequisiteGroups(ctx context.Context) ([]models.CourseGroup, error)
}

// PrerequisiteOverview partitions the program course cards of a learner.
type PrerequisiteOverview struct {
	Open     []models.CourseCard `json:"open"`
	Unlocked []models.CourseCard `json:"unlocked"`
	Locked   []models.CourseCard `json:"locked"`
}

// cachedGrade distinguishes "no grade yet" from a cache miss.
type cachedGrade struct {
	Found bool      `json:"found"`
	Grade lms.Grade `json:"grade"`
}

// CourseEligibilityService derives per-learner course cards from enrollments
// and LMS grades.
type CourseEligibilityService struct {
	grades      gradeReader
	enrollments enrollmentChecker
	courses     courseCatalog
	cache       *CacheService
	gradeTTL    time.Duration
	logger      *zap.Logger
}

// NewCourseEligibilityService constructs the evaluator. cache may be nil.
func NewCourseEligibilityService(grades gradeReader, enrollments enrollmentChecker, courses courseCatalog, cache *CacheService, gradeTTL time.Duration, logger *zap.Logger) *CourseEligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseEligibilityService{grades: grades, enrollments: enrollments, courses: courses, cache: cache, gradeTTL: gradeTTL, logger: logger}
}

// Evaluate derives the card of course for user.
func (s *CourseEligibilityService) Evaluate(ctx context.Context, user models.User, course models.Course) (models.CourseCard, error) {
	card := models.CourseCard{Course: course, Status: models.CourseStatusNotStarted}

	enrolled, err := s.enrollments.IsEnrolled(ctx, user.ID, course.ID)
	if err != nil {
		return card, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return card, nil
	}

	card.Status = models.CourseStatusInProgress
	grade, err := s.grade(ctx, user, course)
	if err != nil {
		return card, err
	}
	if grade == nil {
		return card, nil
	}

	percent := gradePercent(grade.Percent)
	switch {
	case grade.Passed:
		card.Status = models.CourseStatusCompleted
		card.Grade = &percent
	case grade.AllAttempted:
		card.Status = models.CourseStatusRetake
		card.Grade = &percent
		card.Message = "Your grade is below the passing mark. Retake the course to pass."
	}
	return card, nil
}

// EvaluateWithPrerequisite locks course until prerequisite is passed. Once the
// prerequisite is passed the card equals Evaluate's with the prerequisite named.
func (s *CourseEligibilityService) EvaluateWithPrerequisite(ctx context.Context, user models.User, course, prerequisite models.Course) (models.CourseCard, error) {
	passed, err := s.Passed(ctx, user, prerequisite)
	if err != nil {
		return models.CourseCard{Course: course}, err
	}
	if !passed {
		return models.CourseCard{
			Course:           course,
			Status:           models.CourseStatusLocked,
			Message:          fmt.Sprintf("Complete %s to unlock this course.", prerequisite.DisplayName),
			PrerequisiteName: prerequisite.DisplayName,
		}, nil
	}
	card, err := s.Evaluate(ctx, user, course)
	if err != nil {
		return card, err
	}
	card.PrerequisiteName = prerequisite.DisplayName
	return card, nil
}

// Passed reports whether the LMS records a passing grade for course.
func (s *CourseEligibilityService) Passed(ctx context.Context, user models.User, course models.Course) (bool, error) {
	grade, err := s.grade(ctx, user, course)
	if err != nil {
		return false, err
	}
	return grade != nil && grade.Passed, nil
}

// AllPassed reports whether every course is passed, stopping at the first that is not.
func (s *CourseEligibilityService) AllPassed(ctx context.Context, user models.User, courses []models.Course) (bool, error) {
	for _, course := range courses {
		passed, err := s.Passed(ctx, user, course)
		if err != nil {
			return false, err
		}
		if !passed {
			return false, nil
		}
	}
	return true, nil
}

// GroupPassed reports whether any open course of group is passed.
func (s *CourseEligibilityService) GroupPassed(ctx context.Context, user models.User, group models.CourseGroup) (bool, error) {
	for _, course := range group.OpenCourses() {
		passed, err := s.Passed(ctx, user, course)
		if err != nil {
			return false, err
		}
		if passed {
			return true, nil
		}
	}
	return false, nil
}

// ProgramCards evaluates the open courses of every non-empty prerequisite group.
func (s *CourseEligibilityService) ProgramCards(ctx context.Context, user models.User) ([]models.CourseCard, error) {
	groups, err := s.courses.PrerequisiteGroups(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite groups")
	}

	var cards []models.CourseCard
	for _, group := range groups {
		for _, course := range group.OpenCourses() {
			card, err := s.evaluateProgramCourse(ctx, user, course)
			if err != nil {
				return nil, err
			}
			cards = append(cards, card)
		}
	}
	return cards, nil
}

// Overview returns the program cards partitioned by lock state.
func (s *CourseEligibilityService) Overview(ctx context.Context, user models.User) (*PrerequisiteOverview, error) {
	cards, err := s.ProgramCards(ctx, user)
	if err != nil {
		return nil, err
	}
	open, unlocked, locked := GroupCoursesByLockState(cards)
	return &PrerequisiteOverview{Open: open, Unlocked: unlocked, Locked: locked}, nil
}

// PrerequisiteScores returns the grade percentage of user in every open
// prerequisite course, in group order.
func (s *CourseEligibilityService) PrerequisiteScores(ctx context.Context, user models.User) ([]models.CourseScore, error) {
	groups, err := s.courses.PrerequisiteGroups(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite groups")
	}
	scores := []models.CourseScore{}
	seen := map[string]bool{}
	for _, group := range groups {
		for _, course := range group.OpenCourses() {
			if seen[course.ID] {
				continue
			}
			seen[course.ID] = true
			grade, err := s.grade(ctx, user, course)
			if err != nil {
				return nil, err
			}
			score := models.CourseScore{CourseID: course.ID, CourseName: course.DisplayName}
			if grade != nil {
				score.Percentage = gradePercent(grade.Percent)
			}
			scores = append(scores, score)
		}
	}
	return scores, nil
}

func (s *CourseEligibilityService) evaluateProgramCourse(ctx context.Context, user models.User, course models.Course) (models.CourseCard, error) {
	if course.PrerequisiteCourseID == nil || *course.PrerequisiteCourseID == "" {
		return s.Evaluate(ctx, user, course)
	}
	prerequisite, err := s.courses.FindByID(ctx, *course.PrerequisiteCourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.Evaluate(ctx, user, course)
		}
		return models.CourseCard{Course: course}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite course")
	}
	return s.EvaluateWithPrerequisite(ctx, user, course, *prerequisite)
}

func (s *CourseEligibilityService) grade(ctx context.Context, user models.User, course models.Course) (*lms.Grade, error) {
	key := fmt.Sprintf("grade:%s:%s", user.ID, course.CourseKey)
	var cached cachedGrade
	if s.cache.Get(ctx, key, &cached) {
		if !cached.Found {
			return nil, nil
		}
		return &cached.Grade, nil
	}

	grade, err := s.grades.ReadGrade(ctx, user.Username, course.CourseKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read course grade")
	}
	entry := cachedGrade{Found: grade != nil}
	if grade != nil {
		entry.Grade = *grade
	}
	s.cache.Set(ctx, key, entry, s.gradeTTL)
	return grade, nil
}

// InvalidateGrades drops the cached grades of a learner.
func (s *CourseEligibilityService) InvalidateGrades(ctx context.Context, userID string) {
	s.cache.Invalidate(ctx, fmt.Sprintf("grade:%s:*", userID))
}

// GroupCoursesByLockState splits cards into those without a prerequisite, those
// whose prerequisite is satisfied and the locked ones, keeping input order.
func GroupCoursesByLockState(cards []models.CourseCard) (open, unlocked, locked []models.CourseCard) {
	for _, card := range cards {
		switch {
		case card.Status == models.CourseStatusLocked:
			locked = append(locked, card)
		case card.HasPrerequisite():
			unlocked = append(unlocked, card)
		default:
			open = append(open, card)
		}
	}
	return open, unlocked, locked
}

// gradePercent converts a 0..1 LMS percent to a whole-number grade. The
// intermediate rounding absorbs float noise such as 0.575*100 = 57.4999...
func gradePercent(percent float64) int {
	return RoundHalfAwayFromZero(math.Round(percent*100*1e6) / 1e6)
}

// RoundHalfAwayFromZero rounds v to the nearest integer, halves away from zero.
func RoundHalfAwayFromZero(v float64) int {
	return int(math.Round(v))
}
