package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/validation"
)

const minExperienceYear = 1900

type experienceStore interface {
	ListEducation(ctx context.Context, applicationID string) ([]models.Education, error)
	GetEducation(ctx context.Context, applicationID, id string) (*models.Education, error)
	CreateEducation(ctx context.Context, e *models.Education) error
	UpdateEducation(ctx context.Context, e *models.Education) error
	DeleteEducation(ctx context.Context, applicationID, id string) error
	ListWorkExperience(ctx context.Context, applicationID string) ([]models.WorkExperience, error)
	GetWorkExperience(ctx context.Context, applicationID, id string) (*models.WorkExperience, error)
	CreateWorkExperience(ctx context.Context, w *models.WorkExperience) error
	UpdateWorkExperience(ctx context.Context, w *models.WorkExperience) error
	DeleteWorkExperience(ctx context.Context, applicationID, id string) error
	SetWorkExperienceNotApplicable(ctx context.Context, applicationID string, notApplicable bool) error
}

type applicationLocator interface {
	GetOrCreate(ctx context.Context, userID string) (*models.UserApplication, error)
}

// ExperienceService manages the education and work entries of a learner's
// written application. Every operation is scoped to the actor's application.
type ExperienceService struct {
	repo         experienceStore
	applications applicationLocator
	validator    *validation.Validator
	logger       *zap.Logger
	now          func() time.Time
}

// NewExperienceService constructs the service.
func NewExperienceService(repo experienceStore, applications applicationLocator, validate *validation.Validator, logger *zap.Logger) *ExperienceService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExperienceService{repo: repo, applications: applications, validator: validate, logger: logger, now: time.Now}
}

// ListEducation returns the actor's education entries.
func (s *ExperienceService) ListEducation(ctx context.Context, actor *models.JWTClaims) ([]models.Education, error) {
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListEducation(ctx, appID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list education")
	}
	return items, nil
}

// GetEducation returns one of the actor's education entries.
func (s *ExperienceService) GetEducation(ctx context.Context, actor *models.JWTClaims, id string) (*models.Education, error) {
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.GetEducation(ctx, appID, id)
	if err != nil {
		return nil, notFoundOr(err, "education not found", "failed to load education")
	}
	return item, nil
}

// CreateEducation adds an education entry.
func (s *ExperienceService) CreateEducation(ctx context.Context, actor *models.JWTClaims, req models.EducationRequest) (*models.Education, error) {
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.education(req)
	if err != nil {
		return nil, err
	}
	entry.UserApplicationID = appID
	if err := s.repo.CreateEducation(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create education")
	}
	return entry, nil
}

// UpdateEducation replaces one of the actor's education entries.
func (s *ExperienceService) UpdateEducation(ctx context.Context, actor *models.JWTClaims, id string, req models.EducationRequest) (*models.Education, error) {
	existing, err := s.GetEducation(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	entry, err := s.education(req)
	if err != nil {
		return nil, err
	}
	entry.ID = existing.ID
	entry.UserApplicationID = existing.UserApplicationID
	entry.CreatedAt = existing.CreatedAt
	if err := s.repo.UpdateEducation(ctx, entry); err != nil {
		return nil, notFoundOr(err, "education not found", "failed to update education")
	}
	return entry, nil
}

// DeleteEducation removes one of the actor's education entries.
func (s *ExperienceService) DeleteEducation(ctx context.Context, actor *models.JWTClaims, id string) error {
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEducation(ctx, appID, id); err != nil {
		return notFoundOr(err, "education not found", "failed to delete education")
	}
	return nil
}

// ListWorkExperience returns the actor's work entries.
func (s *ExperienceService) ListWorkExperience(ctx context.Context, actor *models.JWTClaims) ([]models.WorkExperience, error) {
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListWorkExperience(ctx, appID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list work experience")
	}
	return items, nil
}

// GetWorkExperience returns one of the actor's work entries.
func (s *ExperienceService) GetWorkExperience(ctx context.Context, actor *models.JWTClaims, id string) (*models.WorkExperience, error) {
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.GetWorkExperience(ctx, appID, id)
	if err != nil {
		return nil, notFoundOr(err, "work experience not found", "failed to load work experience")
	}
	return item, nil
}

// CreateWorkExperience adds a work entry.
func (s *ExperienceService) CreateWorkExperience(ctx context.Context, actor *models.JWTClaims, req models.WorkExperienceRequest) (*models.WorkExperience, error) {
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return nil, err
	}
	entry, err := s.workExperience(req)
	if err != nil {
		return nil, err
	}
	entry.UserApplicationID = appID
	if err := s.repo.CreateWorkExperience(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create work experience")
	}
	return entry, nil
}

// UpdateWorkExperience replaces one of the actor's work entries.
func (s *ExperienceService) UpdateWorkExperience(ctx context.Context, actor *models.JWTClaims, id string, req models.WorkExperienceRequest) (*models.WorkExperience, error) {
	existing, err := s.GetWorkExperience(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	entry, err := s.workExperience(req)
	if err != nil {
		return nil, err
	}
	entry.ID = existing.ID
	entry.UserApplicationID = existing.UserApplicationID
	entry.CreatedAt = existing.CreatedAt
	if err := s.repo.UpdateWorkExperience(ctx, entry); err != nil {
		return nil, notFoundOr(err, "work experience not found", "failed to update work experience")
	}
	return entry, nil
}

// DeleteWorkExperience removes one of the actor's work entries.
func (s *ExperienceService) DeleteWorkExperience(ctx context.Context, actor *models.JWTClaims, id string) error {
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteWorkExperience(ctx, appID, id); err != nil {
		return notFoundOr(err, "work experience not found", "failed to delete work experience")
	}
	return nil
}

// SetWorkExperienceNotApplicable toggles the "no work experience" flag.
// Setting it removes the existing work entries.
func (s *ExperienceService) SetWorkExperienceNotApplicable(ctx context.Context, actor *models.JWTClaims, req models.WorkExperienceNotApplicableRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	appID, err := s.applicationID(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.repo.SetWorkExperienceNotApplicable(ctx, appID, *req.IsWorkExperienceNotApplicable); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update work experience flag")
	}
	return nil
}

func (s *ExperienceService) applicationID(ctx context.Context, actor *models.JWTClaims) (string, error) {
	if actor == nil {
		return "", appErrors.ErrUnauthorized
	}
	app, err := s.applications.GetOrCreate(ctx, actor.UserID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load written application")
	}
	return app.ID, nil
}

func (s *ExperienceService) education(req models.EducationRequest) (*models.Education, error) {
	period := models.ExperiencePeriod{
		DateStartedMonth:   req.DateStartedMonth,
		DateStartedYear:    req.DateStartedYear,
		DateCompletedMonth: req.DateCompletedMonth,
		DateCompletedYear:  req.DateCompletedYear,
	}
	fields := s.checkPeriod(period, req.IsInProgress, "degree in progress", "past degree")
	if err := validation.Merge(s.validator.Struct(req), validation.Fields(fields)); err != nil {
		return nil, err
	}
	entry := &models.Education{
		NameOfSchool:     strings.TrimSpace(req.NameOfSchool),
		Degree:           req.Degree,
		AreaOfStudy:      strings.TrimSpace(req.AreaOfStudy),
		IsInProgress:     req.IsInProgress,
		ExperiencePeriod: period,
	}
	if entry.Degree == models.DegreeHighSchool {
		entry.AreaOfStudy = ""
	}
	return entry, nil
}

func (s *ExperienceService) workExperience(req models.WorkExperienceRequest) (*models.WorkExperience, error) {
	period := models.ExperiencePeriod{
		DateStartedMonth:   req.DateStartedMonth,
		DateStartedYear:    req.DateStartedYear,
		DateCompletedMonth: req.DateCompletedMonth,
		DateCompletedYear:  req.DateCompletedYear,
	}
	fields := s.checkPeriod(period, req.IsCurrentPosition, "current work experience", "past work experience")
	if err := validation.Merge(s.validator.Struct(req), validation.Fields(fields)); err != nil {
		return nil, err
	}
	return &models.WorkExperience{
		NameOfOrganization:  strings.TrimSpace(req.NameOfOrganization),
		JobPositionTitle:    strings.TrimSpace(req.JobPositionTitle),
		IsCurrentPosition:   req.IsCurrentPosition,
		JobResponsibilities: strings.TrimSpace(req.JobResponsibilities),
		ExperiencePeriod:    period,
	}, nil
}

// checkPeriod validates the start and completion dates. Current records must
// not carry a completion date; past records need one after the start date.
func (s *ExperienceService) checkPeriod(p models.ExperiencePeriod, current bool, currentLabel, pastLabel string) map[string]string {
	fields := map[string]string{}
	year := s.now().Year()
	if p.DateStartedYear != 0 && (p.DateStartedYear < minExperienceYear || p.DateStartedYear > year) {
		fields["date_started_year"] = fmt.Sprintf("year must be between %d and %d", minExperienceYear, year)
	}
	if p.DateCompletedYear != nil && *p.DateCompletedYear != 0 && (*p.DateCompletedYear < minExperienceYear || *p.DateCompletedYear > year) {
		fields["date_completed_year"] = fmt.Sprintf("year must be between %d and %d", minExperienceYear, year)
	}

	hasMonth := p.DateCompletedMonth != nil && *p.DateCompletedMonth != 0
	hasYear := p.DateCompletedYear != nil && *p.DateCompletedYear != 0
	if current {
		if hasMonth {
			fields["date_completed_month"] = fmt.Sprintf("Date completed month isn't applicable for %s", currentLabel)
		}
		if hasYear {
			fields["date_completed_year"] = fmt.Sprintf("Date completed year isn't applicable for %s", currentLabel)
		}
		return fields
	}

	if !hasMonth {
		fields["date_completed_month"] = fmt.Sprintf("Date completed month is required for %s", pastLabel)
	}
	if !hasYear {
		fields["date_completed_year"] = fmt.Sprintf("Date completed year is required for %s", pastLabel)
	}
	if hasMonth && hasYear && p.DateStartedYear != 0 && p.DateStartedMonth != 0 {
		started := p.DateStartedYear*12 + p.DateStartedMonth
		completed := *p.DateCompletedYear*12 + *p.DateCompletedMonth
		if completed <= started {
			fields["date_completed_year"] = "Completion date must come after the start date"
		}
	}
	return fields
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
