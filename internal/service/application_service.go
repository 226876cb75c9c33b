package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/mailer"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
	"github.com/noah-isme/adg-admissions-api/pkg/validation"
)

// Application steps returned as the next page of the written application.
const (
	StepHub                 = "hub"
	StepContact             = "contact"
	StepEducationExperience = "education_experience"
	StepCoverLetter         = "cover_letter"
	StepPrerequisites       = "prerequisites"
	StepSubmit              = "submit"
	StepSuccess             = "success"
)

type hubStore interface {
	GetOrCreate(ctx context.Context, userID string) (*models.ApplicationHub, error)
	MarkPrerequisitesPassed(ctx context.Context, userID string) error
	MarkWrittenApplicationStarted(ctx context.Context, userID string) error
	MarkWrittenApplicationCompleted(ctx context.Context, userID string, on time.Time) error
	Submit(ctx context.Context, userID string, on time.Time) (bool, error)
}

type userApplicationStore interface {
	GetOrCreate(ctx context.Context, userID string) (*models.UserApplication, error)
	UpdateContact(ctx context.Context, app *models.UserApplication) error
	UpdateCoverLetter(ctx context.Context, app *models.UserApplication) error
	SetBusinessLine(ctx context.Context, id, businessLineID string) error
	MarkEducationExperienceCompleted(ctx context.Context, id string) error
}

type businessLineReader interface {
	List(ctx context.Context) ([]models.BusinessLine, error)
	FindByID(ctx context.Context, id string) (*models.BusinessLine, error)
}

type programCardProvider interface {
	ProgramCards(ctx context.Context, user models.User) ([]models.CourseCard, error)
}

type emailNotifier interface {
	Send(ctx context.Context, msg mailer.Message)
}

type fileStore interface {
	Store(dir string, u storage.Upload, policy storage.UploadPolicy) (string, error)
	Delete(filename string) error
}

type fileURLSigner interface {
	Generate(subject, relPath string) (string, time.Time, error)
}

// ApplicationConfig holds the written application limits.
type ApplicationConfig struct {
	ResumePolicy         storage.UploadPolicy
	CoverLetterPolicy    storage.UploadPolicy
	CoverLetterWordLimit int
	CourseCatalogURL     string
	FileURLPrefix        string
}

// HubView is the application hub page.
type HubView struct {
	Hub                 *models.ApplicationHub  `json:"hub"`
	Application         *models.UserApplication `json:"application"`
	ObjectivesCompleted int                     `json:"objectives_completed"`
	TotalObjectives     int                     `json:"total_objectives"`
	Progress            float64                 `json:"progress"`
	Courses             []models.CourseCard     `json:"courses"`
	NextStep            string                  `json:"next_step"`
	CourseCatalogURL    string                  `json:"course_catalog_url,omitempty"`
}

// ApplicationStepView is the data behind a written application form.
type ApplicationStepView struct {
	Application    *models.UserApplication `json:"application"`
	ResumeURL      string                  `json:"resume_url,omitempty"`
	CoverLetterURL string                  `json:"cover_letter_url,omitempty"`
	BusinessLines  []models.BusinessLine   `json:"business_lines,omitempty"`
	WordLimit      int                     `json:"word_limit,omitempty"`
	Degrees        interface{}             `json:"degrees,omitempty"`
	Months         []int                   `json:"months,omitempty"`
	Years          []int                   `json:"years,omitempty"`
}

// SuccessView is shown once the application is submitted.
type SuccessView struct {
	SubmissionDate *time.Time `json:"submission_date"`
}

// ApplicationService tracks a learner's progress through the application and
// drives the written application steps.
type ApplicationService struct {
	hubs          hubStore
	applications  userApplicationStore
	businessLines businessLineReader
	courses       programCardProvider
	notifier      emailNotifier
	files         fileStore
	signer        fileURLSigner
	validator     *validation.Validator
	config        ApplicationConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewApplicationService wires the application workflow.
func NewApplicationService(
	hubs hubStore,
	applications userApplicationStore,
	businessLines businessLineReader,
	courses programCardProvider,
	notifier emailNotifier,
	files fileStore,
	signer fileURLSigner,
	validate *validation.Validator,
	config ApplicationConfig,
	logger *zap.Logger,
) *ApplicationService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CoverLetterWordLimit <= 0 {
		config.CoverLetterWordLimit = 500
	}
	return &ApplicationService{
		hubs:          hubs,
		applications:  applications,
		businessLines: businessLines,
		courses:       courses,
		notifier:      notifier,
		files:         files,
		signer:        signer,
		validator:     validate,
		config:        config,
		logger:        logger,
		now:           time.Now,
	}
}

// MarkPrerequisitesPassed sets the prerequisite flag of userID. Idempotent.
func (s *ApplicationService) MarkPrerequisitesPassed(ctx context.Context, userID string) error {
	if _, err := s.hub(ctx, userID); err != nil {
		return err
	}
	if err := s.hubs.MarkPrerequisitesPassed(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application hub")
	}
	return nil
}

// MarkWrittenApplicationCompleted sets the written application flag of userID. Idempotent.
func (s *ApplicationService) MarkWrittenApplicationCompleted(ctx context.Context, userID string) error {
	if _, err := s.hub(ctx, userID); err != nil {
		return err
	}
	if err := s.hubs.MarkWrittenApplicationCompleted(ctx, userID, s.today()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application hub")
	}
	return nil
}

// Submit transitions the actor's application to submitted and queues the
// confirmation email. Concurrent submits produce a single transition.
func (s *ApplicationService) Submit(ctx context.Context, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	hub, err := s.hub(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := submitPrecondition(hub); err != nil {
		return err
	}

	changed, err := s.hubs.Submit(ctx, actor.UserID, s.today())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}
	if !changed {
		current, err := s.hub(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if err := submitPrecondition(current); err != nil {
			return err
		}
		return appErrors.ErrAlreadySubmitted
	}

	s.notifier.Send(ctx, mailer.Message{
		Template:   mailer.TemplateApplicationSubmission,
		Recipients: []string{actor.Email},
		Data: map[string]interface{}{
			"full_name":          actor.FullName,
			"course_catalog_url": s.config.CourseCatalogURL,
		},
	})
	s.logger.Info("application submitted", zap.String("user_id", actor.UserID))
	return nil
}

func submitPrecondition(hub *models.ApplicationHub) error {
	if hub.IsApplicationSubmitted {
		return appErrors.ErrAlreadySubmitted
	}
	if !hub.ArePrerequisitesAndWrittenAppComplete() {
		return appErrors.ErrPrereqsIncomplete
	}
	return nil
}

// Hub returns the hub page of the actor.
func (s *ApplicationService) Hub(ctx context.Context, actor *models.JWTClaims) (*HubView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	hub, err := s.hub(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	app, err := s.application(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	view := &HubView{
		Hub:                 hub,
		Application:         app,
		ObjectivesCompleted: hub.ObjectivesCompleted(),
		TotalObjectives:     models.TotalApplicationObjectives,
		Progress:            hub.Progress(),
		NextStep:            nextStep(hub, app),
		CourseCatalogURL:    s.config.CourseCatalogURL,
	}
	if s.courses != nil {
		cards, err := s.courses.ProgramCards(ctx, learner(actor))
		if err != nil {
			s.logger.Warn("program courses unavailable", zap.String("user_id", actor.UserID), zap.Error(err))
		}
		view.Courses = cards
	}
	return view, nil
}

func nextStep(hub *models.ApplicationHub, app *models.UserApplication) string {
	switch {
	case hub.IsApplicationSubmitted:
		return StepSuccess
	case !hub.IsWrittenApplicationStarted:
		return StepContact
	case !hub.IsWrittenApplicationCompleted && !app.IsEducationExperienceComplete:
		return StepEducationExperience
	case !hub.IsWrittenApplicationCompleted:
		return StepCoverLetter
	case !hub.IsPrerequisiteCoursesPassed:
		return StepPrerequisites
	default:
		return StepSubmit
	}
}

// ContactInformation returns the contact step of the actor.
func (s *ApplicationService) ContactInformation(ctx context.Context, actor *models.JWTClaims) (*ApplicationStepView, error) {
	app, err := s.writableApplication(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &ApplicationStepView{Application: app, ResumeURL: s.fileURL(actor.UserID, app.ResumePath)}, nil
}

// SaveContactInformation stores the contact step and returns the next step.
func (s *ApplicationService) SaveContactInformation(ctx context.Context, actor *models.JWTClaims, req models.ContactInformationRequest, resume *storage.Upload) (string, error) {
	app, err := s.writableApplication(ctx, actor)
	if err != nil {
		return "", err
	}
	if err := s.validator.Struct(req); err != nil {
		return "", err
	}

	var stale *string
	switch {
	case resume != nil:
		stored, err := s.files.Store(path.Join("resumes", actor.UserID), *resume, s.config.ResumePolicy)
		if err != nil {
			return "", uploadError("resume", err)
		}
		stale = app.ResumePath
		app.ResumePath = &stored
	case req.DeleteResume && app.HasResume():
		stale = app.ResumePath
		app.ResumePath = nil
	}

	app.Organization = strings.TrimSpace(req.Organization)
	app.LinkedInURL = strings.TrimSpace(req.LinkedInURL)
	if err := s.applications.UpdateContact(ctx, app); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save contact information")
	}
	s.deleteFile(stale)

	if err := s.hubs.MarkWrittenApplicationStarted(ctx, actor.UserID); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application hub")
	}
	if app.HasResume() {
		return StepCoverLetter, nil
	}
	return StepEducationExperience, nil
}

// EducationExperience returns the education step choices of the actor.
func (s *ApplicationService) EducationExperience(ctx context.Context, actor *models.JWTClaims) (*ApplicationStepView, error) {
	app, err := s.startedApplication(ctx, actor)
	if err != nil {
		return nil, err
	}
	months := make([]int, 12)
	for i := range months {
		months[i] = i + 1
	}
	var years []int
	for y := s.now().Year(); y >= minExperienceYear; y-- {
		years = append(years, y)
	}
	return &ApplicationStepView{Application: app, Degrees: models.DegreeLabels, Months: months, Years: years}, nil
}

// CompleteEducationExperience marks the education step done.
func (s *ApplicationService) CompleteEducationExperience(ctx context.Context, actor *models.JWTClaims) (string, error) {
	app, err := s.startedApplication(ctx, actor)
	if err != nil {
		return "", err
	}
	if err := s.applications.MarkEducationExperienceCompleted(ctx, app.ID); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete education experience")
	}
	return StepCoverLetter, nil
}

// CoverLetter returns the cover letter step of the actor.
func (s *ApplicationService) CoverLetter(ctx context.Context, actor *models.JWTClaims) (*ApplicationStepView, error) {
	app, err := s.writableApplication(ctx, actor)
	if err != nil {
		return nil, err
	}
	lines, err := s.businessLines.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list business lines")
	}
	return &ApplicationStepView{
		Application:    app,
		BusinessLines:  lines,
		WordLimit:      s.config.CoverLetterWordLimit,
		CoverLetterURL: s.fileURL(actor.UserID, app.CoverLetterPath),
	}, nil
}

// SaveCoverLetter stores the cover letter step. The back action returns the
// previous step without saving; submit completes the written application.
func (s *ApplicationService) SaveCoverLetter(ctx context.Context, actor *models.JWTClaims, req models.CoverLetterRequest, file *storage.Upload) (string, error) {
	app, err := s.writableApplication(ctx, actor)
	if err != nil {
		return "", err
	}
	if req.Action == models.StepActionBack {
		if app.HasResume() {
			return StepContact, nil
		}
		return StepEducationExperience, nil
	}

	fields := map[string]string{}
	if words := len(strings.Fields(req.CoverLetter)); words > s.config.CoverLetterWordLimit {
		fields["cover_letter"] = fmt.Sprintf("cover letter must not exceed %d words", s.config.CoverLetterWordLimit)
	}
	if req.BusinessLineID != "" {
		if _, err := s.businessLines.FindByID(ctx, req.BusinessLineID); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load business line")
			}
			fields["business_line"] = "select a valid business line"
		}
	}
	if err := validation.Merge(s.validator.Struct(req), validation.Fields(fields)); err != nil {
		return "", err
	}

	var stale *string
	switch {
	case file != nil:
		stored, err := s.files.Store(path.Join("cover_letters", actor.UserID), *file, s.config.CoverLetterPolicy)
		if err != nil {
			return "", uploadError("cover_letter_file", err)
		}
		stale = app.CoverLetterPath
		app.CoverLetterPath = &stored
	case req.DeleteCoverLetterFile && app.CoverLetterPath != nil:
		stale = app.CoverLetterPath
		app.CoverLetterPath = nil
	}

	businessLineID := req.BusinessLineID
	app.BusinessLineID = &businessLineID
	app.CoverLetter = strings.TrimSpace(req.CoverLetter)

	if req.Action == models.StepActionSubmit && !app.HasCoverLetter() {
		return "", validation.Fields(map[string]string{"cover_letter": "write a cover letter or upload a file"})
	}
	if err := s.applications.UpdateCoverLetter(ctx, app); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save cover letter")
	}
	s.deleteFile(stale)

	if req.Action != models.StepActionSubmit {
		return StepCoverLetter, nil
	}
	if err := s.hubs.MarkWrittenApplicationCompleted(ctx, actor.UserID, s.today()); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application hub")
	}
	return StepHub, nil
}

// BusinessLineInterest returns the business lines and the actor's choice.
func (s *ApplicationService) BusinessLineInterest(ctx context.Context, actor *models.JWTClaims) (*ApplicationStepView, error) {
	app, err := s.unsubmittedApplication(ctx, actor)
	if err != nil {
		return nil, err
	}
	lines, err := s.businessLines.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list business lines")
	}
	return &ApplicationStepView{Application: app, BusinessLines: lines}, nil
}

// SetBusinessLineInterest records the business line the actor applies to.
func (s *ApplicationService) SetBusinessLineInterest(ctx context.Context, actor *models.JWTClaims, req models.BusinessLineInterestRequest) error {
	app, err := s.unsubmittedApplication(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.validator.Struct(req); err != nil {
		return err
	}
	if _, err := s.businessLines.FindByID(ctx, req.BusinessLineID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return validation.Fields(map[string]string{"business_line": "select a valid business line"})
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load business line")
	}
	if err := s.applications.SetBusinessLine(ctx, app.ID, req.BusinessLineID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save business line")
	}
	return nil
}

// Success returns the submission details once the application is submitted.
func (s *ApplicationService) Success(ctx context.Context, actor *models.JWTClaims) (*SuccessView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	hub, err := s.hub(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !hub.IsApplicationSubmitted {
		return nil, appErrors.Clone(appErrors.ErrStepUnavailable, "application has not been submitted")
	}
	return &SuccessView{SubmissionDate: hub.SubmissionDate}, nil
}

func (s *ApplicationService) hub(ctx context.Context, userID string) (*models.ApplicationHub, error) {
	hub, err := s.hubs.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application hub")
	}
	return hub, nil
}

func (s *ApplicationService) application(ctx context.Context, userID string) (*models.UserApplication, error) {
	app, err := s.applications.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load written application")
	}
	return app, nil
}

// writableApplication requires the written application to still be open.
func (s *ApplicationService) writableApplication(ctx context.Context, actor *models.JWTClaims) (*models.UserApplication, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	hub, err := s.hub(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if hub.IsWrittenApplicationCompleted {
		return nil, appErrors.Clone(appErrors.ErrStepUnavailable, "written application is already completed")
	}
	return s.application(ctx, actor.UserID)
}

// startedApplication additionally requires the contact step to be done.
func (s *ApplicationService) startedApplication(ctx context.Context, actor *models.JWTClaims) (*models.UserApplication, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	hub, err := s.hub(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if !hub.IsWrittenApplicationStarted || hub.IsWrittenApplicationCompleted {
		return nil, appErrors.Clone(appErrors.ErrStepUnavailable, "education and experience step is not available")
	}
	return s.application(ctx, actor.UserID)
}

func (s *ApplicationService) unsubmittedApplication(ctx context.Context, actor *models.JWTClaims) (*models.UserApplication, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	hub, err := s.hub(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if hub.IsApplicationSubmitted {
		return nil, appErrors.Clone(appErrors.ErrStepUnavailable, "application is already submitted")
	}
	return s.application(ctx, actor.UserID)
}

func (s *ApplicationService) fileURL(userID string, relPath *string) string {
	if s.signer == nil || relPath == nil || *relPath == "" {
		return ""
	}
	token, _, err := s.signer.Generate(userID, *relPath)
	if err != nil {
		s.logger.Warn("failed to sign file url", zap.String("user_id", userID), zap.Error(err))
		return ""
	}
	return s.config.FileURLPrefix + token
}

func (s *ApplicationService) deleteFile(relPath *string) {
	if relPath == nil || *relPath == "" || s.files == nil {
		return
	}
	if err := s.files.Delete(*relPath); err != nil {
		s.logger.Warn("failed to delete replaced upload", zap.String("path", *relPath), zap.Error(err))
	}
}

func (s *ApplicationService) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func learner(actor *models.JWTClaims) models.User {
	return actor.User()
}

func uploadError(field string, err error) error {
	if errors.Is(err, storage.ErrFileTooLarge) || errors.Is(err, storage.ErrExtensionNotAllowed) {
		return validation.Fields(map[string]string{field: err.Error()})
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
}
