package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/export"
	"github.com/noah-isme/adg-admissions-api/pkg/validation"
)

type applicationReviewStore interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationSummary, int, error)
	Summary(ctx context.Context, id string) (*models.ApplicationSummary, error)
	Review(ctx context.Context, id string, status models.ApplicationStatus, note *string, reviewer string) error
}

type experienceReader interface {
	ListEducation(ctx context.Context, applicationID string) ([]models.Education, error)
	ListWorkExperience(ctx context.Context, applicationID string) ([]models.WorkExperience, error)
}

type applicantFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type prerequisiteScorer interface {
	PrerequisiteScores(ctx context.Context, user models.User) ([]models.CourseScore, error)
}

// ApplicationDetail is a written application with its experience entries and
// the applicant's prerequisite course scores.
type ApplicationDetail struct {
	*models.ApplicationSummary
	Education          []models.Education      `json:"education"`
	WorkExperience     []models.WorkExperience `json:"work_experience"`
	PrereqCourseScores []models.CourseScore    `json:"prereq_course_scores"`
	ResumeURL          string                  `json:"resume_url,omitempty"`
	CoverLetterURL     string                  `json:"cover_letter_url,omitempty"`
}

// ApplicationAdminService backs the staff review screens.
type ApplicationAdminService struct {
	applications applicationReviewStore
	experiences  experienceReader
	applicants   applicantFinder
	scores       prerequisiteScorer
	signer       fileURLSigner
	pdf          *export.PDFExporter
	validator    *validation.Validator
	urlPrefix    string
	logger       *zap.Logger
}

// NewApplicationAdminService constructs the review service.
func NewApplicationAdminService(
	applications applicationReviewStore,
	experiences experienceReader,
	applicants applicantFinder,
	scores prerequisiteScorer,
	signer fileURLSigner,
	validate *validation.Validator,
	urlPrefix string,
	logger *zap.Logger,
) *ApplicationAdminService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationAdminService{
		applications: applications,
		experiences:  experiences,
		applicants:   applicants,
		scores:       scores,
		signer:       signer,
		pdf:          export.NewPDFExporter(),
		validator:    validate,
		urlPrefix:    urlPrefix,
		logger:       logger,
	}
}

// List returns a filtered page of applications.
func (s *ApplicationAdminService) List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationSummary, *models.Pagination, error) {
	switch filter.Status {
	case "", models.ApplicationStatusOpen, models.ApplicationStatusAccepted, models.ApplicationStatusWaitlist:
	default:
		return nil, nil, validation.Fields(map[string]string{"status": "status must be one of OPEN ACCEPTED WAITLIST"})
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	rows, total, err := s.applications.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns the full application.
func (s *ApplicationAdminService) Get(ctx context.Context, id string) (*ApplicationDetail, error) {
	summary, err := s.applications.Summary(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	education, err := s.experiences.ListEducation(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load education")
	}
	work, err := s.experiences.ListWorkExperience(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work experience")
	}
	scores, err := s.prereqScores(ctx, summary.UserID)
	if err != nil {
		return nil, err
	}
	return &ApplicationDetail{
		ApplicationSummary: summary,
		Education:          education,
		WorkExperience:     work,
		PrereqCourseScores: scores,
		ResumeURL:          s.fileURL(summary.UserID, summary.ResumePath),
		CoverLetterURL:     s.fileURL(summary.UserID, summary.CoverLetterPath),
	}, nil
}

func (s *ApplicationAdminService) prereqScores(ctx context.Context, userID string) ([]models.CourseScore, error) {
	user, err := s.applicants.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "applicant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applicant")
	}
	return s.scores.PrerequisiteScores(ctx, *user)
}

// Review records the staff decision on an application.
func (s *ApplicationAdminService) Review(ctx context.Context, actor *models.JWTClaims, id string, req models.ApplicationReviewRequest) (*ApplicationDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if err := s.applications.Review(ctx, id, req.Status, req.InternalAdminNote, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review application")
	}
	s.logger.Info("application reviewed", zap.String("application_id", id), zap.String("status", string(req.Status)), zap.String("reviewer", actor.UserID))
	return s.Get(ctx, id)
}

// ExportPDF renders the application as a printable document.
func (s *ApplicationAdminService) ExportPDF(ctx context.Context, id string) ([]byte, string, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.pdf.Render(applicationDocument(detail))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render application")
	}
	return payload, fmt.Sprintf("application-%s.pdf", id), nil
}

func applicationDocument(d *ApplicationDetail) export.Document {
	submitted := "Not submitted"
	if d.SubmissionDate != nil {
		submitted = d.SubmissionDate.Format("02 Jan 2006")
	}
	businessLine := "-"
	if d.BusinessLineTitle != nil {
		businessLine = *d.BusinessLineTitle
	}
	doc := export.Document{
		Title:    "Written Application",
		Subtitle: d.FullName + " <" + d.Email + ">",
		Sections: []export.Section{{
			Heading: "Applicant",
			Fields: []export.Field{
				{Label: "Status", Value: string(d.Status)},
				{Label: "Submitted", Value: submitted},
				{Label: "Business Line", Value: businessLine},
				{Label: "Organization", Value: d.Organization},
				{Label: "LinkedIn", Value: d.LinkedInURL},
			},
		}},
	}

	education := export.Dataset{
		Columns: []string{"school", "degree", "area", "period"},
		Labels:  map[string]string{"school": "School", "degree": "Degree", "area": "Area of Study", "period": "Period"},
	}
	for _, e := range d.Education {
		education.Rows = append(education.Rows, map[string]string{
			"school": e.NameOfSchool,
			"degree": string(e.Degree),
			"area":   e.AreaOfStudy,
			"period": formatPeriod(e.ExperiencePeriod, e.IsInProgress),
		})
	}
	doc.Sections = append(doc.Sections, export.Section{Heading: "Education", Table: &education})

	work := export.Section{Heading: "Work Experience"}
	if d.IsWorkExperienceNotApplicable {
		work.Body = "No work experience."
	} else {
		table := export.Dataset{
			Columns: []string{"organization", "title", "period"},
			Labels:  map[string]string{"organization": "Organization", "title": "Position", "period": "Period"},
		}
		for _, w := range d.WorkExperience {
			table.Rows = append(table.Rows, map[string]string{
				"organization": w.NameOfOrganization,
				"title":        w.JobPositionTitle,
				"period":       formatPeriod(w.ExperiencePeriod, w.IsCurrentPosition),
			})
		}
		work.Table = &table
	}
	doc.Sections = append(doc.Sections, work)

	scores := export.Dataset{
		Columns: []string{"course", "score"},
		Labels:  map[string]string{"course": "Course", "score": "Score"},
	}
	for _, sc := range d.PrereqCourseScores {
		scores.Rows = append(scores.Rows, map[string]string{"course": sc.CourseName, "score": strconv.Itoa(sc.Percentage) + "%"})
	}
	doc.Sections = append(doc.Sections, export.Section{Heading: "Prerequisite Courses", Table: &scores})

	if d.CoverLetter != "" {
		doc.Sections = append(doc.Sections, export.Section{Heading: "Cover Letter", Body: d.CoverLetter})
	}
	if d.InternalAdminNote != nil && *d.InternalAdminNote != "" {
		doc.Sections = append(doc.Sections, export.Section{Heading: "Internal Note", Body: *d.InternalAdminNote})
	}
	return doc
}

func formatPeriod(p models.ExperiencePeriod, ongoing bool) string {
	start := fmt.Sprintf("%02d/%d", p.DateStartedMonth, p.DateStartedYear)
	if ongoing || p.DateCompletedMonth == nil || p.DateCompletedYear == nil {
		return start + " - present"
	}
	return start + " - " + fmt.Sprintf("%02d/", *p.DateCompletedMonth) + strconv.Itoa(*p.DateCompletedYear)
}

func (s *ApplicationAdminService) fileURL(userID string, relPath *string) string {
	if s.signer == nil || relPath == nil || *relPath == "" {
		return ""
	}
	token, _, err := s.signer.Generate(userID, *relPath)
	if err != nil {
		s.logger.Warn("failed to sign file url", zap.String("user_id", userID), zap.Error(err))
		return ""
	}
	return s.urlPrefix + token
}
