package models

import "time"

// TotalApplicationObjectives counts the hub objectives shown as progress:
// prerequisite courses and the written application.
const TotalApplicationObjectives = 2

// ApplicationHub tracks a learner's progress through the admissions process.
// Flags only ever move from false to true.
type ApplicationHub struct {
	ID                            string     `db:"id" json:"id"`
	UserID                        string     `db:"user_id" json:"user_id"`
	IsPrerequisiteCoursesPassed   bool       `db:"is_prerequisite_courses_passed" json:"is_prerequisite_courses_passed"`
	IsBUPrerequisiteCoursesPassed bool       `db:"is_bu_prerequisite_courses_passed" json:"is_bu_prerequisite_courses_passed"`
	IsWrittenApplicationStarted   bool       `db:"is_written_application_started" json:"is_written_application_started"`
	IsWrittenApplicationCompleted bool       `db:"is_written_application_completed" json:"is_written_application_completed"`
	IsApplicationSubmitted        bool       `db:"is_application_submitted" json:"is_application_submitted"`
	WrittenApplicationDate        *time.Time `db:"written_application_date" json:"written_application_date,omitempty"`
	SubmissionDate                *time.Time `db:"submission_date" json:"submission_date,omitempty"`
	CreatedAt                     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                     time.Time  `db:"updated_at" json:"updated_at"`
}

// ArePrerequisitesAndWrittenAppComplete reports whether the hub may be submitted.
func (h *ApplicationHub) ArePrerequisitesAndWrittenAppComplete() bool {
	return h != nil && h.IsPrerequisiteCoursesPassed && h.IsWrittenApplicationCompleted
}

// ObjectivesCompleted counts the finished hub objectives.
func (h *ApplicationHub) ObjectivesCompleted() int {
	if h == nil {
		return 0
	}
	done := 0
	if h.IsPrerequisiteCoursesPassed {
		done++
	}
	if h.IsWrittenApplicationCompleted {
		done++
	}
	return done
}

// Progress returns the completed share of objectives in [0, 1].
func (h *ApplicationHub) Progress() float64 {
	return float64(h.ObjectivesCompleted()) / TotalApplicationObjectives
}

// ApplicationStatus is the admin review outcome of a written application.
type ApplicationStatus string

const (
	ApplicationStatusOpen     ApplicationStatus = "OPEN"
	ApplicationStatusAccepted ApplicationStatus = "ACCEPTED"
	ApplicationStatusWaitlist ApplicationStatus = "WAITLIST"
)

// UserApplication holds the written application of a learner.
type UserApplication struct {
	ID                            string            `db:"id" json:"id"`
	UserID                        string            `db:"user_id" json:"user_id"`
	BusinessLineID                *string           `db:"business_line_id" json:"business_line_id,omitempty"`
	Organization                  string            `db:"organization" json:"organization"`
	LinkedInURL                   string            `db:"linkedin_url" json:"linkedin_url"`
	ResumePath                    *string           `db:"resume_path" json:"-"`
	CoverLetter                   string            `db:"cover_letter" json:"cover_letter"`
	CoverLetterPath               *string           `db:"cover_letter_path" json:"-"`
	IsWorkExperienceNotApplicable bool              `db:"is_work_experience_not_applicable" json:"is_work_experience_not_applicable"`
	IsEducationExperienceComplete bool              `db:"is_education_experience_completed" json:"is_education_experience_completed"`
	Status                        ApplicationStatus `db:"status" json:"status"`
	ReviewedBy                    *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	InternalAdminNote             *string           `db:"internal_admin_note" json:"internal_admin_note,omitempty"`
	CreatedAt                     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt                     time.Time         `db:"updated_at" json:"updated_at"`
}

// HasResume reports whether a resume file is attached.
func (a *UserApplication) HasResume() bool {
	return a != nil && a.ResumePath != nil && *a.ResumePath != ""
}

// HasCoverLetter reports whether either a typed or uploaded cover letter exists.
func (a *UserApplication) HasCoverLetter() bool {
	return a != nil && (a.CoverLetter != "" || (a.CoverLetterPath != nil && *a.CoverLetterPath != ""))
}

// ApplicationSummary is a row of the admin application listing.
type ApplicationSummary struct {
	UserApplication
	Email                  string     `db:"email" json:"email"`
	FullName               string     `db:"full_name" json:"full_name"`
	BusinessLineTitle      *string    `db:"business_line_title" json:"business_line_title,omitempty"`
	IsApplicationSubmitted bool       `db:"is_application_submitted" json:"is_application_submitted"`
	SubmissionDate         *time.Time `db:"submission_date" json:"submission_date,omitempty"`
}

// ApplicationFilter captures admin listing criteria.
type ApplicationFilter struct {
	Status         ApplicationStatus
	BusinessLineID string
	SubmittedOnly  bool
	Search         string
	Page           int
	PageSize       int
}

// BusinessLine is an Al-Dabbagh business unit a learner can apply to.
type BusinessLine struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	LogoPath    string    `db:"logo_path" json:"logo_path"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
