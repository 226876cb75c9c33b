package models

import "time"

// Degree enumerates education levels.
type Degree string

const (
	DegreeHighSchool Degree = "HD"
	DegreeAssociate  Degree = "AD"
	DegreeBachelor   Degree = "BD"
	DegreeMaster     Degree = "MD"
	DegreeDoctorate  Degree = "DD"
)

// DegreeLabels lists the degree choices in display order.
var DegreeLabels = []struct {
	Code  Degree `json:"code"`
	Label string `json:"label"`
}{
	{DegreeHighSchool, "High School Diploma"},
	{DegreeAssociate, "Associate Degree"},
	{DegreeBachelor, "Bachelors Degree"},
	{DegreeMaster, "Masters Degree"},
	{DegreeDoctorate, "Doctorate Degree"},
}

// ExperiencePeriod is the start and optional completion month/year shared by
// education and work entries.
type ExperiencePeriod struct {
	DateStartedMonth   int  `db:"date_started_month" json:"date_started_month"`
	DateStartedYear    int  `db:"date_started_year" json:"date_started_year"`
	DateCompletedMonth *int `db:"date_completed_month" json:"date_completed_month,omitempty"`
	DateCompletedYear  *int `db:"date_completed_year" json:"date_completed_year,omitempty"`
}

// Education is an education entry of a written application.
type Education struct {
	ID                string `db:"id" json:"id"`
	UserApplicationID string `db:"user_application_id" json:"-"`
	NameOfSchool      string `db:"name_of_school" json:"name_of_school"`
	Degree            Degree `db:"degree" json:"degree"`
	AreaOfStudy       string `db:"area_of_study" json:"area_of_study"`
	IsInProgress      bool   `db:"is_in_progress" json:"is_in_progress"`
	ExperiencePeriod
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WorkExperience is a work entry of a written application.
type WorkExperience struct {
	ID                  string `db:"id" json:"id"`
	UserApplicationID   string `db:"user_application_id" json:"-"`
	NameOfOrganization  string `db:"name_of_organization" json:"name_of_organization"`
	JobPositionTitle    string `db:"job_position_title" json:"job_position_title"`
	IsCurrentPosition   bool   `db:"is_current_position" json:"is_current_position"`
	JobResponsibilities string `db:"job_responsibilities" json:"job_responsibilities"`
	ExperiencePeriod
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EducationRequest creates or replaces an education entry.
type EducationRequest struct {
	NameOfSchool       string `json:"name_of_school" validate:"required,notblank,max=255"`
	Degree             Degree `json:"degree" validate:"required,oneof=HD AD BD MD DD"`
	AreaOfStudy        string `json:"area_of_study" validate:"max=255"`
	IsInProgress       bool   `json:"is_in_progress"`
	DateStartedMonth   int    `json:"date_started_month" validate:"required,min=1,max=12"`
	DateStartedYear    int    `json:"date_started_year" validate:"required"`
	DateCompletedMonth *int   `json:"date_completed_month" validate:"omitempty,min=1,max=12"`
	DateCompletedYear  *int   `json:"date_completed_year"`
}

// WorkExperienceRequest creates or replaces a work entry.
type WorkExperienceRequest struct {
	NameOfOrganization  string `json:"name_of_organization" validate:"required,notblank,max=255"`
	JobPositionTitle    string `json:"job_position_title" validate:"required,notblank,max=255"`
	IsCurrentPosition   bool   `json:"is_current_position"`
	JobResponsibilities string `json:"job_responsibilities" validate:"required,notblank"`
	DateStartedMonth    int    `json:"date_started_month" validate:"required,min=1,max=12"`
	DateStartedYear     int    `json:"date_started_year" validate:"required"`
	DateCompletedMonth  *int   `json:"date_completed_month" validate:"omitempty,min=1,max=12"`
	DateCompletedYear   *int   `json:"date_completed_year"`
}

// WorkExperienceNotApplicableRequest toggles the "no work experience" flag.
type WorkExperienceNotApplicableRequest struct {
	IsWorkExperienceNotApplicable *bool `json:"is_work_experience_not_applicable" validate:"required"`
}
