package models

// Application step actions posted by the cover letter form.
const (
	StepActionBack   = "back"
	StepActionSubmit = "submit"
)

// ContactInformationRequest is the contact step of the written application.
type ContactInformationRequest struct {
	Organization string `form:"organization" json:"organization" validate:"max=255"`
	LinkedInURL  string `form:"linkedin_url" json:"linkedin_url" validate:"omitempty,url,max=255"`
	DeleteResume bool   `form:"delete_resume" json:"delete_resume"`
}

// CoverLetterRequest is the final step of the written application.
type CoverLetterRequest struct {
	BusinessLineID        string `form:"business_line" json:"business_line" validate:"required"`
	CoverLetter           string `form:"cover_letter" json:"cover_letter"`
	DeleteCoverLetterFile bool   `form:"delete_cover_letter_file" json:"delete_cover_letter_file"`
	Action                string `form:"button_click" json:"button_click" validate:"omitempty,oneof=back submit"`
}

// BusinessLineInterestRequest records the business line a learner targets.
type BusinessLineInterestRequest struct {
	BusinessLineID string `form:"business_line" json:"business_line" validate:"required"`
}

// ApplicationReviewRequest is an admin decision on a written application.
type ApplicationReviewRequest struct {
	Status            ApplicationStatus `json:"status" validate:"required,oneof=OPEN ACCEPTED WAITLIST"`
	InternalAdminNote *string           `json:"internal_admin_note" validate:"omitempty,max=2000"`
}

// BusinessLineRequest creates or updates a business line.
type BusinessLineRequest struct {
	Title       string `form:"title" json:"title" validate:"required,notblank,max=150"`
	Description string `form:"description" json:"description"`
}
