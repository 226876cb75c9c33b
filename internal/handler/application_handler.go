package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/internal/service"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
)

type applicationFlow interface {
	Hub(ctx context.Context, actor *models.JWTClaims) (*service.HubView, error)
	Submit(ctx context.Context, actor *models.JWTClaims) error
	ContactInformation(ctx context.Context, actor *models.JWTClaims) (*service.ApplicationStepView, error)
	SaveContactInformation(ctx context.Context, actor *models.JWTClaims, req models.ContactInformationRequest, resume *storage.Upload) (string, error)
	EducationExperience(ctx context.Context, actor *models.JWTClaims) (*service.ApplicationStepView, error)
	CompleteEducationExperience(ctx context.Context, actor *models.JWTClaims) (string, error)
	CoverLetter(ctx context.Context, actor *models.JWTClaims) (*service.ApplicationStepView, error)
	SaveCoverLetter(ctx context.Context, actor *models.JWTClaims, req models.CoverLetterRequest, file *storage.Upload) (string, error)
	BusinessLineInterest(ctx context.Context, actor *models.JWTClaims) (*service.ApplicationStepView, error)
	SetBusinessLineInterest(ctx context.Context, actor *models.JWTClaims, req models.BusinessLineInterestRequest) error
	Success(ctx context.Context, actor *models.JWTClaims) (*service.SuccessView, error)
}

// Form pages of the written application.
const (
	PathApplicationHub          = "/application/"
	PathApplicationContact      = "/application/contact"
	PathApplicationEducation    = "/application/education_experience"
	PathApplicationCoverLetter  = "/application/cover_letter"
	PathApplicationSuccess      = "/application/success"
	PathApplicationBusinessLine = "/application/business_line_interest"
)

var stepPaths = map[string]string{
	service.StepHub:                 PathApplicationHub,
	service.StepContact:             PathApplicationContact,
	service.StepEducationExperience: PathApplicationEducation,
	service.StepCoverLetter:         PathApplicationCoverLetter,
	service.StepSuccess:             PathApplicationSuccess,
}

// ApplicationHandler serves the application hub and the written application
// forms. GET pages return their view data; POST pages redirect to the next
// step, or answer 400 when the step is not available.
type ApplicationHandler struct {
	service applicationFlow
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(svc applicationFlow) *ApplicationHandler {
	return &ApplicationHandler{service: svc}
}

// Hub godoc
// @Summary Application hub
// @Tags Application
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /application/ [get]
func (h *ApplicationHandler) Hub(c *gin.Context) {
	view, err := h.service.Hub(c.Request.Context(), claimsFromContext(c))
	h.page(c, view, err)
}

// Submit godoc
// @Summary Submit the application
// @Tags Application
// @Success 302
// @Failure 400 {object} response.Envelope
// @Router /application/ [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	err := h.service.Submit(c.Request.Context(), claimsFromContext(c))
	h.next(c, service.StepSuccess, err)
}

// Contact godoc
// @Summary Contact information step
// @Tags Application
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /application/contact [get]
func (h *ApplicationHandler) Contact(c *gin.Context) {
	view, err := h.service.ContactInformation(c.Request.Context(), claimsFromContext(c))
	h.page(c, view, err)
}

// SaveContact godoc
// @Summary Save contact information
// @Tags Application
// @Accept multipart/form-data
// @Param organization formData string false "Organization"
// @Param linkedin_url formData string false "LinkedIn profile"
// @Param resume formData file false "Resume"
// @Success 302
// @Failure 400 {object} response.Envelope
// @Router /application/contact [post]
func (h *ApplicationHandler) SaveContact(c *gin.Context) {
	var req models.ContactInformationRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	resume, done, err := formUpload(c, "resume")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer done()
	step, err := h.service.SaveContactInformation(c.Request.Context(), claimsFromContext(c), req, resume)
	h.next(c, step, err)
}

// Education godoc
// @Summary Education and experience step
// @Tags Application
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /application/education_experience [get]
func (h *ApplicationHandler) Education(c *gin.Context) {
	view, err := h.service.EducationExperience(c.Request.Context(), claimsFromContext(c))
	h.page(c, view, err)
}

// CompleteEducation godoc
// @Summary Complete the education and experience step
// @Tags Application
// @Success 302
// @Failure 400 {object} response.Envelope
// @Router /application/education_experience [post]
func (h *ApplicationHandler) CompleteEducation(c *gin.Context) {
	step, err := h.service.CompleteEducationExperience(c.Request.Context(), claimsFromContext(c))
	h.next(c, step, err)
}

// CoverLetter godoc
// @Summary Cover letter step
// @Tags Application
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /application/cover_letter [get]
func (h *ApplicationHandler) CoverLetter(c *gin.Context) {
	view, err := h.service.CoverLetter(c.Request.Context(), claimsFromContext(c))
	h.page(c, view, err)
}

// SaveCoverLetter godoc
// @Summary Save the cover letter
// @Tags Application
// @Accept multipart/form-data
// @Param business_line formData string true "Business line"
// @Param cover_letter formData string false "Cover letter"
// @Param cover_letter_file formData file false "Cover letter file"
// @Param button_click formData string false "back or submit"
// @Success 302
// @Failure 400 {object} response.Envelope
// @Router /application/cover_letter [post]
func (h *ApplicationHandler) SaveCoverLetter(c *gin.Context) {
	var req models.CoverLetterRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	file, done, err := formUpload(c, "cover_letter_file")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer done()
	step, err := h.service.SaveCoverLetter(c.Request.Context(), claimsFromContext(c), req, file)
	h.next(c, step, err)
}

// BusinessLineInterest godoc
// @Summary Business line interest
// @Tags Application
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /application/business_line_interest [get]
func (h *ApplicationHandler) BusinessLineInterest(c *gin.Context) {
	view, err := h.service.BusinessLineInterest(c.Request.Context(), claimsFromContext(c))
	h.page(c, view, err)
}

// SetBusinessLineInterest godoc
// @Summary Record business line interest
// @Tags Application
// @Param business_line formData string true "Business line"
// @Success 302
// @Failure 400 {object} response.Envelope
// @Router /application/business_line_interest [post]
func (h *ApplicationHandler) SetBusinessLineInterest(c *gin.Context) {
	var req models.BusinessLineInterestRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	err := h.service.SetBusinessLineInterest(c.Request.Context(), claimsFromContext(c), req)
	h.next(c, service.StepHub, err)
}

// Success godoc
// @Summary Submitted application
// @Tags Application
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /application/success [get]
func (h *ApplicationHandler) Success(c *gin.Context) {
	view, err := h.service.Success(c.Request.Context(), claimsFromContext(c))
	h.page(c, view, err)
}

// page renders view data, sending the learner back to the hub (or to the
// success page once submitted) when the step is not available.
func (h *ApplicationHandler) page(c *gin.Context, view interface{}, err error) {
	if err != nil {
		switch {
		case errors.Is(err, appErrors.ErrAlreadySubmitted):
			response.Redirect(c, PathApplicationSuccess)
		case errors.Is(err, appErrors.ErrStepUnavailable):
			response.Redirect(c, PathApplicationHub)
		default:
			response.Error(c, err)
		}
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

func (h *ApplicationHandler) next(c *gin.Context, step string, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	location, ok := stepPaths[step]
	if !ok {
		location = PathApplicationHub
	}
	response.Redirect(c, location)
}
