package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
)

type experienceManager interface {
	ListEducation(ctx context.Context, actor *models.JWTClaims) ([]models.Education, error)
	GetEducation(ctx context.Context, actor *models.JWTClaims, id string) (*models.Education, error)
	CreateEducation(ctx context.Context, actor *models.JWTClaims, req models.EducationRequest) (*models.Education, error)
	UpdateEducation(ctx context.Context, actor *models.JWTClaims, id string, req models.EducationRequest) (*models.Education, error)
	DeleteEducation(ctx context.Context, actor *models.JWTClaims, id string) error
	ListWorkExperience(ctx context.Context, actor *models.JWTClaims) ([]models.WorkExperience, error)
	GetWorkExperience(ctx context.Context, actor *models.JWTClaims, id string) (*models.WorkExperience, error)
	CreateWorkExperience(ctx context.Context, actor *models.JWTClaims, req models.WorkExperienceRequest) (*models.WorkExperience, error)
	UpdateWorkExperience(ctx context.Context, actor *models.JWTClaims, id string, req models.WorkExperienceRequest) (*models.WorkExperience, error)
	DeleteWorkExperience(ctx context.Context, actor *models.JWTClaims, id string) error
	SetWorkExperienceNotApplicable(ctx context.Context, actor *models.JWTClaims, req models.WorkExperienceNotApplicableRequest) error
}

// ExperienceHandler exposes the education and work entries of the caller's
// written application.
type ExperienceHandler struct {
	service experienceManager
}

// NewExperienceHandler constructs an experience handler.
func NewExperienceHandler(svc experienceManager) *ExperienceHandler {
	return &ExperienceHandler{service: svc}
}

// ListEducation godoc
// @Summary List education entries
// @Tags Experience
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/applications/education/ [get]
func (h *ExperienceHandler) ListEducation(c *gin.Context) {
	items, err := h.service.ListEducation(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// GetEducation godoc
// @Summary Get an education entry
// @Tags Experience
// @Produce json
// @Param id path string true "Education ID"
// @Success 200 {object} response.Envelope
// @Router /api/applications/education/{id} [get]
func (h *ExperienceHandler) GetEducation(c *gin.Context) {
	item, err := h.service.GetEducation(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreateEducation godoc
// @Summary Add an education entry
// @Tags Experience
// @Accept json
// @Produce json
// @Param payload body models.EducationRequest true "Education"
// @Success 201 {object} response.Envelope
// @Router /api/applications/education/ [post]
func (h *ExperienceHandler) CreateEducation(c *gin.Context) {
	var req models.EducationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	item, err := h.service.CreateEducation(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateEducation godoc
// @Summary Replace an education entry
// @Tags Experience
// @Accept json
// @Produce json
// @Param id path string true "Education ID"
// @Param payload body models.EducationRequest true "Education"
// @Success 200 {object} response.Envelope
// @Router /api/applications/education/{id} [patch]
func (h *ExperienceHandler) UpdateEducation(c *gin.Context) {
	var req models.EducationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	item, err := h.service.UpdateEducation(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteEducation godoc
// @Summary Delete an education entry
// @Tags Experience
// @Param id path string true "Education ID"
// @Success 204
// @Router /api/applications/education/{id} [delete]
func (h *ExperienceHandler) DeleteEducation(c *gin.Context) {
	if err := h.service.DeleteEducation(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListWorkExperience godoc
// @Summary List work experience entries
// @Tags Experience
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/applications/work_experience/ [get]
func (h *ExperienceHandler) ListWorkExperience(c *gin.Context) {
	items, err := h.service.ListWorkExperience(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// GetWorkExperience godoc
// @Summary Get a work experience entry
// @Tags Experience
// @Produce json
// @Param id path string true "Work experience ID"
// @Success 200 {object} response.Envelope
// @Router /api/applications/work_experience/{id} [get]
func (h *ExperienceHandler) GetWorkExperience(c *gin.Context) {
	item, err := h.service.GetWorkExperience(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// CreateWorkExperience godoc
// @Summary Add a work experience entry
// @Tags Experience
// @Accept json
// @Produce json
// @Param payload body models.WorkExperienceRequest true "Work experience"
// @Success 201 {object} response.Envelope
// @Router /api/applications/work_experience/ [post]
func (h *ExperienceHandler) CreateWorkExperience(c *gin.Context) {
	var req models.WorkExperienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	item, err := h.service.CreateWorkExperience(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// UpdateWorkExperience godoc
// @Summary Replace a work experience entry
// @Tags Experience
// @Accept json
// @Produce json
// @Param id path string true "Work experience ID"
// @Param payload body models.WorkExperienceRequest true "Work experience"
// @Success 200 {object} response.Envelope
// @Router /api/applications/work_experience/{id} [patch]
func (h *ExperienceHandler) UpdateWorkExperience(c *gin.Context) {
	var req models.WorkExperienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	item, err := h.service.UpdateWorkExperience(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DeleteWorkExperience godoc
// @Summary Delete a work experience entry
// @Tags Experience
// @Param id path string true "Work experience ID"
// @Success 204
// @Router /api/applications/work_experience/{id} [delete]
func (h *ExperienceHandler) DeleteWorkExperience(c *gin.Context) {
	if err := h.service.DeleteWorkExperience(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetWorkExperienceNotApplicable godoc
// @Summary Toggle "no work experience"
// @Tags Experience
// @Accept json
// @Param payload body models.WorkExperienceNotApplicableRequest true "Flag"
// @Success 204
// @Router /api/applications/work_experience/update_is_not_applicable/ [patch]
func (h *ExperienceHandler) SetWorkExperienceNotApplicable(c *gin.Context) {
	var req models.WorkExperienceNotApplicableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if err := h.service.SetWorkExperienceNotApplicable(c.Request.Context(), claimsFromContext(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
