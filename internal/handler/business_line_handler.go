package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
)

type businessLineManager interface {
	List(ctx context.Context) ([]models.BusinessLine, error)
	FindByID(ctx context.Context, id string) (*models.BusinessLine, error)
	Create(ctx context.Context, req models.BusinessLineRequest, logo *storage.Upload) (*models.BusinessLine, error)
	Update(ctx context.Context, id string, req models.BusinessLineRequest, logo *storage.Upload) (*models.BusinessLine, error)
	Delete(ctx context.Context, id string) error
}

// BusinessLineHandler handles business line endpoints.
type BusinessLineHandler struct {
	service businessLineManager
}

// NewBusinessLineHandler constructs a business line handler.
func NewBusinessLineHandler(svc businessLineManager) *BusinessLineHandler {
	return &BusinessLineHandler{service: svc}
}

// List godoc
// @Summary List business lines
// @Tags Business Lines
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/business-lines [get]
func (h *BusinessLineHandler) List(c *gin.Context) {
	lines, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lines, nil)
}

// Get godoc
// @Summary Get a business line
// @Tags Business Lines
// @Produce json
// @Param id path string true "Business line ID"
// @Success 200 {object} response.Envelope
// @Router /api/admin/business-lines/{id} [get]
func (h *BusinessLineHandler) Get(c *gin.Context) {
	line, err := h.service.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, line, nil)
}

// Create godoc
// @Summary Create a business line
// @Tags Business Lines
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param logo formData file true "Logo"
// @Success 201 {object} response.Envelope
// @Router /api/admin/business-lines [post]
func (h *BusinessLineHandler) Create(c *gin.Context) {
	var req models.BusinessLineRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	logo, done, err := formUpload(c, "logo")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer done()
	line, err := h.service.Create(c.Request.Context(), req, logo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, line)
}

// Update godoc
// @Summary Update a business line
// @Tags Business Lines
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Business line ID"
// @Success 200 {object} response.Envelope
// @Router /api/admin/business-lines/{id} [patch]
func (h *BusinessLineHandler) Update(c *gin.Context) {
	var req models.BusinessLineRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	logo, done, err := formUpload(c, "logo")
	if err != nil {
		response.Error(c, err)
		return
	}
	defer done()
	line, err := h.service.Update(c.Request.Context(), c.Param("id"), req, logo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, line, nil)
}

// Delete godoc
// @Summary Delete a business line
// @Tags Business Lines
// @Param id path string true "Business line ID"
// @Success 204
// @Router /api/admin/business-lines/{id} [delete]
func (h *BusinessLineHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
