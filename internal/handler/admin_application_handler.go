package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/internal/service"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
)

type applicationReviewer interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.ApplicationSummary, *models.Pagination, error)
	Get(ctx context.Context, id string) (*service.ApplicationDetail, error)
	Review(ctx context.Context, actor *models.JWTClaims, id string, req models.ApplicationReviewRequest) (*service.ApplicationDetail, error)
	ExportPDF(ctx context.Context, id string) ([]byte, string, error)
}

type syncTrigger interface {
	Enqueue(ctx context.Context) error
}

// AdminApplicationHandler serves the staff review screens.
type AdminApplicationHandler struct {
	service applicationReviewer
	sync    syncTrigger
}

// NewAdminApplicationHandler constructs the handler.
func NewAdminApplicationHandler(svc applicationReviewer, sync syncTrigger) *AdminApplicationHandler {
	return &AdminApplicationHandler{service: svc, sync: sync}
}

// List godoc
// @Summary List written applications
// @Tags Admin Applications
// @Produce json
// @Param status query string false "OPEN, ACCEPTED or WAITLIST"
// @Param business_line query string false "Business line ID"
// @Param submitted query bool false "Only submitted applications"
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /api/admin/applications [get]
func (h *AdminApplicationHandler) List(c *gin.Context) {
	filter := models.ApplicationFilter{
		Status:         models.ApplicationStatus(c.Query("status")),
		BusinessLineID: c.Query("business_line"),
		Search:         strings.TrimSpace(c.Query("search")),
	}
	filter.SubmittedOnly, _ = strconv.ParseBool(c.DefaultQuery("submitted", "false"))
	filter.Page, filter.PageSize = pageParams(c)

	rows, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Get godoc
// @Summary Get a written application
// @Tags Admin Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /api/admin/applications/{id} [get]
func (h *AdminApplicationHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Review godoc
// @Summary Review a written application
// @Tags Admin Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body models.ApplicationReviewRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /api/admin/applications/{id}/review [patch]
func (h *AdminApplicationHandler) Review(c *gin.Context) {
	var req models.ApplicationReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	detail, err := h.service.Review(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ExportPDF godoc
// @Summary Export a written application as PDF
// @Tags Admin Applications
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200
// @Router /api/admin/applications/{id}/export.pdf [get]
func (h *AdminApplicationHandler) ExportPDF(c *gin.Context) {
	payload, filename, err := h.service.ExportPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	attachment(c, filename, "application/pdf", payload)
}

// SyncPrerequisites godoc
// @Summary Queue a prerequisite sync run
// @Tags Admin Applications
// @Success 202 {object} response.Envelope
// @Router /api/admin/applications/prerequisites/sync [post]
func (h *AdminApplicationHandler) SyncPrerequisites(c *gin.Context) {
	if err := h.sync.Enqueue(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "queued"}, nil)
}
