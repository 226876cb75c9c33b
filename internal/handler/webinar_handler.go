package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
)

type webinarManager interface {
	Get(ctx context.Context, id string) (*models.WebinarView, error)
	List(ctx context.Context, filter models.WebinarFilter) ([]models.WebinarView, *models.Pagination, error)
	Create(ctx context.Context, actor *models.JWTClaims, req models.WebinarRequest, banner *storage.Upload) (*models.WebinarView, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req models.WebinarRequest, banner *storage.Upload) (*models.WebinarView, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string) error
	RegisterUser(ctx context.Context, webinarID string, actor *models.JWTClaims) error
	UnregisterUser(ctx context.Context, webinarID string, actor *models.JWTClaims) error
	Registrants(ctx context.Context, id string) ([]models.Registrant, error)
	RegistrantsCSV(ctx context.Context, id string) ([]byte, string, error)
}

// Registration actions accepted by POST /webinars/:id/:action.
const (
	WebinarActionRegister = "register"
	WebinarActionCancel   = "cancel"
)

// WebinarHandler serves webinar listings, learner registration and the admin
// webinar screens.
type WebinarHandler struct {
	service webinarManager
}

// NewWebinarHandler constructs a webinar handler.
func NewWebinarHandler(svc webinarManager) *WebinarHandler {
	return &WebinarHandler{service: svc}
}

// List godoc
// @Summary List webinars
// @Tags Webinars
// @Produce json
// @Param status query string false "UPCOMING, DELIVERED or CANCELLED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /api/webinars [get]
func (h *WebinarHandler) List(c *gin.Context) {
	filter := models.WebinarFilter{Status: models.WebinarStatus(c.Query("status"))}
	filter.Page, filter.PageSize = pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a webinar
// @Tags Webinars
// @Produce json
// @Param id path string true "Webinar ID"
// @Success 200 {object} response.Envelope
// @Router /api/webinars/{id} [get]
func (h *WebinarHandler) Get(c *gin.Context) {
	webinar, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, webinar, nil)
}

// Registration godoc
// @Summary Register for or withdraw from a webinar
// @Tags Webinars
// @Param id path string true "Webinar ID"
// @Param action path string true "register or cancel"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /webinars/{id}/{action} [post]
func (h *WebinarHandler) Registration(c *gin.Context) {
	var err error
	switch c.Param("action") {
	case WebinarActionRegister:
		err = h.service.RegisterUser(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	case WebinarActionCancel:
		err = h.service.UnregisterUser(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	default:
		err = appErrors.Clone(appErrors.ErrNotFound, "unknown webinar action")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Create godoc
// @Summary Create a webinar
// @Tags Admin Webinars
// @Accept multipart/form-data
// @Produce json
// @Param banner formData file false "Banner image"
// @Success 201 {object} response.Envelope
// @Router /api/admin/webinars [post]
func (h *WebinarHandler) Create(c *gin.Context) {
	req, banner, done, ok := h.bindRequest(c)
	if !ok {
		return
	}
	defer done()
	webinar, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req, banner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, webinar)
}

// Update godoc
// @Summary Update a webinar
// @Tags Admin Webinars
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Webinar ID"
// @Param banner formData file false "Banner image"
// @Success 200 {object} response.Envelope
// @Router /api/admin/webinars/{id} [patch]
func (h *WebinarHandler) Update(c *gin.Context) {
	req, banner, done, ok := h.bindRequest(c)
	if !ok {
		return
	}
	defer done()
	webinar, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req, banner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, webinar, nil)
}

// Cancel godoc
// @Summary Cancel a webinar
// @Tags Admin Webinars
// @Param id path string true "Webinar ID"
// @Success 204
// @Router /api/admin/webinars/{id} [delete]
func (h *WebinarHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Registrants godoc
// @Summary List webinar registrations
// @Tags Admin Webinars
// @Produce json
// @Param id path string true "Webinar ID"
// @Success 200 {object} response.Envelope
// @Router /api/admin/webinars/{id}/registrations [get]
func (h *WebinarHandler) Registrants(c *gin.Context) {
	rows, err := h.service.Registrants(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// RegistrantsCSV godoc
// @Summary Export webinar registrations
// @Tags Admin Webinars
// @Produce text/csv
// @Param id path string true "Webinar ID"
// @Success 200
// @Router /api/admin/webinars/{id}/registrations.csv [get]
func (h *WebinarHandler) RegistrantsCSV(c *gin.Context) {
	payload, filename, err := h.service.RegistrantsCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	attachment(c, filename, "text/csv", payload)
}

func (h *WebinarHandler) bindRequest(c *gin.Context) (models.WebinarRequest, *storage.Upload, func(), bool) {
	var req models.WebinarRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return req, nil, nil, false
	}
	banner, done, err := formUpload(c, "banner")
	if err != nil {
		response.Error(c, err)
		return req, nil, nil, false
	}
	return req, banner, done, true
}
