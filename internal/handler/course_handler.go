package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	"github.com/noah-isme/adg-admissions-api/internal/service"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
)

type prerequisiteOverview interface {
	Overview(ctx context.Context, user models.User) (*service.PrerequisiteOverview, error)
}

// CourseHandler serves the program course cards of the caller.
type CourseHandler struct {
	service prerequisiteOverview
}

// NewCourseHandler constructs a course handler.
func NewCourseHandler(svc prerequisiteOverview) *CourseHandler {
	return &CourseHandler{service: svc}
}

// Prerequisites godoc
// @Summary Program courses by lock state
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /api/courses/prerequisites [get]
func (h *CourseHandler) Prerequisites(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), claims.User())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}
