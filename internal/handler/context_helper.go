package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/middleware"
	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

// formUpload opens the optional multipart file named field. The returned
// closer must be called once the upload has been consumed.
func formUpload(c *gin.Context, field string) (*storage.Upload, func(), error) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, invalidPayload(err)
	}
	return openUpload(header)
}

func openUpload(header *multipart.FileHeader) (*storage.Upload, func(), error) {
	file, err := header.Open()
	if err != nil {
		return nil, func() {}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	return &storage.Upload{Filename: header.Filename, Size: header.Size, Content: file}, func() { _ = file.Close() }, nil
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}

func attachment(c *gin.Context, filename, contentType string, payload []byte) {
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Data(http.StatusOK, contentType, payload)
}
