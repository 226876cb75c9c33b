package handler

import (
	"errors"
	"net/http"
	"os"
	"path"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/response"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
)

type tokenParser interface {
	Parse(token string) (subject, relPath string, err error)
}

type fileOpener interface {
	Open(filename string) (*os.File, error)
}

// FileHandler serves private uploads such as resumes through signed links.
type FileHandler struct {
	signer tokenParser
	files  fileOpener
}

// NewFileHandler constructs a file handler.
func NewFileHandler(signer tokenParser, files fileOpener) *FileHandler {
	return &FileHandler{signer: signer, files: files}
}

// Download godoc
// @Summary Download an uploaded document
// @Tags Files
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200
// @Failure 403 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	subject, relPath, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		if errors.Is(err, storage.ErrInvalidToken) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired"))
			return
		}
		response.Error(c, err)
		return
	}
	claims := claimsFromContext(c)
	if claims == nil || (claims.UserID != subject && !claims.IsStaff()) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	file, err := h.files.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file"))
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Header("Content-Disposition", "attachment; filename=\""+path.Base(relPath)+"\"")
	http.ServeContent(c.Writer, c.Request, path.Base(relPath), info.ModTime(), file)
}
