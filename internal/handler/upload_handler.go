package handler

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	"github.com/noah-isme/assignment-tracker-api/internal/service"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
	"github.com/noah-isme/assignment-tracker-api/pkg/response"
)

const uploadFormField = "files"

type uploadService interface {
	Upload(ctx context.Context, actor *models.JWTClaims, files []service.UploadInput) ([]dto.UploadedFile, error)
	Open(token string) (*os.File, string, error)
}

// UploadHandler accepts submission files and serves them back by signed token.
type UploadHandler struct {
	service   uploadService
	maxMemory int64
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(service uploadService) *UploadHandler {
	return &UploadHandler{service: service, maxMemory: 8 << 20}
}

// Upload godoc
// @Summary Upload submission files
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "One or more files"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(h.maxMemory); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form expected"))
		return
	}
	headers := c.Request.MultipartForm.File[uploadFormField]
	inputs := make([]service.UploadInput, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		inputs = append(inputs, service.UploadInput{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open:     func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	files, err := h.service.Upload(c.Request.Context(), claimsFromContext(c), inputs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, files)
}

// Download godoc
// @Summary Download an uploaded file
// @Tags Uploads
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /files/{token} [get]
func (h *UploadHandler) Download(c *gin.Context) {
	file, name, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	c.Header("Content-Disposition", "inline; filename=\""+name+"\"")
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), file)
}
