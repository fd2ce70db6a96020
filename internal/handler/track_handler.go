package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
	"github.com/noah-isme/assignment-tracker-api/pkg/response"
)

type trackService interface {
	Accept(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string) (*dto.AssignmentProgress, error)
	Submit(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string, req dto.SubmitAssignmentRequest) (*dto.AssignmentProgress, error)
	Evaluate(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string, req dto.EvaluateAssignmentRequest) (*dto.AssignmentProgress, error)
	ApplicantDashboard(ctx context.Context, actor *models.JWTClaims, applicantID string) ([]dto.AssignmentProgress, error)
	EntryDetail(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string) (*dto.AssignmentProgress, error)
}

// TrackHandler serves the per-applicant lifecycle endpoints.
type TrackHandler struct {
	service trackService
}

// NewTrackHandler constructs the handler.
func NewTrackHandler(service trackService) *TrackHandler {
	return &TrackHandler{service: service}
}

// Dashboard godoc
// @Summary Applicant assignment dashboard
// @Tags Tracks
// @Produce json
// @Param applicantId path string true "Applicant ID"
// @Success 200 {object} response.Envelope
// @Router /applicants/{applicantId}/assignments [get]
func (h *TrackHandler) Dashboard(c *gin.Context) {
	items, err := h.service.ApplicantDashboard(c.Request.Context(), claimsFromContext(c), c.Param("applicantId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Detail godoc
// @Summary One applicant entry with its projected status
// @Tags Tracks
// @Produce json
// @Param applicantId path string true "Applicant ID"
// @Param assignmentId path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applicants/{applicantId}/assignments/{assignmentId} [get]
func (h *TrackHandler) Detail(c *gin.Context) {
	progress, err := h.service.EntryDetail(c.Request.Context(), claimsFromContext(c), c.Param("applicantId"), c.Param("assignmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Accept godoc
// @Summary Accept an assignment
// @Tags Tracks
// @Produce json
// @Param applicantId path string true "Applicant ID"
// @Param assignmentId path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applicants/{applicantId}/assignments/{assignmentId}/accept [post]
func (h *TrackHandler) Accept(c *gin.Context) {
	progress, err := h.service.Accept(c.Request.Context(), claimsFromContext(c), c.Param("applicantId"), c.Param("assignmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Submit godoc
// @Summary Submit an accepted assignment
// @Tags Tracks
// @Accept json
// @Produce json
// @Param applicantId path string true "Applicant ID"
// @Param assignmentId path string true "Assignment ID"
// @Param payload body dto.SubmitAssignmentRequest true "Submission"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applicants/{applicantId}/assignments/{assignmentId}/submit [post]
func (h *TrackHandler) Submit(c *gin.Context) {
	var req dto.SubmitAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	progress, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), c.Param("applicantId"), c.Param("assignmentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Evaluate godoc
// @Summary Grade a submitted assignment
// @Tags Tracks
// @Accept json
// @Produce json
// @Param applicantId path string true "Applicant ID"
// @Param assignmentId path string true "Assignment ID"
// @Param payload body dto.EvaluateAssignmentRequest true "Evaluation"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applicants/{applicantId}/assignments/{assignmentId}/evaluate [post]
func (h *TrackHandler) Evaluate(c *gin.Context) {
	var req dto.EvaluateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	progress, err := h.service.Evaluate(c.Request.Context(), claimsFromContext(c), c.Param("applicantId"), c.Param("assignmentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
