package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	"github.com/noah-isme/assignment-tracker-api/internal/service"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
	"github.com/noah-isme/assignment-tracker-api/pkg/response"
)

type assignmentService interface {
	CreateAssignment(ctx context.Context, actor *models.JWTClaims, req dto.CreateAssignmentRequest) (*dto.CreateAssignmentResult, error)
	ListAssignments(ctx context.Context, actor *models.JWTClaims, query dto.AssignmentQuery) ([]models.Assignment, *models.Pagination, error)
	GetAssignment(ctx context.Context, actor *models.JWTClaims, id string) (*models.Assignment, error)
}

type rosterService interface {
	AssignmentRoster(ctx context.Context, actor *models.JWTClaims, assignmentID string) (*models.Assignment, []dto.RosterItem, error)
}

type gradebookExporter interface {
	ExportGradebook(ctx context.Context, actor *models.JWTClaims, assignmentID string, format service.ExportFormat) (*service.ExportResult, error)
}

// AssignmentHandler serves instructor-facing assignment endpoints.
type AssignmentHandler struct {
	assignments assignmentService
	roster      rosterService
	exporter    gradebookExporter
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(assignments assignmentService, roster rosterService, exporter gradebookExporter) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, roster: roster, exporter: exporter}
}

// Create godoc
// @Summary Schedule an assignment
// @Description Creates the definition and one tracking entry per target applicant. 207 means some applicants could not be assigned.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.CreateAssignmentRequest true "Assignment definition"
// @Success 201 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req dto.CreateAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.assignments.CreateAssignment(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		var partial *service.PartialFanoutError
		if errors.As(err, &partial) && result != nil {
			response.JSON(c, http.StatusMultiStatus, result, nil, map[string]interface{}{
				"code":               appErrors.ErrPartialFanout.Code,
				"message":            appErrors.ErrPartialFanout.Message,
				"failedApplicantIds": result.FailedApplicants,
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List assignments
// @Tags Assignments
// @Produce json
// @Param subject query string false "Subject filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	query := dto.AssignmentQuery{
		Subject:  c.Query("subject"),
		Page:     atoiDefault(c.Query("page"), 1),
		PageSize: atoiDefault(c.Query("pageSize"), 20),
	}
	items, pagination, err := h.assignments.ListAssignments(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get assignment definition
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	assignment, err := h.assignments.GetAssignment(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Roster godoc
// @Summary Evaluation roster of an assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/tracks [get]
func (h *AssignmentHandler) Roster(c *gin.Context) {
	assignment, items, err := h.roster.AssignmentRoster(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"assignment": assignment})
}

// Gradebook godoc
// @Summary Download an assignment gradebook
// @Tags Assignments
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Assignment ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /assignments/{id}/gradebook [get]
func (h *AssignmentHandler) Gradebook(c *gin.Context) {
	result, err := h.exporter.ExportGradebook(c.Request.Context(), claimsFromContext(c), c.Param("id"), service.ExportFormat(c.Query("format")))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
