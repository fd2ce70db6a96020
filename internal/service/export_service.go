package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
	"github.com/noah-isme/assignment-tracker-api/pkg/export"
)

// ExportFormat selects the gradebook rendering.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

var gradebookHeaders = []string{"Applicant ID", "Name", "Email", "Stage", "Submitted At", "Late", "Score", "Remarks"}

type rosterSource interface {
	AssignmentRoster(ctx context.Context, actor *models.JWTClaims, assignmentID string) (*models.Assignment, []dto.RosterItem, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered gradebook ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders an assignment's roster as a downloadable gradebook.
type ExportService struct {
	roster rosterSource
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(roster rosterSource, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{roster: roster, csv: csv, pdf: pdf, logger: logger}
}

// ExportGradebook renders the roster of assignmentID in the requested format.
func (s *ExportService) ExportGradebook(ctx context.Context, actor *models.JWTClaims, assignmentID string, format ExportFormat) (*ExportResult, error) {
	format = ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	asg, items, err := s.roster.AssignmentRoster(ctx, actor, assignmentID)
	if err != nil {
		return nil, err
	}

	dataset := buildGradebook(items)
	var payload []byte
	result := &ExportResult{Filename: fmt.Sprintf("gradebook-%s.%s", asg.ID, format)}
	switch format {
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("%s (%s)", asg.Title, asg.Subject))
		result.ContentType = "application/pdf"
	default:
		payload, err = s.csv.Render(dataset)
		result.ContentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render gradebook")
	}
	result.Payload = payload

	s.logger.Info("gradebook exported",
		zap.String("assignment_id", asg.ID),
		zap.String("format", string(format)),
		zap.Int("rows", len(items)),
		zap.String("actor_id", actor.UserID),
	)
	return result, nil
}

func buildGradebook(items []dto.RosterItem) export.Dataset {
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		row := map[string]string{
			"Applicant ID": item.ApplicantID,
			"Name":         item.ApplicantName,
			"Email":        item.ApplicantEmail,
			"Stage":        item.Status.StageLabel,
			"Late":         strconv.FormatBool(item.Status.Late),
			"Remarks":      item.Entry.Remarks,
		}
		if item.Entry.SubmittedAt != nil {
			row["Submitted At"] = item.Entry.SubmittedAt.UTC().Format("2006-01-02 15:04")
		}
		if item.Entry.Score != nil {
			row["Score"] = strconv.FormatFloat(*item.Entry.Score, 'f', -1, 64)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: gradebookHeaders, Rows: rows}
}
