package dto

import (
	"time"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

// CreateAssignmentRequest is the instructor payload for scheduling an assignment.
// Individual mode targets ApplicantIDs; group mode targets every applicant tagged GroupTag.
type CreateAssignmentRequest struct {
	Title        string     `json:"title"`
	Subject      string     `json:"subject"`
	Note         string     `json:"note" validate:"max=4096"`
	Link         string     `json:"link" validate:"omitempty,url"`
	Attachments  []string   `json:"attachments" validate:"omitempty,dive,url"`
	StartDate    *time.Time `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
	Group        bool       `json:"group"`
	GroupTag     string     `json:"groupTag"`
	ApplicantIDs []string   `json:"applicantIds"`
}

// CreateAssignmentResult reports the definition and the outcome of the fan-out.
type CreateAssignmentResult struct {
	Assignment         *models.Assignment `json:"assignment"`
	AssignedApplicants []string           `json:"assignedApplicantIds"`
	FailedApplicants   []string           `json:"failedApplicantIds,omitempty"`
}

// AssignmentQuery mirrors supported listing filters.
type AssignmentQuery struct {
	Subject  string
	Page     int
	PageSize int
}

// SubmitAssignmentRequest carries the applicant's submission. At least one file URL or the link is required.
type SubmitAssignmentRequest struct {
	FileURL  string   `json:"fileUrl" validate:"omitempty,url"`
	FileURLs []string `json:"fileUrls" validate:"omitempty,dive,url"`
	Link     string   `json:"link" validate:"omitempty,url"`
	Note     string   `json:"note" validate:"max=2048"`
}

// Files returns the non-empty file URLs in submission order without duplicates.
func (r SubmitAssignmentRequest) Files() []string {
	files := make([]string, 0, len(r.FileURLs)+1)
	seen := make(map[string]struct{}, len(r.FileURLs)+1)
	for _, f := range append([]string{r.FileURL}, r.FileURLs...) {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		files = append(files, f)
	}
	return files
}

// EvaluateAssignmentRequest carries the instructor's grade.
type EvaluateAssignmentRequest struct {
	Score   *float64 `json:"score"`
	Remarks string   `json:"remarks" validate:"max=4096"`
}
