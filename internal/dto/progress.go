package dto

import (
	"time"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

// TrackStatus is the presentation state derived from an entry, its definition and the clock.
// It is computed on every read and never stored.
type TrackStatus struct {
	Stage           models.Stage `json:"stage"`
	StageLabel      string       `json:"stageLabel"`
	Step            int          `json:"step"`
	ProgressPercent float64      `json:"progressPercent"`
	Color           string       `json:"color"`
	Accepted        bool         `json:"accepted"`
	Submitted       bool         `json:"submitted"`
	Evaluated       bool         `json:"evaluated"`
	DaysLeft        int          `json:"daysLeft"`
	Overdue         bool         `json:"overdue"`
	Late            bool         `json:"late"`
	DisplayNote     string       `json:"displayNote"`
	ComputedAt      time.Time    `json:"computedAt"`
}

// AssignmentProgress joins one entry with its definition and projected status.
type AssignmentProgress struct {
	Assignment models.Assignment `json:"assignment"`
	Entry      models.TrackEntry `json:"entry"`
	Status     TrackStatus       `json:"status"`
}

// RosterItem is one applicant row of an assignment's evaluation table.
type RosterItem struct {
	ApplicantID    string            `json:"applicantId"`
	ApplicantName  string            `json:"applicantName"`
	ApplicantEmail string            `json:"applicantEmail"`
	Entry          models.TrackEntry `json:"entry"`
	Status         TrackStatus       `json:"status"`
}

// UploadedFile describes one stored blob.
type UploadedFile struct {
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
