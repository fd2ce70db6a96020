package service

import (
	"math"
	"strings"
	"time"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

const (
	secondsPerDay = 86400

	// AcceptBeforeDueNote is shown until the applicant accepts the assignment.
	AcceptBeforeDueNote = "Please accept the assignment before the due date."
	// LateSubmissionNote prefixes the definition note once the deadline has passed without a submission.
	LateSubmissionNote = "The deadline for the assignment submission has expired. You can still upload the assignment with a note."
)

var stageColors = map[models.Stage]string{
	models.StageNotStarted: "gray",
	models.StageInProgress: "blue",
	models.StageSubmitted:  "yellow",
	models.StageGraded:     "green",
}

// DaysLeft is ceil((endDate - now) / 1 day). Zero or negative means the deadline has passed.
func DaysLeft(endDate, now time.Time) int {
	return int(math.Ceil(endDate.Sub(now).Seconds() / secondsPerDay))
}

// StepIndex maps a stage to its 1-based step, 0 when the stage is unknown.
func StepIndex(stage models.Stage) int {
	return stage.Step()
}

// ProgressPercent is StepIndex/4 as a percentage.
func ProgressPercent(stage models.Stage) float64 {
	return float64(StepIndex(stage)) / float64(len(models.Stages)) * 100
}

// StageColor returns the badge color for stage.
func StageColor(stage models.Stage) string {
	if c, ok := stageColors[stage]; ok {
		return c
	}
	return "gray"
}

// IsOverdue reports whether the entry is past due and still unsubmitted.
func IsOverdue(entry *models.TrackEntry, assignment *models.Assignment, now time.Time) bool {
	if entry == nil || assignment == nil {
		return false
	}
	return DaysLeft(assignment.EndDate, now) <= 0 && !entry.Stage.Submitted()
}

// IsLate reports whether the entry was submitted after the deadline.
func IsLate(entry *models.TrackEntry, assignment *models.Assignment) bool {
	if entry == nil || assignment == nil || entry.SubmittedAt == nil {
		return false
	}
	return entry.SubmittedAt.After(assignment.EndDate)
}

// DisplayNote picks the note shown to the applicant.
func DisplayNote(entry *models.TrackEntry, assignment *models.Assignment, now time.Time) string {
	if entry == nil || assignment == nil {
		return ""
	}
	if !entry.Stage.Accepted() {
		return AcceptBeforeDueNote
	}
	if IsOverdue(entry, assignment, now) {
		return strings.TrimSpace(LateSubmissionNote + " " + assignment.Note)
	}
	return assignment.Note
}

// Project derives the full presentation state of one entry.
func Project(entry *models.TrackEntry, assignment *models.Assignment, now time.Time) dto.TrackStatus {
	if entry == nil || assignment == nil {
		return dto.TrackStatus{ComputedAt: now}
	}
	return dto.TrackStatus{
		Stage:           entry.Stage,
		StageLabel:      entry.Stage.Label(),
		Step:            StepIndex(entry.Stage),
		ProgressPercent: ProgressPercent(entry.Stage),
		Color:           StageColor(entry.Stage),
		Accepted:        entry.Stage.Accepted(),
		Submitted:       entry.Stage.Submitted(),
		Evaluated:       entry.Stage.Evaluated(),
		DaysLeft:        DaysLeft(assignment.EndDate, now),
		Overdue:         IsOverdue(entry, assignment, now),
		Late:            IsLate(entry, assignment),
		DisplayNote:     DisplayNote(entry, assignment, now),
		ComputedAt:      now,
	}
}
