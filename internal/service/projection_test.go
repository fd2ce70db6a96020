package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

var projectionNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestDaysLeft(t *testing.T) {
	cases := []struct {
		name string
		end  time.Time
		want int
	}{
		{"seven days", projectionNow.Add(7 * 24 * time.Hour), 7},
		{"partial day rounds up", projectionNow.Add(30 * time.Hour), 2},
		{"one hour left", projectionNow.Add(time.Hour), 1},
		{"exactly now", projectionNow, 0},
		{"one hour ago", projectionNow.Add(-time.Hour), 0},
		{"one day ago", projectionNow.Add(-24 * time.Hour), -1},
		{"thirty hours ago", projectionNow.Add(-30 * time.Hour), -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DaysLeft(tc.end, projectionNow))
		})
	}
}

func TestStepIndexAndProgress(t *testing.T) {
	assert.Equal(t, 1, StepIndex(models.StageNotStarted))
	assert.Equal(t, 4, StepIndex(models.StageGraded))
	assert.InDelta(t, 25.0, ProgressPercent(models.StageNotStarted), 0.001)
	assert.InDelta(t, 50.0, ProgressPercent(models.StageInProgress), 0.001)
	assert.InDelta(t, 75.0, ProgressPercent(models.StageSubmitted), 0.001)
	assert.InDelta(t, 100.0, ProgressPercent(models.StageGraded), 0.001)
	assert.Equal(t, "yellow", StageColor(models.StageSubmitted))
	assert.Equal(t, "gray", StageColor(models.Stage("unknown")))
}

func TestDisplayNote(t *testing.T) {
	assignment := &models.Assignment{Note: "Use the provided dataset.", EndDate: projectionNow.Add(48 * time.Hour)}

	entry := models.NewTrackEntry("A1", "asg-1", projectionNow)
	assert.Equal(t, AcceptBeforeDueNote, DisplayNote(entry, assignment, projectionNow))

	entry.Stage = models.StageInProgress
	assert.Equal(t, "Use the provided dataset.", DisplayNote(entry, assignment, projectionNow))

	overdue := *assignment
	overdue.EndDate = projectionNow.Add(-24 * time.Hour)
	note := DisplayNote(entry, &overdue, projectionNow)
	assert.Contains(t, note, LateSubmissionNote)
	assert.Contains(t, note, "Use the provided dataset.")

	submittedAt := projectionNow
	entry.Stage = models.StageSubmitted
	entry.SubmittedAt = &submittedAt
	assert.Equal(t, "Use the provided dataset.", DisplayNote(entry, &overdue, projectionNow))
}

func TestProjectOverdueUnsubmitted(t *testing.T) {
	assignment := &models.Assignment{Note: "note", EndDate: projectionNow.Add(-24 * time.Hour)}
	entry := models.NewTrackEntry("A1", "asg-1", projectionNow)
	entry.Stage = models.StageInProgress

	status := Project(entry, assignment, projectionNow)
	assert.Negative(t, status.DaysLeft)
	assert.True(t, status.Overdue)
	assert.False(t, status.Late)
	assert.Contains(t, status.DisplayNote, LateSubmissionNote)
	assert.Equal(t, "In Progress", status.StageLabel)
	assert.True(t, status.Accepted)
	assert.False(t, status.Submitted)
}

func TestProjectLateSubmission(t *testing.T) {
	assignment := &models.Assignment{EndDate: projectionNow.Add(-24 * time.Hour)}
	submittedAt := projectionNow.Add(-time.Hour)
	entry := &models.TrackEntry{Stage: models.StageSubmitted, SubmittedAt: &submittedAt}

	status := Project(entry, assignment, projectionNow)
	assert.False(t, status.Overdue)
	assert.True(t, status.Late)
	assert.True(t, status.Submitted)
	assert.False(t, status.Evaluated)
}

func TestProjectIsDeterministic(t *testing.T) {
	assignment := &models.Assignment{Note: "n", EndDate: projectionNow.Add(72 * time.Hour)}
	entry := models.NewTrackEntry("A1", "asg-1", projectionNow)
	assert.Equal(t, Project(entry, assignment, projectionNow), Project(entry, assignment, projectionNow))
}
