package models

import "time"

// Stage is the lifecycle position of one applicant's assignment entry. It is the only
// persisted state; the accepted/submitted/evaluated flags are derived from it.
type Stage string

const (
	StageNotStarted Stage = "NOT_STARTED"
	StageInProgress Stage = "IN_PROGRESS"
	StageSubmitted  Stage = "SUBMITTED"
	StageGraded     Stage = "GRADED"
)

// Stages lists every stage in lifecycle order.
var Stages = []Stage{StageNotStarted, StageInProgress, StageSubmitted, StageGraded}

// Valid reports whether s is one of the four lifecycle stages.
func (s Stage) Valid() bool {
	return s.Step() > 0
}

// Step returns the 1-based position of s in the lifecycle, or 0 for unknown values.
func (s Stage) Step() int {
	switch s {
	case StageNotStarted:
		return 1
	case StageInProgress:
		return 2
	case StageSubmitted:
		return 3
	case StageGraded:
		return 4
	default:
		return 0
	}
}

func (s Stage) Accepted() bool  { return s.Step() >= 2 }
func (s Stage) Submitted() bool { return s.Step() >= 3 }
func (s Stage) Evaluated() bool { return s == StageGraded }

// Label is the human readable stage name.
func (s Stage) Label() string {
	switch s {
	case StageNotStarted:
		return "Not Started"
	case StageInProgress:
		return "In Progress"
	case StageSubmitted:
		return "Submitted"
	case StageGraded:
		return "Graded"
	default:
		return string(s)
	}
}

// TrackEntry is the per-applicant progress record for one assignment, keyed by
// (ApplicantID, AssignmentID). Version guards read-modify-write updates.
type TrackEntry struct {
	ApplicantID    string     `db:"applicant_id" json:"applicantId" bson:"applicant_id"`
	AssignmentID   string     `db:"assignment_id" json:"assignmentId" bson:"assignment_id"`
	Stage          Stage      `db:"stage" json:"stage" bson:"stage"`
	SubmittedFiles []string   `db:"submitted_files" json:"submittedFiles" bson:"submitted_files"`
	SubmittedLink  string     `db:"submitted_link" json:"submittedLink" bson:"submitted_link"`
	SubmittedNote  string     `db:"submitted_note" json:"submittedNote" bson:"submitted_note"`
	SubmittedAt    *time.Time `db:"submitted_at" json:"submittedAt,omitempty" bson:"submitted_at,omitempty"`
	Score          *float64   `db:"score" json:"score,omitempty" bson:"score,omitempty"`
	Remarks        string     `db:"remarks" json:"remarks" bson:"remarks"`
	EvaluatedBy    *string    `db:"evaluated_by" json:"evaluatedBy,omitempty" bson:"evaluated_by,omitempty"`
	Version        int64      `db:"version" json:"version" bson:"version"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt" bson:"updated_at"`
}

// NewTrackEntry returns an entry in its initial state.
func NewTrackEntry(applicantID, assignmentID string, now time.Time) *TrackEntry {
	return &TrackEntry{
		ApplicantID:    applicantID,
		AssignmentID:   assignmentID,
		Stage:          StageNotStarted,
		SubmittedFiles: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Consistent checks the stage invariants that the flat fields must satisfy.
func (e *TrackEntry) Consistent() bool {
	if e == nil || !e.Stage.Valid() {
		return false
	}
	switch e.Stage {
	case StageNotStarted, StageInProgress:
		return e.SubmittedAt == nil && e.Score == nil
	case StageSubmitted:
		return e.SubmittedAt != nil && e.Score == nil
	case StageGraded:
		return e.SubmittedAt != nil && e.Score != nil
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching the stored value.
func (e *TrackEntry) Clone() *TrackEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.SubmittedFiles = append([]string(nil), e.SubmittedFiles...)
	if e.SubmittedAt != nil {
		ts := *e.SubmittedAt
		c.SubmittedAt = &ts
	}
	if e.Score != nil {
		score := *e.Score
		c.Score = &score
	}
	if e.EvaluatedBy != nil {
		by := *e.EvaluatedBy
		c.EvaluatedBy = &by
	}
	return &c
}
