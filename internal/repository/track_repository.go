package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

// ErrStaleVersion is returned when a guarded update matched no row because the entry moved on.
var ErrStaleVersion = errors.New("stale track version")

const trackColumns = `applicant_id, assignment_id, stage, submitted_files, submitted_link, submitted_note,
       submitted_at, score, remarks, evaluated_by, version, created_at, updated_at`

type trackRow struct {
	ApplicantID    string         `db:"applicant_id"`
	AssignmentID   string         `db:"assignment_id"`
	Stage          models.Stage   `db:"stage"`
	SubmittedFiles pq.StringArray `db:"submitted_files"`
	SubmittedLink  string         `db:"submitted_link"`
	SubmittedNote  string         `db:"submitted_note"`
	SubmittedAt    *time.Time     `db:"submitted_at"`
	Score          *float64       `db:"score"`
	Remarks        string         `db:"remarks"`
	EvaluatedBy    *string        `db:"evaluated_by"`
	Version        int64          `db:"version"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func newTrackRow(e *models.TrackEntry) trackRow {
	files := pq.StringArray(e.SubmittedFiles)
	if files == nil {
		files = pq.StringArray{}
	}
	return trackRow{
		ApplicantID:    e.ApplicantID,
		AssignmentID:   e.AssignmentID,
		Stage:          e.Stage,
		SubmittedFiles: files,
		SubmittedLink:  e.SubmittedLink,
		SubmittedNote:  e.SubmittedNote,
		SubmittedAt:    e.SubmittedAt,
		Score:          e.Score,
		Remarks:        e.Remarks,
		EvaluatedBy:    e.EvaluatedBy,
		Version:        e.Version,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func (r trackRow) toModel() models.TrackEntry {
	files := []string(r.SubmittedFiles)
	if files == nil {
		files = []string{}
	}
	return models.TrackEntry{
		ApplicantID:    r.ApplicantID,
		AssignmentID:   r.AssignmentID,
		Stage:          r.Stage,
		SubmittedFiles: files,
		SubmittedLink:  r.SubmittedLink,
		SubmittedNote:  r.SubmittedNote,
		SubmittedAt:    r.SubmittedAt,
		Score:          r.Score,
		Remarks:        r.Remarks,
		EvaluatedBy:    r.EvaluatedBy,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// TrackRepository persists per-applicant assignment entries in Postgres.
type TrackRepository struct {
	db *sqlx.DB
}

// NewTrackRepository constructs the repository.
func NewTrackRepository(db *sqlx.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Append inserts a fresh entry. An existing (applicant, assignment) pair is left untouched.
func (r *TrackRepository) Append(ctx context.Context, entry *models.TrackEntry) error {
	if entry.Version == 0 {
		entry.Version = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
		entry.UpdatedAt = entry.CreatedAt
	}
	const query = `INSERT INTO assignment_tracks
	(applicant_id, assignment_id, stage, submitted_files, submitted_link, submitted_note, submitted_at, score, remarks, evaluated_by, version, created_at, updated_at)
	VALUES (:applicant_id, :assignment_id, :stage, :submitted_files, :submitted_link, :submitted_note, :submitted_at, :score, :remarks, :evaluated_by, :version, :created_at, :updated_at)
	ON CONFLICT (applicant_id, assignment_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, newTrackRow(entry)); err != nil {
		return fmt.Errorf("append track entry: %w", err)
	}
	return nil
}

// Get fetches one entry. Missing entries yield sql.ErrNoRows.
func (r *TrackRepository) Get(ctx context.Context, applicantID, assignmentID string) (*models.TrackEntry, error) {
	query := `SELECT ` + trackColumns + ` FROM assignment_tracks WHERE applicant_id = $1 AND assignment_id = $2`
	var row trackRow
	if err := r.db.GetContext(ctx, &row, query, applicantID, assignmentID); err != nil {
		return nil, err
	}
	entry := row.toModel()
	return &entry, nil
}

// ListByApplicant returns every entry owned by the applicant, oldest first.
func (r *TrackRepository) ListByApplicant(ctx context.Context, applicantID string) ([]models.TrackEntry, error) {
	query := `SELECT ` + trackColumns + ` FROM assignment_tracks WHERE applicant_id = $1 ORDER BY created_at ASC, assignment_id ASC`
	return r.list(ctx, query, applicantID)
}

// ListByAssignment returns every entry fanned out for the assignment.
func (r *TrackRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.TrackEntry, error) {
	query := `SELECT ` + trackColumns + ` FROM assignment_tracks WHERE assignment_id = $1 ORDER BY applicant_id ASC`
	return r.list(ctx, query, assignmentID)
}

func (r *TrackRepository) list(ctx context.Context, query string, arg string) ([]models.TrackEntry, error) {
	var rows []trackRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, fmt.Errorf("list track entries: %w", err)
	}
	entries := make([]models.TrackEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toModel())
	}
	return entries, nil
}

// Update writes entry back only if the stored version still equals entry.Version.
// On success entry.Version is advanced to the persisted value.
func (r *TrackRepository) Update(ctx context.Context, entry *models.TrackEntry) error {
	const query = `UPDATE assignment_tracks SET
	stage = :stage, submitted_files = :submitted_files, submitted_link = :submitted_link, submitted_note = :submitted_note,
	submitted_at = :submitted_at, score = :score, remarks = :remarks, evaluated_by = :evaluated_by,
	version = version + 1, updated_at = :updated_at
	WHERE applicant_id = :applicant_id AND assignment_id = :assignment_id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, newTrackRow(entry))
	if err != nil {
		return fmt.Errorf("update track entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update track entry rows affected: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	entry.Version++
	return nil
}
