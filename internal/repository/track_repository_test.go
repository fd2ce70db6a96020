package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var trackRowColumns = []string{"applicant_id", "assignment_id", "stage", "submitted_files", "submitted_link", "submitted_note",
	"submitted_at", "score", "remarks", "evaluated_by", "version", "created_at", "updated_at"}

func TestTrackRepositoryAppendDefaultsVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTrackRepository(db)
	mock.ExpectExec("(?s)" + regexp.QuoteMeta("INSERT INTO assignment_tracks") + ".*ON CONFLICT \\(applicant_id, assignment_id\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	entry := &models.TrackEntry{ApplicantID: "A1", AssignmentID: "asg-1", Stage: models.StageNotStarted}
	require.NoError(t, repo.Append(context.Background(), entry))
	assert.Equal(t, int64(1), entry.Version)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTrackRepository(db)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM assignment_tracks WHERE applicant_id = $1 AND assignment_id = $2")).
		WithArgs("A1", "asg-1").
		WillReturnRows(sqlmock.NewRows(trackRowColumns).
			AddRow("A1", "asg-1", "SUBMITTED", "{https://files.test/a.pdf}", "", "done", now, nil, "", nil, 3, now, now))

	entry, err := repo.Get(context.Background(), "A1", "asg-1")
	require.NoError(t, err)
	assert.Equal(t, models.StageSubmitted, entry.Stage)
	assert.Equal(t, []string{"https://files.test/a.pdf"}, entry.SubmittedFiles)
	assert.Equal(t, int64(3), entry.Version)
	assert.Nil(t, entry.Score)

	mock.ExpectQuery(regexp.QuoteMeta("FROM assignment_tracks WHERE applicant_id = $1")).
		WithArgs("A9", "asg-1").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "A9", "asg-1")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackRepositoryListByAssignment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTrackRepository(db)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE assignment_id = $1 ORDER BY applicant_id ASC")).
		WithArgs("asg-1").
		WillReturnRows(sqlmock.NewRows(trackRowColumns).
			AddRow("A1", "asg-1", "NOT_STARTED", "{}", "", "", nil, nil, "", nil, 1, now, now).
			AddRow("A2", "asg-1", "IN_PROGRESS", nil, "", "", nil, nil, "", nil, 2, now, now))

	entries, err := repo.ListByAssignment(context.Background(), "asg-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{}, entries[0].SubmittedFiles)
	assert.Equal(t, []string{}, entries[1].SubmittedFiles)
	assert.Equal(t, models.StageInProgress, entries[1].Stage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackRepositoryUpdateVersionGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTrackRepository(db)
	entry := &models.TrackEntry{ApplicantID: "A1", AssignmentID: "asg-1", Stage: models.StageInProgress, Version: 1}

	mock.ExpectExec("(?s)" + regexp.QuoteMeta("UPDATE assignment_tracks SET") + ".*version = version \\+ 1.*AND version = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), entry))
	assert.Equal(t, int64(2), entry.Version)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignment_tracks SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(context.Background(), entry)
	assert.True(t, errors.Is(err, ErrStaleVersion))
	assert.Equal(t, int64(2), entry.Version)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignment_tracks SET")).
		WillReturnError(errors.New("connection reset"))
	err = repo.Update(context.Background(), entry)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStaleVersion))
	require.NoError(t, mock.ExpectationsWereMet())
}
