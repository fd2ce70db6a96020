package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

const applicantColumns = `id, name, email, group_tags, subjects, created_at`

type applicantRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Email     string         `db:"email"`
	GroupTags pq.StringArray `db:"group_tags"`
	Subjects  pq.StringArray `db:"subjects"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r applicantRow) toModel() models.Applicant {
	return models.Applicant{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		GroupTags: nonNil(r.GroupTags),
		Subjects:  nonNil(r.Subjects),
		CreatedAt: r.CreatedAt,
	}
}

// ApplicantRepository reads the applicant directory from Postgres.
type ApplicantRepository struct {
	db *sqlx.DB
}

// NewApplicantRepository constructs the repository.
func NewApplicantRepository(db *sqlx.DB) *ApplicantRepository {
	return &ApplicantRepository{db: db}
}

// GetByID fetches one applicant. Missing applicants yield sql.ErrNoRows.
func (r *ApplicantRepository) GetByID(ctx context.Context, id string) (*models.Applicant, error) {
	query := `SELECT ` + applicantColumns + ` FROM applicants WHERE id = $1`
	var row applicantRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	applicant := row.toModel()
	return &applicant, nil
}

// ListByGroupTag returns every applicant whose group tags contain tag exactly.
func (r *ApplicantRepository) ListByGroupTag(ctx context.Context, tag string) ([]models.Applicant, error) {
	query := `SELECT ` + applicantColumns + ` FROM applicants WHERE $1 = ANY(group_tags) ORDER BY id ASC`
	var rows []applicantRow
	if err := r.db.SelectContext(ctx, &rows, query, tag); err != nil {
		return nil, fmt.Errorf("list applicants by group tag: %w", err)
	}
	return toApplicants(rows), nil
}

// ListByIDs fetches the named applicants; unknown ids are skipped.
func (r *ApplicantRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Applicant, error) {
	if len(ids) == 0 {
		return []models.Applicant{}, nil
	}
	query := `SELECT ` + applicantColumns + ` FROM applicants WHERE id = ANY($1) ORDER BY id ASC`
	var rows []applicantRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list applicants by ids: %w", err)
	}
	return toApplicants(rows), nil
}

func toApplicants(rows []applicantRow) []models.Applicant {
	out := make([]models.Applicant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}
