package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
)

const assignmentColumns = `id, title, subject, note, link, attachments, start_date, end_date, is_group, group_tag,
       assigned_to, created_by, created_at`

type assignmentRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Subject     models.Subject `db:"subject"`
	Note        string         `db:"note"`
	Link        string         `db:"link"`
	Attachments pq.StringArray `db:"attachments"`
	StartDate   time.Time      `db:"start_date"`
	EndDate     time.Time      `db:"end_date"`
	Group       bool           `db:"is_group"`
	GroupTag    *string        `db:"group_tag"`
	AssignedTo  pq.StringArray `db:"assigned_to"`
	CreatedBy   string         `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r assignmentRow) toModel() models.Assignment {
	return models.Assignment{
		ID:          r.ID,
		Title:       r.Title,
		Subject:     r.Subject,
		Note:        r.Note,
		Link:        r.Link,
		Attachments: nonNil(r.Attachments),
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Group:       r.Group,
		GroupTag:    r.GroupTag,
		AssignedTo:  nonNil(r.AssignedTo),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// AssignmentRepository persists assignment definitions in Postgres.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a definition, generating its identifier when absent.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignments
	(id, title, subject, note, link, attachments, start_date, end_date, is_group, group_tag, assigned_to, created_by, created_at)
	VALUES (:id, :title, :subject, :note, :link, :attachments, :start_date, :end_date, :is_group, :group_tag, :assigned_to, :created_by, :created_at)`
	row := assignmentRow{
		ID:          assignment.ID,
		Title:       assignment.Title,
		Subject:     assignment.Subject,
		Note:        assignment.Note,
		Link:        assignment.Link,
		Attachments: pq.StringArray(nonNil(assignment.Attachments)),
		StartDate:   assignment.StartDate,
		EndDate:     assignment.EndDate,
		Group:       assignment.Group,
		GroupTag:    assignment.GroupTag,
		AssignedTo:  pq.StringArray(nonNil(assignment.AssignedTo)),
		CreatedBy:   assignment.CreatedBy,
		CreatedAt:   assignment.CreatedAt,
	}
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// GetByID fetches a definition. Missing definitions yield sql.ErrNoRows.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	var row assignmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	assignment := row.toModel()
	return &assignment, nil
}

// ListByIDs fetches several definitions at once; unknown ids are skipped.
func (r *AssignmentRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Assignment, error) {
	if len(ids) == 0 {
		return []models.Assignment{}, nil
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = ANY($1)`
	var rows []assignmentRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list assignments by ids: %w", err)
	}
	return toAssignments(rows), nil
}

// List returns definitions newest first alongside the total matching count.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	filter.Normalize()
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM assignments"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM assignments%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		assignmentColumns, where, filter.PageSize, filter.Offset())
	var rows []assignmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}
	return toAssignments(rows), total, nil
}

func toAssignments(rows []assignmentRow) []models.Assignment {
	out := make([]models.Assignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}
