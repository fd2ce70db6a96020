package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
	"github.com/noah-isme/assignment-tracker-api/pkg/middleware/requestid"
)

const defaultFanoutConcurrency = 8

type assignmentStore interface {
	assignmentReader
	Create(ctx context.Context, assignment *models.Assignment) error
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
}

type entryWriter interface {
	Append(ctx context.Context, entry *models.TrackEntry) error
	Get(ctx context.Context, applicantID, assignmentID string) (*models.TrackEntry, error)
}

// PartialFanoutError reports a created assignment whose fan-out missed some applicants.
// The definition and every successful entry stay committed.
type PartialFanoutError struct {
	Result *dto.CreateAssignmentResult
}

func (e *PartialFanoutError) Error() string {
	return fmt.Sprintf("assignment %s created but %d applicant(s) could not be assigned: %s",
		e.Result.Assignment.ID, len(e.Result.FailedApplicants), strings.Join(e.Result.FailedApplicants, ","))
}

// Unwrap exposes the PARTIAL_FANOUT application error.
func (e *PartialFanoutError) Unwrap() error {
	return appErrors.Clone(appErrors.ErrPartialFanout, "")
}

// AssignmentService creates definitions and fans out one entry per target applicant.
type AssignmentService struct {
	assignments assignmentStore
	tracks      entryWriter
	applicants  applicantDirectory
	definitions definitionLoader
	validator   *validator.Validate
	notifier    Notifier
	metrics     *MetricsService
	logger      *zap.Logger
	clock       func() time.Time
	concurrency int
}

// AssignmentServiceOption configures the service.
type AssignmentServiceOption func(*AssignmentService)

// WithAssignmentClock overrides the time source.
func WithAssignmentClock(clock func() time.Time) AssignmentServiceOption {
	return func(s *AssignmentService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithAssignmentNotifier sets the notification sink.
func WithAssignmentNotifier(n Notifier) AssignmentServiceOption {
	return func(s *AssignmentService) { s.notifier = n }
}

// WithAssignmentMetrics records fan-out counters and store latency.
func WithAssignmentMetrics(m *MetricsService) AssignmentServiceOption {
	return func(s *AssignmentService) {
		s.metrics = m
		s.definitions.guard.metrics = m
	}
}

// WithAssignmentCache caches definitions on read and after creation.
func WithAssignmentCache(c *CacheService) AssignmentServiceOption {
	return func(s *AssignmentService) { s.definitions.cache = c }
}

// WithAssignmentStoreTimeout bounds every store call.
func WithAssignmentStoreTimeout(d time.Duration) AssignmentServiceOption {
	return func(s *AssignmentService) { s.definitions.guard.timeout = d }
}

// WithFanoutConcurrency caps concurrent per-applicant appends.
func WithFanoutConcurrency(n int) AssignmentServiceOption {
	return func(s *AssignmentService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewAssignmentService constructs the creation service.
func NewAssignmentService(assignments assignmentStore, tracks entryWriter, applicants applicantDirectory, validate *validator.Validate, logger *zap.Logger, opts ...AssignmentServiceOption) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AssignmentService{
		assignments: assignments,
		tracks:      tracks,
		applicants:  applicants,
		definitions: definitionLoader{store: assignments},
		validator:   validate,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
		concurrency: defaultFanoutConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CreateAssignment validates the request, persists the definition and appends an initial entry
// for every resolved applicant. Validation failures write nothing. Failed appends are reported
// through *PartialFanoutError alongside the committed result.
func (s *AssignmentService) CreateAssignment(ctx context.Context, actor *models.JWTClaims, req dto.CreateAssignmentRequest) (*dto.CreateAssignmentResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can create assignments")
	}

	now := s.clock()
	assignment, err := s.buildDefinition(req, actor.UserID, now)
	if err != nil {
		return nil, err
	}

	// Group resolution happens before the definition write so an empty group writes nothing.
	targets := assignment.AssignedTo
	if assignment.Group {
		targets, err = s.resolveGroup(ctx, *assignment.GroupTag)
		if err != nil {
			return nil, err
		}
	}

	err = s.definitions.guard.call(ctx, "assignment.create", func(ctx context.Context) error {
		return s.assignments.Create(ctx, assignment)
	})
	if err != nil {
		return nil, storeFailure(err, "failed to create assignment")
	}
	s.definitions.cache.Set(ctx, definitionCacheKey(assignment.ID), assignment, 0)

	assigned, failed := s.fanOut(ctx, assignment.ID, targets, now)
	s.metrics.RecordFanout(len(assigned), len(failed))

	result := &dto.CreateAssignmentResult{
		Assignment:         assignment,
		AssignedApplicants: assigned,
		FailedApplicants:   failed,
	}
	s.logger.Info("assignment created",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("assignment_id", assignment.ID),
		zap.String("created_by", actor.UserID),
		zap.Bool("group", assignment.Group),
		zap.Int("assigned", len(assigned)),
		zap.Int("failed", len(failed)),
	)

	if len(failed) > 0 {
		s.notify(ctx, Notification{
			Kind:         NotifyPartialFanout,
			Message:      fmt.Sprintf("Assignment %q could not be assigned to %d applicant(s)", assignment.Title, len(failed)),
			AssignmentID: assignment.ID,
			ActorID:      actor.UserID,
		})
		return result, &PartialFanoutError{Result: result}
	}
	s.notify(ctx, Notification{
		Kind:         NotifyAssignmentScheduled,
		Message:      fmt.Sprintf("Assignment %q scheduled for %d applicant(s)", assignment.Title, len(assigned)),
		AssignmentID: assignment.ID,
		ActorID:      actor.UserID,
	})
	return result, nil
}

// buildDefinition applies the ordered creation rules and reports the first violation.
func (s *AssignmentService) buildDefinition(req dto.CreateAssignmentRequest, createdBy string, now time.Time) (*models.Assignment, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject is required")
	}
	subject, ok := models.ParseSubject(req.Subject)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject must be one of: %s", subjectList()))
	}

	var groupTag *string
	applicantIDs := []string{}
	if req.Group {
		tag := strings.TrimSpace(req.GroupTag)
		if tag == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "group tag is required for group assignments")
		}
		groupTag = &tag
	} else {
		applicantIDs = dedupe(req.ApplicantIDs)
		if len(applicantIDs) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "at least one applicant must be selected")
		}
	}

	if req.EndDate == nil || req.EndDate.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date is required")
	}
	start := now
	if req.StartDate != nil && !req.StartDate.IsZero() {
		start = req.StartDate.UTC()
	}
	end := req.EndDate.UTC()
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	attachments := make([]string, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		if a = strings.TrimSpace(a); a != "" {
			attachments = append(attachments, a)
		}
	}

	return &models.Assignment{
		ID:          uuid.NewString(),
		Title:       title,
		Subject:     subject,
		Note:        req.Note,
		Link:        strings.TrimSpace(req.Link),
		Attachments: attachments,
		StartDate:   start,
		EndDate:     end,
		Group:       req.Group,
		GroupTag:    groupTag,
		AssignedTo:  applicantIDs,
		CreatedBy:   createdBy,
		CreatedAt:   now,
	}, nil
}

func (s *AssignmentService) resolveGroup(ctx context.Context, tag string) ([]string, error) {
	var members []models.Applicant
	err := s.definitions.guard.call(ctx, "applicant.list_by_group", func(ctx context.Context) error {
		var err error
		members, err = s.applicants.ListByGroupTag(ctx, tag)
		return err
	})
	if err != nil {
		return nil, storeFailure(err, "failed to resolve group members")
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.HasGroupTag(tag) {
			ids = append(ids, m.ID)
		}
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no applicants found in group %q", tag))
	}
	return ids, nil
}

// fanOut appends one initial entry per applicant. Appends are independent: a failure never
// cancels its siblings.
func (s *AssignmentService) fanOut(ctx context.Context, assignmentID string, applicantIDs []string, now time.Time) (assigned, failed []string) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	assigned = make([]string, 0, len(applicantIDs))
	failed = []string{}

	for _, applicantID := range applicantIDs {
		applicantID := applicantID
		g.Go(func() error {
			entry := models.NewTrackEntry(applicantID, assignmentID, now)
			err := s.definitions.guard.call(ctx, "track.append", func(ctx context.Context) error {
				return s.tracks.Append(ctx, entry)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("fan-out append failed",
					zap.String("assignment_id", assignmentID),
					zap.String("applicant_id", applicantID),
					zap.Error(err),
				)
				failed = append(failed, applicantID)
				return nil
			}
			assigned = append(assigned, applicantID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(assigned)
	sort.Strings(failed)
	return assigned, failed
}

// ListAssignments returns definitions newest first.
func (s *AssignmentService) ListAssignments(ctx context.Context, actor *models.JWTClaims, query dto.AssignmentQuery) ([]models.Assignment, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !actor.IsStaff() {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can list assignments")
	}
	filter := models.AssignmentFilter{Page: query.Page, PageSize: query.PageSize}
	if strings.TrimSpace(query.Subject) != "" {
		subject, ok := models.ParseSubject(query.Subject)
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject must be one of: %s", subjectList()))
		}
		filter.Subject = subject
	}
	filter.Normalize()

	var (
		items []models.Assignment
		total int
	)
	err := s.definitions.guard.call(ctx, "assignment.list", func(ctx context.Context) error {
		var err error
		items, total, err = s.assignments.List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, nil, storeFailure(err, "failed to list assignments")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// GetAssignment returns one definition.
func (s *AssignmentService) GetAssignment(ctx context.Context, actor *models.JWTClaims, id string) (*models.Assignment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	assignment, err := s.definitions.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsStaff() {
		return assignment, nil
	}
	// Applicants may read definitions they hold an entry for.
	err = s.definitions.guard.call(ctx, "track.get", func(ctx context.Context) error {
		_, err := s.tracks.Get(ctx, actor.UserID, id)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, storeFailure(err, "failed to load assignment entry")
	}
	return assignment, nil
}

func (s *AssignmentService) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	n.OccurredAt = s.clock()
	s.notifier.Notify(ctx, n)
}

func subjectList() string {
	names := make([]string, 0, len(models.Subjects))
	for _, subj := range models.Subjects {
		names = append(names, string(subj))
	}
	return strings.Join(names, ", ")
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
