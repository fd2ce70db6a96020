package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	"github.com/noah-isme/assignment-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
	"github.com/noah-isme/assignment-tracker-api/pkg/middleware/requestid"
)

const (
	eventAccept   = "accept"
	eventSubmit   = "submit"
	eventEvaluate = "evaluate"

	defaultTransitionAttempts = 3
	maxSubmissionNoteLength   = 2048
)

type trackStore interface {
	Append(ctx context.Context, entry *models.TrackEntry) error
	Get(ctx context.Context, applicantID, assignmentID string) (*models.TrackEntry, error)
	ListByApplicant(ctx context.Context, applicantID string) ([]models.TrackEntry, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.TrackEntry, error)
	Update(ctx context.Context, entry *models.TrackEntry) error
}

type applicantDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Applicant, error)
	ListByGroupTag(ctx context.Context, tag string) ([]models.Applicant, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Applicant, error)
}

// TrackService drives the per-applicant lifecycle: accept, submit, evaluate, and the projected reads.
type TrackService struct {
	tracks      trackStore
	definitions definitionLoader
	applicants  applicantDirectory
	validator   *validator.Validate
	notifier    Notifier
	metrics     *MetricsService
	logger      *zap.Logger
	clock       func() time.Time
	maxAttempts int
}

// TrackServiceOption configures the service.
type TrackServiceOption func(*TrackService)

// WithTrackClock overrides the time source.
func WithTrackClock(clock func() time.Time) TrackServiceOption {
	return func(s *TrackService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTrackNotifier sets the notification sink.
func WithTrackNotifier(n Notifier) TrackServiceOption {
	return func(s *TrackService) { s.notifier = n }
}

// WithTrackMetrics records transition counters and store latency.
func WithTrackMetrics(m *MetricsService) TrackServiceOption {
	return func(s *TrackService) {
		s.metrics = m
		s.definitions.guard.metrics = m
	}
}

// WithTrackCache reads definitions through the cache.
func WithTrackCache(c *CacheService) TrackServiceOption {
	return func(s *TrackService) { s.definitions.cache = c }
}

// WithTrackStoreTimeout bounds every store call.
func WithTrackStoreTimeout(d time.Duration) TrackServiceOption {
	return func(s *TrackService) { s.definitions.guard.timeout = d }
}

// WithTrackMaxAttempts sets how many times a transition re-reads after a version conflict.
func WithTrackMaxAttempts(n int) TrackServiceOption {
	return func(s *TrackService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewTrackService constructs the lifecycle service.
func NewTrackService(tracks trackStore, assignments assignmentReader, applicants applicantDirectory, validate *validator.Validate, logger *zap.Logger, opts ...TrackServiceOption) *TrackService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TrackService{
		tracks:      tracks,
		definitions: definitionLoader{store: assignments},
		applicants:  applicants,
		validator:   validate,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultTransitionAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Accept moves a NotStarted entry to InProgress. Accepting twice is rejected with INVALID_STATE and changes nothing.
func (s *TrackService) Accept(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string) (*dto.AssignmentProgress, error) {
	if err := s.authorizeActFor(actor, applicantID); err != nil {
		return nil, err
	}
	entry, err := s.transition(ctx, eventAccept, applicantID, assignmentID, func(e *models.TrackEntry, _ time.Time) error {
		if e.Stage.Accepted() {
			return appErrors.Clone(appErrors.ErrInvalidState, "assignment already accepted")
		}
		e.Stage = models.StageInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	progress, err := s.present(ctx, entry)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Notification{
		Kind:         NotifyAccepted,
		Message:      fmt.Sprintf("Assignment %q accepted", progress.Assignment.Title),
		AssignmentID: assignmentID,
		ApplicantID:  applicantID,
		ActorID:      actor.UserID,
	})
	return progress, nil
}

// Submit records the applicant's work and freezes it. The entry must be InProgress; resubmission is rejected.
func (s *TrackService) Submit(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string, req dto.SubmitAssignmentRequest) (*dto.AssignmentProgress, error) {
	if err := s.authorizeActFor(actor, applicantID); err != nil {
		return nil, err
	}
	files := req.Files()
	link := strings.TrimSpace(req.Link)
	if len(files) == 0 && link == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a file url or a link is required")
	}
	if len([]rune(req.Note)) > maxSubmissionNoteLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("note must be at most %d characters", maxSubmissionNoteLength))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	entry, err := s.transition(ctx, eventSubmit, applicantID, assignmentID, func(e *models.TrackEntry, now time.Time) error {
		switch {
		case !e.Stage.Accepted():
			return appErrors.Clone(appErrors.ErrInvalidState, "assignment must be accepted before submitting")
		case e.Stage.Submitted():
			return appErrors.Clone(appErrors.ErrInvalidState, "assignment already submitted")
		}
		submittedAt := now
		e.Stage = models.StageSubmitted
		e.SubmittedFiles = files
		e.SubmittedLink = link
		e.SubmittedNote = req.Note
		e.SubmittedAt = &submittedAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	progress, err := s.present(ctx, entry)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Notification{
		Kind:         NotifySubmitted,
		Message:      fmt.Sprintf("Assignment %q submitted", progress.Assignment.Title),
		AssignmentID: assignmentID,
		ApplicantID:  applicantID,
		ActorID:      actor.UserID,
		Late:         progress.Status.Late,
	})
	return progress, nil
}

// Evaluate grades a submitted entry. Re-grading a Graded entry overwrites score and remarks.
func (s *TrackService) Evaluate(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string, req dto.EvaluateAssignmentRequest) (*dto.AssignmentProgress, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can evaluate assignments")
	}
	if req.Score == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score is required")
	}
	score := *req.Score
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score must be a finite number")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	evaluator := actor.UserID
	entry, err := s.transition(ctx, eventEvaluate, applicantID, assignmentID, func(e *models.TrackEntry, _ time.Time) error {
		if !e.Stage.Submitted() {
			return appErrors.Clone(appErrors.ErrInvalidState, "assignment has not been submitted")
		}
		e.Stage = models.StageGraded
		e.Score = &score
		e.Remarks = req.Remarks
		e.EvaluatedBy = &evaluator
		return nil
	})
	if err != nil {
		return nil, err
	}

	progress, err := s.present(ctx, entry)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, Notification{
		Kind:         NotifyGraded,
		Message:      fmt.Sprintf("Assignment %q graded: %g", progress.Assignment.Title, score),
		AssignmentID: assignmentID,
		ApplicantID:  applicantID,
		ActorID:      actor.UserID,
	})
	return progress, nil
}

// transition runs read, guard, and version-checked write, re-reading on stale versions.
// mutate works on a copy so a rejected guard leaves nothing half-applied.
func (s *TrackService) transition(ctx context.Context, event, applicantID, assignmentID string, mutate func(*models.TrackEntry, time.Time) error) (*models.TrackEntry, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		current, err := s.loadEntry(ctx, applicantID, assignmentID)
		if err != nil {
			s.metrics.RecordTransition(event, outcomeFor(err))
			return nil, err
		}

		next := current.Clone()
		now := s.clock()
		if err := mutate(next, now); err != nil {
			s.metrics.RecordTransition(event, OutcomeRejected)
			s.logger.Warn("transition rejected",
				zap.String("event", event),
				zap.String("applicant_id", applicantID),
				zap.String("assignment_id", assignmentID),
				zap.String("stage", string(current.Stage)),
				zap.Error(err),
			)
			return nil, err
		}
		next.UpdatedAt = now

		err = s.definitions.guard.call(ctx, "track.update", func(ctx context.Context) error {
			return s.tracks.Update(ctx, next)
		})
		if err == nil {
			s.metrics.RecordTransition(event, OutcomeSuccess)
			s.logger.Info("transition applied",
				zap.String("request_id", requestid.FromContext(ctx)),
				zap.String("event", event),
				zap.String("applicant_id", applicantID),
				zap.String("assignment_id", assignmentID),
				zap.String("from", string(current.Stage)),
				zap.String("to", string(next.Stage)),
			)
			return next, nil
		}
		if !errors.Is(err, repository.ErrStaleVersion) {
			s.metrics.RecordTransition(event, OutcomeError)
			return nil, storeFailure(err, "failed to update assignment entry")
		}
		s.logger.Debug("stale entry version, retrying",
			zap.String("event", event), zap.String("applicant_id", applicantID),
			zap.String("assignment_id", assignmentID), zap.Int("attempt", attempt))
	}
	s.metrics.RecordTransition(event, OutcomeConflict)
	return nil, appErrors.Clone(appErrors.ErrConflict, "assignment entry was modified concurrently, please retry")
}

func outcomeFor(err error) string {
	if errors.Is(err, appErrors.ErrNotFound) {
		return OutcomeRejected
	}
	return OutcomeError
}

func (s *TrackService) loadEntry(ctx context.Context, applicantID, assignmentID string) (*models.TrackEntry, error) {
	var entry *models.TrackEntry
	err := s.definitions.guard.call(ctx, "track.get", func(ctx context.Context) error {
		var err error
		entry, err = s.tracks.Get(ctx, applicantID, assignmentID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment entry not found")
		}
		return nil, storeFailure(err, "failed to load assignment entry")
	}
	return entry, nil
}

func (s *TrackService) present(ctx context.Context, entry *models.TrackEntry) (*dto.AssignmentProgress, error) {
	assignment, err := s.definitions.get(ctx, entry.AssignmentID)
	if err != nil {
		return nil, err
	}
	return &dto.AssignmentProgress{
		Assignment: *assignment,
		Entry:      *entry,
		Status:     Project(entry, assignment, s.clock()),
	}, nil
}

// ApplicantDashboard lists every entry of the applicant joined to its definition, soonest due first.
func (s *TrackService) ApplicantDashboard(ctx context.Context, actor *models.JWTClaims, applicantID string) ([]dto.AssignmentProgress, error) {
	if err := s.authorizeView(actor, applicantID); err != nil {
		return nil, err
	}

	var entries []models.TrackEntry
	err := s.definitions.guard.call(ctx, "track.list_by_applicant", func(ctx context.Context) error {
		var err error
		entries, err = s.tracks.ListByApplicant(ctx, applicantID)
		return err
	})
	if err != nil {
		return nil, storeFailure(err, "failed to list assignment entries")
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.AssignmentID)
	}
	defs, err := s.definitions.many(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	out := make([]dto.AssignmentProgress, 0, len(entries))
	for i := range entries {
		def, ok := defs[entries[i].AssignmentID]
		if !ok {
			s.logger.Warn("entry references missing assignment",
				zap.String("applicant_id", applicantID), zap.String("assignment_id", entries[i].AssignmentID))
			continue
		}
		out = append(out, dto.AssignmentProgress{
			Assignment: def,
			Entry:      entries[i],
			Status:     Project(&entries[i], &def, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Assignment.EndDate.Before(out[j].Assignment.EndDate)
	})
	return out, nil
}

// EntryDetail returns one projected entry.
func (s *TrackService) EntryDetail(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string) (*dto.AssignmentProgress, error) {
	if err := s.authorizeView(actor, applicantID); err != nil {
		return nil, err
	}
	entry, err := s.loadEntry(ctx, applicantID, assignmentID)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, entry)
}

// AssignmentRoster lists every entry of one assignment with applicant details for grading.
func (s *TrackService) AssignmentRoster(ctx context.Context, actor *models.JWTClaims, assignmentID string) (*models.Assignment, []dto.RosterItem, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !actor.IsStaff() {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can view the roster")
	}
	assignment, err := s.definitions.get(ctx, assignmentID)
	if err != nil {
		return nil, nil, err
	}

	var entries []models.TrackEntry
	err = s.definitions.guard.call(ctx, "track.list_by_assignment", func(ctx context.Context) error {
		var err error
		entries, err = s.tracks.ListByAssignment(ctx, assignmentID)
		return err
	})
	if err != nil {
		return nil, nil, storeFailure(err, "failed to list assignment entries")
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ApplicantID)
	}
	var applicants []models.Applicant
	err = s.definitions.guard.call(ctx, "applicant.list_by_ids", func(ctx context.Context) error {
		var err error
		applicants, err = s.applicants.ListByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return nil, nil, storeFailure(err, "failed to load applicants")
	}
	byID := make(map[string]models.Applicant, len(applicants))
	for _, a := range applicants {
		byID[a.ID] = a
	}

	now := s.clock()
	items := make([]dto.RosterItem, 0, len(entries))
	for i := range entries {
		applicant := byID[entries[i].ApplicantID]
		items = append(items, dto.RosterItem{
			ApplicantID:    entries[i].ApplicantID,
			ApplicantName:  applicant.Name,
			ApplicantEmail: applicant.Email,
			Entry:          entries[i],
			Status:         Project(&entries[i], assignment, now),
		})
	}
	return assignment, items, nil
}

func (s *TrackService) authorizeActFor(actor *models.JWTClaims, applicantID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.CanActFor(applicantID) {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot act on another applicant's assignment")
	}
	return nil
}

func (s *TrackService) authorizeView(actor *models.JWTClaims, applicantID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.CanView(applicantID) {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot view another applicant's assignments")
	}
	return nil
}

func (s *TrackService) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	n.OccurredAt = s.clock()
	s.notifier.Notify(ctx, n)
}
