package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/assignment-tracker-api/pkg/jobs"
)

// NotificationKind names a lifecycle event worth telling someone about.
type NotificationKind string

const (
	NotifyAssignmentScheduled NotificationKind = "assignment.scheduled"
	NotifyPartialFanout       NotificationKind = "assignment.partial_fanout"
	NotifyAccepted            NotificationKind = "track.accepted"
	NotifySubmitted           NotificationKind = "track.submitted"
	NotifyGraded              NotificationKind = "track.graded"
)

// Notification is the payload handed to the sink and published as JSON.
type Notification struct {
	Kind         NotificationKind `json:"kind"`
	Message      string           `json:"message"`
	AssignmentID string           `json:"assignmentId,omitempty"`
	ApplicantID  string           `json:"applicantId,omitempty"`
	ActorID      string           `json:"actorId,omitempty"`
	Late         bool             `json:"late,omitempty"`
	OccurredAt   time.Time        `json:"occurredAt"`
}

// Notifier is a fire-and-forget sink. Implementations must never block or fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type notificationPublisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// NotificationService queues notifications and publishes them from background workers.
type NotificationService struct {
	queue     *jobs.Queue
	publisher notificationPublisher
	channel   string
	enabled   bool
	metrics   *MetricsService
	logger    *zap.Logger
}

// NotificationConfig groups the sink settings.
type NotificationConfig struct {
	Enabled bool
	Channel string
	Workers int
	Retries int
}

// NewNotificationService builds the sink. Call Start before use and Stop on shutdown.
func NewNotificationService(publisher notificationPublisher, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		publisher: publisher,
		channel:   cfg.Channel,
		enabled:   cfg.Enabled,
		metrics:   metrics,
		logger:    logger,
	}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains pending notifications until ctx expires.
func (s *NotificationService) Stop(ctx context.Context) error {
	return s.queue.Stop(ctx)
}

// Notify enqueues n. Overflow and shutdown drop the notification with a warning.
func (s *NotificationService) Notify(_ context.Context, n Notification) {
	if s == nil {
		return
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now().UTC()
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Kind: string(n.Kind), Payload: n}); err != nil {
		s.metrics.RecordNotification(string(n.Kind), "dropped")
		s.logger.Warn("notification dropped", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(Notification)
	if !ok {
		return nil
	}
	s.logger.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("assignment_id", n.AssignmentID),
		zap.String("applicant_id", n.ApplicantID),
		zap.Bool("late", n.Late),
		zap.String("message", n.Message),
	)
	if !s.enabled || s.publisher == nil {
		s.metrics.RecordNotification(string(n.Kind), "logged")
		return nil
	}
	if err := s.publisher.Publish(ctx, s.channel, n); err != nil {
		s.metrics.RecordNotification(string(n.Kind), OutcomeError)
		return err
	}
	s.metrics.RecordNotification(string(n.Kind), "published")
	return nil
}
