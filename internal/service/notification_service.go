package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/notify"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

func newBusEvent(eventType events.EventType, issueID string, payload any) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		IssueID:   issueID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// NotificationService turns supervision events into outbound
// notifications. It listens on the bus so producers never wait on
// delivery.
type NotificationService struct {
	issueEvents repository.IssueEventRepository
	notifier    notify.Notifier
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewNotificationService instantiates the service.
func NewNotificationService(
	issueEvents repository.IssueEventRepository,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		issueEvents: issueEvents,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
	}
}

// Register wires the service's handlers onto the bus.
func (s *NotificationService) Register(bus events.Bus) {
	bus.Subscribe(events.EventSLAWarning, s.onSLAWarning)
	bus.Subscribe(events.EventIssueEscalated, s.onEscalated)
	bus.Subscribe(events.EventIssueResolved, s.onResolved)
}

func (s *NotificationService) onSLAWarning(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAWarningPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	if payload.AssignedEmail == nil {
		s.logger.Info("sla warning without an assignee, skipping notification",
			zap.String("issue_id", event.IssueID),
			zap.String("warning_level", payload.WarningLevel))
		return nil
	}
	return s.send(ctx, notify.Message{
		Kind:    "sla_warning",
		IssueID: event.IssueID,
		Subject: fmt.Sprintf("SLA %s: issue %s", payload.WarningLevel, event.IssueID),
		Body: fmt.Sprintf("Issue %s has %.1f hours left on its SLA (%s).",
			event.IssueID, payload.HoursRemaining, payload.WarningLevel),
		Recipients: []string{*payload.AssignedEmail},
	})
}

func (s *NotificationService) onEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueEscalatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	if len(payload.Notified) == 0 {
		s.logger.Warn("escalation with no notification targets",
			zap.String("issue_id", event.IssueID))
		return nil
	}
	return s.send(ctx, notify.Message{
		Kind:    "escalation",
		IssueID: event.IssueID,
		Subject: fmt.Sprintf("Issue %s escalated to level %d", event.IssueID, payload.ToLevel),
		Body: fmt.Sprintf("Issue %s escalated from level %d to %d: %s",
			event.IssueID, payload.FromLevel, payload.ToLevel, payload.Reason),
		Recipients: payload.Notified,
	})
}

func (s *NotificationService) onResolved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueResolvedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	// Reporters are anonymous device identities without a channel of
	// their own, so resolution lands in the log/webhook stream only.
	return s.send(ctx, notify.Message{
		Kind:    "resolution",
		IssueID: event.IssueID,
		Subject: fmt.Sprintf("Issue %s resolved", event.IssueID),
		Body:    fmt.Sprintf("Issue %s was resolved by %s.", event.IssueID, payload.ResolvedBy),
	})
}

func (s *NotificationService) send(ctx context.Context, msg notify.Message) error {
	if err := s.notifier.Send(ctx, msg); err != nil {
		return err
	}
	s.metrics.RecordNotification()
	if err := s.issueEvents.Create(ctx, &domain.IssueEvent{
		IssueID:   msg.IssueID,
		EventType: string(events.EventNotificationSent),
		AgentName: "notification_agent",
		Data: map[string]any{
			"kind":       msg.Kind,
			"subject":    msg.Subject,
			"recipients": msg.Recipients,
		},
	}); err != nil {
		s.logger.Warn("failed to record notification timeline entry",
			zap.String("issue_id", msg.IssueID), zap.Error(err))
	}
	return nil
}
