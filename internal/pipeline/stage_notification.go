package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/notify"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

// notificationStage tells the assigned member and the owning
// department about the new assignment. Delivery is best effort and
// never fails the run.
type notificationStage struct {
	members     repository.MemberRepository
	departments repository.DepartmentRepository
	issueEvents repository.IssueEventRepository
	bus         events.Bus
	notifier    notify.Notifier
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewNotificationStage instantiates the stage.
func NewNotificationStage(
	members repository.MemberRepository,
	departments repository.DepartmentRepository,
	issueEvents repository.IssueEventRepository,
	bus events.Bus,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
) Stage {
	return &notificationStage{
		members:     members,
		departments: departments,
		issueEvents: issueEvents,
		bus:         bus,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
	}
}

func (s *notificationStage) Name() string { return StageNotification }

func (s *notificationStage) Execute(ctx context.Context, ic *IssueContext) (Outcome, error) {
	issue := ic.Issue
	recipients := []string{}

	if issue.AssignedMemberID != nil {
		member, err := s.members.GetByID(ctx, *issue.AssignedMemberID)
		if err != nil {
			s.logger.Warn("failed to load assigned member for notification",
				zap.String("issue_id", issue.ID), zap.Error(err))
		} else {
			recipients = append(recipients, member.Email)
		}
	}
	if issue.DepartmentID != nil {
		department, err := s.departments.GetByID(ctx, *issue.DepartmentID)
		if err != nil {
			s.logger.Warn("failed to load department for notification",
				zap.String("issue_id", issue.ID), zap.Error(err))
		} else if department.EscalationEmail != nil && issue.AssignedMemberID == nil {
			// Nobody took the issue; the department inbox has to.
			recipients = append(recipients, *department.EscalationEmail)
		}
	}

	if len(recipients) == 0 {
		return Outcome{
			Decision:  "skipped",
			Reasoning: "no reachable recipient for this assignment",
			Result:    map[string]any{"recipients": 0},
		}, nil
	}

	subject := fmt.Sprintf("New issue assigned: %s", issue.ID)
	body := fmt.Sprintf("Issue %s (%s) was assigned with a %dh SLA.",
		issue.ID, categoryOrEmpty(issue), issue.SLAHours)
	msg := notify.Message{
		Kind:       "assignment",
		IssueID:    issue.ID,
		Subject:    subject,
		Body:       body,
		Recipients: recipients,
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("assignment notification failed",
			zap.String("issue_id", issue.ID), zap.Error(err))
		return Outcome{
			Decision:  "failed",
			Reasoning: "notification channel rejected the message",
			Result:    map[string]any{"recipients": len(recipients)},
		}, nil
	}

	s.metrics.RecordNotification()
	_ = s.bus.Publish(ctx, newEvent(events.EventNotificationSent, issue.ID, events.NotificationSentPayload{
		Kind:       msg.Kind,
		Recipients: recipients,
		Subject:    subject,
	}))
	recordAudit(ctx, s.issueEvents, s.logger, issue.ID, string(events.EventNotificationSent), s.Name(), map[string]any{
		"kind":       msg.Kind,
		"recipients": recipients,
	})

	return Outcome{
		Decision:  "sent",
		Reasoning: "assignment notification delivered",
		Result:    map[string]any{"recipients": len(recipients)},
	}, nil
}
