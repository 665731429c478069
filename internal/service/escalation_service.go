package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/oracle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

const escalatedBySupervisor = "sla_supervisor"

// EscalationService decides when an issue's handling must be raised to
// a higher level. Levels only move up; every decision leaves an
// append-only audit row.
type EscalationService struct {
	issues      repository.IssueRepository
	members     repository.MemberRepository
	departments repository.DepartmentRepository
	escalations repository.EscalationRepository
	issueEvents repository.IssueEventRepository
	oracle      oracle.Oracle
	bus         events.Bus
	metrics     *observability.Metrics
	cooldown    time.Duration
	logger      *zap.Logger
}

// NewEscalationService instantiates the engine. cooldown is the
// minimum gap between two escalations of the same issue.
func NewEscalationService(
	issues repository.IssueRepository,
	members repository.MemberRepository,
	departments repository.DepartmentRepository,
	escalations repository.EscalationRepository,
	issueEvents repository.IssueEventRepository,
	o oracle.Oracle,
	bus events.Bus,
	metrics *observability.Metrics,
	cooldown time.Duration,
	logger *zap.Logger,
) *EscalationService {
	if cooldown <= 0 {
		cooldown = 4 * time.Hour
	}
	return &EscalationService{
		issues:      issues,
		members:     members,
		departments: departments,
		escalations: escalations,
		issueEvents: issueEvents,
		oracle:      o,
		bus:         bus,
		metrics:     metrics,
		cooldown:    cooldown,
		logger:      logger,
	}
}

// Evaluate decides whether the issue should escalate now and applies
// the escalation if so. An issue escalated within the cooldown window
// is left alone.
func (s *EscalationService) Evaluate(ctx context.Context, issue *domain.Issue, now time.Time) error {
	if issue.IsDuplicate || issue.State.Settled() {
		return nil
	}
	if issue.EscalatedAt != nil && now.Sub(*issue.EscalatedAt) < s.cooldown {
		return nil
	}
	if !issue.HasSLA() {
		return nil
	}

	shouldEscalate, toLevel, reason := s.judge(ctx, issue, now)
	if !shouldEscalate {
		return nil
	}
	// Levels are monotonic regardless of what the judgment proposed.
	if toLevel <= issue.EscalationLevel {
		toLevel = issue.EscalationLevel + 1
	}

	return s.apply(ctx, issue, toLevel, reason, now)
}

// judge asks the oracle; when it is unreachable a deterministic
// heuristic takes over: a breached deadline always escalates, and an
// urgent issue under 20% of its window escalates pre-emptively.
func (s *EscalationService) judge(ctx context.Context, issue *domain.Issue, now time.Time) (bool, int, string) {
	hoursUntil := issue.SLADeadline.Sub(now).Hours()
	judgment, err := s.oracle.AssessEscalation(ctx, oracle.EscalationInput{
		State:              string(issue.State),
		Priority:           issue.Priority,
		CurrentLevel:       issue.EscalationLevel,
		HoursSinceCreation: now.Sub(issue.CreatedAt).Hours(),
		HoursUntilDeadline: hoursUntil,
		Description:        issue.Description,
	})
	if err == nil {
		return judgment.ShouldEscalate, judgment.NewLevel, judgment.Reason
	}
	s.logger.Warn("escalation judgment unavailable, using heuristic",
		zap.String("issue_id", issue.ID), zap.Error(err))

	if hoursUntil <= 0 {
		return true, issue.EscalationLevel + 1,
			fmt.Sprintf("SLA deadline breached by %.1f hours", -hoursUntil)
	}
	remaining := ComputeBand(now, *issue.SLADeadline, issue.SLAHours)
	if remaining == BandCritical && issue.Priority != 0 && issue.Priority <= domain.PriorityHigh {
		return true, issue.EscalationLevel + 1,
			"urgent issue entering the critical SLA window"
	}
	return false, 0, ""
}

func (s *EscalationService) apply(ctx context.Context, issue *domain.Issue, toLevel int, reason string, now time.Time) error {
	fromLevel := issue.EscalationLevel
	targets := s.targets(ctx, issue)

	mutate := func(i *domain.Issue) {
		i.EscalationLevel = toLevel
		escalatedAt := now
		i.EscalatedAt = &escalatedAt
		// An issue already being worked keeps its working state.
		switch i.State {
		case domain.IssueStateReported, domain.IssueStateValidated, domain.IssueStateAssigned:
			i.State = domain.IssueStateEscalated
		}
	}
	mutate(issue)
	if err := s.issues.Update(ctx, issue); err != nil {
		if !apperrors.IsCode(err, "CONCURRENCY_CONFLICT") {
			return err
		}
		fresh, gerr := s.issues.GetByID(ctx, issue.ID)
		if gerr != nil {
			return gerr
		}
		mutate(fresh)
		if err := s.issues.Update(ctx, fresh); err != nil {
			return err
		}
		*issue = *fresh
	}

	if err := s.escalations.Create(ctx, &domain.Escalation{
		IssueID:        issue.ID,
		FromLevel:      fromLevel,
		ToLevel:        toLevel,
		Reason:         reason,
		EscalatedBy:    escalatedBySupervisor,
		NotifiedEmails: targets,
	}); err != nil {
		s.logger.Error("failed to record escalation",
			zap.String("issue_id", issue.ID), zap.Error(err))
	}
	if err := s.issueEvents.Create(ctx, &domain.IssueEvent{
		IssueID:   issue.ID,
		EventType: string(events.EventIssueEscalated),
		AgentName: escalatedBySupervisor,
		Data: map[string]any{
			"from_level": fromLevel,
			"to_level":   toLevel,
			"reason":     reason,
		},
	}); err != nil {
		s.logger.Warn("failed to record escalation timeline entry",
			zap.String("issue_id", issue.ID), zap.Error(err))
	}

	_ = s.bus.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventIssueEscalated,
		IssueID:   issue.ID,
		Timestamp: now,
		Payload: events.IssueEscalatedPayload{
			FromLevel: fromLevel,
			ToLevel:   toLevel,
			Reason:    reason,
			Notified:  targets,
		},
	})
	s.metrics.RecordEscalation()
	s.logger.Info("issue escalated",
		zap.String("issue_id", issue.ID),
		zap.Int("from_level", fromLevel),
		zap.Int("to_level", toLevel),
		zap.String("reason", reason))
	return nil
}

// targets collects who must hear about the escalation: the assigned
// member and the owning department's escalation inbox.
func (s *EscalationService) targets(ctx context.Context, issue *domain.Issue) []string {
	var targets []string
	if issue.AssignedMemberID != nil {
		member, err := s.members.GetByID(ctx, *issue.AssignedMemberID)
		if err != nil {
			s.logger.Warn("failed to load member for escalation targets",
				zap.String("issue_id", issue.ID), zap.Error(err))
		} else {
			targets = append(targets, member.Email)
		}
	}
	if issue.DepartmentID != nil {
		department, err := s.departments.GetByID(ctx, *issue.DepartmentID)
		if err != nil {
			s.logger.Warn("failed to load department for escalation targets",
				zap.String("issue_id", issue.ID), zap.Error(err))
		} else if department.EscalationEmail != nil {
			targets = append(targets, *department.EscalationEmail)
		}
	}
	return targets
}
