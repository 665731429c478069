package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// WorkerService covers field member operations: logging in, viewing
// assigned work, and moving issues through the in-progress states.
type WorkerService struct {
	issues      repository.IssueRepository
	members     repository.MemberRepository
	issueEvents repository.IssueEventRepository
	bus         events.Bus
	tokens      *auth.Manager
	logger      *zap.Logger
}

// NewWorkerService instantiates the service.
func NewWorkerService(
	issues repository.IssueRepository,
	members repository.MemberRepository,
	issueEvents repository.IssueEventRepository,
	bus events.Bus,
	tokens *auth.Manager,
	logger *zap.Logger,
) *WorkerService {
	return &WorkerService{
		issues:      issues,
		members:     members,
		issueEvents: issueEvents,
		bus:         bus,
		tokens:      tokens,
		logger:      logger,
	}
}

// Login authenticates a member by email and password.
func (s *WorkerService) Login(ctx context.Context, email, password string) (string, *domain.Member, error) {
	member, err := s.members.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return "", nil, err
	}
	if !member.Active || !auth.CheckPassword(member.PasswordHash, password) {
		return "", nil, apperrors.NewUnauthorized("invalid credentials")
	}
	token, err := s.tokens.Generate(member)
	if err != nil {
		return "", nil, apperrors.NewInternalError(err)
	}
	return token, member, nil
}

// Tasks lists the member's open assignments, most urgent deadline
// handled by the caller; the list is in creation order.
func (s *WorkerService) Tasks(ctx context.Context, memberID string) ([]domain.Issue, error) {
	return s.issues.ListWithFilter(ctx, repository.IssueFilter{
		States: []domain.IssueState{
			domain.IssueStateAssigned,
			domain.IssueStateInProgress,
			domain.IssueStatePendingVerification,
			domain.IssueStateEscalated,
		},
		AssignedMemberID: &memberID,
	})
}

// StartTask moves an assigned issue to in_progress. The assignee check
// runs before the transition so a rejected call leaves the issue
// untouched.
func (s *WorkerService) StartTask(ctx context.Context, memberID, issueID string) (*domain.Issue, error) {
	current, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.requireAssignee(current, memberID); err != nil {
		return nil, err
	}

	issue, err := transitionIssue(ctx, s.issues, issueID,
		[]domain.IssueState{domain.IssueStateAssigned, domain.IssueStateEscalated},
		func(i *domain.Issue) {
			i.State = domain.IssueStateInProgress
		})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, issueID, memberID, "task_started", nil)
	return issue, nil
}

// CompleteTask records the member's claim that the work is done. The
// issue waits in pending_verification until the reporter or a
// supervisor signs off.
func (s *WorkerService) CompleteTask(ctx context.Context, memberID, issueID, notes string) (*domain.Issue, error) {
	current, err := s.issues.GetByID(ctx, issueID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.requireAssignee(current, memberID); err != nil {
		return nil, err
	}

	issue, err := transitionIssue(ctx, s.issues, issueID,
		[]domain.IssueState{domain.IssueStateInProgress},
		func(i *domain.Issue) {
			i.State = domain.IssueStatePendingVerification
			if notes != "" {
				i.ResolutionNotes = notes
			}
		})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, issueID, memberID, "task_completed", map[string]any{"notes": notes})
	return issue, nil
}

// Resolve is the supervisor sign-off: the issue is done without
// waiting for reporter verification. Capacity is released and the
// resolution announced.
func (s *WorkerService) Resolve(ctx context.Context, supervisorID, issueID, notes string) (*domain.Issue, error) {
	now := time.Now().UTC()
	issue, err := transitionIssue(ctx, s.issues, issueID,
		[]domain.IssueState{domain.IssueStateInProgress, domain.IssueStatePendingVerification},
		func(i *domain.Issue) {
			i.State = domain.IssueStateResolved
			i.ResolvedAt = &now
			if notes != "" {
				i.ResolutionNotes = notes
			}
		})
	if err != nil {
		return nil, err
	}

	if issue.AssignedMemberID != nil {
		if err := s.members.DecrementWorkload(ctx, *issue.AssignedMemberID); err != nil {
			s.logger.Warn("failed to release member workload",
				zap.String("issue_id", issueID), zap.Error(err))
		}
	}
	_ = s.bus.Publish(ctx, newBusEvent(events.EventIssueResolved, issueID, events.IssueResolvedPayload{
		ResolvedBy:      supervisorID,
		ResolutionNotes: issue.ResolutionNotes,
	}))
	s.audit(ctx, issueID, supervisorID, string(events.EventIssueResolved), map[string]any{"notes": notes})
	return issue, nil
}

func (s *WorkerService) requireAssignee(issue *domain.Issue, memberID string) error {
	if issue.AssignedMemberID == nil || *issue.AssignedMemberID != memberID {
		return apperrors.NewForbidden("issue is not assigned to this member")
	}
	return nil
}

func (s *WorkerService) audit(ctx context.Context, issueID, actor, eventType string, data map[string]any) {
	if err := s.issueEvents.Create(ctx, &domain.IssueEvent{
		IssueID:   issueID,
		EventType: eventType,
		AgentName: actor,
		Data:      data,
	}); err != nil {
		s.logger.Warn("failed to record timeline entry",
			zap.String("issue_id", issueID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
