package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// Timeline is the audited history of one issue.
type Timeline struct {
	Events      []domain.IssueEvent
	Escalations []domain.Escalation
}

// IssueService covers the citizen-facing lifecycle operations that sit
// outside the automated pipeline: confirmation of parked reports,
// verification of completed work, and closing.
type IssueService struct {
	issues      repository.IssueRepository
	members     repository.MemberRepository
	issueEvents repository.IssueEventRepository
	escalations repository.EscalationRepository
	bus         events.Bus
	runner      PipelineRunner
	logger      *zap.Logger
}

// NewIssueService instantiates the service.
func NewIssueService(
	issues repository.IssueRepository,
	members repository.MemberRepository,
	issueEvents repository.IssueEventRepository,
	escalations repository.EscalationRepository,
	bus events.Bus,
	runner PipelineRunner,
	logger *zap.Logger,
) *IssueService {
	return &IssueService{
		issues:      issues,
		members:     members,
		issueEvents: issueEvents,
		escalations: escalations,
		bus:         bus,
		runner:      runner,
		logger:      logger,
	}
}

// Get loads one issue.
func (s *IssueService) Get(ctx context.Context, id string) (*domain.Issue, error) {
	issue, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return issue, nil
}

// GetTimeline loads the issue's audited history.
func (s *IssueService) GetTimeline(ctx context.Context, id string) (*Timeline, error) {
	if _, err := s.issues.GetByID(ctx, id); err != nil {
		return nil, apperrors.MapError(err)
	}
	eventRows, err := s.issueEvents.ListByIssue(ctx, id, 200)
	if err != nil {
		return nil, err
	}
	escalationRows, err := s.escalations.ListByIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Timeline{Events: eventRows, Escalations: escalationRows}, nil
}

// Confirm resumes a report parked as pending_confirmation. The
// reporter vouches the problem is real; the pipeline re-enters after
// classification.
func (s *IssueService) Confirm(ctx context.Context, id string) (*domain.Issue, error) {
	issue, err := transitionIssue(ctx, s.issues, id,
		[]domain.IssueState{domain.IssueStatePendingConfirmation},
		func(i *domain.Issue) {
			i.State = domain.IssueStateValidated
			i.ValidationReason = "confirmed by reporter"
		})
	if err != nil {
		return nil, err
	}

	go s.runner.Resume(context.WithoutCancel(ctx), issue.ID)
	return issue, nil
}

// Reject discards a parked report.
func (s *IssueService) Reject(ctx context.Context, id, reason string) (*domain.Issue, error) {
	return transitionIssue(ctx, s.issues, id,
		[]domain.IssueState{domain.IssueStatePendingConfirmation},
		func(i *domain.Issue) {
			i.State = domain.IssueStateRejected
			if reason != "" {
				i.ValidationReason = reason
			}
		})
}

// Verify records the reporter's verdict on completed work: approval
// moves the issue to verified and stops its clock, disapproval sends
// it back to in_progress.
func (s *IssueService) Verify(ctx context.Context, id string, approved bool, notes string) (*domain.Issue, error) {
	if !approved {
		return transitionIssue(ctx, s.issues, id,
			[]domain.IssueState{domain.IssueStatePendingVerification},
			func(i *domain.Issue) {
				i.State = domain.IssueStateInProgress
			})
	}

	now := time.Now().UTC()
	issue, err := transitionIssue(ctx, s.issues, id,
		[]domain.IssueState{domain.IssueStatePendingVerification},
		func(i *domain.Issue) {
			i.State = domain.IssueStateVerified
			i.ResolvedAt = &now
			if notes != "" {
				i.ResolutionNotes = notes
			}
		})
	if err != nil {
		return nil, err
	}

	s.afterResolution(ctx, issue, "reporter")
	return issue, nil
}

// Close finishes a resolved or verified issue.
func (s *IssueService) Close(ctx context.Context, id string) (*domain.Issue, error) {
	return transitionIssue(ctx, s.issues, id,
		[]domain.IssueState{domain.IssueStateResolved, domain.IssueStateVerified},
		func(i *domain.Issue) {
			i.State = domain.IssueStateClosed
		})
}

// afterResolution releases the member's capacity and announces the
// resolution.
func (s *IssueService) afterResolution(ctx context.Context, issue *domain.Issue, resolvedBy string) {
	if issue.AssignedMemberID != nil {
		if err := s.members.DecrementWorkload(ctx, *issue.AssignedMemberID); err != nil {
			s.logger.Warn("failed to release member workload",
				zap.String("issue_id", issue.ID),
				zap.String("member_id", *issue.AssignedMemberID),
				zap.Error(err))
		}
	}
	_ = s.bus.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventIssueResolved,
		IssueID:   issue.ID,
		Timestamp: time.Now().UTC(),
		Payload: events.IssueResolvedPayload{
			ResolvedBy:      resolvedBy,
			ResolutionNotes: issue.ResolutionNotes,
		},
	})
	if err := s.issueEvents.Create(ctx, &domain.IssueEvent{
		IssueID:   issue.ID,
		EventType: string(events.EventIssueResolved),
		AgentName: resolvedBy,
		Data:      map[string]any{"state": string(issue.State)},
	}); err != nil {
		s.logger.Warn("failed to record resolution timeline entry",
			zap.String("issue_id", issue.ID), zap.Error(err))
	}
}

// transitionIssue applies a guarded state change with one retry on a
// concurrent update.
func transitionIssue(ctx context.Context, issues repository.IssueRepository, id string, from []domain.IssueState, mutate func(*domain.Issue)) (*domain.Issue, error) {
	for attempt := 0; attempt < 2; attempt++ {
		issue, err := issues.GetByID(ctx, id)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !stateIn(issue.State, from) {
			return nil, apperrors.NewConflict("issue state does not allow this operation", map[string]any{
				"issue_id": id,
				"state":    string(issue.State),
			})
		}
		mutate(issue)
		err = issues.Update(ctx, issue)
		if err == nil {
			return issue, nil
		}
		if !apperrors.IsCode(err, "CONCURRENCY_CONFLICT") {
			return nil, err
		}
	}
	return nil, apperrors.NewConcurrencyConflict("issue", map[string]any{"issue_id": id})
}

func stateIn(state domain.IssueState, allowed []domain.IssueState) bool {
	for _, s := range allowed {
		if state == s {
			return true
		}
	}
	return false
}
