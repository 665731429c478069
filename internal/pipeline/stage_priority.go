package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/oracle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

// priorityStage assigns the 1-4 urgency level. When the oracle cannot
// judge, the issue defaults to medium so it still enters the SLA
// machinery instead of stalling unprioritized.
type priorityStage struct {
	issues      repository.IssueRepository
	issueEvents repository.IssueEventRepository
	bus         events.Bus
	oracle      oracle.Oracle
	logger      *zap.Logger
}

// NewPriorityStage instantiates the stage.
func NewPriorityStage(
	issues repository.IssueRepository,
	issueEvents repository.IssueEventRepository,
	bus events.Bus,
	o oracle.Oracle,
	logger *zap.Logger,
) Stage {
	return &priorityStage{
		issues:      issues,
		issueEvents: issueEvents,
		bus:         bus,
		oracle:      o,
		logger:      logger,
	}
}

func (s *priorityStage) Name() string { return StagePriority }

func (s *priorityStage) Execute(ctx context.Context, ic *IssueContext) (Outcome, error) {
	duplicateCount, err := s.issues.CountDuplicates(ctx, ic.Issue.ID)
	if err != nil {
		s.logger.Warn("failed to count duplicates for priority input",
			zap.String("issue_id", ic.Issue.ID), zap.Error(err))
		duplicateCount = 0
	}

	priority := domain.PriorityMedium
	reasoning := "priority oracle unavailable, defaulting to medium"

	judgment, err := s.oracle.AssignPriority(ctx, oracle.PriorityInput{
		Category:       categoryOrEmpty(ic.Issue),
		Confidence:     ic.Issue.Confidence,
		DuplicateCount: duplicateCount,
		Description:    ic.Issue.Description,
		City:           stringOrEmpty(ic.Issue.City),
	})
	if err != nil {
		s.logger.Warn("priority judgment unavailable, using default",
			zap.String("issue_id", ic.Issue.ID), zap.Error(err))
	} else if judgment.Priority >= domain.PriorityCritical && judgment.Priority <= domain.PriorityLow {
		priority = judgment.Priority
		reasoning = judgment.Reasoning
	} else {
		s.logger.Warn("priority judgment out of range, using default",
			zap.String("issue_id", ic.Issue.ID), zap.Int("priority", judgment.Priority))
	}

	if err := saveIssue(ctx, s.issues, ic, func(issue *domain.Issue) {
		issue.Priority = priority
		issue.PriorityReason = reasoning
	}); err != nil {
		return Outcome{}, err
	}

	_ = s.bus.Publish(ctx, newEvent(events.EventIssuePrioritized, ic.Issue.ID, events.IssuePrioritizedPayload{
		Priority:  priority,
		Reasoning: reasoning,
	}))
	recordAudit(ctx, s.issueEvents, s.logger, ic.Issue.ID, string(events.EventIssuePrioritized), s.Name(), map[string]any{
		"priority":        priority,
		"reasoning":       reasoning,
		"duplicate_count": duplicateCount,
	})

	return Outcome{
		Decision:  priorityLabel(priority),
		Reasoning: reasoning,
		Result:    map[string]any{"priority": priority, "duplicate_count": duplicateCount},
	}, nil
}

func priorityLabel(priority int) string {
	switch priority {
	case domain.PriorityCritical:
		return "critical"
	case domain.PriorityHigh:
		return "high"
	case domain.PriorityMedium:
		return "medium"
	case domain.PriorityLow:
		return "low"
	default:
		return "unset"
	}
}

func categoryOrEmpty(issue *domain.Issue) string {
	if issue.Category == nil {
		return ""
	}
	return *issue.Category
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
