package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	"github.com/spec-kit/civic-issue-service/internal/service"
)

// dedupStage links re-reports of a known issue to their original. A
// duplicate ends the run: it rides the parent's pipeline instead of
// getting its own priority, assignment, and notifications.
type dedupStage struct {
	issues      repository.IssueRepository
	issueEvents repository.IssueEventRepository
	bus         events.Bus
	resolver    *service.DedupService
	logger      *zap.Logger
}

// NewDedupStage instantiates the stage.
func NewDedupStage(
	issues repository.IssueRepository,
	issueEvents repository.IssueEventRepository,
	bus events.Bus,
	resolver *service.DedupService,
	logger *zap.Logger,
) Stage {
	return &dedupStage{
		issues:      issues,
		issueEvents: issueEvents,
		bus:         bus,
		resolver:    resolver,
		logger:      logger,
	}
}

func (s *dedupStage) Name() string { return StageDedup }

func (s *dedupStage) Execute(ctx context.Context, ic *IssueContext) (Outcome, error) {
	result, err := s.resolver.Resolve(ctx, ic.Issue)
	if err != nil {
		return Outcome{}, err
	}

	if !result.IsDuplicate {
		s.publishDeduplicated(ctx, ic.Issue, nil, result.NearbyCount)
		recordAudit(ctx, s.issueEvents, s.logger, ic.Issue.ID, string(events.EventIssueDeduplicated), s.Name(), map[string]any{
			"is_duplicate": false,
			"nearby_count": result.NearbyCount,
		})
		return Outcome{
			Decision:  "unique",
			Reasoning: "no sufficiently similar issue nearby",
			Result:    map[string]any{"nearby_count": result.NearbyCount},
		}, nil
	}

	parent := result.ParentIssue
	if err := saveIssue(ctx, s.issues, ic, func(issue *domain.Issue) {
		issue.IsDuplicate = true
		issue.ParentIssueID = &parent.ID
		if issue.Priority == 0 {
			issue.Priority = parent.Priority
			issue.PriorityReason = "inherited from original report"
		}
		if issue.Category == nil && parent.Category != nil {
			category := *parent.Category
			issue.Category = &category
		}
	}); err != nil {
		return Outcome{}, err
	}

	s.propagatePriority(ctx, ic.Issue, parent)

	s.publishDeduplicated(ctx, ic.Issue, &parent.ID, result.NearbyCount)
	recordAudit(ctx, s.issueEvents, s.logger, ic.Issue.ID, string(events.EventIssueDeduplicated), s.Name(), map[string]any{
		"is_duplicate":    true,
		"parent_issue_id": parent.ID,
		"similarity":      result.BestSimilarity,
		"distance_meters": result.DistanceMeters,
	})

	return Outcome{
		Decision:  "duplicate",
		Reasoning: "matches an existing report within the duplicate radius",
		Result: map[string]any{
			"parent_issue_id": parent.ID,
			"similarity":      result.BestSimilarity,
			"distance_meters": result.DistanceMeters,
		},
		Halt: true,
	}, nil
}

// propagatePriority raises the parent to the child's urgency when the
// child is more urgent. Lower numbers are more urgent; the parent's
// priority never decreases in urgency.
func (s *dedupStage) propagatePriority(ctx context.Context, child, parent *domain.Issue) {
	if child.Priority == 0 {
		return
	}
	if parent.Priority != 0 && parent.Priority <= child.Priority {
		return
	}

	parentCtx := &IssueContext{Issue: parent}
	err := saveIssue(ctx, s.issues, parentCtx, func(issue *domain.Issue) {
		if issue.Priority == 0 || child.Priority < issue.Priority {
			issue.Priority = child.Priority
			issue.PriorityReason = "raised by a more urgent duplicate report"
		}
	})
	if err != nil {
		s.logger.Warn("failed to propagate priority to original report",
			zap.String("issue_id", child.ID),
			zap.String("parent_issue_id", parent.ID),
			zap.Error(err))
	}
}

func (s *dedupStage) publishDeduplicated(ctx context.Context, issue *domain.Issue, parentID *string, nearbyCount int) {
	_ = s.bus.Publish(ctx, newEvent(events.EventIssueDeduplicated, issue.ID, events.IssueDeduplicatedPayload{
		IsDuplicate:   parentID != nil,
		ParentIssueID: parentID,
		NearbyCount:   nearbyCount,
	}))
}
