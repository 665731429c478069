package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/oracle"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

// classificationStage asks the oracle what the report shows. A report
// with no recognizable detections is parked as pending_confirmation
// until the reporter confirms or a supervisor rejects it.
type classificationStage struct {
	issues      repository.IssueRepository
	issueEvents repository.IssueEventRepository
	bus         events.Bus
	oracle      oracle.Oracle
	logger      *zap.Logger
}

// NewClassificationStage instantiates the stage.
func NewClassificationStage(
	issues repository.IssueRepository,
	issueEvents repository.IssueEventRepository,
	bus events.Bus,
	o oracle.Oracle,
	logger *zap.Logger,
) Stage {
	return &classificationStage{
		issues:      issues,
		issueEvents: issueEvents,
		bus:         bus,
		oracle:      o,
		logger:      logger,
	}
}

func (s *classificationStage) Name() string { return StageClassification }

func (s *classificationStage) Execute(ctx context.Context, ic *IssueContext) (Outcome, error) {
	judgment, err := s.oracle.ClassifyReport(ctx, ic.Issue.Description)
	if err != nil {
		// An unreachable oracle must not reject citizen reports:
		// proceed uncategorized and let routing fall back.
		s.logger.Warn("classification unavailable, proceeding uncategorized",
			zap.String("issue_id", ic.Issue.ID), zap.Error(err))

		reason := "classification unavailable; report accepted without category"
		if err := saveIssue(ctx, s.issues, ic, func(issue *domain.Issue) {
			issue.State = domain.IssueStateValidated
			issue.ValidationReason = reason
		}); err != nil {
			return Outcome{}, err
		}
		s.publishClassified(ctx, ic.Issue, 0)
		return Outcome{
			Decision:  "validated",
			Reasoning: reason,
			Result:    map[string]any{"category": nil, "confidence": 0.0},
		}, nil
	}

	if judgment.DetectionsCount == 0 {
		if err := saveIssue(ctx, s.issues, ic, func(issue *domain.Issue) {
			issue.State = domain.IssueStatePendingConfirmation
			issue.Confidence = judgment.Confidence
			issue.ValidationReason = judgment.Reasoning
		}); err != nil {
			return Outcome{}, err
		}
		recordAudit(ctx, s.issueEvents, s.logger, ic.Issue.ID, string(events.EventIssueClassified), s.Name(), map[string]any{
			"detections_count": 0,
			"reasoning":        judgment.Reasoning,
		})
		return Outcome{
			Decision:  "pending_confirmation",
			Reasoning: judgment.Reasoning,
			Result:    map[string]any{"detections_count": 0},
			Halt:      true,
		}, nil
	}

	if err := saveIssue(ctx, s.issues, ic, func(issue *domain.Issue) {
		issue.State = domain.IssueStateValidated
		if judgment.Category != "" {
			category := judgment.Category
			issue.Category = &category
		}
		issue.Confidence = judgment.Confidence
		issue.ValidationReason = judgment.Reasoning
	}); err != nil {
		return Outcome{}, err
	}

	s.publishClassified(ctx, ic.Issue, judgment.DetectionsCount)
	recordAudit(ctx, s.issueEvents, s.logger, ic.Issue.ID, string(events.EventIssueClassified), s.Name(), map[string]any{
		"category":         judgment.Category,
		"confidence":       judgment.Confidence,
		"detections_count": judgment.DetectionsCount,
	})

	return Outcome{
		Decision:  "validated",
		Reasoning: judgment.Reasoning,
		Result: map[string]any{
			"category":         judgment.Category,
			"confidence":       judgment.Confidence,
			"detections_count": judgment.DetectionsCount,
		},
	}, nil
}

func (s *classificationStage) publishClassified(ctx context.Context, issue *domain.Issue, detections int) {
	_ = s.bus.Publish(ctx, newEvent(events.EventIssueClassified, issue.ID, events.IssueClassifiedPayload{
		Category:        issue.Category,
		Confidence:      issue.Confidence,
		DetectionsCount: detections,
	}))
}
