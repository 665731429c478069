package pipeline

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

// Stage agent names, in execution order.
const (
	StageClassification = "classification_agent"
	StageDedup          = "dedup_agent"
	StagePriority       = "priority_agent"
	StageRouting        = "routing_agent"
	StageNotification   = "notification_agent"
)

// IssueContext carries the issue through a pipeline run. Stages mutate
// and persist the issue, swapping the pointer after a conflict retry.
type IssueContext struct {
	Issue *domain.Issue
}

// Outcome is one stage's recorded decision.
type Outcome struct {
	Decision  string
	Reasoning string
	Result    map[string]any
	// Halt ends the run after this stage without treating it as a
	// failure, e.g. a duplicate or a report awaiting confirmation.
	Halt bool
}

// Stage is one decision step in the issue pipeline.
type Stage interface {
	Name() string
	Execute(ctx context.Context, ic *IssueContext) (Outcome, error)
}

// saveIssue persists the mutation, retrying once on a version conflict
// by reapplying it to a fresh read.
func saveIssue(ctx context.Context, issues repository.IssueRepository, ic *IssueContext, apply func(*domain.Issue)) error {
	apply(ic.Issue)
	err := issues.Update(ctx, ic.Issue)
	if err == nil {
		return nil
	}
	if !apperrors.IsCode(err, "CONCURRENCY_CONFLICT") {
		return err
	}

	fresh, err := issues.GetByID(ctx, ic.Issue.ID)
	if err != nil {
		return err
	}
	apply(fresh)
	if err := issues.Update(ctx, fresh); err != nil {
		return err
	}
	ic.Issue = fresh
	return nil
}

func newEvent(eventType events.EventType, issueID string, payload any) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		IssueID:   issueID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// recordAudit appends one timeline row; audit failures are logged, not
// propagated, so a broken trail never stalls the pipeline.
func recordAudit(ctx context.Context, repo repository.IssueEventRepository, logger *zap.Logger, issueID, eventType, agentName string, data map[string]any) {
	if repo == nil {
		return
	}
	err := repo.Create(ctx, &domain.IssueEvent{
		IssueID:   issueID,
		EventType: eventType,
		AgentName: agentName,
		Data:      data,
	})
	if err != nil {
		logger.Warn("failed to record issue event",
			zap.String("issue_id", issueID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
