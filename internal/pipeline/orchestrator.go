package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/flow"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/repository"
)

var errNoDepartments = errors.New("no active departments configured")

// Orchestrator runs the decision stages for one issue in order,
// recording progress on a flow tracker so clients can watch the run
// live. A stage error ends the run as failed; a halting stage ends it
// as completed.
type Orchestrator struct {
	stages   []Stage
	issues   repository.IssueRepository
	registry *flow.Registry
	metrics  *observability.Metrics
	logger   *zap.Logger

	// retention keeps the finished tracker around for late stream
	// subscribers before it is dropped from the registry.
	retention time.Duration
}

// NewOrchestrator instantiates the orchestrator over the given stages.
func NewOrchestrator(
	stages []Stage,
	issues repository.IssueRepository,
	registry *flow.Registry,
	metrics *observability.Metrics,
	logger *zap.Logger,
	retention time.Duration,
) *Orchestrator {
	return &Orchestrator{
		stages:    stages,
		issues:    issues,
		registry:  registry,
		metrics:   metrics,
		logger:    logger,
		retention: retention,
	}
}

// Run executes the full pipeline for the issue.
func (o *Orchestrator) Run(ctx context.Context, issueID string) {
	o.runFrom(ctx, issueID, 0)
}

// Resume re-enters the pipeline after a reporter confirmed a parked
// report, skipping classification.
func (o *Orchestrator) Resume(ctx context.Context, issueID string) {
	start := 0
	for i, stage := range o.stages {
		if stage.Name() == StageDedup {
			start = i
			break
		}
	}
	o.runFrom(ctx, issueID, start)
}

func (o *Orchestrator) runFrom(ctx context.Context, issueID string, start int) {
	tracker := o.registry.Create(issueID)
	failed := false
	defer func() {
		o.metrics.RecordPipelineRun(failed)
		o.release(issueID)
	}()

	issue, err := o.issues.GetByID(ctx, issueID)
	if err != nil {
		failed = true
		o.logger.Error("pipeline cannot load issue",
			zap.String("issue_id", issueID), zap.Error(err))
		tracker.ErrorFlow("issue not found")
		return
	}
	ic := &IssueContext{Issue: issue}

	for _, stage := range o.stages[start:] {
		tracker.StartStep(stage.Name())
		outcome, err := stage.Execute(ctx, ic)
		if err != nil {
			failed = true
			o.metrics.RecordStageError(stage.Name())
			o.logger.Error("pipeline stage failed",
				zap.String("issue_id", issueID),
				zap.String("stage", stage.Name()),
				zap.Error(err))
			tracker.CompleteStep(stage.Name(), "", "", nil, err.Error())
			tracker.ErrorFlow(err.Error())
			return
		}

		tracker.CompleteStep(stage.Name(), outcome.Decision, outcome.Reasoning, outcome.Result, "")
		if outcome.Halt {
			break
		}
	}

	tracker.CompleteFlow(map[string]any{
		"issue_id": issueID,
		"state":    string(ic.Issue.State),
		"priority": ic.Issue.Priority,
	})
	o.logger.Info("pipeline completed",
		zap.String("issue_id", issueID),
		zap.String("state", string(ic.Issue.State)))
}

// release drops the tracker after the retention window so a client
// that connects just after completion still sees the final snapshot.
func (o *Orchestrator) release(issueID string) {
	if o.retention <= 0 {
		o.registry.Remove(issueID)
		return
	}
	time.AfterFunc(o.retention, func() {
		o.registry.Remove(issueID)
	})
}
