package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/flow"
	"github.com/spec-kit/civic-issue-service/internal/geo"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// fakeStage records its execution order and returns a canned outcome.
type fakeStage struct {
	name    string
	outcome Outcome
	err     error
	order   *[]string
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Execute(_ context.Context, _ *IssueContext) (Outcome, error) {
	*s.order = append(*s.order, s.name)
	return s.outcome, s.err
}

type fakeIssueRepo struct {
	mu     sync.Mutex
	issues map[string]domain.Issue
}

func newFakeIssueRepo() *fakeIssueRepo {
	return &fakeIssueRepo{issues: make(map[string]domain.Issue)}
}

func (r *fakeIssueRepo) Create(_ context.Context, issue *domain.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	issue.Version = 1
	r.issues[issue.ID] = *issue
	return nil
}

func (r *fakeIssueRepo) Update(_ context.Context, issue *domain.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[issue.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != issue.Version {
		return apperrors.NewConcurrencyConflict("issue", map[string]any{"issue_id": issue.ID})
	}
	issue.Version++
	r.issues[issue.ID] = *issue
	return nil
}

func (r *fakeIssueRepo) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.issues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := stored
	return &copied, nil
}

func (r *fakeIssueRepo) ListWithFilter(_ context.Context, filter repository.IssueFilter) ([]domain.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Issue
	for _, issue := range r.issues {
		if len(filter.States) > 0 && !stateIn(filter.States, issue.State) {
			continue
		}
		if filter.IsDuplicate != nil && issue.IsDuplicate != *filter.IsDuplicate {
			continue
		}
		if filter.ExcludeID != nil && issue.ID == *filter.ExcludeID {
			continue
		}
		if filter.Box != nil && !withinBox(issue, *filter.Box) {
			continue
		}
		out = append(out, issue)
	}
	return out, nil
}

func (r *fakeIssueRepo) CountDuplicates(_ context.Context, parentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, issue := range r.issues {
		if issue.ParentIssueID != nil && *issue.ParentIssueID == parentID {
			count++
		}
	}
	return count, nil
}

func stateIn(states []domain.IssueState, state domain.IssueState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func withinBox(issue domain.Issue, box geo.BoundingBox) bool {
	return issue.Latitude >= box.MinLat && issue.Latitude <= box.MaxLat &&
		issue.Longitude >= box.MinLon && issue.Longitude <= box.MaxLon
}

func newTestOrchestrator(t *testing.T, repo *fakeIssueRepo, stages []Stage, retention time.Duration) (*Orchestrator, *flow.Registry) {
	t.Helper()
	registry := flow.NewRegistry(8)
	orch := NewOrchestrator(stages, repo, registry, observability.NewMetrics(), zap.NewNop(), retention)
	return orch, registry
}

func seedPipelineIssue(t *testing.T, repo *fakeIssueRepo) string {
	t.Helper()
	issue := domain.Issue{
		Description: "pothole near the market",
		Latitude:    12.9, Longitude: 77.58,
		State: domain.IssueStateReported,
	}
	require.NoError(t, repo.Create(context.Background(), &issue))
	return issue.ID
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	repo := newFakeIssueRepo()
	issueID := seedPipelineIssue(t, repo)

	var order []string
	stages := []Stage{
		&fakeStage{name: StageClassification, outcome: Outcome{Decision: "validated"}, order: &order},
		&fakeStage{name: StageDedup, outcome: Outcome{Decision: "unique"}, order: &order},
		&fakeStage{name: StagePriority, outcome: Outcome{Decision: "medium"}, order: &order},
	}
	orch, registry := newTestOrchestrator(t, repo, stages, time.Minute)
	tracker := registry.Create(issueID)

	orch.Run(context.Background(), issueID)

	assert.Equal(t, []string{StageClassification, StageDedup, StagePriority}, order)

	snap := tracker.Snapshot()
	assert.Equal(t, flow.FlowCompleted, snap.Status)
	require.Len(t, snap.Steps, 3)
	for _, step := range snap.Steps {
		assert.Equal(t, flow.StepCompleted, step.Status)
	}
	assert.Equal(t, issueID, snap.FinalResult["issue_id"])
}

func TestRunHaltShortCircuits(t *testing.T) {
	repo := newFakeIssueRepo()
	issueID := seedPipelineIssue(t, repo)

	var order []string
	stages := []Stage{
		&fakeStage{name: StageClassification, outcome: Outcome{Decision: "validated"}, order: &order},
		&fakeStage{name: StageDedup, outcome: Outcome{Decision: "duplicate", Halt: true}, order: &order},
		&fakeStage{name: StagePriority, order: &order},
	}
	orch, registry := newTestOrchestrator(t, repo, stages, time.Minute)
	tracker := registry.Create(issueID)

	orch.Run(context.Background(), issueID)

	// A halting stage ends the run as completed without touching the
	// remaining stages.
	assert.Equal(t, []string{StageClassification, StageDedup}, order)
	snap := tracker.Snapshot()
	assert.Equal(t, flow.FlowCompleted, snap.Status)
	assert.Len(t, snap.Steps, 2)
}

func TestRunStageErrorFailsFlow(t *testing.T) {
	repo := newFakeIssueRepo()
	issueID := seedPipelineIssue(t, repo)

	var order []string
	stages := []Stage{
		&fakeStage{name: StageClassification, outcome: Outcome{Decision: "validated"}, order: &order},
		&fakeStage{name: StageRouting, err: errors.New("no active departments configured"), order: &order},
		&fakeStage{name: StageNotification, order: &order},
	}
	orch, registry := newTestOrchestrator(t, repo, stages, time.Minute)
	tracker := registry.Create(issueID)

	orch.Run(context.Background(), issueID)

	assert.Equal(t, []string{StageClassification, StageRouting}, order)
	snap := tracker.Snapshot()
	assert.Equal(t, flow.FlowError, snap.Status)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, flow.StepError, snap.Steps[1].Status)
	assert.Equal(t, "no active departments configured", snap.Steps[1].Error)
}

func TestResumeSkipsClassification(t *testing.T) {
	repo := newFakeIssueRepo()
	issueID := seedPipelineIssue(t, repo)

	var order []string
	stages := []Stage{
		&fakeStage{name: StageClassification, order: &order},
		&fakeStage{name: StageDedup, outcome: Outcome{Decision: "unique"}, order: &order},
		&fakeStage{name: StagePriority, outcome: Outcome{Decision: "medium"}, order: &order},
	}
	orch, _ := newTestOrchestrator(t, repo, stages, time.Minute)

	orch.Resume(context.Background(), issueID)

	assert.Equal(t, []string{StageDedup, StagePriority}, order)
}

func TestRunMissingIssueErrorsFlow(t *testing.T) {
	repo := newFakeIssueRepo()
	var order []string
	stages := []Stage{&fakeStage{name: StageClassification, order: &order}}
	orch, registry := newTestOrchestrator(t, repo, stages, time.Minute)

	issueID := uuid.NewString()
	tracker := registry.Create(issueID)
	orch.Run(context.Background(), issueID)

	assert.Empty(t, order)
	assert.Equal(t, flow.FlowError, tracker.Status())
}

func TestZeroRetentionReleasesTrackerImmediately(t *testing.T) {
	repo := newFakeIssueRepo()
	issueID := seedPipelineIssue(t, repo)

	var order []string
	stages := []Stage{&fakeStage{name: StageClassification, outcome: Outcome{Decision: "validated"}, order: &order}}
	orch, registry := newTestOrchestrator(t, repo, stages, 0)

	orch.Run(context.Background(), issueID)

	assert.Nil(t, registry.Get(issueID))
}
