package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/observability"
	"github.com/spec-kit/civic-issue-service/internal/oracle"
)

type escalationFixture struct {
	svc         *EscalationService
	issues      *memIssueRepo
	members     *memMemberRepo
	escalations *memEscalationRepo
	bus         *captureBus
}

func newEscalationFixture(t *testing.T, o oracle.Oracle, departments []domain.Department) *escalationFixture {
	t.Helper()
	issues := newMemIssueRepo()
	members := newMemMemberRepo()
	escalations := &memEscalationRepo{}
	bus := &captureBus{}
	svc := NewEscalationService(issues, members, &memDepartmentRepo{departments: departments},
		escalations, &memIssueEventRepo{}, o, bus, observability.NewMetrics(), 4*time.Hour, zap.NewNop())
	return &escalationFixture{svc: svc, issues: issues, members: members, escalations: escalations, bus: bus}
}

func escalatableIssue(t *testing.T, issues *memIssueRepo, remaining time.Duration, priority, level int) domain.Issue {
	t.Helper()
	deadline := time.Now().UTC().Add(remaining)
	issue := domain.Issue{
		Description:     "burst water main",
		State:           domain.IssueStateInProgress,
		Priority:        priority,
		SLAHours:        12,
		SLADeadline:     &deadline,
		EscalationLevel: level,
	}
	require.NoError(t, issues.Create(context.Background(), &issue))
	return issue
}

func TestEvaluateHeuristicBreach(t *testing.T) {
	f := newEscalationFixture(t, &stubOracle{}, nil)
	issue := escalatableIssue(t, f.issues, -3*time.Hour, domain.PriorityLow, 0)

	require.NoError(t, f.svc.Evaluate(context.Background(), &issue, time.Now().UTC()))

	assert.Equal(t, 1, issue.EscalationLevel)
	assert.NotNil(t, issue.EscalatedAt)
	// Working state is preserved.
	assert.Equal(t, domain.IssueStateInProgress, issue.State)

	rows, err := f.escalations.ListByIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, escalatedBySupervisor, rows[0].EscalatedBy)
	assert.Contains(t, rows[0].Reason, "breached")
}

func TestEvaluateHeuristicCriticalUrgentOnly(t *testing.T) {
	f := newEscalationFixture(t, &stubOracle{}, nil)

	urgent := escalatableIssue(t, f.issues, 1*time.Hour, domain.PriorityHigh, 0)
	require.NoError(t, f.svc.Evaluate(context.Background(), &urgent, time.Now().UTC()))
	assert.Equal(t, 1, urgent.EscalationLevel)

	routine := escalatableIssue(t, f.issues, 1*time.Hour, domain.PriorityLow, 0)
	require.NoError(t, f.svc.Evaluate(context.Background(), &routine, time.Now().UTC()))
	assert.Equal(t, 0, routine.EscalationLevel)
}

func TestEvaluateLevelIsMonotonic(t *testing.T) {
	// The oracle proposes a level below the current one; the engine
	// still moves up.
	o := &stubOracle{escalation: func(oracle.EscalationInput) (oracle.EscalationJudgment, error) {
		return oracle.EscalationJudgment{ShouldEscalate: true, NewLevel: 1, Reason: "judged"}, nil
	}}
	f := newEscalationFixture(t, o, nil)
	issue := escalatableIssue(t, f.issues, -1*time.Hour, domain.PriorityHigh, 2)

	require.NoError(t, f.svc.Evaluate(context.Background(), &issue, time.Now().UTC()))
	assert.Equal(t, 3, issue.EscalationLevel)
}

func TestEvaluateCooldownSkipsRecentEscalation(t *testing.T) {
	f := newEscalationFixture(t, &stubOracle{}, nil)
	issue := escalatableIssue(t, f.issues, -1*time.Hour, domain.PriorityHigh, 1)
	recent := time.Now().UTC().Add(-30 * time.Minute)
	issue.EscalatedAt = &recent

	require.NoError(t, f.svc.Evaluate(context.Background(), &issue, time.Now().UTC()))
	assert.Equal(t, 1, issue.EscalationLevel)
	assert.Empty(t, f.bus.byType(events.EventIssueEscalated))
}

func TestEvaluateSkipsDuplicatesAndSettled(t *testing.T) {
	f := newEscalationFixture(t, &stubOracle{}, nil)

	dup := escalatableIssue(t, f.issues, -1*time.Hour, domain.PriorityHigh, 0)
	dup.IsDuplicate = true
	require.NoError(t, f.svc.Evaluate(context.Background(), &dup, time.Now().UTC()))
	assert.Equal(t, 0, dup.EscalationLevel)

	resolved := escalatableIssue(t, f.issues, -1*time.Hour, domain.PriorityHigh, 0)
	resolved.State = domain.IssueStateResolved
	require.NoError(t, f.svc.Evaluate(context.Background(), &resolved, time.Now().UTC()))
	assert.Equal(t, 0, resolved.EscalationLevel)
}

func TestEvaluateNotifiesMemberAndDepartment(t *testing.T) {
	deptEmail := "escalations@works.city"
	dept := domain.Department{ID: "dept-1", Name: "Road Works", Code: "roads",
		EscalationEmail: &deptEmail, Active: true}
	f := newEscalationFixture(t, &stubOracle{}, []domain.Department{dept})

	f.members.put(domain.Member{ID: "member-1", Name: "Asha", Email: "asha@works.city",
		Role: domain.MemberRoleWorker, Active: true, MaxWorkload: 5})

	issue := escalatableIssue(t, f.issues, -1*time.Hour, domain.PriorityHigh, 0)
	memberID := "member-1"
	deptID := "dept-1"
	issue.AssignedMemberID = &memberID
	issue.DepartmentID = &deptID

	require.NoError(t, f.svc.Evaluate(context.Background(), &issue, time.Now().UTC()))

	published := f.bus.byType(events.EventIssueEscalated)
	require.Len(t, published, 1)
	payload, ok := published[0].Payload.(events.IssueEscalatedPayload)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"asha@works.city", deptEmail}, payload.Notified)
}
