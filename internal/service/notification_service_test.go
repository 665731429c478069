package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/events"
	"github.com/spec-kit/civic-issue-service/internal/notify"
	"github.com/spec-kit/civic-issue-service/internal/observability"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (n *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func newNotificationFixture(t *testing.T) (*NotificationService, *captureNotifier, *memIssueEventRepo) {
	t.Helper()
	notifier := &captureNotifier{}
	issueEvents := &memIssueEventRepo{}
	svc := NewNotificationService(issueEvents, notifier, observability.NewMetrics(), zap.NewNop())
	return svc, notifier, issueEvents
}

func TestSLAWarningNotifiesAssignee(t *testing.T) {
	svc, notifier, issueEvents := newNotificationFixture(t)
	email := "w@works.city"

	err := svc.onSLAWarning(context.Background(), newBusEvent(events.EventSLAWarning, "issue-1",
		events.SLAWarningPayload{HoursRemaining: 3.5, WarningLevel: "critical", AssignedEmail: &email}))
	require.NoError(t, err)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "sla_warning", notifier.sent[0].Kind)
	assert.Equal(t, []string{email}, notifier.sent[0].Recipients)

	rows, err := issueEvents.ListByIssue(context.Background(), "issue-1", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSLAWarningWithoutAssigneeIsSkipped(t *testing.T) {
	svc, notifier, _ := newNotificationFixture(t)

	err := svc.onSLAWarning(context.Background(), newBusEvent(events.EventSLAWarning, "issue-1",
		events.SLAWarningPayload{HoursRemaining: 3.5, WarningLevel: "critical"}))
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
}

func TestEscalationNotifiesTargets(t *testing.T) {
	svc, notifier, _ := newNotificationFixture(t)

	err := svc.onEscalated(context.Background(), newBusEvent(events.EventIssueEscalated, "issue-1",
		events.IssueEscalatedPayload{
			FromLevel: 0, ToLevel: 1, Reason: "deadline breached",
			Notified: []string{"w@works.city", "roads@works.city"},
		}))
	require.NoError(t, err)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "escalation", notifier.sent[0].Kind)
	assert.Len(t, notifier.sent[0].Recipients, 2)
}

func TestHandlersRejectForeignPayloads(t *testing.T) {
	svc, notifier, _ := newNotificationFixture(t)

	err := svc.onEscalated(context.Background(), newBusEvent(events.EventIssueEscalated, "issue-1", "garbage"))
	require.Error(t, err)
	assert.Empty(t, notifier.sent)
}

func TestResolutionGoesToTheStream(t *testing.T) {
	svc, notifier, _ := newNotificationFixture(t)

	err := svc.onResolved(context.Background(), newBusEvent(events.EventIssueResolved, "issue-1",
		events.IssueResolvedPayload{ResolvedBy: "supervisor-1"}))
	require.NoError(t, err)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "resolution", notifier.sent[0].Kind)
	assert.Empty(t, notifier.sent[0].Recipients)
}
