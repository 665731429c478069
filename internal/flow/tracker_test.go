package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(queue <-chan Message) []Message {
	var out []Message
	for {
		select {
		case msg := <-queue:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestTrackerRecordsSteps(t *testing.T) {
	tracker := NewTracker("issue-1", 8)
	tracker.StartStep("classification_agent")
	tracker.CompleteStep("classification_agent", "validated", "looks real", map[string]any{"confidence": 0.9}, "")

	snap := tracker.Snapshot()
	require.Len(t, snap.Steps, 1)
	assert.Equal(t, StepCompleted, snap.Steps[0].Status)
	assert.Equal(t, "validated", snap.Steps[0].Decision)
	assert.NotNil(t, snap.Steps[0].CompletedAt)
	assert.Equal(t, FlowRunning, snap.Status)
}

func TestTrackerStepError(t *testing.T) {
	tracker := NewTracker("issue-1", 8)
	tracker.StartStep("routing_agent")
	tracker.CompleteStep("routing_agent", "", "", nil, "no departments")

	snap := tracker.Snapshot()
	require.Len(t, snap.Steps, 1)
	assert.Equal(t, StepError, snap.Steps[0].Status)
	assert.Equal(t, "no departments", snap.Steps[0].Error)
}

func TestSubscribeReplaysHistory(t *testing.T) {
	tracker := NewTracker("issue-1", 8)
	tracker.StartStep("classification_agent")
	tracker.CompleteStep("classification_agent", "validated", "", nil, "")
	tracker.StartStep("dedup_agent")

	queue := tracker.Subscribe()
	msgs := drain(queue)
	// Two for the finished step, one for the running step.
	require.Len(t, msgs, 3)
	assert.Equal(t, MessageStepStarted, msgs[0].Type)
	assert.Equal(t, MessageStepCompleted, msgs[1].Type)
	assert.Equal(t, MessageStepStarted, msgs[2].Type)
}

func TestSubscribeReceivesLiveUpdates(t *testing.T) {
	tracker := NewTracker("issue-1", 8)
	queue := tracker.Subscribe()

	tracker.StartStep("priority_agent")
	tracker.CompleteStep("priority_agent", "medium", "", nil, "")
	tracker.CompleteFlow(map[string]any{"state": "assigned"})

	msgs := drain(queue)
	require.Len(t, msgs, 3)
	assert.Equal(t, MessageStepStarted, msgs[0].Type)
	assert.Equal(t, MessageStepCompleted, msgs[1].Type)
	assert.Equal(t, MessageFlowCompleted, msgs[2].Type)
	assert.Equal(t, FlowCompleted, tracker.Status())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	tracker := NewTracker("issue-1", 8)
	queue := tracker.Subscribe()
	tracker.Unsubscribe(queue)

	tracker.StartStep("priority_agent")
	assert.Empty(t, drain(queue))

	// Unsubscribing twice is harmless.
	tracker.Unsubscribe(queue)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	tracker := NewTracker("issue-1", 1)
	queue := tracker.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			tracker.StartStep("dedup_agent")
		}
	}()
	<-done

	// Only the buffered message survives; the rest were dropped.
	assert.Len(t, drain(queue), 1)
}

func TestErrorFlow(t *testing.T) {
	tracker := NewTracker("issue-1", 8)
	queue := tracker.Subscribe()
	tracker.ErrorFlow("stage blew up")

	msgs := drain(queue)
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageFlowError, msgs[0].Type)
	assert.Equal(t, FlowError, tracker.Status())
}

func TestRegistryLifecycle(t *testing.T) {
	registry := NewRegistry(8)
	tracker := registry.Create("issue-1")
	require.NotNil(t, tracker)

	// Create is idempotent per issue.
	assert.Same(t, tracker, registry.Create("issue-1"))
	assert.Same(t, tracker, registry.Get("issue-1"))

	tracker.StartStep("classification_agent")
	active := registry.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "issue-1", active[0].IssueID)
	assert.Equal(t, 1, active[0].StepsCount)

	registry.Remove("issue-1")
	assert.Nil(t, registry.Get("issue-1"))
	registry.Remove("issue-1")
}
