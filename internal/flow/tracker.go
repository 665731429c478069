package flow

import (
	"sync"
	"time"
)

// Step statuses.
const (
	StepRunning   = "running"
	StepCompleted = "completed"
	StepError     = "error"
)

// Flow statuses.
const (
	FlowRunning   = "running"
	FlowCompleted = "completed"
	FlowError     = "error"
)

// Message types broadcast to subscribers. Connected and heartbeat are
// stream-level messages written by the SSE handler, not by the tracker.
const (
	MessageConnected     = "connected"
	MessageStepStarted   = "step_started"
	MessageStepCompleted = "step_completed"
	MessageStepError     = "step_error"
	MessageFlowCompleted = "flow_completed"
	MessageFlowError     = "flow_error"
	MessageHeartbeat     = "heartbeat"
)

// Step is one stage's execution record within a pipeline run.
type Step struct {
	AgentName   string         `json:"agent_name"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMS  float64        `json:"duration_ms,omitempty"`
	Decision    string         `json:"decision,omitempty"`
	Reasoning   string         `json:"reasoning,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Snapshot is the full state of one pipeline run.
type Snapshot struct {
	IssueID         string         `json:"issue_id"`
	StartedAt       time.Time      `json:"started_at"`
	Status          string         `json:"status"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	TotalDurationMS float64        `json:"total_duration_ms,omitempty"`
	Steps           []Step         `json:"steps"`
	FinalResult     map[string]any `json:"final_result,omitempty"`
}

// Message is one progress update delivered to subscribers.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Tracker records stage execution for a single pipeline run and fans
// progress out to any number of subscribers. A late subscriber first
// receives a replay of every step already recorded, then live updates.
type Tracker struct {
	mu          sync.Mutex
	issueID     string
	startedAt   time.Time
	status      string
	completedAt *time.Time
	steps       []Step
	finalResult map[string]any
	subscribers []chan Message
	buffer      int
}

// NewTracker creates a tracker for one pipeline run. buffer bounds each
// subscriber's queue; a subscriber that stops draining loses messages
// rather than stalling step execution.
func NewTracker(issueID string, buffer int) *Tracker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Tracker{
		issueID:   issueID,
		startedAt: time.Now().UTC(),
		status:    FlowRunning,
		buffer:    buffer,
	}
}

// IssueID returns the issue this run belongs to.
func (t *Tracker) IssueID() string {
	return t.issueID
}

// Snapshot returns a copy of the current run state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	steps := make([]Step, len(t.steps))
	copy(steps, t.steps)
	return Snapshot{
		IssueID:         t.issueID,
		StartedAt:       t.startedAt,
		Status:          t.status,
		CompletedAt:     t.completedAt,
		TotalDurationMS: t.totalDurationLocked(),
		Steps:           steps,
		FinalResult:     t.finalResult,
	}
}

func (t *Tracker) totalDurationLocked() float64 {
	if t.completedAt == nil {
		return 0
	}
	return float64(t.completedAt.Sub(t.startedAt)) / float64(time.Millisecond)
}

// Subscribe registers a new subscriber queue. Every step already
// recorded is replayed as synthetic step_started/step_completed
// messages before any live message arrives.
func (t *Tracker) Subscribe() <-chan Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	replay := make([]Message, 0, len(t.steps)*2)
	for i, step := range t.steps {
		replay = append(replay, Message{
			Type:      MessageStepStarted,
			Timestamp: step.StartedAt,
			Data: map[string]any{
				"agent_name": step.AgentName,
				"step_index": i,
			},
		})
		if step.Status == StepCompleted || step.Status == StepError {
			msgType := MessageStepCompleted
			if step.Status == StepError {
				msgType = MessageStepError
			}
			ts := step.StartedAt
			if step.CompletedAt != nil {
				ts = *step.CompletedAt
			}
			replay = append(replay, Message{
				Type:      msgType,
				Timestamp: ts,
				Data:      stepData(step),
			})
		}
	}

	queue := make(chan Message, t.buffer+len(replay))
	for _, msg := range replay {
		queue <- msg
	}
	t.subscribers = append(t.subscribers, queue)
	return queue
}

// Unsubscribe removes a subscriber. Broadcasting to a removed
// subscriber is a no-op; unsubscribing twice is harmless.
func (t *Tracker) Unsubscribe(queue <-chan Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, sub := range t.subscribers {
		if sub == queue {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			return
		}
	}
}

// StartStep appends a new running step and broadcasts step_started.
func (t *Tracker) StartStep(agentName string) {
	t.mu.Lock()
	step := Step{
		AgentName: agentName,
		Status:    StepRunning,
		StartedAt: time.Now().UTC(),
	}
	t.steps = append(t.steps, step)
	index := len(t.steps) - 1
	t.broadcastLocked(MessageStepStarted, map[string]any{
		"agent_name": agentName,
		"step_index": index,
	})
	t.mu.Unlock()
}

// CompleteStep finalizes the most recent running step with the given
// agent name. An empty errMsg marks it completed, otherwise error.
func (t *Tracker) CompleteStep(agentName, decision, reasoning string, result map[string]any, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	var step *Step
	for i := len(t.steps) - 1; i >= 0; i-- {
		if t.steps[i].AgentName == agentName && t.steps[i].Status == StepRunning {
			step = &t.steps[i]
			break
		}
	}

	status := StepCompleted
	msgType := MessageStepCompleted
	if errMsg != "" {
		status = StepError
		msgType = MessageStepError
	}

	if step != nil {
		step.CompletedAt = &now
		step.Status = status
		step.Decision = decision
		step.Reasoning = reasoning
		step.Result = result
		step.Error = errMsg
		step.DurationMS = float64(now.Sub(step.StartedAt)) / float64(time.Millisecond)
	}

	data := map[string]any{
		"agent_name": agentName,
		"status":     status,
		"decision":   decision,
		"reasoning":  reasoning,
		"result":     result,
	}
	if step != nil {
		data["duration_ms"] = step.DurationMS
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	t.broadcastLocked(msgType, data)
}

// CompleteFlow marks the run completed and broadcasts the final state.
func (t *Tracker) CompleteFlow(finalResult map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.completedAt = &now
	t.status = FlowCompleted
	t.finalResult = finalResult
	t.broadcastLocked(MessageFlowCompleted, t.snapshotLocked())
}

// ErrorFlow marks the run failed and broadcasts the failure reason.
func (t *Tracker) ErrorFlow(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now().UTC()
	t.completedAt = &now
	t.status = FlowError
	t.broadcastLocked(MessageFlowError, map[string]any{
		"error": errMsg,
		"flow":  t.snapshotLocked(),
	})
}

// Status returns the overall run status.
func (t *Tracker) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// broadcastLocked fans the message out without blocking: a subscriber
// whose queue is full misses the message.
func (t *Tracker) broadcastLocked(msgType string, data any) {
	msg := Message{Type: msgType, Timestamp: time.Now().UTC(), Data: data}
	for _, sub := range t.subscribers {
		select {
		case sub <- msg:
		default:
		}
	}
}

func stepData(step Step) map[string]any {
	data := map[string]any{
		"agent_name": step.AgentName,
		"status":     step.Status,
		"decision":   step.Decision,
		"reasoning":  step.Reasoning,
		"result":     step.Result,
		"duration_ms": step.DurationMS,
	}
	if step.Error != "" {
		data["error"] = step.Error
	}
	return data
}
