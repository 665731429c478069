package observability

import (
	"sync"
)

// Metrics provides basic in-memory counters for the pipeline and
// supervision loops.
type Metrics struct {
	mu                sync.Mutex
	pipelineRuns      int64
	pipelineErrors    int64
	stageErrors       map[string]int64
	sweepWarnings     map[string]int64
	escalations       int64
	notifications     int64
	requestErrorCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		stageErrors:       make(map[string]int64),
		sweepWarnings:     make(map[string]int64),
		requestErrorCount: make(map[string]int64),
	}
}

// RecordPipelineRun counts one pipeline run; failed marks it errored.
func (m *Metrics) RecordPipelineRun(failed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelineRuns++
	if failed {
		m.pipelineErrors++
	}
}

// RecordStageError counts a failure inside a named stage.
func (m *Metrics) RecordStageError(stage string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageErrors[stage]++
}

// RecordSweepWarning counts an emitted SLA warning by level.
func (m *Metrics) RecordSweepWarning(level string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepWarnings[level]++
}

// RecordEscalation counts an escalation decision.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations++
}

// RecordNotification counts an outbound notification.
func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications++
}

// RecordError increments request error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestErrorCount[key]++
}

// Snapshot returns current counter values.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	warnings := make(map[string]int64, len(m.sweepWarnings))
	for k, v := range m.sweepWarnings {
		warnings[k] = v
	}
	stages := make(map[string]int64, len(m.stageErrors))
	for k, v := range m.stageErrors {
		stages[k] = v
	}
	return map[string]any{
		"pipeline_runs":   m.pipelineRuns,
		"pipeline_errors": m.pipelineErrors,
		"stage_errors":    stages,
		"sweep_warnings":  warnings,
		"escalations":     m.escalations,
		"notifications":   m.notifications,
	}
}
