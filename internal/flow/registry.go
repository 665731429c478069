package flow

import "sync"

// ActiveFlow summarizes one in-flight pipeline run.
type ActiveFlow struct {
	IssueID    string `json:"issue_id"`
	Status     string `json:"status"`
	StepsCount int    `json:"steps_count"`
	StartedAt  string `json:"started_at"`
}

// Registry is the process-wide lookup of in-flight trackers, keyed by
// issue id. Trackers are created at pipeline start and removed at
// pipeline end so the map never grows without bound.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*Tracker
	buffer int
}

// NewRegistry creates an empty registry. buffer is the per-subscriber
// queue capacity passed to new trackers.
func NewRegistry(buffer int) *Registry {
	return &Registry{
		active: make(map[string]*Tracker),
		buffer: buffer,
	}
}

// Create returns the tracker for the issue, creating it if absent.
func (r *Registry) Create(issueID string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tracker, ok := r.active[issueID]; ok {
		return tracker
	}
	tracker := NewTracker(issueID, r.buffer)
	r.active[issueID] = tracker
	return tracker
}

// Get returns the tracker for the issue, or nil when no run is active.
func (r *Registry) Get(issueID string) *Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[issueID]
}

// Remove deletes the issue's tracker. Removing an absent id is a no-op.
func (r *Registry) Remove(issueID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, issueID)
}

// Active lists a summary of every in-flight run.
func (r *Registry) Active() []ActiveFlow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	flows := make([]ActiveFlow, 0, len(r.active))
	for issueID, tracker := range r.active {
		snap := tracker.Snapshot()
		flows = append(flows, ActiveFlow{
			IssueID:    issueID,
			Status:     snap.Status,
			StepsCount: len(snap.Steps),
			StartedAt:  snap.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return flows
}
