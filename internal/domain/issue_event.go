package domain

import "time"

// IssueEvent is one audit entry in an issue's decision timeline.
type IssueEvent struct {
	ID        string
	IssueID   string
	EventType string
	AgentName string
	Data      map[string]any
	CreatedAt time.Time
}
