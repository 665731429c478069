package dto

import "time"

// CreateIssueRequest is the citizen report payload.
type CreateIssueRequest struct {
	ReporterID     *string  `json:"reporter_id"`
	Description    string   `json:"description"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters"`
}

// RejectIssueRequest carries the rejection reason.
type RejectIssueRequest struct {
	Reason string `json:"reason"`
}

// VerifyIssueRequest is the reporter's verdict on completed work.
type VerifyIssueRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

// IssueResponse is the public view of an issue.
type IssueResponse struct {
	ID               string     `json:"id"`
	ReporterID       *string    `json:"reporter_id,omitempty"`
	Description      string     `json:"description"`
	Latitude         float64    `json:"latitude"`
	Longitude        float64    `json:"longitude"`
	AccuracyMeters   *float64   `json:"accuracy_meters,omitempty"`
	State            string     `json:"state"`
	Priority         int        `json:"priority,omitempty"`
	PriorityReason   string     `json:"priority_reason,omitempty"`
	Category         *string    `json:"category,omitempty"`
	Confidence       float64    `json:"confidence,omitempty"`
	ValidationReason string     `json:"validation_reason,omitempty"`
	IsDuplicate      bool       `json:"is_duplicate"`
	ParentIssueID    *string    `json:"parent_issue_id,omitempty"`
	DepartmentID     *string    `json:"department_id,omitempty"`
	AssignedMemberID *string    `json:"assigned_member_id,omitempty"`
	City             *string    `json:"city,omitempty"`
	Locality         *string    `json:"locality,omitempty"`
	SLAHours         int        `json:"sla_hours,omitempty"`
	SLADeadline      *time.Time `json:"sla_deadline,omitempty"`
	EscalationLevel  int        `json:"escalation_level"`
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes  string     `json:"resolution_notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TimelineEntry is one audited decision in an issue's history.
type TimelineEntry struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	AgentName string         `json:"agent_name"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EscalationEntry is one escalation audit row.
type EscalationEntry struct {
	ID             string    `json:"id"`
	FromLevel      int       `json:"from_level"`
	ToLevel        int       `json:"to_level"`
	Reason         string    `json:"reason"`
	EscalatedBy    string    `json:"escalated_by"`
	NotifiedEmails []string  `json:"notified_emails,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TimelineResponse is the full audited history of an issue.
type TimelineResponse struct {
	IssueID     string            `json:"issue_id"`
	Events      []TimelineEntry   `json:"events"`
	Escalations []EscalationEntry `json:"escalations"`
}
