package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueCreated      EventType = "issue_created"
	EventIssueClassified   EventType = "issue_classified"
	EventIssueDeduplicated EventType = "issue_deduplicated"
	EventIssuePrioritized  EventType = "issue_prioritized"
	EventIssueAssigned     EventType = "issue_assigned"
	EventIssueEscalated    EventType = "issue_escalated"
	EventIssueResolved     EventType = "issue_resolved"
	EventSLAWarning        EventType = "sla_warning"
	EventNotificationSent  EventType = "notification_sent"
)

// Event is an immutable fact published on the bus. The bus owns the
// event once published; producers must not mutate the payload after.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IssueID   string    `json:"issue_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// IssueCreatedPayload payload.
type IssueCreatedPayload struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
}

// IssueClassifiedPayload payload.
type IssueClassifiedPayload struct {
	Category        *string `json:"category,omitempty"`
	Confidence      float64 `json:"confidence"`
	DetectionsCount int     `json:"detections_count"`
}

// IssueDeduplicatedPayload payload.
type IssueDeduplicatedPayload struct {
	IsDuplicate   bool    `json:"is_duplicate"`
	ParentIssueID *string `json:"parent_issue_id,omitempty"`
	NearbyCount   int     `json:"nearby_count"`
}

// IssuePrioritizedPayload payload.
type IssuePrioritizedPayload struct {
	Priority  int    `json:"priority"`
	Reasoning string `json:"reasoning"`
}

// IssueAssignedPayload payload.
type IssueAssignedPayload struct {
	DepartmentCode string    `json:"department_code"`
	MemberID       *string   `json:"member_id,omitempty"`
	MemberName     string    `json:"member_name"`
	SLAHours       int       `json:"sla_hours"`
	SLADeadline    time.Time `json:"sla_deadline"`
}

// IssueEscalatedPayload payload.
type IssueEscalatedPayload struct {
	FromLevel int      `json:"from_level"`
	ToLevel   int      `json:"to_level"`
	Reason    string   `json:"reason"`
	Notified  []string `json:"notified,omitempty"`
}

// IssueResolvedPayload payload.
type IssueResolvedPayload struct {
	ResolvedBy      string `json:"resolved_by"`
	ResolutionNotes string `json:"resolution_notes,omitempty"`
}

// SLAWarningPayload payload.
type SLAWarningPayload struct {
	HoursRemaining float64 `json:"hours_remaining"`
	WarningLevel   string  `json:"warning_level"`
	AssignedEmail  *string `json:"assigned_email,omitempty"`
}

// NotificationSentPayload payload.
type NotificationSentPayload struct {
	Kind       string   `json:"kind"`
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
}
