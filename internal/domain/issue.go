package domain

import "time"

// IssueState enumerates lifecycle states for reported issues.
type IssueState string

const (
	IssueStateReported            IssueState = "reported"
	IssueStatePendingConfirmation IssueState = "pending_confirmation"
	IssueStateValidated           IssueState = "validated"
	IssueStateAssigned            IssueState = "assigned"
	IssueStateInProgress          IssueState = "in_progress"
	IssueStatePendingVerification IssueState = "pending_verification"
	IssueStateResolved            IssueState = "resolved"
	IssueStateVerified            IssueState = "verified"
	IssueStateClosed              IssueState = "closed"
	IssueStateEscalated           IssueState = "escalated"
	IssueStateRejected            IssueState = "rejected"
)

// Terminal reports whether the state ends the issue lifecycle.
func (s IssueState) Terminal() bool {
	return s == IssueStateClosed || s == IssueStateRejected
}

// Settled reports whether the issue no longer participates in SLA or
// escalation sweeps. Resolved/verified issues may still re-open on a
// failed verification, but they are outside time supervision.
func (s IssueState) Settled() bool {
	switch s {
	case IssueStateResolved, IssueStateVerified, IssueStateClosed, IssueStateRejected:
		return true
	}
	return false
}

// Priority scale: 1 is most urgent, 4 least. Zero means unset.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityMedium   = 3
	PriorityLow      = 4
)

// Issue is the aggregate for a reported infrastructure complaint.
type Issue struct {
	ID             string
	ReporterID     *string
	Description    string
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64

	State            IssueState
	Priority         int
	PriorityReason   string
	Category         *string
	Confidence       float64
	ValidationReason string

	IsDuplicate   bool
	ParentIssueID *string

	DepartmentID     *string
	AssignedMemberID *string
	City             *string
	Locality         *string

	SLAHours        int
	SLADeadline     *time.Time
	EscalationLevel int
	EscalatedAt     *time.Time

	ResolvedAt      *time.Time
	ResolutionNotes string

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSLA reports whether the issue carries a deadline to supervise.
func (i *Issue) HasSLA() bool {
	return i.SLADeadline != nil && i.SLAHours > 0
}
