package domain

import "time"

// Escalation is an append-only audit record of one escalation decision.
// Rows are never mutated after creation.
type Escalation struct {
	ID             string
	IssueID        string
	FromLevel      int
	ToLevel        int
	Reason         string
	EscalatedBy    string
	NotifiedEmails []string
	CreatedAt      time.Time
}
