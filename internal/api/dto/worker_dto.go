package dto

// LoginRequest is a member login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token  string         `json:"token"`
	Member MemberResponse `json:"member"`
}

// MemberResponse is the public view of a member.
type MemberResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Role            string  `json:"role"`
	DepartmentID    *string `json:"department_id,omitempty"`
	City            *string `json:"city,omitempty"`
	Locality        *string `json:"locality,omitempty"`
	CurrentWorkload int     `json:"current_workload"`
	MaxWorkload     int     `json:"max_workload"`
}

// CompleteTaskRequest carries the worker's completion notes.
type CompleteTaskRequest struct {
	Notes string `json:"notes"`
}

// ResolveIssueRequest carries supervisor resolution notes.
type ResolveIssueRequest struct {
	Notes string `json:"notes"`
}

// ActiveFlowResponse summarizes one in-flight pipeline run.
type ActiveFlowResponse struct {
	IssueID    string `json:"issue_id"`
	Status     string `json:"status"`
	StepsCount int    `json:"steps_count"`
	StartedAt  string `json:"started_at"`
}
