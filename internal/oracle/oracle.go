package oracle

import "context"

// ClassificationJudgment is the oracle's verdict on what a report shows.
type ClassificationJudgment struct {
	Category        string  `json:"category"`
	Confidence      float64 `json:"confidence"`
	DetectionsCount int     `json:"detections_count"`
	Reasoning       string  `json:"reasoning"`
}

// PriorityJudgment assigns an urgency level on the 1-4 scale.
type PriorityJudgment struct {
	Priority  int    `json:"priority"`
	Reasoning string `json:"reasoning"`
}

// EscalationJudgment decides whether an issue's escalation level should
// be bumped.
type EscalationJudgment struct {
	ShouldEscalate bool   `json:"should_escalate"`
	NewLevel       int    `json:"new_level"`
	Reason         string `json:"reason"`
}

// SimilarityPair describes the two reports being compared.
type SimilarityPair struct {
	CategoryA    string
	DescriptionA string
	CategoryB    string
	DescriptionB string
}

// PriorityInput carries the signals relevant to a priority decision.
type PriorityInput struct {
	Category       string
	Confidence     float64
	DuplicateCount int
	Description    string
	City           string
}

// EscalationInput carries the signals relevant to an escalation decision.
type EscalationInput struct {
	State              string
	Priority           int
	CurrentLevel       int
	HoursSinceCreation float64
	HoursUntilDeadline float64
	Description        string
}

// DepartmentOption is one routing candidate presented to the oracle.
type DepartmentOption struct {
	Code       string
	Name       string
	Categories []string
}

// Oracle produces structured judgments from issue attributes. Every
// method returns an error when the oracle is unreachable or its
// response is unusable; callers fall back to stage-specific
// deterministic defaults instead of propagating the failure.
type Oracle interface {
	ClassifyReport(ctx context.Context, description string) (ClassificationJudgment, error)
	SimilarityScore(ctx context.Context, pair SimilarityPair) (float64, error)
	AssignPriority(ctx context.Context, input PriorityInput) (PriorityJudgment, error)
	RouteDepartment(ctx context.Context, category, description string, options []DepartmentOption) (string, error)
	AssessEscalation(ctx context.Context, input EscalationInput) (EscalationJudgment, error)
}
