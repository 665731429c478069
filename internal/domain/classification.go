package domain

import "time"

// Detection is one detected defect within a submitted report.
type Detection struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classification captures the external classifier's verdict for an issue.
type Classification struct {
	ID                string
	IssueID           string
	PrimaryCategory   *string
	PrimaryConfidence float64
	Detections        []Detection
	ModelVersion      string
	CreatedAt         time.Time
}
