package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/config"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// Client talks to the external decision oracle over HTTP. Responses are
// free-form text that usually contains JSON; parsing is tolerant of
// markdown fences and stray prose.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds an oracle client. An empty base URL yields a client
// whose every call reports the oracle unavailable, which pushes all
// stages onto their deterministic defaults.
func NewClient(cfg config.OracleConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

type completeRequest struct {
	Prompt string `json:"prompt"`
}

type completeResponse struct {
	Text string `json:"text"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.baseURL == "" {
		return "", apperrors.NewOracleUnavailable(nil)
	}

	body, err := json.Marshal(completeRequest{Prompt: prompt})
	if err != nil {
		return "", apperrors.NewOracleUnavailable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.NewOracleUnavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.NewOracleUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewOracleUnavailable(fmt.Errorf("oracle status %d", resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperrors.NewOracleUnavailable(err)
	}

	var parsed completeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperrors.NewOracleUnavailable(err)
	}
	return parsed.Text, nil
}

// stripFences removes markdown code fences the oracle tends to wrap
// JSON answers in.
func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// ClassifyReport asks the oracle what the report describes.
func (c *Client) ClassifyReport(ctx context.Context, description string) (ClassificationJudgment, error) {
	prompt := fmt.Sprintf(`Classify this civic infrastructure report:

Description: %s

Known categories: pothole, garbage, streetlight, water_leak, fallen_tree, broken_sign, road_damage, other.

Return ONLY valid JSON:
{"category": "...", "confidence": 0.0-1.0, "detections_count": 0-10, "reasoning": "max 80 chars"}`,
		truncate(description, 300))

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return ClassificationJudgment{}, err
	}

	var judgment ClassificationJudgment
	if err := json.Unmarshal([]byte(stripFences(text)), &judgment); err != nil {
		c.logger.Warn("oracle classification response unusable", zap.Error(err))
		return ClassificationJudgment{}, apperrors.NewOracleUnavailable(err)
	}
	judgment.Confidence = clamp01(judgment.Confidence)
	return judgment, nil
}

// SimilarityScore rates how likely two reports describe the same
// physical problem, in [0,1].
func (c *Client) SimilarityScore(ctx context.Context, pair SimilarityPair) (float64, error) {
	prompt := fmt.Sprintf(`Rate semantic similarity (0.0-1.0) between civic issue reports:

Issue A:
Category: %s
Description: %s

Issue B:
Category: %s
Description: %s

Consider:
- Same problem type?
- Same physical location context?
- Same infrastructure element?

Return ONLY a decimal number between 0.0 and 1.0.`,
		orNA(pair.CategoryA), truncate(orNA(pair.DescriptionA), 200),
		orNA(pair.CategoryB), truncate(orNA(pair.DescriptionB), 200))

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return 0, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(stripFences(text)), 64)
	if err != nil {
		c.logger.Warn("oracle similarity response unusable", zap.Error(err))
		return 0, apperrors.NewOracleUnavailable(err)
	}
	return clamp01(score), nil
}

// AssignPriority asks for an urgency level on the 1-4 scale.
func (c *Client) AssignPriority(ctx context.Context, input PriorityInput) (PriorityJudgment, error) {
	prompt := fmt.Sprintf(`Assign priority for civic infrastructure issue:

Category: %s
Confidence: %.1f%%
Duplicate Reports: %d
Location: %s
Description: %s

Priority Scale:
1 = CRITICAL (Public safety, electrical hazards, major hazards)
2 = HIGH (Potholes, road damage, fallen trees)
3 = MEDIUM (Garbage, broken signs, minor structures)
4 = LOW (Parking violations, minor vandalism)

Consider safety impact, infrastructure criticality, and community accessibility.

Return ONLY valid JSON:
{"priority": 1-4, "reasoning": "max 80 chars"}`,
		orNA(input.Category), input.Confidence*100, input.DuplicateCount,
		orNA(input.City), truncate(orNA(input.Description), 200))

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return PriorityJudgment{}, err
	}

	var judgment PriorityJudgment
	if err := json.Unmarshal([]byte(stripFences(text)), &judgment); err != nil {
		c.logger.Warn("oracle priority response unusable", zap.Error(err))
		return PriorityJudgment{}, apperrors.NewOracleUnavailable(err)
	}
	if judgment.Priority < 1 || judgment.Priority > 4 {
		return PriorityJudgment{}, apperrors.NewOracleUnavailable(fmt.Errorf("priority %d out of range", judgment.Priority))
	}
	return judgment, nil
}

// RouteDepartment picks a department code from the presented options.
func (c *Client) RouteDepartment(ctx context.Context, category, description string, options []DepartmentOption) (string, error) {
	lines := make([]string, 0, len(options))
	for _, opt := range options {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", opt.Code, opt.Name, strings.Join(opt.Categories, ", ")))
	}

	prompt := fmt.Sprintf(`Route civic issue to correct department:

Issue Category: %s
Description: %s

Available Departments:
%s

Return ONLY the department CODE (e.g., PWD, TRAFFIC, SANITATION)`,
		orNA(category), truncate(orNA(description), 150), strings.Join(lines, "\n"))

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	code := strings.ToUpper(strings.TrimSpace(stripFences(text)))
	for _, opt := range options {
		if opt.Code == code {
			return code, nil
		}
	}
	return "", apperrors.NewOracleUnavailable(fmt.Errorf("unknown department code %q", code))
}

// AssessEscalation decides whether the issue should climb a level.
func (c *Client) AssessEscalation(ctx context.Context, input EscalationInput) (EscalationJudgment, error) {
	prompt := fmt.Sprintf(`Analyze civic issue escalation:

Issue State: %s
Priority: %d (1=Critical, 2=High, 3=Medium, 4=Low)
Current Escalation Level: %d
Hours Since Creation: %.1f
Hours Until Deadline: %.1f
Category: %s

Determine if escalation is needed. Consider:
- SLA breach (negative deadline hours)
- Priority urgency
- Time criticality

Return ONLY valid JSON:
{"should_escalate": true/false, "new_level": 0-3, "reason": "max 80 chars"}`,
		input.State, input.Priority, input.CurrentLevel,
		input.HoursSinceCreation, input.HoursUntilDeadline,
		truncate(orNA(input.Description), 100))

	text, err := c.complete(ctx, prompt)
	if err != nil {
		return EscalationJudgment{}, err
	}

	var judgment EscalationJudgment
	if err := json.Unmarshal([]byte(stripFences(text)), &judgment); err != nil {
		c.logger.Warn("oracle escalation response unusable", zap.Error(err))
		return EscalationJudgment{}, apperrors.NewOracleUnavailable(err)
	}
	return judgment, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
