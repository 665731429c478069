package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/service"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// IssuesHandler manages citizen-facing issue endpoints.
type IssuesHandler struct {
	ingestion *service.IngestionService
	issues    *service.IssueService
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(ingestion *service.IngestionService, issues *service.IssueService) *IssuesHandler {
	return &IssuesHandler{ingestion: ingestion, issues: issues}
}

// Create POST /issues.
func (h *IssuesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	issue, err := h.ingestion.Report(c.Context(), service.ReportInput{
		ReporterID:     req.ReporterID,
		Description:    req.Description,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": issueResponse(issue)})
}

// Get GET /issues/:id.
func (h *IssuesHandler) Get(c *fiber.Ctx) error {
	issue, err := h.issues.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// Timeline GET /issues/:id/timeline.
func (h *IssuesHandler) Timeline(c *fiber.Ctx) error {
	id := c.Params("id")
	timeline, err := h.issues.GetTimeline(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": timelineResponse(id, timeline)})
}

// Confirm POST /issues/:id/confirm.
func (h *IssuesHandler) Confirm(c *fiber.Ctx) error {
	issue, err := h.issues.Confirm(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// Reject POST /issues/:id/reject.
func (h *IssuesHandler) Reject(c *fiber.Ctx) error {
	var req dto.RejectIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.issues.Reject(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// Verify POST /issues/:id/verify.
func (h *IssuesHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.issues.Verify(c.Context(), c.Params("id"), req.Approved, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// Close POST /issues/:id/close.
func (h *IssuesHandler) Close(c *fiber.Ctx) error {
	issue, err := h.issues.Close(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

func issueResponse(issue *domain.Issue) dto.IssueResponse {
	return dto.IssueResponse{
		ID:               issue.ID,
		ReporterID:       issue.ReporterID,
		Description:      issue.Description,
		Latitude:         issue.Latitude,
		Longitude:        issue.Longitude,
		AccuracyMeters:   issue.AccuracyMeters,
		State:            string(issue.State),
		Priority:         issue.Priority,
		PriorityReason:   issue.PriorityReason,
		Category:         issue.Category,
		Confidence:       issue.Confidence,
		ValidationReason: issue.ValidationReason,
		IsDuplicate:      issue.IsDuplicate,
		ParentIssueID:    issue.ParentIssueID,
		DepartmentID:     issue.DepartmentID,
		AssignedMemberID: issue.AssignedMemberID,
		City:             issue.City,
		Locality:         issue.Locality,
		SLAHours:         issue.SLAHours,
		SLADeadline:      issue.SLADeadline,
		EscalationLevel:  issue.EscalationLevel,
		EscalatedAt:      issue.EscalatedAt,
		ResolvedAt:       issue.ResolvedAt,
		ResolutionNotes:  issue.ResolutionNotes,
		CreatedAt:        issue.CreatedAt,
		UpdatedAt:        issue.UpdatedAt,
	}
}

func timelineResponse(issueID string, timeline *service.Timeline) dto.TimelineResponse {
	entries := make([]dto.TimelineEntry, 0, len(timeline.Events))
	for _, event := range timeline.Events {
		entries = append(entries, dto.TimelineEntry{
			ID:        event.ID,
			EventType: event.EventType,
			AgentName: event.AgentName,
			Data:      event.Data,
			CreatedAt: event.CreatedAt,
		})
	}
	escalations := make([]dto.EscalationEntry, 0, len(timeline.Escalations))
	for _, escalation := range timeline.Escalations {
		escalations = append(escalations, dto.EscalationEntry{
			ID:             escalation.ID,
			FromLevel:      escalation.FromLevel,
			ToLevel:        escalation.ToLevel,
			Reason:         escalation.Reason,
			EscalatedBy:    escalation.EscalatedBy,
			NotifiedEmails: escalation.NotifiedEmails,
			CreatedAt:      escalation.CreatedAt,
		})
	}
	return dto.TimelineResponse{
		IssueID:     issueID,
		Events:      entries,
		Escalations: escalations,
	}
}
