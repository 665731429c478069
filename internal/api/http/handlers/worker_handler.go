package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/auth"
	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/service"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// WorkerHandler manages field member endpoints.
type WorkerHandler struct {
	workers *service.WorkerService
}

// NewWorkerHandler constructs handler.
func NewWorkerHandler(workers *service.WorkerService) *WorkerHandler {
	return &WorkerHandler{workers: workers}
}

// Login POST /workers/login.
func (h *WorkerHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	token, member, err := h.workers.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:  token,
		Member: memberResponse(member),
	}})
}

// Tasks GET /workers/tasks.
func (h *WorkerHandler) Tasks(c *fiber.Ctx) error {
	member, ok := auth.MemberFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("member required")
	}
	issues, err := h.workers.Tasks(c.Context(), member.ID)
	if err != nil {
		return err
	}
	items := make([]dto.IssueResponse, 0, len(issues))
	for i := range issues {
		items = append(items, issueResponse(&issues[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// StartTask POST /workers/tasks/:id/start.
func (h *WorkerHandler) StartTask(c *fiber.Ctx) error {
	member, ok := auth.MemberFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("member required")
	}
	issue, err := h.workers.StartTask(c.Context(), member.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// CompleteTask POST /workers/tasks/:id/complete.
func (h *WorkerHandler) CompleteTask(c *fiber.Ctx) error {
	member, ok := auth.MemberFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("member required")
	}
	var req dto.CompleteTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.workers.CompleteTask(c.Context(), member.ID, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

// Resolve POST /workers/issues/:id/resolve (supervisor only).
func (h *WorkerHandler) Resolve(c *fiber.Ctx) error {
	member, ok := auth.MemberFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("member required")
	}
	var req dto.ResolveIssueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.workers.Resolve(c.Context(), member.ID, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(issue)})
}

func memberResponse(member *domain.Member) dto.MemberResponse {
	return dto.MemberResponse{
		ID:              member.ID,
		Name:            member.Name,
		Email:           member.Email,
		Role:            string(member.Role),
		DepartmentID:    member.DepartmentID,
		City:            member.City,
		Locality:        member.Locality,
		CurrentWorkload: member.CurrentWorkload,
		MaxWorkload:     member.MaxWorkload,
	}
}
