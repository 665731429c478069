package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-issue-service/internal/domain"
	"github.com/spec-kit/civic-issue-service/internal/repository"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

const memberKey = "auth_member"

// Middleware validates bearer tokens and loads the calling member.
type Middleware struct {
	tokens  *Manager
	members repository.MemberRepository
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *Manager, members repository.MemberRepository) *Middleware {
	return &Middleware{tokens: tokens, members: members}
}

// Handle enforces authentication for member routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.Parse(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	member, err := m.members.GetByID(c.Context(), claims.MemberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("member not found")
		}
		return apperrors.MapError(err)
	}
	if !member.Active {
		return apperrors.NewUnauthorized("member disabled")
	}

	c.Locals(memberKey, member)
	return c.Next()
}

// RequireSupervisor restricts a route to supervisors.
func RequireSupervisor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		member, ok := MemberFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("member required")
		}
		if member.Role != domain.MemberRoleSupervisor {
			return apperrors.NewForbidden("supervisor role required")
		}
		return c.Next()
	}
}

// MemberFromContext retrieves the authenticated member.
func MemberFromContext(c *fiber.Ctx) (*domain.Member, bool) {
	val := c.Locals(memberKey)
	if val == nil {
		return nil, false
	}
	member, ok := val.(*domain.Member)
	return member, ok
}
