package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-issue-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-issue-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Issues         *handlers.IssuesHandler
	Flows          *handlers.FlowsHandler
	Workers        *handlers.WorkerHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	issues := app.Group("/issues")
	issues.Post("", cfg.Issues.Create)
	issues.Get("/:id", cfg.Issues.Get)
	issues.Get("/:id/timeline", cfg.Issues.Timeline)
	issues.Post("/:id/confirm", cfg.Issues.Confirm)
	issues.Post("/:id/reject", cfg.Issues.Reject)
	issues.Post("/:id/verify", cfg.Issues.Verify)
	issues.Post("/:id/close", cfg.Issues.Close)

	flows := app.Group("/flows")
	flows.Get("/active", cfg.Flows.Active)
	flows.Get("/:issue_id", cfg.Flows.Snapshot)
	flows.Get("/:issue_id/stream", cfg.Flows.Stream)

	workers := app.Group("/workers")
	workers.Post("/login", cfg.Workers.Login)

	protected := workers.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/tasks", cfg.Workers.Tasks)
	protected.Post("/tasks/:id/start", cfg.Workers.StartTask)
	protected.Post("/tasks/:id/complete", cfg.Workers.CompleteTask)
	protected.Post("/issues/:id/resolve", auth.RequireSupervisor(), cfg.Workers.Resolve)
}
