package handlers

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/api/dto"
	"github.com/spec-kit/civic-issue-service/internal/flow"
	apperrors "github.com/spec-kit/civic-issue-service/pkg/util"
)

// FlowsHandler exposes live pipeline progress.
type FlowsHandler struct {
	registry  *flow.Registry
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewFlowsHandler constructs handler.
func NewFlowsHandler(registry *flow.Registry, heartbeat time.Duration, logger *zap.Logger) *FlowsHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &FlowsHandler{registry: registry, heartbeat: heartbeat, logger: logger}
}

// Active GET /flows/active.
func (h *FlowsHandler) Active(c *fiber.Ctx) error {
	flows := h.registry.Active()
	items := make([]dto.ActiveFlowResponse, 0, len(flows))
	for _, f := range flows {
		items = append(items, dto.ActiveFlowResponse{
			IssueID:    f.IssueID,
			Status:     f.Status,
			StepsCount: f.StepsCount,
			StartedAt:  f.StartedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Snapshot GET /flows/:issue_id.
func (h *FlowsHandler) Snapshot(c *fiber.Ctx) error {
	tracker := h.registry.Get(c.Params("issue_id"))
	if tracker == nil {
		return apperrors.NewNotFound("flow", map[string]any{"issue_id": c.Params("issue_id")})
	}
	return c.JSON(fiber.Map{"data": tracker.Snapshot()})
}

// Stream GET /flows/:issue_id/stream serves server-sent events: every
// recorded step is replayed first, then live updates until the flow
// finishes or the client disconnects.
func (h *FlowsHandler) Stream(c *fiber.Ctx) error {
	issueID := c.Params("issue_id")
	tracker := h.registry.Get(issueID)
	if tracker == nil {
		return apperrors.NewNotFound("flow", map[string]any{"issue_id": issueID})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	heartbeat := h.heartbeat
	logger := h.logger
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		queue := tracker.Subscribe()
		defer tracker.Unsubscribe(queue)

		if err := writeSSE(w, flow.Message{
			Type:      flow.MessageConnected,
			Timestamp: time.Now().UTC(),
			Data:      map[string]any{"issue_id": issueID},
		}); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-queue:
				if !ok {
					return
				}
				if err := writeSSE(w, msg); err != nil {
					return
				}
				if msg.Type == flow.MessageFlowCompleted || msg.Type == flow.MessageFlowError {
					return
				}
				ticker.Reset(heartbeat)
			case <-ticker.C:
				// Heartbeats only go out when the stream has been idle
				// for a full interval.
				if err := writeSSE(w, flow.Message{
					Type:      flow.MessageHeartbeat,
					Timestamp: time.Now().UTC(),
				}); err != nil {
					logger.Debug("flow stream client gone",
						zap.String("issue_id", issueID))
					return
				}
			}
		}
	})
	return nil
}

func writeSSE(w *bufio.Writer, msg flow.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
