package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-issue-service/internal/flow"
)

func decodeStream(t *testing.T, body []byte) []flow.Message {
	t.Helper()
	var msgs []flow.Message
	for _, line := range strings.Split(string(body), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg flow.Message
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg))
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestStreamGreetsReplaysAndCompletes(t *testing.T) {
	registry := flow.NewRegistry(16)
	tracker := registry.Create("issue-1")
	tracker.StartStep("classification_agent")
	tracker.CompleteStep("classification_agent", "validated", "clear detection", nil, "")

	handler := NewFlowsHandler(registry, 20*time.Millisecond, zap.NewNop())
	app := fiber.New()
	app.Get("/flows/:issue_id/stream", handler.Stream)

	go func() {
		time.Sleep(150 * time.Millisecond)
		tracker.CompleteFlow(map[string]any{"state": "assigned"})
	}()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/flows/issue-1/stream", nil), 2000)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	msgs := decodeStream(t, body)
	require.NotEmpty(t, msgs)

	require.Equal(t, flow.MessageConnected, msgs[0].Type)
	greeting, ok := msgs[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "issue-1", greeting["issue_id"])

	types := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		types = append(types, msg.Type)
	}
	assert.Contains(t, types, flow.MessageStepStarted)
	assert.Contains(t, types, flow.MessageStepCompleted)
	assert.Contains(t, types, flow.MessageHeartbeat)
	assert.Equal(t, flow.MessageFlowCompleted, msgs[len(msgs)-1].Type)
}
