package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Message is one outbound notification.
type Message struct {
	Kind       string   `json:"kind"`
	IssueID    string   `json:"issue_id"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

// Notifier delivers notifications to an external channel. Delivery is
// best effort; callers treat failures as log-worthy, never fatal.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the application log. It is the
// default channel when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier instantiates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("notification sent",
		zap.String("kind", msg.Kind),
		zap.String("issue_id", msg.IssueID),
		zap.String("subject", msg.Subject),
		zap.Strings("recipients", msg.Recipients))
	return nil
}

// WebhookNotifier posts notifications as JSON to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier instantiates a webhook-backed notifier.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}

// FromConfig selects the webhook channel when a URL is configured and
// falls back to logging otherwise.
func FromConfig(webhookURL string, logger *zap.Logger) Notifier {
	if webhookURL != "" {
		return NewWebhookNotifier(webhookURL, logger)
	}
	return NewLogNotifier(logger)
}
