package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trading-alerts/internal/model"
)

// webhookPayload is the JSON body posted to webhook destinations.
type webhookPayload struct {
	AlertID      string          `json:"alert_id"`
	Symbol       string          `json:"symbol"`
	Indicator    string          `json:"indicator"`
	Output       string          `json:"indicator_output,omitempty"`
	Condition    model.Condition `json:"condition"`
	Threshold    float64         `json:"threshold"`
	CurrentValue float64         `json:"current_value"`
	Timeframe    string          `json:"timeframe"`
	TriggeredAt  string          `json:"triggered_at"`
}

// WebhookSender posts trigger events to HTTP endpoints.
type WebhookSender struct {
	client *http.Client
}

// NewWebhookSender creates a webhook sender with a request timeout.
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{client: &http.Client{Timeout: timeout}}
}

// Send posts ev to url. Any 2xx status is success.
func (w *WebhookSender) Send(ctx context.Context, url string, ev model.TriggerEvent) error {
	body, err := json.Marshal(webhookPayload{
		AlertID:      ev.AlertID,
		Symbol:       ev.Symbol,
		Indicator:    ev.Indicator,
		Output:       ev.Output,
		Condition:    ev.Condition,
		Threshold:    ev.Threshold,
		CurrentValue: ev.CurrentValue,
		Timeframe:    ev.Timeframe,
		TriggeredAt:  ev.TriggeredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
