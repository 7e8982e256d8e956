// Package notify delivers fire-and-forget notifications about coin grants.
// Delivery failures are logged and swallowed; no caller awaits a notification
// for correctness.
package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Sink receives account-facing notifications.
type Sink interface {
	Notify(accountID, title, body string)
}

// LogSink writes notifications to the structured log. Used when no webhook
// endpoint is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Notify(accountID, title, body string) {
	s.Logger.Info("notification", "account_id", accountID, "title", title, "body", body)
}

// WebhookSink posts notifications as JSON to an external delivery endpoint.
type WebhookSink struct {
	URL    string
	Logger *slog.Logger
	client *http.Client
}

// NewWebhookSink creates a webhook sink with a bounded request timeout.
func NewWebhookSink(url string, logger *slog.Logger) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Logger: logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type webhookPayload struct {
	AccountID string `json:"account_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// Notify sends the payload in the background so callers never block on the
// delivery endpoint.
func (s *WebhookSink) Notify(accountID, title, body string) {
	go func() {
		jsonData, err := json.Marshal(webhookPayload{AccountID: accountID, Title: title, Body: body})
		if err != nil {
			s.Logger.Warn("notification payload marshal failed", "error", err)
			return
		}

		req, err := http.NewRequest(http.MethodPost, s.URL, bytes.NewBuffer(jsonData))
		if err != nil {
			s.Logger.Warn("notification request build failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.Logger.Warn("notification delivery failed", "account_id", accountID, "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			s.Logger.Warn("notification endpoint returned error", "account_id", accountID, "status", resp.StatusCode)
		}
	}()
}
