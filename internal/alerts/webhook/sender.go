// Package webhook provides alert delivery via outgoing HTTP webhooks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourlook/safeline/internal/alerts"
	"github.com/yourlook/safeline/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Config holds webhook sender configuration.
// The webhook URL is stored per-channel in alert_channels.target, so global
// configuration is minimal and there is no Enabled flag.
type Config struct {
	Timeout time.Duration
}

// Sender implements alert delivery via JSON POST to a per-channel URL.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new webhook sender.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeWebhook
}

type webhookPayload struct {
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text"`
}

// Send posts the alert to the channel's webhook URL.
// notification.To contains the webhook URL.
func (s *Sender) Send(ctx context.Context, notification alerts.Notification) error {
	webhookURL := notification.To
	if webhookURL == "" {
		return alerts.NewNonRetryableError(fmt.Errorf("webhook URL is empty"))
	}

	body, err := json.Marshal(webhookPayload{
		Subject: notification.Subject,
		Text:    notification.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return alerts.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, webhookURL)
}

func (s *Sender) handleResponse(resp *http.Response, webhookURL string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("webhook alert sent", "webhook", maskWebhookURL(webhookURL))
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return alerts.NewRetryableError(
			fmt.Errorf("webhook error %d: rate limited", resp.StatusCode))

	case resp.StatusCode >= 500:
		return alerts.NewRetryableError(
			fmt.Errorf("webhook error %d: %s", resp.StatusCode, string(body)))

	default:
		// 4xx means a misconfigured or revoked endpoint.
		return alerts.NewNonRetryableError(
			fmt.Errorf("webhook error %d: %s", resp.StatusCode, string(body)))
	}
}

// maskWebhookURL hides part of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
