// Package telegram provides alert delivery via the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yourlook/safeline/internal/alerts"
	"github.com/yourlook/safeline/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultAPIBaseURL = "https://api.telegram.org"
	defaultTimeout    = 10 * time.Second
	// Bot API global limit is ~30 messages per second.
	defaultRateLimit = 25.0
)

// Config holds telegram sender configuration.
type Config struct {
	Enabled    bool
	BotToken   string
	RateLimit  float64
	APIBaseURL string
	Timeout    time.Duration
}

// Sender implements telegram alert delivery. Sends are throttled through a
// shared rate limiter so a burst of incidents cannot trip the Bot API
// flood control.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new telegram sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.BotToken == "" {
			return nil, errors.New("telegram sender: bot token is required when enabled")
		}
	}

	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	slog.Info("telegram sender configured",
		"enabled", config.Enabled,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeTelegram
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Send sends a telegram alert. notification.To contains the chat ID.
func (s *Sender) Send(ctx context.Context, notification alerts.Notification) error {
	if !s.config.Enabled {
		slog.Debug("telegram sender disabled, skipping", "to", notification.To)
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return alerts.NewRetryableError(fmt.Errorf("rate limiter: %w", err))
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    notification.To,
		Text:      notification.Body,
		ParseMode: "Markdown",
	})
	if err != nil {
		return alerts.NewNonRetryableError(fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.config.APIBaseURL, s.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return alerts.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return alerts.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, notification.To)
}

func (s *Sender) handleResponse(resp *http.Response, chatID string) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return alerts.NewRetryableError(fmt.Errorf("read response: %w", err))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.OK {
		slog.Debug("telegram message sent", "chat_id", chatID)
		return nil
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return alerts.NewRetryableError(
			fmt.Errorf("telegram error %d: %s", resp.StatusCode, apiResp.Description))
	default:
		// 400 (bad chat id), 401/403 (revoked token, blocked bot) never
		// succeed on retry.
		return alerts.NewNonRetryableError(
			fmt.Errorf("telegram error %d: %s", resp.StatusCode, apiResp.Description))
	}
}
