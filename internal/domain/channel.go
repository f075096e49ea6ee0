package domain

import "time"

// ChannelType represents the transport for responder alerts.
type ChannelType string

// Channel types.
const (
	ChannelTypeEmail    ChannelType = "email"
	ChannelTypeTelegram ChannelType = "telegram"
	ChannelTypeWebhook  ChannelType = "webhook"
)

// IsValid checks if the channel type is known.
func (t ChannelType) IsValid() bool {
	return t == ChannelTypeEmail || t == ChannelTypeTelegram || t == ChannelTypeWebhook
}

// AlertChannel is a delivery target for emergency alerts, owned by a
// responder. Alerts fan out to every enabled channel of every on-duty
// responder.
type AlertChannel struct {
	ID          string      `json:"id"`
	ResponderID string      `json:"responder_id"`
	Type        ChannelType `json:"type"`
	Target      string      `json:"target"`
	IsEnabled   bool        `json:"is_enabled"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
