package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourlook/safeline/internal/domain"
)

// NotifierConfig holds notifier configuration.
type NotifierConfig struct {
	// MaxAttempts is carried onto every enqueued item and bounds delivery
	// retries.
	MaxAttempts int
	// BaseURL is the public console URL used to build incident links.
	BaseURL string
}

// DefaultNotifierConfig returns default notifier configuration.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{MaxAttempts: 3}
}

// Notifier fans incident events out to the delivery queue. It implements
// the notifier contract of the incidents service: enqueueing is the only
// work done inline, actual sending happens in the worker.
type Notifier struct {
	config NotifierConfig
	repo   Repository
}

// NewNotifier creates a new alert notifier.
func NewNotifier(config NotifierConfig, repo Repository) *Notifier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultNotifierConfig().MaxAttempts
	}
	return &Notifier{config: config, repo: repo}
}

// OnIncidentCreated enqueues an alert for every enabled channel of every
// on-duty responder.
func (n *Notifier) OnIncidentCreated(ctx context.Context, incident *domain.Incident) error {
	payload := NewAlertPayload(incident, n.buildIncidentURL(incident.ID))
	return n.enqueueForOnDuty(ctx, incident.ID, MessageTypeAlert, payload)
}

// OnIncidentResolved enqueues a resolution notice so responders who never
// opened the console learn the emergency ended.
func (n *Notifier) OnIncidentResolved(ctx context.Context, incident *domain.Incident) error {
	payload := NewResolvedPayload(incident, n.buildIncidentURL(incident.ID))
	return n.enqueueForOnDuty(ctx, incident.ID, MessageTypeResolved, payload)
}

func (n *Notifier) enqueueForOnDuty(ctx context.Context, incidentID string, messageType MessageType, payload AlertPayload) error {
	channels, err := n.repo.FindOnDutyChannels(ctx)
	if err != nil {
		return fmt.Errorf("find on-duty channels: %w", err)
	}

	if len(channels) == 0 {
		// An emergency with nobody to page is worth shouting about.
		slog.Warn("no on-duty alert channels configured",
			"incident_id", incidentID,
			"message_type", messageType,
		)
		return nil
	}

	now := time.Now().UTC()
	items := make([]*QueueItem, 0, len(channels))
	for _, ch := range channels {
		items = append(items, &QueueItem{
			ID:            uuid.New().String(),
			IncidentID:    incidentID,
			ChannelID:     ch.ID,
			MessageType:   messageType,
			Payload:       payload,
			Status:        QueueStatusPending,
			MaxAttempts:   n.config.MaxAttempts,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := n.repo.EnqueueBatch(ctx, items); err != nil {
		return fmt.Errorf("enqueue alerts: %w", err)
	}

	slog.Info("responder alerts enqueued",
		"incident_id", incidentID,
		"message_type", messageType,
		"channel_count", len(items),
	)
	return nil
}

func (n *Notifier) buildIncidentURL(incidentID string) string {
	if n.config.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/console/incidents/%s", n.config.BaseURL, incidentID)
}
