// Package alerts delivers responder notifications for emergency incidents
// through configurable channels backed by a durable queue.
package alerts

import (
	"context"
	"time"

	"github.com/yourlook/safeline/internal/domain"
)

// Repository defines the interface for alerts data access.
type Repository interface {
	// Channel CRUD
	CreateChannel(ctx context.Context, channel *domain.AlertChannel) error
	GetChannelByID(ctx context.Context, id string) (*domain.AlertChannel, error)
	ListResponderChannels(ctx context.Context, responderID string) ([]domain.AlertChannel, error)
	UpdateChannel(ctx context.Context, channel *domain.AlertChannel) error
	DeleteChannel(ctx context.Context, id string) error

	// Duty roster
	SetOnDuty(ctx context.Context, responderID string, onDuty bool) error
	IsOnDuty(ctx context.Context, responderID string) (bool, error)

	// FindOnDutyChannels returns every enabled channel belonging to a
	// responder currently marked on duty.
	FindOnDutyChannels(ctx context.Context) ([]ChannelInfo, error)

	// Delivery queue
	EnqueueBatch(ctx context.Context, items []*QueueItem) error
	FetchPending(ctx context.Context, limit int) ([]*QueueItem, error)
	MarkAsSent(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, sendErr error) error
	MarkForRetry(ctx context.Context, id string, sendErr error, nextAttempt time.Time) error
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}

// ChannelInfo contains alert channel info for the dispatcher.
type ChannelInfo struct {
	ID          string
	ResponderID string
	Type        domain.ChannelType
	Target      string
}
