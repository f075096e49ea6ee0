// Package postgres provides the PostgreSQL implementation of the alerts
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourlook/safeline/internal/alerts"
	"github.com/yourlook/safeline/internal/domain"
)

// Repository implements alerts.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateChannel creates a new alert channel.
func (r *Repository) CreateChannel(ctx context.Context, channel *domain.AlertChannel) error {
	query := `
		INSERT INTO alert_channels (responder_id, type, target, is_enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	return r.db.QueryRow(ctx, query,
		channel.ResponderID,
		channel.Type,
		channel.Target,
		channel.IsEnabled,
	).Scan(&channel.ID, &channel.CreatedAt, &channel.UpdatedAt)
}

// GetChannelByID retrieves an alert channel by ID.
func (r *Repository) GetChannelByID(ctx context.Context, id string) (*domain.AlertChannel, error) {
	query := `
		SELECT id, responder_id, type, target, is_enabled, created_at, updated_at
		FROM alert_channels
		WHERE id = $1
	`
	var channel domain.AlertChannel
	err := r.db.QueryRow(ctx, query, id).Scan(
		&channel.ID,
		&channel.ResponderID,
		&channel.Type,
		&channel.Target,
		&channel.IsEnabled,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, alerts.ErrChannelNotFound
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &channel, nil
}

// ListResponderChannels retrieves all alert channels for a responder.
func (r *Repository) ListResponderChannels(ctx context.Context, responderID string) ([]domain.AlertChannel, error) {
	query := `
		SELECT id, responder_id, type, target, is_enabled, created_at, updated_at
		FROM alert_channels
		WHERE responder_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, responderID)
	if err != nil {
		return nil, fmt.Errorf("list responder channels: %w", err)
	}
	defer rows.Close()

	channels := make([]domain.AlertChannel, 0)
	for rows.Next() {
		var channel domain.AlertChannel
		err := rows.Scan(
			&channel.ID,
			&channel.ResponderID,
			&channel.Type,
			&channel.Target,
			&channel.IsEnabled,
			&channel.CreatedAt,
			&channel.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, channel)
	}

	return channels, rows.Err()
}

// UpdateChannel updates an existing alert channel.
func (r *Repository) UpdateChannel(ctx context.Context, channel *domain.AlertChannel) error {
	query := `
		UPDATE alert_channels
		SET is_enabled = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, channel.ID, channel.IsEnabled).Scan(&channel.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return alerts.ErrChannelNotFound
		}
		return fmt.Errorf("update channel: %w", err)
	}
	return nil
}

// DeleteChannel deletes an alert channel.
func (r *Repository) DeleteChannel(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM alert_channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}

	if result.RowsAffected() == 0 {
		return alerts.ErrChannelNotFound
	}
	return nil
}

// SetOnDuty upserts the responder's duty state.
func (r *Repository) SetOnDuty(ctx context.Context, responderID string, onDuty bool) error {
	query := `
		INSERT INTO responder_duty (responder_id, on_duty, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (responder_id) DO UPDATE SET on_duty = $2, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, responderID, onDuty); err != nil {
		return fmt.Errorf("set on duty: %w", err)
	}
	return nil
}

// IsOnDuty returns the responder's duty state. A responder without a duty
// row has never toggled duty and is off duty.
func (r *Repository) IsOnDuty(ctx context.Context, responderID string) (bool, error) {
	var onDuty bool
	err := r.db.QueryRow(ctx,
		`SELECT on_duty FROM responder_duty WHERE responder_id = $1`,
		responderID,
	).Scan(&onDuty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get duty: %w", err)
	}
	return onDuty, nil
}

// FindOnDutyChannels finds every enabled channel of every on-duty responder.
func (r *Repository) FindOnDutyChannels(ctx context.Context) ([]alerts.ChannelInfo, error) {
	query := `
		SELECT ac.id, ac.responder_id, ac.type, ac.target
		FROM alert_channels ac
		JOIN responder_duty rd ON rd.responder_id = ac.responder_id
		WHERE ac.is_enabled = true AND rd.on_duty = true
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find on-duty channels: %w", err)
	}
	defer rows.Close()

	channels := make([]alerts.ChannelInfo, 0)
	for rows.Next() {
		var info alerts.ChannelInfo
		if err := rows.Scan(&info.ID, &info.ResponderID, &info.Type, &info.Target); err != nil {
			return nil, fmt.Errorf("scan channel info: %w", err)
		}
		channels = append(channels, info)
	}

	return channels, rows.Err()
}

// EnqueueBatch inserts queue items in one transaction. The unique index on
// (incident_id, channel_id, message_type) makes re-enqueueing the same
// alert a no-op.
func (r *Repository) EnqueueBatch(ctx context.Context, items []*alerts.QueueItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO alert_queue (id, incident_id, channel_id, message_type, payload, status, attempts, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (incident_id, channel_id, message_type) DO NOTHING
	`
	for _, item := range items {
		_, err := tx.Exec(ctx, query,
			item.ID,
			item.IncidentID,
			item.ChannelID,
			item.MessageType,
			item.Payload,
			item.Status,
			item.Attempts,
			item.MaxAttempts,
			item.NextAttemptAt,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("enqueue item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FetchPending claims due queue items for processing. SKIP LOCKED lets
// concurrent workers drain the queue without claiming the same row twice.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]*alerts.QueueItem, error) {
	query := `
		UPDATE alert_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM alert_queue
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, incident_id, channel_id, message_type, payload, status, attempts, max_attempts, next_attempt_at, last_error, created_at, updated_at, sent_at
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending: %w", err)
	}
	defer rows.Close()

	items := make([]*alerts.QueueItem, 0)
	for rows.Next() {
		var item alerts.QueueItem
		err := rows.Scan(
			&item.ID,
			&item.IncidentID,
			&item.ChannelID,
			&item.MessageType,
			&item.Payload,
			&item.Status,
			&item.Attempts,
			&item.MaxAttempts,
			&item.NextAttemptAt,
			&item.LastError,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// MarkAsSent marks a queue item as delivered.
func (r *Repository) MarkAsSent(ctx context.Context, id string) error {
	query := `
		UPDATE alert_queue
		SET status = 'sent', sent_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark as sent: %w", err)
	}
	return nil
}

// MarkAsFailed marks a queue item as permanently failed.
func (r *Repository) MarkAsFailed(ctx context.Context, id string, sendErr error) error {
	query := `
		UPDATE alert_queue
		SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, errString(sendErr)); err != nil {
		return fmt.Errorf("mark as failed: %w", err)
	}
	return nil
}

// MarkForRetry returns a queue item to pending with a future attempt time.
func (r *Repository) MarkForRetry(ctx context.Context, id string, sendErr error, nextAttempt time.Time) error {
	query := `
		UPDATE alert_queue
		SET status = 'pending', attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, errString(sendErr), nextAttempt); err != nil {
		return fmt.Errorf("mark for retry: %w", err)
	}
	return nil
}

// GetQueueStats returns queue size counters by status.
func (r *Repository) GetQueueStats(ctx context.Context) (*alerts.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM alert_queue
	`
	var stats alerts.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Processing, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
