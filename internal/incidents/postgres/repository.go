// Package postgres provides the PostgreSQL implementation of the incidents
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourlook/safeline/internal/domain"
	"github.com/yourlook/safeline/internal/incidents"
)

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIncident persists a new incident.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			id, initiator_id, initiator_name, status,
			latitude, longitude, address,
			current_latitude, current_longitude, current_address,
			has_live_chat, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`
	_, err := r.db.Exec(ctx, query,
		incident.ID,
		incident.InitiatorID,
		incident.InitiatorName,
		incident.Status,
		incident.Location.Latitude,
		incident.Location.Longitude,
		incident.Location.Address,
		incident.CurrentLocation.Latitude,
		incident.CurrentLocation.Longitude,
		incident.CurrentLocation.Address,
		incident.HasLiveChat,
		incident.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident with its responders and messages.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `
		SELECT id, initiator_id, initiator_name, status,
		       latitude, longitude, address,
		       current_latitude, current_longitude, current_address,
		       has_live_chat, created_at, updated_at, resolved_at
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.InitiatorID,
		&incident.InitiatorName,
		&incident.Status,
		&incident.Location.Latitude,
		&incident.Location.Longitude,
		&incident.Location.Address,
		&incident.CurrentLocation.Latitude,
		&incident.CurrentLocation.Longitude,
		&incident.CurrentLocation.Address,
		&incident.HasLiveChat,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	if err := r.loadResponders(ctx, &incident); err != nil {
		return nil, err
	}
	if err := r.loadMessages(ctx, &incident); err != nil {
		return nil, err
	}
	return &incident, nil
}

// ListIncidents retrieves incidents matching the filters, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filters incidents.IncidentFilters) ([]*domain.Incident, error) {
	query := `
		SELECT id, initiator_id, initiator_name, status,
		       latitude, longitude, address,
		       current_latitude, current_longitude, current_address,
		       has_live_chat, created_at, updated_at, resolved_at
		FROM incidents
		WHERE 1=1
	`
	args := []any{}
	argPos := 1

	if filters.Resolved != nil {
		if *filters.Resolved {
			query += fmt.Sprintf(" AND status = $%d", argPos)
		} else {
			query += fmt.Sprintf(" AND status <> $%d", argPos)
		}
		args = append(args, domain.IncidentStatusResolved)
		argPos++
	}
	if filters.InitiatorID != "" {
		query += fmt.Sprintf(" AND initiator_id = $%d", argPos)
		args = append(args, filters.InitiatorID)
		argPos++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filters.Limit)
		argPos++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filters.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Incident, 0)
	for rows.Next() {
		var incident domain.Incident
		err := rows.Scan(
			&incident.ID,
			&incident.InitiatorID,
			&incident.InitiatorName,
			&incident.Status,
			&incident.Location.Latitude,
			&incident.Location.Longitude,
			&incident.Location.Address,
			&incident.CurrentLocation.Latitude,
			&incident.CurrentLocation.Longitude,
			&incident.CurrentLocation.Address,
			&incident.HasLiveChat,
			&incident.CreatedAt,
			&incident.UpdatedAt,
			&incident.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		list = append(list, &incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	for _, incident := range list {
		if err := r.loadResponders(ctx, incident); err != nil {
			return nil, err
		}
		if err := r.loadMessages(ctx, incident); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// UpdateStatus sets the status using compare-and-set against the terminal
// state: a resolved incident never matches, so the write cannot move a
// terminal incident.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.IncidentStatus) (bool, error) {
	query := `
		UPDATE incidents
		SET status = $2,
		    resolved_at = CASE WHEN $2 = 'resolved' THEN NOW() ELSE resolved_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'resolved'
	`
	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// AddResponder records a responder assignment. Re-adding is a no-op.
func (r *Repository) AddResponder(ctx context.Context, incidentID, responderID string) error {
	query := `
		INSERT INTO incident_responders (incident_id, responder_id)
		VALUES ($1, $2)
		ON CONFLICT (incident_id, responder_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, incidentID, responderID); err != nil {
		return fmt.Errorf("add responder: %w", err)
	}
	return nil
}

// AppendMessage inserts a chat message. The seq column carries insertion
// order so display order survives identical timestamps.
func (r *Repository) AppendMessage(ctx context.Context, message *domain.ChatMessage) error {
	query := `
		INSERT INTO incident_messages (id, incident_id, sender_id, sender_name, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		message.ID,
		message.IncidentID,
		message.SenderID,
		message.SenderName,
		message.Message,
		message.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// CountMessages returns the number of messages on an incident.
func (r *Repository) CountMessages(ctx context.Context, incidentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM incident_messages WHERE incident_id = $1`,
		incidentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// UpdateCurrentLocation updates the live location of a non-resolved
// incident. The activation-time columns are untouched.
func (r *Repository) UpdateCurrentLocation(ctx context.Context, id string, location domain.Location) (bool, error) {
	query := `
		UPDATE incidents
		SET current_latitude = $2, current_longitude = $3, current_address = $4, updated_at = NOW()
		WHERE id = $1 AND status <> 'resolved'
	`
	result, err := r.db.Exec(ctx, query, id, location.Latitude, location.Longitude, location.Address)
	if err != nil {
		return false, fmt.Errorf("update current location: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *Repository) loadResponders(ctx context.Context, incident *domain.Incident) error {
	rows, err := r.db.Query(ctx,
		`SELECT responder_id FROM incident_responders WHERE incident_id = $1 ORDER BY created_at`,
		incident.ID,
	)
	if err != nil {
		return fmt.Errorf("load responders: %w", err)
	}
	defer rows.Close()

	incident.Responders = make([]string, 0)
	for rows.Next() {
		var responderID string
		if err := rows.Scan(&responderID); err != nil {
			return fmt.Errorf("scan responder: %w", err)
		}
		incident.Responders = append(incident.Responders, responderID)
	}
	return rows.Err()
}

func (r *Repository) loadMessages(ctx context.Context, incident *domain.Incident) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, incident_id, sender_id, sender_name, message, created_at
		FROM incident_messages
		WHERE incident_id = $1
		ORDER BY seq
	`, incident.ID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	incident.Messages = make([]domain.ChatMessage, 0)
	for rows.Next() {
		var msg domain.ChatMessage
		err := rows.Scan(
			&msg.ID,
			&msg.IncidentID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Message,
			&msg.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		incident.Messages = append(incident.Messages, msg)
	}
	return rows.Err()
}
