package incidents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yourlook/safeline/internal/domain"
)

// AlertNotifier is notified after an incident is created. Delivery is
// decoupled from the write that persists the incident: a notifier error is
// logged, never propagated to the activation path.
type AlertNotifier interface {
	OnIncidentCreated(ctx context.Context, incident *domain.Incident) error
	OnIncidentResolved(ctx context.Context, incident *domain.Incident) error
}

// ServiceConfig holds lifecycle service tuning.
type ServiceConfig struct {
	// MaxMessages bounds the chat per incident; the upstream contract has
	// no cap, so appends beyond this are rejected.
	MaxMessages int
	// AppendAttempts is how many times a chat append is retried before the
	// failure surfaces. Chat is best-effort relative to the incident, so
	// transient store failures retry transparently.
	AppendAttempts int
	// AppendRetryDelay is the pause between append attempts.
	AppendRetryDelay time.Duration
}

// DefaultServiceConfig returns default service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxMessages:      500,
		AppendAttempts:   3,
		AppendRetryDelay: 200 * time.Millisecond,
	}
}

// Service owns the incident state machine. It is the single authority for
// status transitions and message appends; both the victim session and the
// responder console mutate incidents only through it.
type Service struct {
	config   ServiceConfig
	repo     Repository
	hub      *Hub
	notifier AlertNotifier
}

// NewService creates a new incident lifecycle service. notifier may be nil.
func NewService(config ServiceConfig, repo Repository, hub *Hub, notifier AlertNotifier) *Service {
	if config.MaxMessages <= 0 {
		config.MaxMessages = DefaultServiceConfig().MaxMessages
	}
	if config.AppendAttempts <= 0 {
		config.AppendAttempts = DefaultServiceConfig().AppendAttempts
	}
	return &Service{
		config:   config,
		repo:     repo,
		hub:      hub,
		notifier: notifier,
	}
}

// CreateIncident creates a new active incident for the initiator and alerts
// the responder pool. The creation-time location is snapshotted into both
// Location (immutable) and CurrentLocation (live).
func (s *Service) CreateIncident(ctx context.Context, initiatorID, initiatorName string, location domain.Location) (*domain.Incident, error) {
	now := time.Now().UTC()
	incident := &domain.Incident{
		ID:              uuid.New().String(),
		InitiatorID:     initiatorID,
		InitiatorName:   initiatorName,
		Status:          domain.IncidentStatusActive,
		Location:        location,
		CurrentLocation: location,
		HasLiveChat:     true,
		Responders:      []string{},
		Messages:        []domain.ChatMessage{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	slog.Info("emergency incident created",
		"incident_id", incident.ID,
		"initiator_id", initiatorID,
	)

	s.publish(incident)

	// Alert dispatch is fire-and-forget: a dispatch failure must not fail
	// the activation, and responders tolerate redelivery by de-duplicating
	// on incident id.
	if s.notifier != nil {
		if err := s.notifier.OnIncidentCreated(ctx, incident); err != nil {
			slog.Error("failed to dispatch responder alerts",
				"incident_id", incident.ID,
				"error", err,
			)
		}
	}

	return incident, nil
}

// GetIncident retrieves an incident by ID.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListIncidents retrieves incidents with optional filters.
func (s *Service) ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error) {
	return s.repo.ListIncidents(ctx, filters)
}

// Acknowledge transitions an incident to acknowledged and records the
// acknowledging responder. Acknowledging twice is idempotent: the status
// stays acknowledged and the responder set gains no duplicate entry.
func (s *Service) Acknowledge(ctx context.Context, incidentID, responderID string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.Status.IsResolved() {
		return nil, ErrIncidentResolved
	}

	if incident.Status != domain.IncidentStatusAcknowledged {
		if err := s.transition(ctx, incident, domain.IncidentStatusAcknowledged); err != nil {
			return nil, err
		}
	}

	if !incident.HasResponder(responderID) {
		if err := s.repo.AddResponder(ctx, incidentID, responderID); err != nil {
			return nil, fmt.Errorf("add responder: %w", err)
		}
	}

	updated, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	slog.Info("incident acknowledged",
		"incident_id", incidentID,
		"responder_id", responderID,
	)

	s.publish(updated)
	return updated, nil
}

// UpdateStatus moves an incident to the given status. Resolved is terminal:
// any attempt to transition a resolved incident is rejected, and no
// transition re-enters the initial active state.
func (s *Service) UpdateStatus(ctx context.Context, incidentID string, status domain.IncidentStatus, responderID string) (*domain.Incident, error) {
	if !status.IsValid() || status == domain.IncidentStatusActive {
		return nil, ErrInvalidStatus
	}

	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.Status.IsResolved() {
		return nil, ErrIncidentResolved
	}
	if !incident.Status.CanTransitionTo(status) {
		return nil, ErrInvalidStatus
	}

	if err := s.transition(ctx, incident, status); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	slog.Info("incident status updated",
		"incident_id", incidentID,
		"status", status,
		"responder_id", responderID,
	)

	s.publish(updated)

	if status == domain.IncidentStatusResolved && s.notifier != nil {
		if err := s.notifier.OnIncidentResolved(ctx, updated); err != nil {
			slog.Error("failed to dispatch resolution alerts",
				"incident_id", incidentID,
				"error", err,
			)
		}
	}

	return updated, nil
}

// AppendMessage appends a chat message to the incident. Whitespace-only
// text is rejected; appends retry transparently on store failure since chat
// is best-effort relative to the underlying emergency.
func (s *Service) AppendMessage(ctx context.Context, incidentID, senderID, senderName, text string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !incident.HasLiveChat {
		return nil, ErrChatDisabled
	}

	count, err := s.repo.CountMessages(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if count >= s.config.MaxMessages {
		return nil, ErrTooManyMessages
	}

	message := &domain.ChatMessage{
		ID:         uuid.New().String(),
		IncidentID: incidentID,
		SenderID:   senderID,
		SenderName: senderName,
		Message:    text,
		Timestamp:  time.Now().UTC(),
	}

	if err := s.appendWithRetry(ctx, message); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	updated, err := s.repo.GetIncident(ctx, incidentID)
	if err == nil {
		s.publish(updated)
	}

	return message, nil
}

// ReportLocation updates the incident's live location. The creation-time
// location snapshot is never touched.
func (s *Service) ReportLocation(ctx context.Context, incidentID string, location domain.Location) (*domain.Incident, error) {
	ok, err := s.repo.UpdateCurrentLocation(ctx, incidentID, location)
	if err != nil {
		return nil, fmt.Errorf("update location: %w", err)
	}
	if !ok {
		// No row matched: missing or already resolved.
		incident, err := s.repo.GetIncident(ctx, incidentID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrIncidentResolved, incident.ID)
	}

	updated, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	s.publish(updated)
	return updated, nil
}

// Subscribe registers a live subscriber for incident updates.
func (s *Service) Subscribe(buffer int) (<-chan *domain.Incident, func()) {
	return s.hub.Subscribe(buffer)
}

// transition performs the compare-and-set status update. The store only
// matches non-resolved rows, so two responders racing toward different
// statuses cannot move a resolved incident.
func (s *Service) transition(ctx context.Context, incident *domain.Incident, status domain.IncidentStatus) error {
	ok, err := s.repo.UpdateStatus(ctx, incident.ID, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !ok {
		// Lost the race: the incident was resolved between the read and
		// the write.
		return ErrIncidentResolved
	}
	return nil
}

func (s *Service) appendWithRetry(ctx context.Context, message *domain.ChatMessage) error {
	var lastErr error
	for attempt := 1; attempt <= s.config.AppendAttempts; attempt++ {
		if err := s.repo.AppendMessage(ctx, message); err != nil {
			lastErr = err
			slog.Warn("message append failed, retrying",
				"incident_id", message.IncidentID,
				"attempt", attempt,
				"error", err,
			)
			if attempt < s.config.AppendAttempts {
				select {
				case <-time.After(s.config.AppendRetryDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (s *Service) publish(incident *domain.Incident) {
	if s.hub != nil {
		s.hub.Publish(incident)
	}
}
