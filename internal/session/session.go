// Package session holds the client-side emergency session state: the
// overlay a person sees from the moment the alert gesture fires until they
// dismiss it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/yourlook/safeline/internal/domain"
)

// DefaultFallbackDial is offered when the incident cannot be persisted and
// the only remaining option is a phone call.
const DefaultFallbackDial = "112"

// Session errors.
var (
	ErrAlreadyActive    = errors.New("emergency session already active")
	ErrNoActiveIncident = errors.New("no active emergency session")
)

// IncidentAPI is the slice of the incident service the session needs. In
// process it is satisfied by the incidents service directly; a remote
// client satisfies it over HTTP.
type IncidentAPI interface {
	CreateIncident(ctx context.Context, initiatorID, initiatorName string, location domain.Location) (*domain.Incident, error)
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	AppendMessage(ctx context.Context, incidentID, senderID, senderName, text string) (*domain.ChatMessage, error)
	ReportLocation(ctx context.Context, incidentID string, location domain.Location) (*domain.Incident, error)
	Subscribe(buffer int) (<-chan *domain.Incident, func())
}

// Config holds session configuration.
type Config struct {
	// FallbackDial is the emergency number surfaced when activation cannot
	// reach the incident store.
	FallbackDial string
}

// ActivationResult is what the overlay renders immediately after the
// gesture fires. Degraded means the incident could not be persisted and
// the overlay must show the fallback dial option instead of live status.
type ActivationResult struct {
	Incident     *domain.Incident
	Degraded     bool
	FallbackDial string
}

// Session tracks the active emergency for one user. At most one incident
// is active per session; re-activation while active returns the existing
// incident rather than creating a duplicate.
type Session struct {
	config Config
	api    IncidentAPI

	userID   string
	userName string

	mu           sync.RWMutex
	active       *domain.Incident
	voiceEnabled bool

	cancelStream func()
}

// NewSession creates an emergency session for the given user.
func NewSession(config Config, api IncidentAPI, userID, userName string) *Session {
	if config.FallbackDial == "" {
		config.FallbackDial = DefaultFallbackDial
	}
	return &Session{
		config:   config,
		api:      api,
		userID:   userID,
		userName: userName,
	}
}

// Activate creates the emergency incident and opens the overlay. A persist
// failure does not block the overlay: the session degrades to offering the
// fallback dial number, because a person in danger must never stare at an
// error page.
func (s *Session) Activate(ctx context.Context, location domain.Location) (ActivationResult, error) {
	s.mu.Lock()
	if s.active != nil {
		incident := s.active
		s.mu.Unlock()
		return ActivationResult{Incident: incident}, ErrAlreadyActive
	}
	s.mu.Unlock()

	incident, err := s.api.CreateIncident(ctx, s.userID, s.userName, location)
	if err != nil {
		slog.Error("failed to create emergency incident, degrading to dial fallback",
			"user_id", s.userID,
			"error", err,
		)
		return ActivationResult{
			Degraded:     true,
			FallbackDial: s.config.FallbackDial,
		}, nil
	}

	s.mu.Lock()
	s.active = incident
	s.mu.Unlock()

	return ActivationResult{Incident: incident}, nil
}

// Start begins mirroring live updates for the active incident. Updates for
// other incidents are ignored. Blocks until ctx is done.
func (s *Session) Start(ctx context.Context) {
	updates, cancel := s.api.Subscribe(16)

	s.mu.Lock()
	s.cancelStream = cancel
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			cancel()
			return
		case incident, ok := <-updates:
			if !ok {
				return
			}
			s.mu.Lock()
			if s.active != nil && s.active.ID == incident.ID {
				s.active = incident
			}
			s.mu.Unlock()
		}
	}
}

// Active returns the current incident snapshot, or nil when no session is
// active.
func (s *Session) Active() *domain.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SendMessage sends a chat message on the active incident. Whitespace-only
// input is dropped without a round trip. A failed append is retried once
// before the error is surfaced; chat is best-effort.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.RLock()
	incident := s.active
	s.mu.RUnlock()

	if incident == nil {
		return ErrNoActiveIncident
	}

	_, err := s.api.AppendMessage(ctx, incident.ID, s.userID, s.userName, text)
	if err != nil && ctx.Err() == nil {
		slog.Warn("chat message append failed, retrying", "incident_id", incident.ID, "error", err)
		_, err = s.api.AppendMessage(ctx, incident.ID, s.userID, s.userName, text)
	}
	return err
}

// ReportLocation pushes a live location update for the active incident.
func (s *Session) ReportLocation(ctx context.Context, location domain.Location) error {
	s.mu.RLock()
	incident := s.active
	s.mu.RUnlock()

	if incident == nil {
		return ErrNoActiveIncident
	}

	_, err := s.api.ReportLocation(ctx, incident.ID, location)
	return err
}

// ToggleVoice flips the voice chat preference and returns the new state.
// The flag is overlay-local and does not touch the incident.
func (s *Session) ToggleVoice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceEnabled = !s.voiceEnabled
	return s.voiceEnabled
}

// VoiceEnabled reports the voice chat preference.
func (s *Session) VoiceEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceEnabled
}

// Deactivate dismisses the overlay. This is deliberately local: closing
// the overlay does not resolve the incident, responders do that from the
// console once the person is actually safe.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.voiceEnabled = false
}
