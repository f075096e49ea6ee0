// Package console holds the responder-side view of live emergencies: the
// de-duplicated incident list, the new-alert latch, and the actions a
// responder can take.
package console

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/yourlook/safeline/internal/device"
	"github.com/yourlook/safeline/internal/domain"
	"github.com/yourlook/safeline/internal/incidents"
)

// ErrForbidden is returned when the console user lacks the responder role.
var ErrForbidden = errors.New("responder role required")

// IncidentAPI is the slice of the incident service the console needs.
type IncidentAPI interface {
	ListIncidents(ctx context.Context, filters incidents.IncidentFilters) ([]*domain.Incident, error)
	Acknowledge(ctx context.Context, incidentID, responderID string) (*domain.Incident, error)
	UpdateStatus(ctx context.Context, incidentID string, status domain.IncidentStatus, responderID string) (*domain.Incident, error)
	AppendMessage(ctx context.Context, incidentID, senderID, senderName, text string) (*domain.ChatMessage, error)
	Subscribe(buffer int) (<-chan *domain.Incident, func())
}

// Console is the responder dashboard state for one responder.
type Console struct {
	api     IncidentAPI
	haptics device.Haptics

	responderID   string
	responderName string
	role          domain.Role

	mu          sync.RWMutex
	incidents   map[string]*domain.Incident
	hasNewAlert bool
}

// NewConsole creates a console for the given responder.
func NewConsole(api IncidentAPI, haptics device.Haptics, responderID, responderName string, role domain.Role) *Console {
	if haptics == nil {
		haptics = device.NoopHaptics{}
	}
	return &Console{
		api:           api,
		haptics:       haptics,
		responderID:   responderID,
		responderName: responderName,
		role:          role,
		incidents:     make(map[string]*domain.Incident),
	}
}

// CanMutate reports whether the console user may acknowledge or transition
// incidents.
func (c *Console) CanMutate() bool {
	return c.role.HasPermission(domain.RoleResponder)
}

// Start loads the current incident list and then follows live updates
// until ctx is done.
func (c *Console) Start(ctx context.Context) error {
	if !c.CanMutate() {
		return ErrForbidden
	}

	// Subscribe before the initial load so no update falls in the gap.
	updates, cancel := c.api.Subscribe(64)
	defer cancel()

	list, err := c.api.ListIncidents(ctx, incidents.IncidentFilters{})
	if err != nil {
		return err
	}

	c.mu.Lock()
	for _, incident := range list {
		c.incidents[incident.ID] = incident
	}
	c.mu.Unlock()

	slog.Info("responder console started",
		"responder_id", c.responderID,
		"incident_count", len(list),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case incident, ok := <-updates:
			if !ok {
				return nil
			}
			c.apply(incident)
		}
	}
}

// apply merges one update into the console state. Snapshots de-duplicate
// by incident id, so redelivered alerts collapse into a single row.
func (c *Console) apply(incident *domain.Incident) {
	c.mu.Lock()
	_, known := c.incidents[incident.ID]
	c.incidents[incident.ID] = incident

	newAlert := !known && incident.Status == domain.IncidentStatusActive
	if newAlert {
		c.hasNewAlert = true
	}
	c.mu.Unlock()

	if newAlert {
		c.haptics.Vibrate(device.AlertPattern)
		slog.Info("new emergency alert",
			"incident_id", incident.ID,
			"initiator", incident.InitiatorName,
		)
	}
}

// Active returns non-resolved incidents, newest first. Anything a
// responder might still act on belongs here, whatever its exact status.
func (c *Console) Active() []*domain.Incident {
	return c.partition(false)
}

// Resolved returns resolved incidents, newest first.
func (c *Console) Resolved() []*domain.Incident {
	return c.partition(true)
}

func (c *Console) partition(resolved bool) []*domain.Incident {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]*domain.Incident, 0)
	for _, incident := range c.incidents {
		if incident.Status.IsResolved() == resolved {
			list = append(list, incident)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// HasNewAlert reports whether an unseen alert arrived since the last
// DismissAlert.
func (c *Console) HasNewAlert() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasNewAlert
}

// DismissAlert clears the new-alert latch.
func (c *Console) DismissAlert() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasNewAlert = false
}

// Acknowledge acknowledges an incident as this responder.
func (c *Console) Acknowledge(ctx context.Context, incidentID string) (*domain.Incident, error) {
	if !c.CanMutate() {
		return nil, ErrForbidden
	}
	incident, err := c.api.Acknowledge(ctx, incidentID, c.responderID)
	if err != nil {
		return nil, err
	}
	c.apply(incident)
	return incident, nil
}

// MarkInProgress marks an incident as being actively handled.
func (c *Console) MarkInProgress(ctx context.Context, incidentID string) (*domain.Incident, error) {
	return c.updateStatus(ctx, incidentID, domain.IncidentStatusInProgress)
}

// Resolve closes an incident. This is the only way an incident reaches its
// terminal state.
func (c *Console) Resolve(ctx context.Context, incidentID string) (*domain.Incident, error) {
	return c.updateStatus(ctx, incidentID, domain.IncidentStatusResolved)
}

func (c *Console) updateStatus(ctx context.Context, incidentID string, status domain.IncidentStatus) (*domain.Incident, error) {
	if !c.CanMutate() {
		return nil, ErrForbidden
	}
	incident, err := c.api.UpdateStatus(ctx, incidentID, status, c.responderID)
	if err != nil {
		return nil, err
	}
	c.apply(incident)
	return incident, nil
}

// SendMessage sends a chat message to the person in the incident.
func (c *Console) SendMessage(ctx context.Context, incidentID, text string) error {
	if !c.CanMutate() {
		return ErrForbidden
	}
	_, err := c.api.AppendMessage(ctx, incidentID, c.responderID, c.responderName, text)
	return err
}
