// Package incidents implements the emergency incident lifecycle: creation,
// status transitions, responder assignment, and the live chat attached to
// each incident.
package incidents

import (
	"context"

	"github.com/yourlook/safeline/internal/domain"
)

// Repository defines the interface for incident storage. Implementations
// must linearize writes per incident: status updates use compare-and-set
// against the terminal state, and message appends preserve insertion order.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filters IncidentFilters) ([]*domain.Incident, error)

	// UpdateStatus sets the status of a non-resolved incident. Returns
	// false without error when no row matched because the incident is
	// already resolved or missing; callers distinguish via GetIncident.
	UpdateStatus(ctx context.Context, id string, status domain.IncidentStatus) (bool, error)

	// AddResponder appends a responder to the incident's responder set.
	// Adding an already-assigned responder is a no-op.
	AddResponder(ctx context.Context, incidentID, responderID string) error

	AppendMessage(ctx context.Context, message *domain.ChatMessage) error
	CountMessages(ctx context.Context, incidentID string) (int, error)

	// UpdateCurrentLocation updates the live location; the activation-time
	// location is immutable.
	UpdateCurrentLocation(ctx context.Context, id string, location domain.Location) (bool, error)
}

// IncidentFilters holds filter options for listing incidents.
type IncidentFilters struct {
	// Resolved partitions the listing: false selects every non-resolved
	// status, true selects resolved incidents only, nil selects all.
	Resolved    *bool
	InitiatorID string
	Limit       int
	Offset      int
}
