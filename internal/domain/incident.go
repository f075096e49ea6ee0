package domain

import "time"

// IncidentStatus represents the lifecycle status of an emergency incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusActive       IncidentStatus = "active"
	IncidentStatusAcknowledged IncidentStatus = "acknowledged"
	IncidentStatusInProgress   IncidentStatus = "in-progress"
	IncidentStatusResolved     IncidentStatus = "resolved"
)

// IsValid checks if the status is a known incident status.
func (s IncidentStatus) IsValid() bool {
	return s == IncidentStatusActive ||
		s == IncidentStatusAcknowledged ||
		s == IncidentStatusInProgress ||
		s == IncidentStatusResolved
}

// IsResolved checks if the status is the terminal state.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentStatusResolved
}

// CanTransitionTo reports whether a transition from s to next is permitted.
// Resolved is terminal: nothing leaves it. Active is assigned only at
// creation, so no transition re-enters it. Any other jump between
// non-terminal states is allowed (a responder may mark work in progress
// without acknowledging first), and resolved may be entered from any
// non-terminal state.
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s.IsResolved() {
		return false
	}
	if next == IncidentStatusActive {
		return false
	}
	return true
}

// Location is a geographic position with a human-readable address.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Incident represents a single emergency episode from activation to
// resolution. Location is the snapshot taken at activation and never
// changes; CurrentLocation may be updated by later location reports.
type Incident struct {
	ID              string         `json:"id"`
	InitiatorID     string         `json:"initiator_id"`
	InitiatorName   string         `json:"initiator_name"`
	Status          IncidentStatus `json:"status"`
	Location        Location       `json:"location"`
	CurrentLocation Location       `json:"current_location"`
	HasLiveChat     bool           `json:"has_live_chat"`
	Responders      []string       `json:"responders"`
	Messages        []ChatMessage  `json:"messages"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ResolvedAt      *time.Time     `json:"resolved_at"`
}

// HasResponder checks if the responder is already assigned to the incident.
func (i *Incident) HasResponder(responderID string) bool {
	for _, r := range i.Responders {
		if r == responderID {
			return true
		}
	}
	return false
}

// ChatMessage is a single entry in an incident's live chat. Messages are
// immutable once created and owned by the incident they belong to.
type ChatMessage struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}
