package alerts

import (
	"time"

	"github.com/yourlook/safeline/internal/domain"
)

// MessageType defines the type of alert.
type MessageType string

// Message types.
const (
	MessageTypeAlert    MessageType = "alert"    // Incident created
	MessageTypeResolved MessageType = "resolved" // Incident resolved
)

// AlertPayload contains data for rendering an alert.
type AlertPayload struct {
	MessageType MessageType  `json:"message_type"`
	Incident    IncidentData `json:"incident"`
	IncidentURL string       `json:"incident_url,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// IncidentData contains incident information for an alert.
type IncidentData struct {
	ID            string    `json:"id"`
	InitiatorName string    `json:"initiator_name"`
	Status        string    `json:"status"`
	Address       string    `json:"address"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewAlertPayload creates a payload for a new incident alert.
func NewAlertPayload(incident *domain.Incident, incidentURL string) AlertPayload {
	return AlertPayload{
		MessageType: MessageTypeAlert,
		Incident:    buildIncidentData(incident),
		IncidentURL: incidentURL,
		GeneratedAt: time.Now(),
	}
}

// NewResolvedPayload creates a payload for an incident resolution alert.
func NewResolvedPayload(incident *domain.Incident, incidentURL string) AlertPayload {
	return AlertPayload{
		MessageType: MessageTypeResolved,
		Incident:    buildIncidentData(incident),
		IncidentURL: incidentURL,
		GeneratedAt: time.Now(),
	}
}

func buildIncidentData(incident *domain.Incident) IncidentData {
	return IncidentData{
		ID:            incident.ID,
		InitiatorName: incident.InitiatorName,
		Status:        string(incident.Status),
		Address:       incident.Location.Address,
		Latitude:      incident.Location.Latitude,
		Longitude:     incident.Location.Longitude,
		CreatedAt:     incident.CreatedAt,
	}
}
