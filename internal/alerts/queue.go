package alerts

import "time"

// QueueStatus represents the status of a queue item.
type QueueStatus string

// Queue statuses.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSent       QueueStatus = "sent"
	QueueStatusFailed     QueueStatus = "failed"
)

// QueueItem represents an alert in the delivery queue. The (incident,
// channel, message type) triple is unique in storage, so re-running the
// enqueue for the same incident cannot double-deliver.
type QueueItem struct {
	ID            string
	IncidentID    string
	ChannelID     string
	MessageType   MessageType
	Payload       AlertPayload
	Status        QueueStatus
	Attempts      int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	SentAt        *time.Time
}

// QueueStats holds queue size counters by status.
type QueueStats struct {
	Pending    int
	Processing int
	Sent       int
	Failed     int
}
