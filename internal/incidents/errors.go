package incidents

import "errors"

// Service errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrIncidentResolved = errors.New("incident already resolved")
	ErrInvalidStatus    = errors.New("invalid status transition")
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrTooManyMessages  = errors.New("incident message limit reached")
	ErrChatDisabled     = errors.New("live chat is disabled for this incident")
)
