package alerts

import "errors"

// Repository errors.
var (
	ErrChannelNotFound = errors.New("alert channel not found")
	ErrChannelNotOwned = errors.New("channel does not belong to responder")
)
