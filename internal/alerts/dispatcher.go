package alerts

import (
	"context"
	"fmt"

	"github.com/yourlook/safeline/internal/domain"
)

// Notification is a rendered alert ready for a single target.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers notifications over one channel type.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, notification Notification) error
}

// Dispatcher routes rendered notifications to the sender for the channel
// type.
type Dispatcher struct {
	senders map[domain.ChannelType]Sender
}

// NewDispatcher creates a new alert dispatcher.
func NewDispatcher(senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.ChannelType]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{senders: senderMap}
}

// SendToChannel sends a notification over the given channel type.
func (d *Dispatcher) SendToChannel(ctx context.Context, channelType domain.ChannelType, notification Notification) error {
	sender, ok := d.senders[channelType]
	if !ok {
		return fmt.Errorf("no sender for channel type %s", channelType)
	}
	return sender.Send(ctx, notification)
}
