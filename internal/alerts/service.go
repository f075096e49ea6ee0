package alerts

import (
	"context"

	"github.com/yourlook/safeline/internal/domain"
)

// Service provides alert channel and duty roster business logic.
type Service struct {
	repo Repository
}

// NewService creates a new alerts service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateChannel creates a new alert channel for a responder.
func (s *Service) CreateChannel(ctx context.Context, responderID string, channelType domain.ChannelType, target string) (*domain.AlertChannel, error) {
	channel := &domain.AlertChannel{
		ResponderID: responderID,
		Type:        channelType,
		Target:      target,
		IsEnabled:   true,
	}

	if err := s.repo.CreateChannel(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// ListChannels returns all alert channels for a responder.
func (s *Service) ListChannels(ctx context.Context, responderID string) ([]domain.AlertChannel, error) {
	return s.repo.ListResponderChannels(ctx, responderID)
}

// UpdateChannel enables or disables a channel.
func (s *Service) UpdateChannel(ctx context.Context, responderID, channelID string, isEnabled bool) (*domain.AlertChannel, error) {
	channel, err := s.repo.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, err
	}

	if channel.ResponderID != responderID {
		return nil, ErrChannelNotOwned
	}

	channel.IsEnabled = isEnabled

	if err := s.repo.UpdateChannel(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// DeleteChannel deletes an alert channel.
func (s *Service) DeleteChannel(ctx context.Context, responderID, channelID string) error {
	channel, err := s.repo.GetChannelByID(ctx, channelID)
	if err != nil {
		return err
	}

	if channel.ResponderID != responderID {
		return ErrChannelNotOwned
	}

	return s.repo.DeleteChannel(ctx, channelID)
}

// SetOnDuty marks a responder as on or off duty. Only on-duty responders
// receive alerts for new incidents.
func (s *Service) SetOnDuty(ctx context.Context, responderID string, onDuty bool) error {
	return s.repo.SetOnDuty(ctx, responderID, onDuty)
}

// IsOnDuty reports the responder's current duty state.
func (s *Service) IsOnDuty(ctx context.Context, responderID string) (bool, error) {
	return s.repo.IsOnDuty(ctx, responderID)
}
