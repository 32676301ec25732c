package message

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hrnotify/anniversary-notifier/internal/model"
)

// deliverer abstracts the outbound delivery channel.
type deliverer interface {
	Send(ctx context.Context, message, employeeID, messageType string) error
}

// Service builds occasion message texts and delivers them through the
// configured channel.
type Service struct {
	webhook deliverer
}

// NewService creates a new message service.
func NewService(webhook deliverer) *Service {
	return &Service{webhook: webhook}
}

// BuildMessage renders the message text for the given occasion. Only
// anniversary messages exist today; an unknown kind is an error so a bad
// payload fails its job instead of delivering garbage.
func BuildMessage(msgType model.MessageType, firstName, lastName string, yearsOfService int) (string, error) {
	switch msgType {
	case model.MessageTypeAnniversary:
		return fmt.Sprintf(
			"Hey, %s %s, congratulations on your %d-year work anniversary!",
			firstName, lastName, yearsOfService,
		), nil
	default:
		return "", fmt.Errorf("unsupported message type: %s", msgType)
	}
}

// SendOccasionMessage builds and delivers a message for one employee.
// Exactly one delivery attempt is made per call.
func (s *Service) SendOccasionMessage(
	ctx context.Context,
	msgType model.MessageType,
	employeeID uuid.UUID,
	firstName, lastName string,
	yearsOfService int,
) error {
	text, err := BuildMessage(msgType, firstName, lastName, yearsOfService)
	if err != nil {
		return err
	}

	if err := s.webhook.Send(ctx, text, employeeID.String(), string(msgType)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}
