package interfaces

import (
	"context"

	"github.com/ikemenltd/gasgen/internal/models"
)

// Messenger defines the interface for the outbound message transport.
// Frames for one message must be sent in Index order; implementations
// enforce the transport frame size ceiling.
type Messenger interface {
	Send(ctx context.Context, recipientID string, frame models.MessageFrame) error
}
