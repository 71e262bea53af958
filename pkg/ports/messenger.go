package ports

import "context"

// Messenger delivers named messages to recipient roles.
// The orchestrator threads it through to actions without interpreting it.
type Messenger interface {
	// RegisterMessage stores the payload under key, replacing any previous one.
	RegisterMessage(key string, payload any)

	// Send delivers the message registered under key to every role.
	// It fails with domain.ErrMessageNotRegistered for unknown keys.
	Send(ctx context.Context, key string, roles []string) error
}
