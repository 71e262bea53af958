package messenger

import (
	"context"
	"errors"

	"github.com/aretw0/conductor/pkg/ports"
)

// Multi fans every call out to several messengers.
type Multi []ports.Messenger

// RegisterMessage registers the payload on every messenger.
func (m Multi) RegisterMessage(key string, payload any) {
	for _, target := range m {
		target.RegisterMessage(key, payload)
	}
}

// Send delivers through every messenger, even when some fail, and joins the errors.
func (m Multi) Send(ctx context.Context, key string, roles []string) error {
	var errs []error
	for _, target := range m {
		if err := target.Send(ctx, key, roles); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
