package messenger

import (
	"context"
	"log/slog"

	"github.com/aretw0/conductor/internal/logging"
)

// Log writes every delivery to a structured logger at info level.
type Log struct {
	*Templates
	logger *slog.Logger
}

// NewLog creates a Log messenger. A nil logger discards deliveries.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Log{Templates: NewTemplates(), logger: logger}
}

// Send logs the message registered under key together with its recipients.
func (l *Log) Send(ctx context.Context, key string, roles []string) error {
	payload, err := l.Lookup(key)
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "message sent",
		"message", key,
		"roles", roles,
		"payload", payload,
	)
	return nil
}
