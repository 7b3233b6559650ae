package auth

import (
	"context"

	"github.com/rs/zerolog"
)

// CodeSender hands a reset code off for out-of-band delivery (SMS).
// Returning nil means the hand-off was accepted, not that the code was delivered.
type CodeSender interface {
	SendResetCode(ctx context.Context, phone, code string) error
}

// LogSender records the hand-off without the code. Used when no SMS gateway is configured.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender creates a sender that only logs
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "code_sender").Logger()}
}

// SendResetCode implements CodeSender
func (s *LogSender) SendResetCode(_ context.Context, phone, _ string) error {
	s.log.Info().Str("phone", maskPhone(phone)).Msg("reset code dispatch requested")
	return nil
}
