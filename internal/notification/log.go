package notification

import (
	"context"

	"user-service/internal/observability"
)

// LogSender writes the verification link to the log instead of sending
// mail. Local development only: the logged link contains the raw token, so
// this must never back a deployed environment.
type LogSender struct {
	logger *observability.Logger
}

func NewLogSender(logger *observability.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerificationEmail(_ context.Context, address, link string) error {
	s.logger.Info("verification_email_logged", map[string]any{
		"to":   address,
		"link": link,
	})
	return nil
}
