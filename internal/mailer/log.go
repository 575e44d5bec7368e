package mailer

import (
	"context"

	"artmarket-api/internal/observability"
)

// LogSender stands in when SMTP is not configured. It records only the
// recipient, subject, and template name; token links are never logged.
type LogSender struct {
	logger *observability.Logger
}

func NewLogSender(logger *observability.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if _, err := renderBody(msg); err != nil {
		return err
	}

	s.logger.Info("mail_skipped_no_smtp", map[string]any{
		"to":       msg.To,
		"subject":  msg.Subject,
		"template": msg.Template,
	})
	return nil
}
