package email

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the log instead of delivering them. It is the
// development transport when no SMTP server is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, m Message) error {
	s.Logger.Info("email not delivered (log transport)",
		zap.String("to", m.To),
		zap.String("subject", m.Subject),
		zap.String("template", m.Template),
		zap.String("text", m.Text),
	)
	return nil
}
