package notifier

import (
	"context"

	"github.com/oshokin/presence-alarm/internal/logger"
)

//go:generate mockgen -destination=mock_notifier.go -package=notifier github.com/oshokin/presence-alarm/internal/notifier Notifier

// Notifier delivers a rendered alarm message.
type Notifier interface {
	// Notify sends subject and body to destination. An empty destination
	// means the message is only logged.
	Notify(ctx context.Context, destination, subject, body string) error
}

// LogNotifier writes every message to the context logger.
type LogNotifier struct{}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify implements Notifier.
func (*LogNotifier) Notify(ctx context.Context, destination, subject, body string) error {
	logger.InfoKV(ctx, "Alarm notification",
		"destination", destination,
		"subject", subject,
		"body", body)

	return nil
}
