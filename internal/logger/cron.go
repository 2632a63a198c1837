package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CronLogger adapts the context logger to the robfig/cron Logger interface.
// Cron reports every schedule/wake event at info level, so the adapter drops
// everything below minLevel.
type CronLogger struct {
	// sugar receives the forwarded messages.
	sugar *zap.SugaredLogger
}

// NewCronLogger builds a cron logger from the context logger limited to minLevel.
func NewCronLogger(ctx context.Context, minLevel zapcore.Level) *CronLogger {
	return &CronLogger{
		sugar: FromContext(ctx).Named("cron").WithOptions(WithLevel(minLevel)),
	}
}

// Info logs routine scheduler messages.
func (l *CronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Error logs scheduler failures, including recovered job panics.
func (l *CronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
