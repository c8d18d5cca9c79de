package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes alerts to the logger instead of delivering them.
// It backs dry-run mode.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Name returns "log".
func (l *LogNotifier) Name() string {
	return "log"
}

// Send logs msg at info level.
func (l *LogNotifier) Send(_ context.Context, msg *Message) error {
	l.logger.Info("alert",
		zap.String("entity_id", msg.EntityID),
		zap.String("level", string(msg.Level)),
		zap.Int("day_threshold", msg.DayThreshold),
		zap.Int("age_days", msg.AgeDays),
		zap.Strings("recipients", msg.Recipients),
		zap.String("subject", msg.Subject),
		zap.Bool("test", msg.Test),
	)
	return nil
}

// Close flushes the logger.
func (l *LogNotifier) Close() error {
	_ = l.logger.Sync()
	return nil
}
