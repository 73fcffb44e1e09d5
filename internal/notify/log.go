package notify

import (
	"context"
	"log"

	"perp-signal-engine/internal/domain"
)

// LogNotifier writes events to the process log. Used when no delivery
// channel is configured and as the default in tests.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Compile-time interface check.
var _ Notifier = (*LogNotifier)(nil)

// Send writes the event to the log.
func (n *LogNotifier) Send(_ context.Context, event domain.NotificationEvent) error {
	n.logger.Printf("[notify] type=%s signal=%s instrument=%s direction=%s price=%.4f pnl=%.2f",
		event.Type, event.SignalID, event.Instrument, event.Direction, event.Price, event.PnL)
	return nil
}
