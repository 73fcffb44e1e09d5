package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/queue"
)

// Notifier delivers one signal lifecycle event to a channel.
type Notifier interface {
	// Send delivers the event. An error leaves the event queued for
	// redelivery; it never blocks signal-state progression.
	Send(ctx context.Context, event domain.NotificationEvent) error
}

// Runner drains the notifications stream into a Notifier.
type Runner struct {
	consumer queue.Consumer
	notifier Notifier
	logger   *log.Logger
}

// NewRunner creates a notification runner.
func NewRunner(consumer queue.Consumer, notifier Notifier, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{consumer: consumer, notifier: notifier, logger: logger}
}

// Run consumes the notifications stream until ctx is done. A failed send
// returns the error to the queue so the event is redelivered.
func (r *Runner) Run(ctx context.Context) error {
	return r.consumer.Consume(ctx, queue.StreamNotifications, func(ctx context.Context, msg queue.Message) error {
		var event domain.NotificationEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			// A payload that cannot parse will never parse: drop it
			r.logger.Printf("[notify] id=%s unparseable payload, dropping: %v", msg.ID, err)
			return nil
		}

		if err := r.notifier.Send(ctx, event); err != nil {
			return fmt.Errorf("send %s for %s: %w", event.Type, event.SignalID, err)
		}

		return nil
	})
}
