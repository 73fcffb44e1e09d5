package queue

import "context"

// Stream names.
const (
	StreamPositionsOpen = "positions.open"
	StreamNotifications = "notifications"
)

// Message is one queued payload. ID identifies the message for
// acknowledgment and is assigned by the queue backend.
type Message struct {
	ID      string
	Payload []byte
}

// Handler processes one message. A nil return acknowledges the message;
// an error leaves it pending so it is redelivered (at-least-once).
type Handler func(ctx context.Context, msg Message) error

// Publisher appends payloads to a stream.
type Publisher interface {
	// Publish appends the payload to the stream.
	Publish(ctx context.Context, stream string, payload []byte) error
}

// Consumer drains a stream through a handler until ctx is done.
type Consumer interface {
	// Consume reads messages from the stream and invokes handler for each.
	// Messages are acknowledged only after the handler returns nil, so a
	// crash or handler failure redelivers. Blocks until ctx is done.
	Consume(ctx context.Context, stream string, handler Handler) error
}
