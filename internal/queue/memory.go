package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue implements Publisher and Consumer in memory with the same
// at-least-once contract as RedisQueue: a message is removed only after
// the handler returns nil, otherwise it is retried in order.
type MemoryQueue struct {
	mu      sync.Mutex
	streams map[string][]Message
	nextID  int64
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		streams: make(map[string][]Message),
	}
}

// Compile-time interface checks.
var (
	_ Publisher = (*MemoryQueue)(nil)
	_ Consumer  = (*MemoryQueue)(nil)
)

// Publish appends the payload to the stream.
func (q *MemoryQueue) Publish(_ context.Context, stream string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	msg := Message{
		ID:      fmt.Sprintf("%d-0", q.nextID),
		Payload: append([]byte(nil), payload...),
	}
	q.streams[stream] = append(q.streams[stream], msg)
	return nil
}

// Consume reads messages from the stream and invokes handler for each.
// Blocks until ctx is done.
func (q *MemoryQueue) Consume(ctx context.Context, stream string, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, ok := q.peek(stream)
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}

		if err := handler(ctx, msg); err != nil {
			// Leave the message at the head for redelivery
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}

		q.remove(stream, msg.ID)
	}
}

// Len reports the number of undelivered messages in a stream.
func (q *MemoryQueue) Len(stream string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.streams[stream])
}

func (q *MemoryQueue) peek(stream string) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := q.streams[stream]
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[0], true
}

func (q *MemoryQueue) remove(stream, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := q.streams[stream]
	for i, m := range msgs {
		if m.ID == id {
			q.streams[stream] = append(msgs[:i], msgs[i+1:]...)
			return
		}
	}
}
