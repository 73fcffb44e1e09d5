package queue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// payloadField is the single stream entry field carrying the JSON payload.
const payloadField = "payload"

// RedisQueue implements Publisher and Consumer on Redis Streams.
// Each consumer group sees every message exactly until acknowledged:
// XADD to publish, XREADGROUP to claim, XACK only after the handler
// succeeds, so handler failures and crashes redeliver.
type RedisQueue struct {
	client   *redis.Client
	group    string
	consumer string
	block    time.Duration
	logger   *log.Logger
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithBlockTimeout sets how long one XREADGROUP call blocks.
func WithBlockTimeout(d time.Duration) RedisQueueOption {
	return func(q *RedisQueue) {
		q.block = d
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *log.Logger) RedisQueueOption {
	return func(q *RedisQueue) {
		q.logger = logger
	}
}

// NewRedisQueue creates a stream queue bound to one consumer-group
// identity. group names the consuming application; consumer names this
// process instance within the group.
func NewRedisQueue(client *redis.Client, group, consumer string, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		client:   client,
		group:    group,
		consumer: consumer,
		block:    5 * time.Second,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Compile-time interface checks.
var (
	_ Publisher = (*RedisQueue)(nil)
	_ Consumer  = (*RedisQueue)(nil)
)

// Publish appends the payload to the stream.
func (q *RedisQueue) Publish(ctx context.Context, stream string, payload []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

// ensureGroup creates the consumer group if it does not exist yet.
func (q *RedisQueue) ensureGroup(ctx context.Context, stream string) error {
	err := q.client.XGroupCreateMkStream(ctx, stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", q.group, stream, err)
	}
	return nil
}

// Consume reads messages from the stream and invokes handler for each.
// On startup it first drains this consumer's pending entries (messages
// claimed before a crash), then follows new arrivals.
func (q *RedisQueue) Consume(ctx context.Context, stream string, handler Handler) error {
	if err := q.ensureGroup(ctx, stream); err != nil {
		return err
	}

	// "0" replays our pending entries; ">" then claims new ones
	cursor := "0"

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{stream, cursor},
			Count:    64,
			Block:    q.block,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Printf("[queue] stream=%s read failed: %v", stream, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		delivered := 0
		for _, s := range streams {
			for _, entry := range s.Messages {
				delivered++
				q.handleEntry(ctx, stream, entry, handler)
			}
		}

		// Pending backlog drained, switch to new messages
		if cursor == "0" && delivered == 0 {
			cursor = ">"
		}
	}
}

// handleEntry runs the handler and acknowledges on success only.
func (q *RedisQueue) handleEntry(ctx context.Context, stream string, entry redis.XMessage, handler Handler) {
	raw, ok := entry.Values[payloadField]
	if !ok {
		// Malformed entry cannot ever succeed: ack to drop it
		q.logger.Printf("[queue] stream=%s id=%s missing payload field, dropping", stream, entry.ID)
		q.ack(ctx, stream, entry.ID)
		return
	}

	payload, ok := raw.(string)
	if !ok {
		q.logger.Printf("[queue] stream=%s id=%s non-string payload, dropping", stream, entry.ID)
		q.ack(ctx, stream, entry.ID)
		return
	}

	msg := Message{ID: entry.ID, Payload: []byte(payload)}
	if err := handler(ctx, msg); err != nil {
		// No ack: the entry stays pending and is redelivered
		q.logger.Printf("[queue] stream=%s id=%s handler failed: %v", stream, entry.ID, err)
		return
	}

	q.ack(ctx, stream, entry.ID)
}

func (q *RedisQueue) ack(ctx context.Context, stream, id string) {
	if err := q.client.XAck(ctx, stream, q.group, id).Err(); err != nil {
		q.logger.Printf("[queue] stream=%s id=%s ack failed: %v", stream, id, err)
	}
}
