package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueue_PublishConsume(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, payload := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, StreamPositionsOpen, []byte(payload)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	var mu sync.Mutex
	var got []string

	done := make(chan struct{})
	go func() {
		q.Consume(ctx, StreamPositionsOpen, func(_ context.Context, msg Message) error {
			mu.Lock()
			got = append(got, string(msg.Payload))
			if len(got) == 3 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for messages")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("expected in-order delivery [a b c], got %v", got)
	}
	if q.Len(StreamPositionsOpen) != 0 {
		t.Errorf("expected empty stream, got %d pending", q.Len(StreamPositionsOpen))
	}
}

func TestMemoryQueue_HandlerErrorRedelivers(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, StreamNotifications, []byte("event")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var mu sync.Mutex
	attempts := 0

	done := make(chan struct{})
	go func() {
		q.Consume(ctx, StreamNotifications, func(_ context.Context, msg Message) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return errors.New("send failed")
			}
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redelivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if q.Len(StreamNotifications) != 0 {
		t.Errorf("expected acked message to be removed, got %d pending", q.Len(StreamNotifications))
	}
}

func TestMemoryQueue_ConsumeStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Consume(ctx, StreamPositionsOpen, func(_ context.Context, _ Message) error {
			return nil
		})
	}()

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not stop on cancel")
	}
}

func TestMemoryQueue_StreamsAreIndependent(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	if err := q.Publish(ctx, StreamPositionsOpen, []byte("pos")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := q.Publish(ctx, StreamNotifications, []byte("note")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if q.Len(StreamPositionsOpen) != 1 {
		t.Errorf("expected 1 pending position event, got %d", q.Len(StreamPositionsOpen))
	}
	if q.Len(StreamNotifications) != 1 {
		t.Errorf("expected 1 pending notification, got %d", q.Len(StreamNotifications))
	}
}
