package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	want := Message{Type: "scan", Body: json.RawMessage(`{"record_id":"r1"}`)}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-messages:
		if got.Type != want.Type || string(got.Body) != string(want.Body) {
			t.Errorf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemoryPublishDropsWhenFull(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()

	if err := q.Publish(ctx, Message{Type: "scan"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// No consumer is draining. The second publish must fail fast with
	// ErrFull instead of blocking the caller.
	done := make(chan error, 1)
	go func() { done <- q.Publish(ctx, Message{Type: "scan"}) }()

	select {
	case err := <-done:
		if err != ErrFull {
			t.Errorf("Publish() on full queue error = %v, want ErrFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Publish() blocked on a full queue")
	}
}

func TestInMemoryPublishHonorsCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	// Fill the buffer, then cancel; the next publish must not block forever.
	if err := q.Publish(ctx, Message{Type: "scan"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	cancel()
	if err := q.Publish(ctx, Message{Type: "scan"}); err != context.Canceled {
		t.Errorf("Publish() on canceled ctx error = %v, want context.Canceled", err)
	}
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	cancel()

	select {
	case _, open := <-messages:
		if open {
			t.Error("channel delivered a message after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
