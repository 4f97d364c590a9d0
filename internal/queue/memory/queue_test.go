package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/pagemark/internal/extract"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan extract.WorkItem, 1)
	errCh := make(chan error, 1)

	go func() {
		item, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- item
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	item := extract.WorkItem{URL: "https://a.example", Label: "a"}
	if err := q.Enqueue(context.Background(), item); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got != item {
			t.Fatalf("expected %+v, got %+v", item, got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return item")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), extract.WorkItem{Label: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, extract.WorkItem{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsBufferedItems(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	for _, label := range []string{"a", "b"} {
		if err := q.Enqueue(context.Background(), extract.WorkItem{Label: label}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 buffered items, got %d", q.Len())
	}
	q.Close()

	for _, want := range []string{"a", "b"} {
		got, err := q.Dequeue(context.Background())
		if err != nil || got.Label != want {
			t.Fatalf("expected %s, got %+v (err %v)", want, got, err)
		}
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := q.Enqueue(context.Background(), extract.WorkItem{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on enqueue after close, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
