package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueuePreservesOrderWithoutLimit(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	for i := 0; i < 10000; i++ {
		q.Push(i)
	}
	if q.Len() != 10000 {
		t.Fatalf("Len() = %d, want 10000", q.Len())
	}
	for i := 0; i < 10000; i++ {
		got, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if got != i {
			t.Fatalf("Pop() = %d, want %d", got, i)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("TryPop() on empty queue = ok")
	}
}

func TestQueuePopWaitsForPush(t *testing.T) {
	t.Parallel()

	q := NewQueue[string]()
	done := make(chan string, 1)
	go func() {
		v, _ := q.Pop(context.Background())
		done <- v
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push("update")
	select {
	case v := <-done:
		if v != "update" {
			t.Fatalf("Pop() = %q, want update", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Pop() did not return after Push")
	}
}

func TestQueuePopCanceled(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Pop() error = %v, want context.Canceled", err)
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	if q.Len() != 4000 {
		t.Fatalf("Len() = %d, want 4000", q.Len())
	}
}
