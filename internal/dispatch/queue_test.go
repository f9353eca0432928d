package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"i3pm/internal/domain"
)

func TestQueue_SerializesInSubmissionOrder(t *testing.T) {
	q := NewQueue(8)
	go q.Run()
	defer q.Close()

	var mu sync.Mutex
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		err := q.Submit(context.Background(), "op", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestQueue_ReturnsOperationError(t *testing.T) {
	q := NewQueue(1)
	go q.Run()
	defer q.Close()

	wantErr := errors.New("wm unavailable")
	err := q.Submit(context.Background(), "hide", func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Submit() error = %v, want %v", err, wantErr)
	}
}

func TestQueue_SkipsExpiredOperations(t *testing.T) {
	q := NewQueue(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	done := make(chan error, 1)
	go func() {
		done <- q.Submit(ctx, "stale", func(context.Context) error {
			ran = true
			return nil
		})
	}()

	// Run starts after the submit so the op sits buffered past its deadline.
	time.Sleep(20 * time.Millisecond)
	go q.Run()
	defer q.Close()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("expired operation must not run")
	}
}

func TestQueue_SubmitTimeoutSurfaces(t *testing.T) {
	q := NewQueue(1)
	go q.Run()
	defer q.Close()

	block := make(chan struct{})
	go q.Submit(context.Background(), "slow", func(context.Context) error {
		<-block
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Submit(ctx, "waiting", func(context.Context) error { return nil })
	close(block)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit() error = %v, want deadline exceeded", err)
	}
}

func TestQueue_RecoversFromPanic(t *testing.T) {
	q := NewQueue(1)
	go q.Run()
	defer q.Close()

	err := q.Submit(context.Background(), "boom", func(context.Context) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("panicking operation should surface an error")
	}

	// The queue keeps serving after a panic.
	if err := q.Submit(context.Background(), "after", func(context.Context) error { return nil }); err != nil {
		t.Errorf("Submit() after panic error = %v", err)
	}
}

func TestQueue_CloseDrainsBuffered(t *testing.T) {
	q := NewQueue(4)
	go q.Run()

	block := make(chan struct{})
	running := make(chan struct{})
	go q.Submit(context.Background(), "slow", func(context.Context) error {
		close(running)
		<-block
		return nil
	})
	<-running

	buffered := make(chan error, 1)
	go func() {
		buffered <- q.Submit(context.Background(), "buffered", func(context.Context) error {
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(block)
	}()
	q.Close()

	if err := <-buffered; err != nil && !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("buffered op error = %v, want nil or ErrQueueClosed", err)
	}

	if err := q.Submit(context.Background(), "late", func(context.Context) error { return nil }); !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("Submit() after Close error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_CloseIdempotent(t *testing.T) {
	q := NewQueue(1)
	go q.Run()
	q.Close()
	q.Close()
}
