package dispatch

import (
	"context"
	"fmt"
	"sync"

	"i3pm/internal/domain"
)

// Op is one unit of work on the mutation queue.
type Op func(ctx context.Context) error

type queued struct {
	ctx  context.Context
	name string
	op   Op
	done chan error
}

// Queue serializes every mutating operation: WM event handling and
// RPC-initiated hide/restore/switch all run here, one at a time, in
// submission order. Read-only queries never go through the queue; they
// read store snapshots instead.
type Queue struct {
	ops chan queued

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	drained chan struct{}
}

// NewQueue creates a queue with the given buffer depth.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 64
	}
	return &Queue{
		ops:     make(chan queued, depth),
		closing: make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Run processes operations until Close. It is the only goroutine that
// executes ops, which is what makes the queue a serialization point.
func (q *Queue) Run() {
	defer close(q.drained)
	for {
		select {
		case item := <-q.ops:
			// The submitter may have given up already.
			if err := item.ctx.Err(); err != nil {
				item.done <- err
				continue
			}
			item.done <- q.runOne(item)

		case <-q.closing:
			// Fail whatever is still buffered so no submitter hangs.
			for {
				select {
				case item := <-q.ops:
					item.done <- domain.ErrQueueClosed
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) runOne(item queued) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation %s panicked: %v", item.name, r)
		}
	}()
	return item.op(item.ctx)
}

// Submit enqueues an operation and waits for it to complete. A context
// deadline surfaces as the context's error instead of hanging; the
// operation itself is skipped if the deadline passed before its turn.
func (q *Queue) Submit(ctx context.Context, name string, op Op) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}
	q.mu.Unlock()

	item := queued{ctx: ctx, name: name, op: op, done: make(chan error, 1)}

	select {
	case q.ops <- item:
	case <-ctx.Done():
		return fmt.Errorf("queue submit %s: %w", name, ctx.Err())
	case <-q.closing:
		return domain.ErrQueueClosed
	}

	select {
	case err := <-item.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("operation %s: %w", name, ctx.Err())
	}
}

// Close stops accepting work and waits for queued operations to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.closing)
	q.mu.Unlock()

	<-q.drained
}
