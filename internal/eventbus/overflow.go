package eventbus

import (
	"context"
	"sync"
)

// spill backs subscriptions that use StrategyOverflow. Publishers append to
// it without blocking and a single forwarder moves batches into the
// subscription channel, so the order seen by the consumer is publish order.
type spill struct {
	mu      sync.Mutex
	pending []Envelope
	limit   int

	wake   chan struct{}
	exited chan struct{}
}

func newSpill(limit int) *spill {
	if limit <= 0 {
		limit = defaultMaxOverflow
	}
	return &spill{
		limit:  limit,
		wake:   make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
}

// add queues env. It reports false when the backlog is at its limit.
func (q *spill) add(env Envelope) bool {
	q.mu.Lock()
	if len(q.pending) >= q.limit {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, env)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// take hands the whole backlog to the caller.
func (q *spill) take() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *spill) backlog() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// forward runs until ctx is cancelled.
func (q *spill) forward(ctx context.Context, out chan<- Envelope) {
	defer close(q.exited)
	for {
		batch := q.take()
		for _, env := range batch {
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-q.wake:
		case <-ctx.Done():
			return
		}
	}
}
