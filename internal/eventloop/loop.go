// Package eventloop serialises events from many goroutines onto one handler.
package eventloop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Post once the loop has stopped.
var ErrClosed = errors.New("eventloop: closed")

// Loop delivers posted events to a single handler strictly in arrival order,
// one at a time. Post never blocks, so timer callbacks and network readers can
// hand off without coordinating with the handler.
type Loop[E any] struct {
	handle func(E)

	mu      sync.Mutex
	queue   []E
	closed  bool
	notify  chan struct{}
	done    chan struct{}
	started bool
}

// New creates a loop that calls handle for each event.
func New[E any](handle func(E)) *Loop[E] {
	return &Loop[E]{
		handle: handle,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post enqueues an event.
func (l *Loop[E]) Post(ev E) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, ev)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
	return nil
}

// Run processes events until ctx is cancelled or Close is called. Events
// already queued when Close is called are still delivered. Run may be called
// at most once.
func (l *Loop[E]) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return errors.New("eventloop: already running")
	}
	l.started = true
	l.mu.Unlock()
	defer close(l.done)

	for {
		for {
			ev, ok := l.next()
			if !ok {
				break
			}
			l.handle(ev)
		}

		l.mu.Lock()
		closed := l.closed && len(l.queue) == 0
		l.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.notify:
		}
	}
}

// Close stops accepting events. Run drains what is queued and returns.
func (l *Loop[E]) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (l *Loop[E]) Done() <-chan struct{} {
	return l.done
}

// Len reports the number of queued events.
func (l *Loop[E]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop[E]) next() (E, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero E
	if len(l.queue) == 0 {
		return zero, false
	}
	ev := l.queue[0]
	l.queue[0] = zero
	l.queue = l.queue[1:]
	return ev, true
}
