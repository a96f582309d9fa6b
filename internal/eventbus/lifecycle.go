package eventbus

import "context"

// Closer is satisfied by Subscription and TypedSubscription.
type Closer interface {
	Close()
}

// Worker owns one consumer goroutine and the subscriptions it reads from.
// Keeping a consumer on a single goroutine lets it order its own side effects
// across several topics.
type Worker struct {
	cancel context.CancelFunc
	subs   []Closer
	done   chan struct{}
}

// StartWorker runs fn on a new goroutine with a context derived from parent.
// The subscriptions are closed when the worker stops.
func StartWorker(parent context.Context, fn func(ctx context.Context), subs ...Closer) *Worker {
	ctx, cancel := context.WithCancel(parent)
	w := &Worker{cancel: cancel, subs: subs, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		fn(ctx)
	}()
	return w
}

// Done is closed once fn has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stop cancels the worker, closes its subscriptions and waits for fn to
// return or ctx to expire. Stop may be called more than once; a nil worker is
// already stopped.
func (w *Worker) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.cancel()
	for _, sub := range w.subs {
		if sub != nil {
			sub.Close()
		}
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
