package journal

import (
	"context"
	"log"
	"slices"
	"sync/atomic"
	"time"

	"github.com/nupi-ai/comfort/internal/eventbus"
)

const (
	recorderQueue = 128
	// maxEarlyReveals bounds reveals held for sessions whose activation has
	// not been recorded yet.
	maxEarlyReveals = 256
	recentlyClosed  = 64
)

// Recorder writes session lifecycle and control-reveal events into a Store.
// Both topics are read by one goroutine, so a reveal published right after
// an activation is never applied before the row exists.
type Recorder struct {
	store  *Store
	bus    *eventbus.Bus
	worker *eventbus.Worker

	// Owned by the worker goroutine.
	open   map[string]struct{}
	early  map[string]int
	closed []string

	written atomic.Int64
	failed  atomic.Int64
}

// NewRecorder creates a recorder; call Start to begin consuming.
func NewRecorder(store *Store, bus *eventbus.Bus) *Recorder {
	return &Recorder{
		store: store,
		bus:   bus,
		open:  make(map[string]struct{}),
		early: make(map[string]int),
	}
}

// Start subscribes to the bus and begins recording.
func (r *Recorder) Start(ctx context.Context) error {
	lifecycle := eventbus.SubscribeTo(r.bus, eventbus.Sessions.Lifecycle,
		eventbus.WithSubscriptionName("journal_lifecycle"),
		eventbus.WithSubscriptionBuffer(recorderQueue),
	)
	visibility := eventbus.SubscribeTo(r.bus, eventbus.Controls.Visibility,
		eventbus.WithSubscriptionName("journal_visibility"),
		eventbus.WithSubscriptionBuffer(recorderQueue),
	)
	r.worker = eventbus.StartWorker(ctx, func(ctx context.Context) {
		r.run(ctx, lifecycle, visibility)
	}, lifecycle, visibility)
	return nil
}

// Shutdown stops the consumer and waits for the in-flight write.
func (r *Recorder) Shutdown(ctx context.Context) error {
	err := r.worker.Stop(ctx)
	log.Printf("[Journal] recorder stopped: written=%d failed=%d", r.written.Load(), r.failed.Load())
	return err
}

func (r *Recorder) run(ctx context.Context,
	lifecycle *eventbus.TypedSubscription[eventbus.SessionLifecycleEvent],
	visibility *eventbus.TypedSubscription[eventbus.ControlsVisibilityEvent],
) {
	lc, vis := lifecycle.C(), visibility.C()
	for lc != nil || vis != nil {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-lc:
			if !ok {
				lc = nil
				continue
			}
			r.handleLifecycle(ctx, env.Timestamp, env.Payload)
		case env, ok := <-vis:
			if !ok {
				vis = nil
				continue
			}
			r.handleVisibility(ctx, env.Payload)
		}
	}
}

func (r *Recorder) handleLifecycle(ctx context.Context, at time.Time, evt eventbus.SessionLifecycleEvent) {
	if evt.SessionID == "" {
		return
	}
	id := evt.SessionID
	switch evt.State {
	case eventbus.SessionStateActive:
		err := r.store.Begin(ctx, Entry{
			ID:         id,
			PageID:     evt.PageID,
			Site:       evt.Site,
			StartedAt:  at,
			VideoCount: evt.Videos,
			Reveals:    r.early[id],
		})
		delete(r.early, id)
		r.open[id] = struct{}{}
		r.record(err, "begin", id)
	case eventbus.SessionStateInactive:
		err := r.store.FinishWithReveals(ctx, id, at, evt.Reason, evt.Reveals)
		delete(r.open, id)
		delete(r.early, id)
		r.markClosed(id)
		r.record(err, "finish", id)
	}
}

func (r *Recorder) handleVisibility(ctx context.Context, evt eventbus.ControlsVisibilityEvent) {
	if !evt.Enabled || evt.SessionID == "" {
		return
	}
	id := evt.SessionID
	if _, ok := r.open[id]; ok {
		r.record(r.store.AddReveal(ctx, id), "reveal", id)
		return
	}
	if slices.Contains(r.closed, id) {
		// The deactivation already carried the final count.
		return
	}
	if len(r.early) >= maxEarlyReveals {
		log.Printf("[Journal] reveal for unknown session %s dropped", id)
		return
	}
	r.early[id]++
}

func (r *Recorder) markClosed(id string) {
	if len(r.closed) >= recentlyClosed {
		r.closed = r.closed[1:]
	}
	r.closed = append(r.closed, id)
}

func (r *Recorder) record(err error, op, id string) {
	if err != nil {
		r.failed.Add(1)
		log.Printf("[Journal] %s %s: %v", op, id, err)
		return
	}
	r.written.Add(1)
}
