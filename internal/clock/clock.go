// Package clock abstracts delayed callbacks so timer-driven state machines can
// run against wall time in production and simulated time in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call prevented it from running.
	Stop() bool
}

// Scheduler runs fn once after d elapses.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
	Now() time.Time
}

// Real schedules callbacks with time.AfterFunc. Callbacks run on their own
// goroutine; callers that need serial execution must hand off to an event loop.
type Real struct{}

// After implements Scheduler.
func (Real) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Now implements Scheduler.
func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a simulated clock. Callbacks only run inside Advance, on the
// caller's goroutine, in deadline order (ties keep scheduling order).
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*manualTimer
}

// NewManual returns a simulated clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	seq      uint64
	fn       func()
	stopped  bool
	fired    bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.clock.removeLocked(t)
	return true
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{
		clock:    m,
		deadline: m.now.Add(d),
		seq:      m.seq,
		fn:       fn,
	}
	m.pending = append(m.pending, t)
	sort.SliceStable(m.pending, func(i, j int) bool {
		a, b := m.pending[i], m.pending[j]
		if a.deadline.Equal(b.deadline) {
			return a.seq < b.seq
		}
		return a.deadline.Before(b.deadline)
	})
	return t
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves simulated time forward by d, firing every callback whose
// deadline is reached. Callbacks scheduled while advancing fire too if their
// deadline falls inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.pending) == 0 || m.pending[0].deadline.After(target) {
			m.now = target
			m.mu.Unlock()
			return
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		next.fired = true
		if next.deadline.After(m.now) {
			m.now = next.deadline
		}
		m.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of scheduled callbacks that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manual) removeLocked(t *manualTimer) {
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
