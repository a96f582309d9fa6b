// Package controls implements the playback-control visibility state machine.
//
// The machine decides whether interaction with the page underneath a
// maximised video is permitted. Controls are revealed after the cursor rests
// in the bottom band of a playing video for RevealDelay, immediately on a click
// in that band, or immediately on any cursor move while every video is paused.
// They are hidden again once the cursor has stayed outside the videos for
// HideDelay while something is playing.
package controls

import (
	"time"

	"github.com/nupi-ai/comfort/internal/clock"
	"github.com/nupi-ai/comfort/internal/region"
)

const (
	DefaultRevealDelay = 2 * time.Second
	DefaultHideDelay   = 3 * time.Second
)

// State is the visibility state of the playback controls.
type State int

const (
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// TimerKind distinguishes the two independent delays.
type TimerKind int

const (
	TimerReveal TimerKind = iota + 1
	TimerHide
)

func (k TimerKind) String() string {
	switch k {
	case TimerReveal:
		return "reveal"
	case TimerHide:
		return "hide"
	default:
		return "unknown"
	}
}

// Observer receives the side effects of transitions. Calls are made
// synchronously from the goroutine driving the machine.
type Observer interface {
	ControlsChanged(enabled bool)
	IntensityChanged(level Intensity)
	BodyHoverChanged(inside bool)
}

// Dispatch hands a timer expiry back to the owner so it is processed in event
// order. When nil, expiries are applied directly from the scheduler callback.
type Dispatch func(kind TimerKind, token uint64)

// Config holds the two delays.
type Config struct {
	RevealDelay time.Duration
	HideDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RevealDelay <= 0 {
		c.RevealDelay = DefaultRevealDelay
	}
	if c.HideDelay <= 0 {
		c.HideDelay = DefaultHideDelay
	}
	return c
}

type pendingTimer struct {
	timer clock.Timer
	token uint64
}

func (p pendingTimer) active() bool {
	return p.timer != nil
}

// Machine is owned by a single active session and is not safe for concurrent use.
type Machine struct {
	cfg      Config
	sched    clock.Scheduler
	dispatch Dispatch
	obs      Observer

	state      State
	reveal     pendingTimer
	hide       pendingTimer
	nextToken  uint64
	hasCursor  bool
	lastInBody bool
	emitted    Intensity
	stopped    bool
}

// New returns a machine in the Disabled state. The exit affordance is assumed
// to start at IntensityTextOnly.
func New(cfg Config, sched clock.Scheduler, dispatch Dispatch, obs Observer) *Machine {
	if sched == nil {
		sched = clock.Real{}
	}
	return &Machine{
		cfg:      cfg.withDefaults(),
		sched:    sched,
		dispatch: dispatch,
		obs:      obs,
		state:    Disabled,
		emitted:  IntensityFor(Disabled, false),
	}
}

// State returns the current visibility state.
func (m *Machine) State() State { return m.state }

// Enabled reports whether page interaction is currently permitted.
func (m *Machine) Enabled() bool { return m.state == Enabled }

// CursorInBody returns the last known body classification.
func (m *Machine) CursorInBody() bool { return m.lastInBody }

// RevealPending reports whether the enable timer is running.
func (m *Machine) RevealPending() bool { return m.reveal.active() }

// HidePending reports whether the disable timer is running.
func (m *Machine) HidePending() bool { return m.hide.active() }

// Intensity returns the last emitted exit-affordance intensity.
func (m *Machine) Intensity() Intensity { return m.emitted }

// CursorMoved applies a cursor-move classification. allPaused is true when
// every target video is paused or ended.
func (m *Machine) CursorMoved(c region.Classification, allPaused bool) {
	if m.stopped {
		return
	}
	m.hasCursor = true

	if allPaused && m.state == Disabled {
		m.enable()
	}

	if c.InBody != m.lastInBody {
		m.lastInBody = c.InBody
		m.notifyHover(c.InBody)
		m.emitIntensity()
	}

	if c.InBody {
		m.cancel(&m.hide)
	} else if m.state == Enabled && !allPaused {
		m.start(&m.hide, TimerHide, m.cfg.HideDelay)
	}

	if c.InTriggerZone {
		if m.state == Disabled {
			m.start(&m.reveal, TimerReveal, m.cfg.RevealDelay)
		}
	} else {
		m.cancel(&m.reveal)
	}
}

// Clicked applies a click classification. A click in the bottom band reveals
// the controls without waiting for the hover delay.
func (m *Machine) Clicked(c region.Classification) {
	if m.stopped || !c.InTriggerZone {
		return
	}
	m.cancel(&m.reveal)
	if m.state == Disabled {
		m.enable()
	}
}

// PlaybackPaused cancels a pending hide; a paused video never hides controls.
func (m *Machine) PlaybackPaused() {
	if m.stopped {
		return
	}
	m.cancel(&m.hide)
}

// PlaybackStarted starts the hide delay when the controls are visible and the
// last known cursor position c is outside every video.
func (m *Machine) PlaybackStarted(c region.Classification) {
	if m.stopped || m.state != Enabled || !m.hasCursor || c.InBody {
		return
	}
	m.start(&m.hide, TimerHide, m.cfg.HideDelay)
}

// TimerFired applies a timer expiry. Expiries for cancelled or replaced timers,
// or arriving after Stop, are ignored.
func (m *Machine) TimerFired(kind TimerKind, token uint64) {
	if m.stopped {
		return
	}
	switch kind {
	case TimerReveal:
		if !m.reveal.active() || m.reveal.token != token {
			return
		}
		m.reveal = pendingTimer{}
		if m.state == Disabled {
			m.enable()
		}
	case TimerHide:
		if !m.hide.active() || m.hide.token != token {
			return
		}
		m.hide = pendingTimer{}
		if m.state == Enabled {
			m.disable()
		}
	}
}

// Stop cancels pending timers and turns every later call into a no-op.
func (m *Machine) Stop() {
	if m.stopped {
		return
	}
	m.cancel(&m.reveal)
	m.cancel(&m.hide)
	m.stopped = true
}

func (m *Machine) enable() {
	m.state = Enabled
	m.cancel(&m.reveal)
	if m.obs != nil {
		m.obs.ControlsChanged(true)
	}
	m.emitIntensity()
}

func (m *Machine) disable() {
	m.state = Disabled
	m.cancel(&m.hide)
	if m.obs != nil {
		m.obs.ControlsChanged(false)
	}
	m.emitIntensity()
}

func (m *Machine) emitIntensity() {
	level := IntensityFor(m.state, m.lastInBody)
	if level == m.emitted {
		return
	}
	m.emitted = level
	if m.obs != nil {
		m.obs.IntensityChanged(level)
	}
}

func (m *Machine) notifyHover(inside bool) {
	if m.obs != nil {
		m.obs.BodyHoverChanged(inside)
	}
}

// start schedules a timer of the given kind unless one is already pending.
func (m *Machine) start(slot *pendingTimer, kind TimerKind, d time.Duration) {
	if slot.active() {
		return
	}
	m.nextToken++
	token := m.nextToken
	slot.token = token
	slot.timer = m.sched.After(d, func() {
		if m.dispatch != nil {
			m.dispatch(kind, token)
			return
		}
		m.TimerFired(kind, token)
	})
}

func (m *Machine) cancel(slot *pendingTimer) {
	if slot.timer != nil {
		slot.timer.Stop()
	}
	*slot = pendingTimer{}
}
