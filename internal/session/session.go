package session

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/nupi-ai/comfort/internal/clock"
	"github.com/nupi-ai/comfort/internal/controls"
	"github.com/nupi-ai/comfort/internal/eventbus"
	"github.com/nupi-ai/comfort/internal/geometry"
	"github.com/nupi-ai/comfort/internal/i18n"
	"github.com/nupi-ai/comfort/internal/page"
	"github.com/nupi-ai/comfort/internal/region"
)

// ErrNoVideoFound is returned by Enable when no video has usable dimensions.
var ErrNoVideoFound = errors.New("session: no video found")

// Reason names what ended an activation.
type Reason string

const (
	ReasonEscape       Reason = "escape"
	ReasonExitClick    Reason = "exit_click"
	ReasonVideoRemoved Reason = "video_removed"
	ReasonAllEnded     Reason = "all_ended"
	ReasonNoTargets    Reason = "no_targets"
	ReasonCommand      Reason = "command"
	ReasonPageClosed   Reason = "page_closed"
)

// Localizer resolves message keys to user-facing text.
type Localizer interface {
	Lookup(key string) string
}

// ButtonHost styles the site's in-player toggle button. The returned tooltip
// is a message key.
type ButtonHost interface {
	Button(active bool) page.ButtonState
}

// Config tunes the interaction timing.
type Config struct {
	Controls        controls.Config
	TriggerFraction float64
	Scheduler       clock.Scheduler
}

// Options wires a Session to its page and collaborators.
type Options struct {
	PageID  string
	Site    string
	Page    page.Page
	Chrome  page.Chrome
	Watcher page.Watcher
	// Host is nil on sites without an in-player button.
	Host      ButtonHost
	Localizer Localizer
	Bus       *eventbus.Bus
	Config    Config
	// Dispatch posts timer expiries back into the owner's event loop. When nil,
	// expiries are applied from the scheduler callback directly.
	Dispatch func(Event)
}

// Session is the comfort-mode state for one page. It is driven by Step and is
// not safe for concurrent use; the Manager serialises access through an event loop.
type Session struct {
	opts       Options
	classifier region.Classifier

	active     bool
	id         string
	generation uint64
	targets    []page.Video
	saved      map[string]page.OriginalStyle
	primary    page.Video
	machine    *controls.Machine
	elevation  page.ElevationRule

	cursor    geometry.Point
	hasCursor bool
	reveals   int
}

// New creates an inactive session.
func New(opts Options) *Session {
	if opts.Config.Scheduler == nil {
		opts.Config.Scheduler = clock.Real{}
	}
	if opts.Localizer == nil {
		opts.Localizer = (*i18n.Localizer)(nil)
	}
	return &Session{
		opts:       opts,
		classifier: region.NewClassifier(opts.Config.TriggerFraction),
		saved:      make(map[string]page.OriginalStyle),
	}
}

// Active reports whether comfort mode is engaged.
func (s *Session) Active() bool { return s.active }

// ID returns the current activation ID, or "" while inactive.
func (s *Session) ID() string { return s.id }

// ControlsEnabled reports whether page interaction is currently permitted.
func (s *Session) ControlsEnabled() bool {
	return s.machine != nil && s.machine.Enabled()
}

// Targets returns the maximised videos.
func (s *Session) Targets() []page.Video {
	return append([]page.Video(nil), s.targets...)
}

// Reveals counts control reveals during the current activation.
func (s *Session) Reveals() int { return s.reveals }

// Start presents the initial inactive button. Call once after New.
func (s *Session) Start() {
	s.refreshButton()
}

// Step applies a single event.
func (s *Session) Step(ev Event) {
	switch e := ev.(type) {
	case CursorMove:
		s.cursor = e.Point
		s.hasCursor = true
		if !s.active {
			return
		}
		s.machine.CursorMoved(s.classify(e.Point), s.allPaused())
	case Click:
		if !s.active {
			return
		}
		s.machine.Clicked(s.classify(e.Point))
	case KeyDown:
		if s.active && e.Key == "Escape" {
			s.Disable(ReasonEscape)
		}
	case PlaybackChanged:
		s.onPlayback(e)
	case Timeout:
		if !s.active || e.Generation != s.generation {
			return
		}
		s.machine.TimerFired(e.Kind, e.Token)
	case LifecycleNotice:
		s.onLifecycle(e)
	case Resize:
		vp := e.Viewport
		if !vp.Valid() {
			vp = s.opts.Page.Viewport()
		}
		s.Refit(vp)
	case ExitClicked:
		if s.active {
			s.Disable(ReasonExitClick)
		}
	case Command:
		var ack Ack
		switch e.Kind {
		case CommandEnable:
			err := s.Enable()
			ack = Ack{Success: true, Active: s.active, NoVideo: errors.Is(err, ErrNoVideoFound)}
		case CommandDisable:
			s.Disable(ReasonCommand)
			ack = Ack{Success: true, Active: s.active}
		default:
			ack = s.Toggle(e.Hint)
		}
		if e.Reply != nil {
			e.Reply <- ack
		}
	case PageClosed:
		s.Disable(ReasonPageClosed)
	}
}

// Toggle enables an inactive session and disables an active one.
func (s *Session) Toggle(hint ContextHint) Ack {
	if hint.IsVideoContext {
		log.Printf("[Session] page %s: toggle from video context", s.opts.PageID)
	}
	if s.active {
		s.Disable(ReasonCommand)
		return Ack{Success: true, Active: false}
	}
	err := s.Enable()
	return Ack{Success: true, Active: s.active, NoVideo: errors.Is(err, ErrNoVideoFound)}
}

// Enable maximises every video with usable dimensions. It is a no-op while
// active and returns ErrNoVideoFound when nothing qualifies.
func (s *Session) Enable() error {
	if s.active {
		log.Printf("[Session] page %s: enable ignored, already active", s.opts.PageID)
		return nil
	}

	var videos []page.Video
	for _, v := range s.opts.Page.FindPlayableVideos() {
		if v.IntrinsicSize().Valid() {
			videos = append(videos, v)
		}
	}
	if len(videos) == 0 {
		log.Printf("[Session] page %s: no video found", s.opts.PageID)
		if s.opts.Chrome != nil {
			s.opts.Chrome.Alert(s.opts.Localizer.Lookup(i18n.KeyNoVideo))
		}
		return ErrNoVideoFound
	}

	s.generation++
	s.id = uuid.New().String()
	s.active = true
	s.reveals = 0

	viewport := s.opts.Page.Viewport()
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		s.saved[v.ID()] = page.Capture(v.Style())
		v.SetStyle(page.FittedStyle(geometry.Fit(v.IntrinsicSize(), viewport)))
		v.SetMarked(true)
		s.targets = append(s.targets, v)
		ids = append(ids, v.ID())
	}
	s.primary = videos[0]

	gen := s.generation
	var dispatch controls.Dispatch
	if s.opts.Dispatch != nil {
		dispatch = func(kind controls.TimerKind, token uint64) {
			s.opts.Dispatch(Timeout{Generation: gen, Kind: kind, Token: token})
		}
	}
	s.machine = controls.New(s.opts.Config.Controls, s.opts.Config.Scheduler, dispatch, observer{s})

	s.elevation = page.NewElevationRule(ids)
	if c := s.opts.Chrome; c != nil {
		c.SetElevation(s.elevation, true)
		c.SetSuppression(true)
		c.SetControlsEnabled(false)
		c.ShowExitAffordance(s.opts.Localizer.Lookup(i18n.KeyExitTooltip))
		c.SetIntensity(s.machine.Intensity())
	}
	if s.opts.Watcher != nil {
		s.opts.Watcher.Watch(s.primary, s.Targets())
	}
	s.refreshButton()

	log.Printf("[Session] page %s: comfort mode on (session %s, %d videos)", s.opts.PageID, s.id, len(s.targets))
	s.publishLifecycle(eventbus.SessionStateActive, "")
	return nil
}

// Disable restores every target and tears down the control machine. It is a
// no-op while inactive.
func (s *Session) Disable(reason Reason) {
	if !s.active {
		log.Printf("[Session] page %s: disable ignored, already inactive", s.opts.PageID)
		return
	}

	s.machine.Stop()
	s.machine = nil

	for _, v := range s.targets {
		if snap, ok := s.saved[v.ID()]; ok {
			v.SetStyle(snap.Style())
		}
		v.SetMarked(false)
	}

	if c := s.opts.Chrome; c != nil {
		c.SetControlsEnabled(false)
		c.SetSuppression(false)
		c.SetElevation(s.elevation, false)
		c.HideExitAffordance()
	}
	if s.opts.Watcher != nil {
		s.opts.Watcher.Unwatch()
	}

	videos := len(s.targets)
	id := s.id
	s.targets = nil
	s.saved = make(map[string]page.OriginalStyle)
	s.primary = nil
	s.elevation = page.ElevationRule{}
	s.active = false

	s.refreshButton()
	log.Printf("[Session] page %s: comfort mode off (session %s, reason %s)", s.opts.PageID, id, reason)
	s.publishLifecycleFor(id, eventbus.SessionStateInactive, string(reason), videos, s.reveals)
	s.id = ""
}

// Refit recomputes geometry for every target against viewport. Only recorded
// targets are touched, and nothing happens while inactive.
func (s *Session) Refit(viewport geometry.Size) {
	if !s.active || !viewport.Valid() {
		return
	}
	for _, v := range s.targets {
		v.SetStyle(page.FittedStyle(geometry.Fit(v.IntrinsicSize(), viewport)))
	}
}

func (s *Session) onPlayback(e PlaybackChanged) {
	if !s.active {
		return
	}
	if s.indexOf(e.VideoID) < 0 {
		return
	}
	switch e.Kind {
	case PlaybackPause:
		s.machine.PlaybackPaused()
	case PlaybackPlay:
		if s.hasCursor {
			s.machine.PlaybackStarted(s.classify(s.cursor))
		}
	case PlaybackEnded:
		if s.allEnded() {
			s.Disable(ReasonAllEnded)
		}
	}
}

func (s *Session) onLifecycle(e LifecycleNotice) {
	if !s.active {
		return
	}
	switch e.Kind {
	case NoticeAllEnded:
		s.Disable(ReasonAllEnded)
	case NoticeVideoRemoved:
		if s.primary != nil && e.VideoID == s.primary.ID() {
			s.Disable(ReasonVideoRemoved)
			return
		}
		s.dropTarget(e.VideoID)
	case NoticeContainerMutated:
		if s.primary != nil && !s.primary.Connected() {
			s.Disable(ReasonVideoRemoved)
			return
		}
		for _, v := range s.Targets() {
			if !v.Connected() {
				s.dropTarget(v.ID())
			}
		}
	}
}

// dropTarget restores and forgets a non-primary target that left the page.
// Pages may re-attach the same element later, so it must not stay fitted.
func (s *Session) dropTarget(id string) {
	idx := s.indexOf(id)
	if idx < 0 {
		return
	}
	v := s.targets[idx]
	if snap, ok := s.saved[id]; ok {
		v.SetStyle(snap.Style())
	}
	v.SetMarked(false)
	s.targets = append(s.targets[:idx], s.targets[idx+1:]...)
	delete(s.saved, id)

	if len(s.targets) == 0 {
		s.Disable(ReasonNoTargets)
		return
	}
	if s.allEnded() {
		s.Disable(ReasonAllEnded)
		return
	}

	ids := make([]string, 0, len(s.targets))
	for _, t := range s.targets {
		ids = append(ids, t.ID())
	}
	s.elevation = page.NewElevationRule(ids)
	if c := s.opts.Chrome; c != nil {
		c.SetElevation(s.elevation, true)
	}
}

func (s *Session) indexOf(id string) int {
	for i, v := range s.targets {
		if v.ID() == id {
			return i
		}
	}
	return -1
}

func (s *Session) rects() []geometry.Rect {
	out := make([]geometry.Rect, 0, len(s.targets))
	for _, v := range s.targets {
		out = append(out, v.RenderRect())
	}
	return out
}

func (s *Session) classify(p geometry.Point) region.Classification {
	return s.classifier.Classify(p, s.rects())
}

func (s *Session) allPaused() bool {
	if len(s.targets) == 0 {
		return false
	}
	for _, v := range s.targets {
		if !v.Paused() && !v.Ended() {
			return false
		}
	}
	return true
}

func (s *Session) allEnded() bool {
	if len(s.targets) == 0 {
		return false
	}
	for _, v := range s.targets {
		if !v.Ended() {
			return false
		}
	}
	return true
}

func (s *Session) refreshButton() {
	if s.opts.Host == nil || s.opts.Chrome == nil {
		return
	}
	state := s.opts.Host.Button(s.active)
	state.Tooltip = s.opts.Localizer.Lookup(state.Tooltip)
	s.opts.Chrome.SetButtonState(state)
}

func (s *Session) publishLifecycle(state eventbus.SessionState, reason string) {
	s.publishLifecycleFor(s.id, state, reason, len(s.targets), s.reveals)
}

func (s *Session) publishLifecycleFor(id string, state eventbus.SessionState, reason string, videos, reveals int) {
	eventbus.Publish(context.Background(), s.opts.Bus, eventbus.Sessions.Lifecycle, eventbus.SourceSession, eventbus.SessionLifecycleEvent{
		SessionID: id,
		PageID:    s.opts.PageID,
		Site:      s.opts.Site,
		State:     state,
		Reason:    reason,
		Videos:    videos,
		Reveals:   reveals,
	}, eventbus.WithCorrelationID(id))
}

// observer forwards control-machine effects to the chrome and the bus.
type observer struct {
	s *Session
}

func (o observer) ControlsChanged(enabled bool) {
	s := o.s
	if enabled {
		s.reveals++
	}
	if s.opts.Chrome != nil {
		s.opts.Chrome.SetControlsEnabled(enabled)
	}
	eventbus.Publish(context.Background(), s.opts.Bus, eventbus.Controls.Visibility, eventbus.SourceSession, eventbus.ControlsVisibilityEvent{
		SessionID: s.id,
		PageID:    s.opts.PageID,
		Enabled:   enabled,
	}, eventbus.WithCorrelationID(s.id))
}

func (o observer) IntensityChanged(level controls.Intensity) {
	s := o.s
	if s.opts.Chrome != nil {
		s.opts.Chrome.SetIntensity(level)
	}
	eventbus.Publish(context.Background(), s.opts.Bus, eventbus.Controls.Intensity, eventbus.SourceSession, eventbus.ExitIntensityEvent{
		SessionID: s.id,
		PageID:    s.opts.PageID,
		Level:     level.String(),
	}, eventbus.WithCorrelationID(s.id))
}

func (o observer) BodyHoverChanged(inside bool) {
	if o.s.opts.Chrome != nil {
		o.s.opts.Chrome.SetBodyHovered(inside)
	}
}
