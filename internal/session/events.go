package session

import (
	"github.com/nupi-ai/comfort/internal/controls"
	"github.com/nupi-ai/comfort/internal/geometry"
)

// Event is an input to Session.Step.
type Event interface {
	eventName() string
}

// CursorMove reports the pointer position in viewport coordinates.
type CursorMove struct {
	Point geometry.Point
}

// Click reports a primary-button click.
type Click struct {
	Point geometry.Point
}

// KeyDown reports a key press using DOM key names ("Escape").
type KeyDown struct {
	Key string
}

// PlaybackKind is the playback transition carried by PlaybackChanged.
type PlaybackKind string

const (
	PlaybackPlay  PlaybackKind = "play"
	PlaybackPause PlaybackKind = "pause"
	PlaybackEnded PlaybackKind = "ended"
)

// PlaybackChanged reports a play, pause or ended event on one video. The
// video's own flags are the source of truth for aggregate state.
type PlaybackChanged struct {
	VideoID string
	Kind    PlaybackKind
}

// Timeout is a control-visibility timer expiry. Generation identifies the
// activation that armed the timer.
type Timeout struct {
	Generation uint64
	Kind       controls.TimerKind
	Token      uint64
}

// NoticeKind is the kind of lifecycle notification.
type NoticeKind string

const (
	NoticeVideoRemoved     NoticeKind = "video_removed"
	NoticeContainerMutated NoticeKind = "container_mutated"
	NoticeAllEnded         NoticeKind = "all_ended"
)

// LifecycleNotice is sent by the lifecycle watcher.
type LifecycleNotice struct {
	Kind    NoticeKind
	VideoID string
}

// Resize reports a new viewport size.
type Resize struct {
	Viewport geometry.Size
}

// ExitClicked reports a click on the exit affordance.
type ExitClicked struct{}

// CommandKind selects the session-level command.
type CommandKind string

const (
	CommandToggle  CommandKind = "toggle"
	CommandEnable  CommandKind = "enable"
	CommandDisable CommandKind = "disable"
)

// ContextHint tells whether the command originated from a video context menu.
type ContextHint struct {
	IsVideoContext bool
}

// Ack acknowledges a command.
type Ack struct {
	Success bool `json:"success"`
	Active  bool `json:"active"`
	// NoVideo is set when enabling was refused because no video qualified.
	NoVideo bool `json:"noVideo,omitempty"`
}

// Command is an external request. Reply, when non-nil, receives exactly one
// Ack and must be buffered.
type Command struct {
	Kind  CommandKind
	Hint  ContextHint
	Reply chan<- Ack
}

// PageClosed ends the session because the page went away.
type PageClosed struct{}

func (CursorMove) eventName() string      { return "cursor_move" }
func (Click) eventName() string           { return "click" }
func (KeyDown) eventName() string         { return "keydown" }
func (PlaybackChanged) eventName() string { return "playback" }
func (Timeout) eventName() string         { return "timeout" }
func (LifecycleNotice) eventName() string { return "lifecycle" }
func (Resize) eventName() string          { return "resize" }
func (ExitClicked) eventName() string     { return "exit_click" }
func (Command) eventName() string         { return "command" }
func (PageClosed) eventName() string      { return "page_closed" }
