package bridge

import (
	"encoding/json"
	"time"

	"github.com/nupi-ai/comfort/internal/controls"
	"github.com/nupi-ai/comfort/internal/geometry"
	"github.com/nupi-ai/comfort/internal/page"
)

// Message is the envelope for every frame in both directions.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Inbound message types.
const (
	TypeHello           = "hello"
	TypeVideos          = "videos"
	TypeCursorMove      = "cursor_move"
	TypeClick           = "click"
	TypeKeyDown         = "keydown"
	TypePlayback        = "playback"
	TypeResize          = "resize"
	TypeLifecycle       = "lifecycle"
	TypeExitClick       = "exit_click"
	TypeToggle          = "toggle"
	TypeSettingsUpdated = "settings_updated"
)

// Outbound message types.
const (
	TypeStyle          = "style"
	TypeMark           = "mark"
	TypeSuppression    = "suppression"
	TypeControls       = "controls"
	TypeElevation      = "elevation"
	TypeExitAffordance = "exit_affordance"
	TypeIntensity      = "intensity"
	TypeHovered        = "hovered"
	TypeAlert          = "alert"
	TypeButton         = "button"
	TypeWatch          = "watch"
	TypeUnwatch        = "unwatch"
	TypeAck            = "ack"
	TypeError          = "error"
)

// Hello opens a page session. Viewport is the layout viewport in CSS pixels.
type Hello struct {
	PageID   string        `json:"pageId,omitempty"`
	Origin   string        `json:"origin"`
	Locale   string        `json:"locale"`
	Viewport geometry.Size `json:"viewport"`
}

// VideoState describes one video element as seen by the page script.
type VideoState struct {
	ID        string        `json:"id"`
	Width     float64       `json:"videoWidth"`
	Height    float64       `json:"videoHeight"`
	Rect      geometry.Rect `json:"rect"`
	Style     page.Style    `json:"style"`
	Paused    bool          `json:"paused"`
	Ended     bool          `json:"ended"`
	Connected *bool         `json:"connected,omitempty"`
}

type videosPayload struct {
	Videos []VideoState `json:"videos"`
}

type pointPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type keyPayload struct {
	Key string `json:"key"`
}

type playbackPayload struct {
	VideoID string `json:"videoId"`
	Event   string `json:"event"`
}

type resizePayload struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type lifecyclePayload struct {
	Kind    string `json:"kind"`
	VideoID string `json:"videoId,omitempty"`
}

type requestPayload struct {
	RequestID      string `json:"requestId"`
	IsVideoContext bool   `json:"isVideoContext,omitempty"`
}

type stylePayload struct {
	VideoID string     `json:"videoId"`
	Style   page.Style `json:"style"`
}

type markPayload struct {
	VideoID string `json:"videoId"`
	Marked  bool   `json:"marked"`
}

type installedPayload struct {
	Installed bool `json:"installed"`
}

type enabledPayload struct {
	Enabled bool `json:"enabled"`
}

type elevationPayload struct {
	Installed bool `json:"installed"`
	page.ElevationRule
}

type exitAffordancePayload struct {
	Visible bool   `json:"visible"`
	Tooltip string `json:"tooltip,omitempty"`
}

type intensityPayload struct {
	Level   string           `json:"level"`
	Palette controls.Palette `json:"palette"`
}

type hoveredPayload struct {
	Inside bool `json:"inside"`
}

type alertPayload struct {
	Message string `json:"message"`
}

type buttonPayload struct {
	State page.ButtonState `json:"state"`
}

type watchPayload struct {
	Primary string   `json:"primary"`
	Targets []string `json:"targets"`
}

// Ack answers a toggle or settings_updated request.
type Ack struct {
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Active    bool   `json:"active"`
	NoVideo   bool   `json:"noVideo,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func encode(msgType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Data: raw, Timestamp: time.Now()})
}
