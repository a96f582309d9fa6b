// Package page defines the collaborators the comfort engine drives: the host
// page with its videos, the visual chrome, and the lifecycle watcher.
package page

import (
	"strconv"
	"strings"

	"github.com/nupi-ai/comfort/internal/controls"
	"github.com/nupi-ai/comfort/internal/geometry"
)

// Z-index layers used while comfort mode is active.
const (
	VideoZIndex      int64 = 2147483647
	AffordanceZIndex int64 = 2147483648
	OtherZIndex      int64 = 999998
)

// Style holds the inline style properties the engine touches on a video.
type Style struct {
	Position  string `json:"position"`
	Top       string `json:"top"`
	Left      string `json:"left"`
	Width     string `json:"width"`
	Height    string `json:"height"`
	ZIndex    string `json:"zIndex"`
	Transform string `json:"transform"`
	ObjectFit string `json:"objectFit"`
}

// OriginalStyle is the snapshot of a video's inline style taken at activation.
// It is never modified after capture.
type OriginalStyle struct {
	style Style
}

// Capture snapshots s.
func Capture(s Style) OriginalStyle {
	return OriginalStyle{style: s}
}

// Style returns the captured values.
func (o OriginalStyle) Style() Style {
	return o.style
}

// FittedStyle is the inline style that pins a video to r.
func FittedStyle(r geometry.Rect) Style {
	return Style{
		Position:  "fixed",
		Top:       px(r.Top),
		Left:      px(r.Left),
		Width:     px(r.Width),
		Height:    px(r.Height),
		ZIndex:    strconv.FormatInt(VideoZIndex, 10),
		Transform: "none",
		ObjectFit: "contain",
	}
}

// StyleRect recovers the rectangle from a fixed-position style written by
// FittedStyle. ok is false for any other style.
func StyleRect(s Style) (geometry.Rect, bool) {
	if s.Position != "fixed" {
		return geometry.Rect{}, false
	}
	var vals [4]float64
	for i, raw := range []string{s.Top, s.Left, s.Width, s.Height} {
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "px"), 64)
		if err != nil {
			return geometry.Rect{}, false
		}
		vals[i] = v
	}
	return geometry.Rect{Top: vals[0], Left: vals[1], Width: vals[2], Height: vals[3]}, true
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// Video is a non-owning handle to a media element on the host page.
type Video interface {
	ID() string
	IntrinsicSize() geometry.Size
	Paused() bool
	Ended() bool
	// RenderRect is the element's current bounding rectangle in viewport coordinates.
	RenderRect() geometry.Rect
	Style() Style
	SetStyle(Style)
	// SetMarked flags the video's container as hosting a maximised video.
	SetMarked(bool)
	// Connected reports whether the element and its container are still
	// reachable from the document root.
	Connected() bool
}

// Page is the page integration layer.
type Page interface {
	FindPlayableVideos() []Video
	Viewport() geometry.Size
}

// ElevationRule scopes the target videos and the exit affordance above all
// other page content.
type ElevationRule struct {
	VideoIDs    []string `json:"videoIds"`
	VideoZ      int64    `json:"videoZ"`
	AffordanceZ int64    `json:"affordanceZ"`
	OtherZ      int64    `json:"otherZ"`
}

// NewElevationRule builds the rule for the given targets.
func NewElevationRule(videoIDs []string) ElevationRule {
	return ElevationRule{
		VideoIDs:    append([]string(nil), videoIDs...),
		VideoZ:      VideoZIndex,
		AffordanceZ: AffordanceZIndex,
		OtherZ:      OtherZIndex,
	}
}

// ButtonState is the presentation of the in-player toggle button.
type ButtonState struct {
	Active     bool    `json:"active"`
	Background string  `json:"background"`
	Opacity    float64 `json:"opacity"`
	Tooltip    string  `json:"tooltip"`
}

// Chrome receives visual updates. Calls are fire-and-forget.
type Chrome interface {
	// SetSuppression installs or removes the page-wide pointer-events block.
	SetSuppression(installed bool)
	// SetControlsEnabled lifts the suppression while the controls are enabled.
	SetControlsEnabled(enabled bool)
	SetElevation(rule ElevationRule, installed bool)
	ShowExitAffordance(tooltip string)
	HideExitAffordance()
	SetIntensity(level controls.Intensity)
	SetBodyHovered(inside bool)
	SetButtonState(state ButtonState)
	Alert(message string)
}

// Watcher observes the page for exit conditions. Notifications come back as
// session events; the watcher is only registered while a session is active.
type Watcher interface {
	Watch(primary Video, targets []Video)
	Unwatch()
}
