package page

import (
	"fmt"
	"sync"

	"github.com/nupi-ai/comfort/internal/controls"
	"github.com/nupi-ai/comfort/internal/geometry"
)

// MemoryVideo is an in-process Video used by tests and the simulator.
type MemoryVideo struct {
	mu        sync.Mutex
	id        string
	size      geometry.Size
	rect      geometry.Rect
	style     Style
	paused    bool
	ended     bool
	marked    bool
	connected bool
}

// NewMemoryVideo creates a connected, playing video laid out at rect.
func NewMemoryVideo(id string, size geometry.Size, rect geometry.Rect, style Style) *MemoryVideo {
	return &MemoryVideo{id: id, size: size, rect: rect, style: style, connected: true}
}

func (v *MemoryVideo) ID() string { return v.id }

func (v *MemoryVideo) IntrinsicSize() geometry.Size {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

func (v *MemoryVideo) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *MemoryVideo) Ended() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ended
}

// RenderRect follows the inline style when it pins the element, otherwise the
// layout rectangle the video was created with.
func (v *MemoryVideo) RenderRect() geometry.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := StyleRect(v.style); ok {
		return r
	}
	return v.rect
}

func (v *MemoryVideo) Style() Style {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.style
}

func (v *MemoryVideo) SetStyle(s Style) {
	v.mu.Lock()
	v.style = s
	v.mu.Unlock()
}

func (v *MemoryVideo) SetMarked(marked bool) {
	v.mu.Lock()
	v.marked = marked
	v.mu.Unlock()
}

// Marked reports the container marker.
func (v *MemoryVideo) Marked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.marked
}

func (v *MemoryVideo) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// SetPlayback sets the paused and ended flags.
func (v *MemoryVideo) SetPlayback(paused, ended bool) {
	v.mu.Lock()
	v.paused = paused
	v.ended = ended
	v.mu.Unlock()
}

// SetIntrinsicSize changes the reported media dimensions.
func (v *MemoryVideo) SetIntrinsicSize(size geometry.Size) {
	v.mu.Lock()
	v.size = size
	v.mu.Unlock()
}

// Detach marks the element as removed from the document.
func (v *MemoryVideo) Detach() {
	v.mu.Lock()
	v.connected = false
	v.mu.Unlock()
}

// MemoryPage is an in-process Page holding MemoryVideos in document order.
type MemoryPage struct {
	mu       sync.Mutex
	viewport geometry.Size
	videos   []*MemoryVideo
}

// NewMemoryPage creates a page with the given viewport.
func NewMemoryPage(viewport geometry.Size, videos ...*MemoryVideo) *MemoryPage {
	return &MemoryPage{viewport: viewport, videos: videos}
}

// FindPlayableVideos returns every connected video in document order.
func (p *MemoryPage) FindPlayableVideos() []Video {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Video, 0, len(p.videos))
	for _, v := range p.videos {
		if v.Connected() {
			out = append(out, v)
		}
	}
	return out
}

func (p *MemoryPage) Viewport() geometry.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

// SetViewport changes the viewport size.
func (p *MemoryPage) SetViewport(size geometry.Size) {
	p.mu.Lock()
	p.viewport = size
	p.mu.Unlock()
}

// Add appends a video to the document.
func (p *MemoryPage) Add(v *MemoryVideo) {
	p.mu.Lock()
	p.videos = append(p.videos, v)
	p.mu.Unlock()
}

// Remove detaches the video with the given ID.
func (p *MemoryPage) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, v := range p.videos {
		if v.id == id {
			v.Detach()
			p.videos = append(p.videos[:i], p.videos[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("page: video %s not found", id)
}

// RecordingChrome is a Chrome and Watcher that keeps the latest visual state
// and a log of every call.
type RecordingChrome struct {
	mu sync.Mutex

	Calls           []string
	Suppressed      bool
	ControlsEnabled bool
	Elevation       *ElevationRule
	ExitVisible     bool
	ExitTooltip     string
	Intensity       controls.Intensity
	BodyHovered     bool
	Button          ButtonState
	Alerts          []string
	Watching        bool
	WatchedPrimary  string
	WatchedTargets  []string
}

func (c *RecordingChrome) record(call string) {
	c.Calls = append(c.Calls, call)
}

func (c *RecordingChrome) SetSuppression(installed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Suppressed = installed
	c.record(fmt.Sprintf("suppression:%t", installed))
}

func (c *RecordingChrome) SetControlsEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ControlsEnabled = enabled
	c.record(fmt.Sprintf("controls:%t", enabled))
}

func (c *RecordingChrome) SetElevation(rule ElevationRule, installed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if installed {
		c.Elevation = &rule
	} else {
		c.Elevation = nil
	}
	c.record(fmt.Sprintf("elevation:%t", installed))
}

func (c *RecordingChrome) ShowExitAffordance(tooltip string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExitVisible = true
	c.ExitTooltip = tooltip
	c.record("exit:show")
}

func (c *RecordingChrome) HideExitAffordance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExitVisible = false
	c.record("exit:hide")
}

func (c *RecordingChrome) SetIntensity(level controls.Intensity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Intensity = level
	c.record("intensity:" + level.String())
}

func (c *RecordingChrome) SetBodyHovered(inside bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BodyHovered = inside
	c.record(fmt.Sprintf("hovered:%t", inside))
}

func (c *RecordingChrome) SetButtonState(state ButtonState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Button = state
	c.record(fmt.Sprintf("button:%t", state.Active))
}

func (c *RecordingChrome) Alert(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Alerts = append(c.Alerts, message)
	c.record("alert")
}

func (c *RecordingChrome) Watch(primary Video, targets []Video) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Watching = true
	c.WatchedPrimary = primary.ID()
	c.WatchedTargets = c.WatchedTargets[:0]
	for _, t := range targets {
		c.WatchedTargets = append(c.WatchedTargets, t.ID())
	}
	c.record("watch")
}

func (c *RecordingChrome) Unwatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Watching = false
	c.WatchedPrimary = ""
	c.WatchedTargets = nil
	c.record("unwatch")
}

// Snapshot returns a copy of the call log.
func (c *RecordingChrome) Snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Calls...)
}
