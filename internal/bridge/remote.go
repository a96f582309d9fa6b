package bridge

import (
	"sync"

	"github.com/nupi-ai/comfort/internal/controls"
	"github.com/nupi-ai/comfort/internal/geometry"
	"github.com/nupi-ai/comfort/internal/page"
)

// sender queues an outbound message for the page.
type sender interface {
	send(msgType string, data any)
}

// remoteVideo mirrors a video element living in the browser. Style changes are
// applied locally and forwarded to the page.
type remoteVideo struct {
	out sender
	id  string

	mu        sync.Mutex
	size      geometry.Size
	rect      geometry.Rect
	style     page.Style
	paused    bool
	ended     bool
	marked    bool
	connected bool
}

func (v *remoteVideo) ID() string { return v.id }

func (v *remoteVideo) IntrinsicSize() geometry.Size {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

func (v *remoteVideo) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

func (v *remoteVideo) Ended() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ended
}

func (v *remoteVideo) RenderRect() geometry.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	if r, ok := page.StyleRect(v.style); ok {
		return r
	}
	return v.rect
}

func (v *remoteVideo) Style() page.Style {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.style
}

func (v *remoteVideo) SetStyle(s page.Style) {
	v.mu.Lock()
	v.style = s
	v.mu.Unlock()
	v.out.send(TypeStyle, stylePayload{VideoID: v.id, Style: s})
}

func (v *remoteVideo) SetMarked(marked bool) {
	v.mu.Lock()
	v.marked = marked
	v.mu.Unlock()
	v.out.send(TypeMark, markPayload{VideoID: v.id, Marked: marked})
}

func (v *remoteVideo) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// apply copies a reported state. The inline style is only taken while the
// video is not maximised, so a late report cannot clobber the fitted style.
func (v *remoteVideo) apply(st VideoState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.size = geometry.Size{Width: st.Width, Height: st.Height}
	v.rect = st.Rect
	v.paused = st.Paused
	v.ended = st.Ended
	v.connected = st.Connected == nil || *st.Connected
	if !v.marked {
		v.style = st.Style
	}
}

func (v *remoteVideo) setPlayback(paused, ended bool) {
	v.mu.Lock()
	v.paused = paused
	v.ended = ended
	v.mu.Unlock()
}

func (v *remoteVideo) detach() {
	v.mu.Lock()
	v.connected = false
	v.mu.Unlock()
}

// remotePage is the page inventory reported by the browser.
type remotePage struct {
	out sender

	mu       sync.Mutex
	viewport geometry.Size
	order    []string
	videos   map[string]*remoteVideo
}

func newRemotePage(out sender, viewport geometry.Size) *remotePage {
	return &remotePage{out: out, viewport: viewport, videos: make(map[string]*remoteVideo)}
}

func (p *remotePage) FindPlayableVideos() []page.Video {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]page.Video, 0, len(p.order))
	for _, id := range p.order {
		if v := p.videos[id]; v.Connected() {
			out = append(out, v)
		}
	}
	return out
}

func (p *remotePage) Viewport() geometry.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

func (p *remotePage) setViewport(size geometry.Size) {
	p.mu.Lock()
	p.viewport = size
	p.mu.Unlock()
}

// replace installs a full inventory in document order. Videos missing from
// states are detached.
func (p *remotePage) replace(states []VideoState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool, len(states))
	order := make([]string, 0, len(states))
	for _, st := range states {
		if st.ID == "" || seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		v, ok := p.videos[st.ID]
		if !ok {
			v = &remoteVideo{out: p.out, id: st.ID}
			p.videos[st.ID] = v
		}
		v.apply(st)
		order = append(order, st.ID)
	}
	for id, v := range p.videos {
		if !seen[id] {
			v.detach()
			delete(p.videos, id)
		}
	}
	p.order = order
}

func (p *remotePage) video(id string) (*remoteVideo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.videos[id]
	return v, ok
}

// remove detaches a single video.
func (p *remotePage) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.videos[id]
	if !ok {
		return
	}
	v.detach()
	delete(p.videos, id)
	for i, other := range p.order {
		if other == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// remoteChrome forwards visual updates and watcher registration to the page.
type remoteChrome struct {
	out sender
}

func (c remoteChrome) SetSuppression(installed bool) {
	c.out.send(TypeSuppression, installedPayload{Installed: installed})
}

func (c remoteChrome) SetControlsEnabled(enabled bool) {
	c.out.send(TypeControls, enabledPayload{Enabled: enabled})
}

func (c remoteChrome) SetElevation(rule page.ElevationRule, installed bool) {
	c.out.send(TypeElevation, elevationPayload{Installed: installed, ElevationRule: rule})
}

func (c remoteChrome) ShowExitAffordance(tooltip string) {
	c.out.send(TypeExitAffordance, exitAffordancePayload{Visible: true, Tooltip: tooltip})
}

func (c remoteChrome) HideExitAffordance() {
	c.out.send(TypeExitAffordance, exitAffordancePayload{Visible: false})
}

func (c remoteChrome) SetIntensity(level controls.Intensity) {
	c.out.send(TypeIntensity, intensityPayload{Level: level.String(), Palette: level.Palette()})
}

func (c remoteChrome) SetBodyHovered(inside bool) {
	c.out.send(TypeHovered, hoveredPayload{Inside: inside})
}

func (c remoteChrome) SetButtonState(state page.ButtonState) {
	c.out.send(TypeButton, buttonPayload{State: state})
}

func (c remoteChrome) Alert(message string) {
	c.out.send(TypeAlert, alertPayload{Message: message})
}

func (c remoteChrome) Watch(primary page.Video, targets []page.Video) {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID())
	}
	c.out.send(TypeWatch, watchPayload{Primary: primary.ID(), Targets: ids})
}

func (c remoteChrome) Unwatch() {
	c.out.send(TypeUnwatch, struct{}{})
}
