package controls

import (
	"reflect"
	"testing"
	"time"

	"github.com/nupi-ai/comfort/internal/clock"
	"github.com/nupi-ai/comfort/internal/region"
)

type recorder struct {
	controls  []bool
	intensity []Intensity
	hover     []bool
}

func (r *recorder) ControlsChanged(enabled bool)     { r.controls = append(r.controls, enabled) }
func (r *recorder) IntensityChanged(level Intensity) { r.intensity = append(r.intensity, level) }
func (r *recorder) BodyHoverChanged(inside bool)     { r.hover = append(r.hover, inside) }

var (
	outside = region.Classification{}
	body    = region.Classification{InBody: true}
	band    = region.Classification{InBody: true, InTriggerZone: true}
)

func newMachine() (*Machine, *clock.Manual, *recorder) {
	clk := clock.NewManual(time.Unix(0, 0))
	rec := &recorder{}
	return New(Config{}, clk, nil, rec), clk, rec
}

func TestHoverInBandRevealsAfterDelay(t *testing.T) {
	m, clk, rec := newMachine()

	m.CursorMoved(band, false)
	if !m.RevealPending() {
		t.Fatalf("expected reveal timer")
	}
	clk.Advance(1999 * time.Millisecond)
	if m.Enabled() {
		t.Fatalf("enabled before delay elapsed")
	}
	// Further moves inside the band do not restart the delay.
	m.CursorMoved(band, false)
	clk.Advance(time.Millisecond)
	if !m.Enabled() {
		t.Fatalf("expected enabled after 2s")
	}
	if !reflect.DeepEqual(rec.controls, []bool{true}) {
		t.Fatalf("controls notifications = %v", rec.controls)
	}
}

func TestLeavingBandCancelsReveal(t *testing.T) {
	m, clk, rec := newMachine()

	m.CursorMoved(band, false)
	clk.Advance(1500 * time.Millisecond)
	m.CursorMoved(body, false)
	if m.RevealPending() {
		t.Fatalf("reveal should be cancelled outside the band")
	}
	clk.Advance(10 * time.Second)
	if m.Enabled() || len(rec.controls) != 0 {
		t.Fatalf("controls must stay disabled, got %v", rec.controls)
	}
}

func TestClickInBandEnablesImmediately(t *testing.T) {
	m, clk, _ := newMachine()

	m.CursorMoved(band, false)
	m.Clicked(band)
	if !m.Enabled() {
		t.Fatalf("click in band should enable")
	}
	if m.RevealPending() {
		t.Fatalf("reveal timer should be cancelled by click")
	}
	if clk.Pending() != 0 {
		t.Fatalf("no timers should remain, got %d", clk.Pending())
	}
}

func TestClickOutsideBandIgnored(t *testing.T) {
	m, _, _ := newMachine()
	m.Clicked(body)
	m.Clicked(outside)
	if m.Enabled() {
		t.Fatalf("click outside band must not enable")
	}
}

func TestAllPausedEnablesOnAnyMove(t *testing.T) {
	m, clk, _ := newMachine()

	m.CursorMoved(outside, true)
	if !m.Enabled() {
		t.Fatalf("expected immediate enable while paused")
	}
	if m.HidePending() {
		t.Fatalf("no hide timer while paused")
	}
	clk.Advance(time.Minute)
	if !m.Enabled() {
		t.Fatalf("paused playback must never disable controls")
	}
}

func TestOutsideWhilePlayingHidesAfterDelay(t *testing.T) {
	m, clk, rec := newMachine()

	m.CursorMoved(band, false)
	m.Clicked(band)
	m.CursorMoved(outside, false)
	if !m.HidePending() {
		t.Fatalf("expected hide timer")
	}
	clk.Advance(2999 * time.Millisecond)
	m.CursorMoved(outside, false)
	if !m.Enabled() {
		t.Fatalf("disabled before delay elapsed")
	}
	clk.Advance(time.Millisecond)
	if m.Enabled() {
		t.Fatalf("expected disabled after 3s outside")
	}
	if !reflect.DeepEqual(rec.controls, []bool{true, false}) {
		t.Fatalf("controls notifications = %v", rec.controls)
	}
}

func TestReturningToBodyCancelsHide(t *testing.T) {
	m, clk, _ := newMachine()

	m.Clicked(band)
	m.CursorMoved(outside, false)
	clk.Advance(2 * time.Second)
	m.CursorMoved(body, false)
	if m.HidePending() {
		t.Fatalf("hide timer should be cancelled in body")
	}
	clk.Advance(time.Minute)
	if !m.Enabled() {
		t.Fatalf("expected controls to stay enabled")
	}
}

func TestPauseCancelsHideAndPlayRestartsIt(t *testing.T) {
	m, clk, _ := newMachine()

	m.Clicked(band)
	m.CursorMoved(outside, false)
	m.PlaybackPaused()
	if m.HidePending() {
		t.Fatalf("pause should cancel hide")
	}
	clk.Advance(5 * time.Second)
	if !m.Enabled() {
		t.Fatalf("expected enabled while paused")
	}

	m.PlaybackStarted(outside)
	if !m.HidePending() {
		t.Fatalf("play with cursor outside should start hide")
	}
	clk.Advance(3 * time.Second)
	if m.Enabled() {
		t.Fatalf("expected disabled 3s after play")
	}
}

func TestPlaybackStartedInsideBodyDoesNothing(t *testing.T) {
	m, _, _ := newMachine()
	m.Clicked(band)
	m.PlaybackStarted(body)
	if m.HidePending() {
		t.Fatalf("cursor in body must not start hide")
	}
}

func TestPlaybackStartedWithoutCursorDoesNothing(t *testing.T) {
	m, _, _ := newMachine()
	m.Clicked(band)
	m.PlaybackStarted(outside)
	if m.HidePending() {
		t.Fatalf("unknown cursor position must not start hide")
	}
}

func TestStaleTokenIgnored(t *testing.T) {
	m, _, rec := newMachine()

	m.CursorMoved(band, false)
	token := m.reveal.token
	m.CursorMoved(body, false)
	m.TimerFired(TimerReveal, token)
	if m.Enabled() || len(rec.controls) != 0 {
		t.Fatalf("stale expiry must be ignored")
	}

	m.CursorMoved(band, false)
	m.TimerFired(TimerReveal, token)
	if m.Enabled() {
		t.Fatalf("expiry from a replaced timer must be ignored")
	}
	m.TimerFired(TimerReveal, m.reveal.token)
	if !m.Enabled() {
		t.Fatalf("current expiry should enable")
	}
}

func TestDispatchDefersExpiry(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	type expiry struct {
		kind  TimerKind
		token uint64
	}
	var queued []expiry
	m := New(Config{}, clk, func(kind TimerKind, token uint64) {
		queued = append(queued, expiry{kind, token})
	}, nil)

	m.CursorMoved(band, false)
	clk.Advance(2 * time.Second)
	if m.Enabled() {
		t.Fatalf("dispatch must defer the transition")
	}
	if len(queued) != 1 || queued[0].kind != TimerReveal {
		t.Fatalf("queued = %+v", queued)
	}
	m.TimerFired(queued[0].kind, queued[0].token)
	if !m.Enabled() {
		t.Fatalf("expected enabled after delivering the expiry")
	}
}

func TestStopMakesMachineInert(t *testing.T) {
	m, clk, rec := newMachine()

	m.CursorMoved(band, false)
	m.Stop()
	if clk.Pending() != 0 {
		t.Fatalf("stop should cancel timers, %d pending", clk.Pending())
	}
	m.Clicked(band)
	m.CursorMoved(outside, true)
	clk.Advance(time.Minute)
	if m.Enabled() || len(rec.controls) != 0 {
		t.Fatalf("stopped machine must not transition")
	}
}

func TestIntensityFollowsStateAndHover(t *testing.T) {
	m, clk, rec := newMachine()

	m.CursorMoved(body, false)
	m.CursorMoved(band, false)
	clk.Advance(2 * time.Second)
	m.CursorMoved(outside, false)
	clk.Advance(3 * time.Second)

	want := []Intensity{IntensityMedium, IntensityOpaque, IntensityTextOnly}
	if !reflect.DeepEqual(rec.intensity, want) {
		t.Fatalf("intensity = %v, want %v", rec.intensity, want)
	}
	if !reflect.DeepEqual(rec.hover, []bool{true, false}) {
		t.Fatalf("hover = %v", rec.hover)
	}
}

func TestIntensityForMapping(t *testing.T) {
	cases := []struct {
		state  State
		inBody bool
		want   Intensity
	}{
		{Enabled, true, IntensityOpaque},
		{Enabled, false, IntensityOpaque},
		{Disabled, true, IntensityMedium},
		{Disabled, false, IntensityTextOnly},
	}
	for _, tc := range cases {
		if got := IntensityFor(tc.state, tc.inBody); got != tc.want {
			t.Fatalf("IntensityFor(%v, %v) = %v, want %v", tc.state, tc.inBody, got, tc.want)
		}
	}
}

func TestPaletteDistinct(t *testing.T) {
	seen := map[Palette]Intensity{}
	for _, level := range []Intensity{IntensityTextOnly, IntensityMedium, IntensityOpaque} {
		p := level.Palette()
		if other, ok := seen[p]; ok {
			t.Fatalf("%v and %v share a palette", level, other)
		}
		seen[p] = level
	}
	if IntensityTextOnly.Palette().Background != "transparent" {
		t.Fatalf("text-only affordance should have no background")
	}
}

func TestCustomDelays(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	m := New(Config{RevealDelay: 500 * time.Millisecond, HideDelay: time.Second}, clk, nil, nil)
	m.CursorMoved(band, false)
	clk.Advance(500 * time.Millisecond)
	if !m.Enabled() {
		t.Fatalf("expected custom reveal delay")
	}
	m.CursorMoved(outside, false)
	clk.Advance(time.Second)
	if m.Enabled() {
		t.Fatalf("expected custom hide delay")
	}
}
