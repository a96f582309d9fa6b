package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nupi-ai/comfort/internal/eventbus"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "direct", err: NotFoundError{Entity: "session", Key: "x"}, want: true},
		{name: "wrapped", err: fmt.Errorf("outer: %w", NotFoundError{Entity: "session"}), want: true},
		{name: "nil", err: nil, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := s.Begin(ctx, Entry{ID: "s1", PageID: "p1", Site: "youtube", StartedAt: start, VideoCount: 2}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Begin(ctx, Entry{ID: "s1", PageID: "other", StartedAt: start}); err != nil {
		t.Fatalf("duplicate begin: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.AddReveal(ctx, "s1"); err != nil {
			t.Fatalf("reveal: %v", err)
		}
	}

	e, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !e.Active() || e.PageID != "p1" || e.VideoCount != 2 || e.Reveals != 3 || !e.StartedAt.Equal(start) {
		t.Fatalf("unexpected entry: %+v", e)
	}

	end := start.Add(90 * time.Second)
	if err := s.Finish(ctx, "s1", end, "escape"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := s.Finish(ctx, "s1", end, "escape"); !IsNotFound(err) {
		t.Fatalf("second finish should report not found, got %v", err)
	}
	if err := s.AddReveal(ctx, "s1"); !IsNotFound(err) {
		t.Fatalf("reveal on ended session should report not found, got %v", err)
	}

	e, err = s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Active() || e.EndReason != "escape" || e.Duration(time.Time{}) != 90*time.Second {
		t.Fatalf("unexpected finished entry: %+v", e)
	}

	if _, err := s.Get(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Begin(ctx, Entry{}); err == nil {
		t.Fatal("begin without id should fail")
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Sub-second offsets check that ordering does not depend on fraction width.
	offsets := []time.Duration{0, 1500 * time.Millisecond, 1200 * time.Millisecond, 10 * time.Second}
	for i, off := range offsets {
		id := fmt.Sprintf("s%d", i)
		if err := s.Begin(ctx, Entry{ID: id, PageID: "p", StartedAt: base.Add(off)}); err != nil {
			t.Fatalf("begin %s: %v", id, err)
		}
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	want := []string{"s3", "s1", "s2", "s0"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}

	two, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(two) != 2 || two[0].ID != "s3" {
		t.Fatalf("limited list = %+v", two)
	}
}

func TestCloseDangling(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	s.Begin(ctx, Entry{ID: "a", PageID: "p", StartedAt: now})
	s.Begin(ctx, Entry{ID: "b", PageID: "p", StartedAt: now})
	s.Finish(ctx, "b", now, "command")

	n, err := s.CloseDangling(ctx, now, "daemon_restart")
	if err != nil {
		t.Fatalf("close dangling: %v", err)
	}
	if n != 1 {
		t.Fatalf("closed %d rows, want 1", n)
	}
	e, _ := s.Get(ctx, "a")
	if e.EndReason != "daemon_restart" {
		t.Fatalf("reason = %q", e.EndReason)
	}
}

func TestRecorderFollowsBus(t *testing.T) {
	s := openTestStore(t)
	bus := eventbus.New()
	defer bus.Shutdown()

	rec := NewRecorder(s, bus)
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := rec.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	ctx := context.Background()
	started := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	eventbus.Publish(ctx, bus, eventbus.Sessions.Lifecycle, eventbus.SourceSession, eventbus.SessionLifecycleEvent{
		SessionID: "sess",
		PageID:    "page",
		Site:      "prime_video",
		State:     eventbus.SessionStateActive,
		Videos:    1,
	}, eventbus.WithTimestamp(started))

	waitFor(t, func() bool {
		_, err := s.Get(ctx, "sess")
		return err == nil
	})

	eventbus.Publish(ctx, bus, eventbus.Controls.Visibility, eventbus.SourceSession, eventbus.ControlsVisibilityEvent{SessionID: "sess", Enabled: true})
	eventbus.Publish(ctx, bus, eventbus.Controls.Visibility, eventbus.SourceSession, eventbus.ControlsVisibilityEvent{SessionID: "sess", Enabled: false})
	waitFor(t, func() bool {
		e, _ := s.Get(ctx, "sess")
		return e.Reveals == 1
	})

	eventbus.Publish(ctx, bus, eventbus.Sessions.Lifecycle, eventbus.SourceSession, eventbus.SessionLifecycleEvent{
		SessionID: "sess",
		PageID:    "page",
		State:     eventbus.SessionStateInactive,
		Reason:    "all_ended",
	}, eventbus.WithTimestamp(started.Add(time.Minute)))

	waitFor(t, func() bool {
		e, _ := s.Get(ctx, "sess")
		return !e.Active()
	})

	e, _ := s.Get(ctx, "sess")
	if e.Site != "prime_video" || e.EndReason != "all_ended" || e.Duration(time.Time{}) != time.Minute || e.Reveals != 1 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestRecorderKeepsRevealsAroundLifecycleEdges(t *testing.T) {
	s := openTestStore(t)
	bus := eventbus.New()
	defer bus.Shutdown()

	rec := NewRecorder(s, bus)
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx := context.Background()
	started := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)
	ids := make([]string, 30)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%02d", i)
		eventbus.Publish(ctx, bus, eventbus.Sessions.Lifecycle, eventbus.SourceSession, eventbus.SessionLifecycleEvent{
			SessionID: ids[i],
			PageID:    "page",
			State:     eventbus.SessionStateActive,
			Videos:    1,
		}, eventbus.WithTimestamp(started))
		eventbus.Publish(ctx, bus, eventbus.Controls.Visibility, eventbus.SourceSession, eventbus.ControlsVisibilityEvent{SessionID: ids[i], Enabled: true})
	}
	waitFor(t, func() bool {
		for _, id := range ids {
			if e, err := s.Get(ctx, id); err != nil || e.Reveals != 1 {
				return false
			}
		}
		return true
	})

	// A reveal that trails the deactivation is already part of its count.
	eventbus.Publish(ctx, bus, eventbus.Sessions.Lifecycle, eventbus.SourceSession, eventbus.SessionLifecycleEvent{
		SessionID: "s00",
		State:     eventbus.SessionStateInactive,
		Reason:    "escape",
		Reveals:   2,
	}, eventbus.WithTimestamp(started.Add(time.Minute)))
	eventbus.Publish(ctx, bus, eventbus.Controls.Visibility, eventbus.SourceSession, eventbus.ControlsVisibilityEvent{SessionID: "s00", Enabled: true})
	waitFor(t, func() bool {
		e, _ := s.Get(ctx, "s00")
		return !e.Active() && e.Reveals == 2
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rec.Shutdown(stopCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(rec.early) != 0 {
		t.Fatalf("held reveals = %v", rec.early)
	}
	if e, _ := s.Get(ctx, "s00"); e.Reveals != 2 {
		t.Fatalf("reveals after shutdown = %d", e.Reveals)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
