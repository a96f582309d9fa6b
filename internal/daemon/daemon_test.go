package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nupi-ai/comfort/internal/api"
	"github.com/nupi-ai/comfort/internal/config"
	"github.com/nupi-ai/comfort/internal/journal"
	"github.com/nupi-ai/comfort/internal/transport/gateway"
)

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	home := t.TempDir()
	paths := config.PathsAt(home)
	return config.Settings{
		Home:            home,
		HTTPAddr:        "127.0.0.1:0",
		GRPCAddr:        "127.0.0.1:0",
		RevealDelay:     2 * time.Second,
		HideDelay:       3 * time.Second,
		TriggerFraction: 0.2,
		Locale:          "en",
		AdaptersDir:     paths.Adapters,
		JournalPath:     paths.Journal,
	}
}

func TestDaemonServesAndClosesDanglingSessions(t *testing.T) {
	settings := testSettings(t)
	if err := os.MkdirAll(filepath.Dir(settings.JournalPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	seed, err := journal.Open(settings.JournalPath)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if err := seed.Begin(context.Background(), journal.Entry{ID: "crashed", PageID: "p", StartedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	seed.Close()

	d, err := New(Options{Settings: settings, QuietHTTP: true})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Start() }()

	deadline := time.Now().Add(5 * time.Second)
	for d.RuntimeInfo().HTTPPort() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("gateway did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !IsRunning(settings.Paths()) {
		t.Fatal("pid file should name the running process")
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", d.RuntimeInfo().HTTPPort()))
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health api.HealthDTO
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil || health.Status != "ok" {
		t.Fatalf("health = %+v, %v", health, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	status, err := gateway.Probe(ctx, fmt.Sprintf("127.0.0.1:%d", d.RuntimeInfo().GRPCPort()))
	cancel()
	if err != nil || status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %v, %v", status, err)
	}

	d.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	if _, err := os.Stat(settings.Paths().PIDFile); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err = %v", err)
	}

	store, err := journal.Open(settings.JournalPath)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer store.Close()
	entry, err := store.Get(context.Background(), "crashed")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Active() || entry.EndReason != danglingReason {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestIsRunningRemovesStalePIDFile(t *testing.T) {
	paths := config.PathsAt(t.TempDir())
	if IsRunning(paths) {
		t.Fatal("no pid file means not running")
	}
	if err := os.MkdirAll(paths.RunDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(paths.PIDFile, []byte("1073741823"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if IsRunning(paths) {
		t.Fatal("dead pid should not count as running")
	}
	if _, err := os.Stat(paths.PIDFile); !os.IsNotExist(err) {
		t.Fatal("stale pid file should be removed")
	}
}
