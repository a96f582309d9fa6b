package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("COMFORT_HOME", home)

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.HTTPAddr != "127.0.0.1:7420" || s.GRPCAddr != "127.0.0.1:7421" {
		t.Fatalf("addrs = %s, %s", s.HTTPAddr, s.GRPCAddr)
	}
	if s.RevealDelay != 2*time.Second || s.HideDelay != 3*time.Second {
		t.Fatalf("delays = %s, %s", s.RevealDelay, s.HideDelay)
	}
	if s.TriggerFraction != 0.2 || s.Locale != "en" {
		t.Fatalf("fraction=%g locale=%s", s.TriggerFraction, s.Locale)
	}
	if s.JournalPath != filepath.Join(home, "journal.db") || s.AdaptersDir != filepath.Join(home, "adapters") {
		t.Fatalf("paths = %s, %s", s.JournalPath, s.AdaptersDir)
	}
	if len(s.AllowedOrigins) != 0 {
		t.Fatalf("origins = %v", s.AllowedOrigins)
	}
}

func TestLoadSettingsOverrides(t *testing.T) {
	t.Setenv("COMFORT_HOME", t.TempDir())
	t.Setenv("COMFORT_REVEAL_DELAY", "500ms")
	t.Setenv("COMFORT_TRIGGER_FRACTION", "0.3")
	t.Setenv("COMFORT_ALLOWED_ORIGINS", "https://www.youtube.com, ,https://www.amazon.com")
	t.Setenv("COMFORT_JOURNAL_PATH", "/var/lib/comfort/j.db")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.RevealDelay != 500*time.Millisecond || s.TriggerFraction != 0.3 {
		t.Fatalf("unexpected settings: %+v", s)
	}
	if len(s.AllowedOrigins) != 2 || s.AllowedOrigins[1] != "https://www.amazon.com" {
		t.Fatalf("origins = %q", s.AllowedOrigins)
	}
	if s.JournalPath != "/var/lib/comfort/j.db" {
		t.Fatalf("journal = %s", s.JournalPath)
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "unparsable", key: "COMFORT_HIDE_DELAY", value: "soon", want: "parse env:"},
		{name: "zero delay", key: "COMFORT_HIDE_DELAY", value: "0s", want: "COMFORT_HIDE_DELAY must be positive"},
		{name: "fraction too large", key: "COMFORT_TRIGGER_FRACTION", value: "1", want: "COMFORT_TRIGGER_FRACTION"},
		{name: "empty addr", key: "COMFORT_GRPC_ADDR", value: " ", want: "COMFORT_GRPC_ADDR is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COMFORT_HOME", t.TempDir())
			t.Setenv(tt.key, tt.value)
			_, err := LoadSettings()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
