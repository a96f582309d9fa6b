package version

import (
	"strings"
	"testing"
)

func TestCheckVersionMismatch(t *testing.T) {
	tests := []struct {
		name   string
		client string
		daemon string
		warn   bool
	}{
		{name: "same", client: "0.4.0", daemon: "0.4.0"},
		{name: "different", client: "0.4.0", daemon: "0.3.1", warn: true},
		{name: "dev daemon", client: "0.4.0", daemon: "dev"},
		{name: "dev client", client: "dev", daemon: "0.4.0"},
		{name: "empty daemon", client: "0.4.0", daemon: ""},
		{name: "describe suffix", client: "0.4.0-3-gdeadbee", daemon: "v0.4.0"},
		{name: "describe suffix differs", client: "0.4.0-3-gdeadbee", daemon: "0.3.0", warn: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(ForTesting(tt.client))
			got := CheckVersionMismatch(tt.daemon)
			if tt.warn != (got != "") {
				t.Fatalf("CheckVersionMismatch(%q) with client %q = %q", tt.daemon, tt.client, got)
			}
			if tt.warn && !strings.Contains(got, "comfortd") {
				t.Fatalf("warning %q does not name the daemon", got)
			}
		})
	}
}

func TestFormatVersion(t *testing.T) {
	for in, want := range map[string]string{"1.0.0": "v1.0.0", "v1.0.0": "v1.0.0", "dev": "dev", "": ""} {
		if got := FormatVersion(in); got != want {
			t.Fatalf("FormatVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeVersion(t *testing.T) {
	for in, want := range map[string]string{
		"v0.3.0":               "0.3.0",
		"0.3.0-5-gabcdef":      "0.3.0",
		"0.3.0-beta-5-gabcdef": "0.3.0-beta",
		"0.3.0-rc1":            "0.3.0-rc1",
	} {
		if got := normalizeVersion(in); got != want {
			t.Fatalf("normalizeVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
