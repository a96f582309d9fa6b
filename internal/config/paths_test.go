package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetHome(t *testing.T) {
	userHome, _ := os.UserHomeDir()
	if got, want := GetHome(), filepath.Join(userHome, ".comfort"); got != want {
		t.Errorf("GetHome() = %s; want %s", got, want)
	}
}

func TestPathsAt(t *testing.T) {
	paths := PathsAt("/srv/comfort")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"journal", paths.Journal, "/srv/comfort/journal.db"},
		{"adapters", paths.Adapters, "/srv/comfort/adapters"},
		{"logs", paths.Logs, "/srv/comfort/logs"},
		{"pid", paths.PIDFile, "/srv/comfort/run/comfortd.pid"},
	}
	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("%s = %s; want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~", home},
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
		{"~user/path", "~user/path"},
	}

	for _, tt := range tests {
		if result := ExpandPath(tt.input); result != tt.expected {
			t.Errorf("ExpandPath(%q) = %q; want %q", tt.input, result, tt.expected)
		}
	}
}

func TestEnsureDirs(t *testing.T) {
	paths := PathsAt(filepath.Join(t.TempDir(), "home"))
	if err := EnsureDirs(paths); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, dir := range []string{paths.Home, paths.Adapters, paths.Logs, paths.RunDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("%s not created: %v", dir, err)
		}
	}
}
