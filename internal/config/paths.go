package config

import (
	"os"
	"path/filepath"
)

// Paths contains the on-disk layout of a comfort installation.
type Paths struct {
	Home     string // ~/.comfort
	Journal  string // SQLite session journal
	Adapters string // JS site adapters
	Locales  string // Optional locale overrides
	Logs     string // Logs directory
	RunDir   string // PID file and other runtime state
	PIDFile  string
}

// GetPaths returns the default layout rooted at GetHome.
func GetPaths() Paths {
	return PathsAt(GetHome())
}

// PathsAt returns the layout rooted at home.
func PathsAt(home string) Paths {
	runDir := filepath.Join(home, "run")
	return Paths{
		Home:     home,
		Journal:  filepath.Join(home, "journal.db"),
		Adapters: filepath.Join(home, "adapters"),
		Locales:  filepath.Join(home, "locales"),
		Logs:     filepath.Join(home, "logs"),
		RunDir:   runDir,
		PIDFile:  filepath.Join(runDir, "comfortd.pid"),
	}
}

// GetHome returns the comfort home directory (~/.comfort).
func GetHome() string {
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".comfort")
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureDirs creates the directory structure if it does not exist.
func EnsureDirs(paths Paths) error {
	for _, dir := range []string{paths.Home, paths.Adapters, paths.Logs, paths.RunDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
