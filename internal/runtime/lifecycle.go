package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Service is a daemon component started and stopped by the ServiceHost.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Lifecycle is closed once when the daemon begins shutting down.
type Lifecycle struct {
	once sync.Once
	done chan struct{}
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Done is closed by the first Shutdown.
func (l *Lifecycle) Done() <-chan struct{} { return l.done }

// Shutdown may be called any number of times.
func (l *Lifecycle) Shutdown() {
	l.once.Do(func() { close(l.done) })
}

// ErrNoPIDFile is returned by ReadPIDFile when the file does not exist.
var ErrNoPIDFile = errors.New("runtime: no pid file")

// WritePIDFile records pid at path. The file is replaced atomically so a
// concurrent reader never sees a partial number.
func WritePIDFile(path string, pid int) error {
	if path == "" {
		return errors.New("runtime: pid file path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("runtime: create pid dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".pid-*")
	if err != nil {
		return fmt.Errorf("runtime: write pid file: %w", err)
	}
	_, werr := tmp.WriteString(strconv.Itoa(pid) + "\n")
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("runtime: write pid file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("runtime: write pid file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("runtime: write pid file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes path, ignoring a missing file.
func RemovePIDFile(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

// ReadPIDFile returns the PID stored at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNoPIDFile
	}
	if err != nil {
		return 0, fmt.Errorf("runtime: read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("runtime: pid file %s holds %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// LivePID returns the PID recorded at path when that process is still
// running. A file naming a dead or unreadable process is removed.
func LivePID(path string) (int, bool) {
	pid, err := ReadPIDFile(path)
	if errors.Is(err, ErrNoPIDFile) {
		return 0, false
	}
	if err != nil || !ProcessAlive(pid) {
		RemovePIDFile(path)
		return 0, false
	}
	return pid, true
}
