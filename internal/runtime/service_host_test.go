package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeService struct {
	name     string
	rec      *recorder
	startErr error
	errCh    chan error
}

func (s *fakeService) Start(ctx context.Context) error {
	s.rec.add("start:" + s.name)
	return s.startErr
}

func (s *fakeService) Shutdown(ctx context.Context) error {
	s.rec.add("stop:" + s.name)
	return nil
}

func (s *fakeService) Errors() <-chan error { return s.errCh }

func factoryFor(svc *fakeService) ServiceFactory {
	return func(ctx context.Context) (Service, error) { return svc, nil }
}

func TestServiceHostStartStopOrder(t *testing.T) {
	rec := &recorder{}
	host := NewServiceHost()
	for _, name := range []string{"journal", "hub", "gateway"} {
		if err := host.Register(name, factoryFor(&fakeService{name: name, rec: rec})); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := host.Register("hub", factoryFor(&fakeService{})); err == nil {
		t.Fatal("duplicate registration should fail")
	}

	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := host.Register("late", factoryFor(&fakeService{})); err == nil {
		t.Fatal("registration after start should fail")
	}
	if err := host.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:journal", "start:hub", "start:gateway", "stop:gateway", "stop:hub", "stop:journal"}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestServiceHostRollsBackOnStartFailure(t *testing.T) {
	rec := &recorder{}
	host := NewServiceHost()
	host.Register("journal", factoryFor(&fakeService{name: "journal", rec: rec}))
	host.Register("gateway", factoryFor(&fakeService{name: "gateway", rec: rec, startErr: errors.New("port in use")}))

	err := host.Start(context.Background())
	if err == nil {
		t.Fatal("expected start failure")
	}
	got := rec.snapshot()
	if len(got) != 3 || got[2] != "stop:journal" {
		t.Fatalf("events = %v", got)
	}
}

func TestServiceHostForwardsErrors(t *testing.T) {
	errCh := make(chan error, 1)
	host := NewServiceHost()
	host.Register("gateway", factoryFor(&fakeService{name: "gateway", rec: &recorder{}, errCh: errCh}))
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer host.Stop(context.Background())

	errCh <- errors.New("listener died")
	err := <-host.Errors()
	if err == nil || err.Error() != "gateway service error: listener died" {
		t.Fatalf("err = %v", err)
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "comfortd.pid")
	if err := WritePIDFile(path, 4242); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, err := ReadPIDFile(path)
	if err != nil || pid != 4242 {
		t.Fatalf("read = %d, %v", pid, err)
	}
	RemovePIDFile(path)
	if _, err := ReadPIDFile(path); !errors.Is(err, ErrNoPIDFile) {
		t.Fatalf("read after removal = %v, want ErrNoPIDFile", err)
	}
	if err := WritePIDFile("", 1); err == nil {
		t.Fatal("empty path should fail")
	}
}

func TestLivePID(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		contents string
		wantOK   bool
		wantKept bool
	}{
		{name: "self", contents: strconv.Itoa(os.Getpid()), wantOK: true, wantKept: true},
		{name: "dead", contents: "1073741823", wantOK: false, wantKept: false},
		{name: "garbage", contents: "not-a-pid", wantOK: false, wantKept: false},
		{name: "missing", wantOK: false, wantKept: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".pid")
			if tt.contents != "" {
				if err := os.WriteFile(path, []byte(tt.contents), 0o600); err != nil {
					t.Fatalf("seed: %v", err)
				}
			}
			pid, ok := LivePID(path)
			if ok != tt.wantOK {
				t.Fatalf("LivePID = %d, %v; want ok=%v", pid, ok, tt.wantOK)
			}
			if ok && pid != os.Getpid() {
				t.Fatalf("pid = %d, want %d", pid, os.Getpid())
			}
			_, err := os.Stat(path)
			if kept := err == nil; kept != tt.wantKept {
				t.Fatalf("file kept = %v, want %v", kept, tt.wantKept)
			}
		})
	}
}

func TestLifecycleShutdownIsIdempotent(t *testing.T) {
	l := NewLifecycle()
	l.Shutdown()
	l.Shutdown()
	select {
	case <-l.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestProcessAlive(t *testing.T) {
	if !ProcessAlive(os.Getpid()) {
		t.Fatal("own process should be alive")
	}
	if ProcessAlive(0) || ProcessAlive(1<<30-1) {
		t.Fatal("bogus pids should not be alive")
	}
}
