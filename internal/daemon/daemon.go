package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/nupi-ai/comfort/internal/api"
	"github.com/nupi-ai/comfort/internal/bridge"
	"github.com/nupi-ai/comfort/internal/config"
	"github.com/nupi-ai/comfort/internal/constants"
	"github.com/nupi-ai/comfort/internal/controls"
	"github.com/nupi-ai/comfort/internal/eventbus"
	"github.com/nupi-ai/comfort/internal/i18n"
	"github.com/nupi-ai/comfort/internal/journal"
	daemonruntime "github.com/nupi-ai/comfort/internal/runtime"
	"github.com/nupi-ai/comfort/internal/session"
	"github.com/nupi-ai/comfort/internal/sites"
	"github.com/nupi-ai/comfort/internal/transport/gateway"
)

// Reason written to journal rows left open by a crash or shutdown.
const danglingReason = "daemon_stopped"

// Options groups dependencies required to construct a Daemon.
type Options struct {
	Settings config.Settings
	// QuietHTTP disables per-request logging.
	QuietHTTP bool
}

// Daemon wires the session manager, page bridge, journal and gateway.
type Daemon struct {
	settings    config.Settings
	paths       config.Paths
	bus         *eventbus.Bus
	store       *journal.Store
	manager     *session.Manager
	hub         *bridge.Hub
	serviceHost *daemonruntime.ServiceHost
	lifecycle   *daemonruntime.Lifecycle
	info        *RuntimeInfo

	errMu  sync.Mutex
	runErr error
}

// New prepares directories, opens the journal and registers services.
func New(opts Options) (*Daemon, error) {
	s := opts.Settings
	paths := s.Paths()
	if err := config.EnsureDirs(paths); err != nil {
		return nil, fmt.Errorf("daemon: prepare directories: %w", err)
	}

	store, err := journal.Open(s.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: open journal: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), constants.JournalOpTimeout)
	closed, err := store.CloseDangling(ctx, time.Now(), danglingReason)
	cancel()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: close dangling sessions: %w", err)
	}
	if closed > 0 {
		log.Printf("[Daemon] closed %d sessions left open by a previous run", closed)
	}

	registry := sites.NewRegistry()
	if n, err := registry.LoadAdapters(s.AdaptersDir); err != nil {
		log.Printf("[Daemon] adapters: %v", err)
	} else if n > 0 {
		log.Printf("[Daemon] loaded %d site adapters from %s", n, s.AdaptersDir)
	}

	catalog, err := i18n.LoadEmbedded(s.Locale)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: load locales: %w", err)
	}

	bus := eventbus.New()
	manager := session.NewManager(session.Config{
		Controls:        controls.Config{RevealDelay: s.RevealDelay, HideDelay: s.HideDelay},
		TriggerFraction: s.TriggerFraction,
	})
	manager.UseEventBus(bus)
	manager.UseLocalizer(catalog.Localizer(s.Locale))
	manager.AddEventListener(func(event string, status session.Status) {
		log.Printf("[Daemon] page %s %s (site=%q origin=%s)", status.PageID, event, status.Site, status.Origin)
	})

	hub := bridge.NewHub(manager, registry, catalog, bridge.AllowOrigins(s.AllowedOrigins))
	apiServer := api.New(api.Config{
		Manager: manager,
		History: store,
		Bridge:  hub,
		Bus:     bus,
		Quiet:   opts.QuietHTTP,
	})

	d := &Daemon{
		settings:    s,
		paths:       paths,
		bus:         bus,
		store:       store,
		manager:     manager,
		hub:         hub,
		serviceHost: daemonruntime.NewServiceHost(),
		lifecycle:   daemonruntime.NewLifecycle(),
		info:        &RuntimeInfo{},
	}

	// Stopped in reverse: gateway first, then pages, then the journal so
	// the final lifecycle events are still recorded.
	registrations := []struct {
		name    string
		factory daemonruntime.ServiceFactory
	}{
		{"journal", func(ctx context.Context) (daemonruntime.Service, error) {
			return journal.NewRecorder(store, bus), nil
		}},
		{"bridge", func(ctx context.Context) (daemonruntime.Service, error) {
			return &bridgeService{hub: hub, manager: manager}, nil
		}},
		{"gateway", func(ctx context.Context) (daemonruntime.Service, error) {
			return newGatewayService(apiServer, gateway.Options{HTTPAddr: s.HTTPAddr, GRPCAddr: s.GRPCAddr}, d.info), nil
		}},
	}
	for _, reg := range registrations {
		if err := d.serviceHost.Register(reg.name, reg.factory, daemonruntime.WithShutdownTimeout(constants.ServiceShutdownTimeout)); err != nil {
			store.Close()
			bus.Shutdown()
			return nil, err
		}
	}
	return d, nil
}

// Start runs the daemon until Shutdown is called or a service fails.
func (d *Daemon) Start() error {
	if err := daemonruntime.WritePIDFile(d.paths.PIDFile, os.Getpid()); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}
	defer daemonruntime.RemovePIDFile(d.paths.PIDFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.info.setStartTime(time.Now())
	if err := d.serviceHost.Start(ctx); err != nil {
		d.closeResources()
		return fmt.Errorf("daemon: start services: %w", err)
	}
	d.watchHostErrors()

	<-d.lifecycle.Done()
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), constants.ServiceShutdownTimeout)
	if err := d.serviceHost.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Daemon] service shutdown error: %v", err)
		d.setRunError(err)
	}
	stopCancel()

	d.closeResources()
	return d.getRunError()
}

func (d *Daemon) closeResources() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.JournalOpTimeout)
	if n, err := d.store.CloseDangling(ctx, time.Now(), danglingReason); err != nil {
		log.Printf("[Daemon] close dangling sessions: %v", err)
	} else if n > 0 {
		log.Printf("[Daemon] closed %d sessions still open at shutdown", n)
	}
	cancel()

	m := d.bus.Metrics()
	log.Printf("[Daemon] event bus: published=%d dropped=%d spilled=%d spill_fallbacks=%d", m.PublishTotal, m.DroppedTotal, m.SpilledTotal, m.SpillFallbacks)
	d.bus.Shutdown()
	if err := d.store.Close(); err != nil {
		log.Printf("[Daemon] journal close error: %v", err)
	}
}

// Shutdown signals the daemon to stop. It returns immediately; Start
// returns once services have stopped.
func (d *Daemon) Shutdown() {
	d.lifecycle.Shutdown()
}

func (d *Daemon) watchHostErrors() {
	go func() {
		for err := range d.serviceHost.Errors() {
			if err == nil {
				continue
			}
			log.Printf("[Daemon] %v", err)
			d.setRunError(err)
			d.lifecycle.Shutdown()
		}
	}()
}

func (d *Daemon) setRunError(err error) {
	d.errMu.Lock()
	if d.runErr == nil {
		d.runErr = err
	}
	d.errMu.Unlock()
}

func (d *Daemon) getRunError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// RuntimeInfo returns listener details, populated once Start has run.
func (d *Daemon) RuntimeInfo() *RuntimeInfo {
	return d.info
}

// SessionManager returns the page session manager.
func (d *Daemon) SessionManager() *session.Manager {
	return d.manager
}

// IsRunning reports whether the PID file under paths names a live process.
// A stale PID file is removed.
func IsRunning(paths config.Paths) bool {
	_, alive := daemonruntime.LivePID(paths.PIDFile)
	return alive
}
