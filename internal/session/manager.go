package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nupi-ai/comfort/internal/eventbus"
	"github.com/nupi-ai/comfort/internal/eventloop"
	"github.com/nupi-ai/comfort/internal/page"
)

// ErrPageNotFound is returned for unknown page IDs.
var ErrPageNotFound = errors.New("session: page not found")

// Status is a snapshot of one page, safe to read from any goroutine.
type Status struct {
	PageID          string    `json:"page_id"`
	Origin          string    `json:"origin"`
	Site            string    `json:"site"`
	ConnectedAt     time.Time `json:"connected_at"`
	Active          bool      `json:"active"`
	SessionID       string    `json:"session_id,omitempty"`
	Videos          int       `json:"videos"`
	ControlsEnabled bool      `json:"controls_enabled"`
}

// PageSpec describes a page being attached to the manager.
type PageSpec struct {
	// ID is generated when empty.
	ID        string
	Origin    string
	Site      string
	Page      page.Page
	Chrome    page.Chrome
	Watcher   page.Watcher
	Host      ButtonHost
	Localizer Localizer
}

// Handle is the goroutine-safe front of a page's session. Every call is
// funnelled through the page's event loop.
type Handle struct {
	session *Session
	loop    *eventloop.Loop[Event]
	cancel  context.CancelFunc

	mu     sync.RWMutex
	status Status
}

// ID returns the page ID.
func (h *Handle) ID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status.PageID
}

// Post enqueues an event for the page's session.
func (h *Handle) Post(ev Event) error {
	return h.loop.Post(ev)
}

// Toggle runs a toggle command and waits for its acknowledgement.
func (h *Handle) Toggle(ctx context.Context, hint ContextHint) (Ack, error) {
	return h.command(ctx, Command{Kind: CommandToggle, Hint: hint})
}

// Enable runs an enable command and waits for its acknowledgement.
func (h *Handle) Enable(ctx context.Context) (Ack, error) {
	return h.command(ctx, Command{Kind: CommandEnable})
}

// Disable runs a disable command and waits for its acknowledgement.
func (h *Handle) Disable(ctx context.Context) (Ack, error) {
	return h.command(ctx, Command{Kind: CommandDisable})
}

func (h *Handle) command(ctx context.Context, cmd Command) (Ack, error) {
	reply := make(chan Ack, 1)
	cmd.Reply = reply
	if err := h.loop.Post(cmd); err != nil {
		return Ack{}, fmt.Errorf("session: post %s: %w", cmd.Kind, err)
	}
	select {
	case ack := <-reply:
		return ack, nil
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	case <-h.loop.Done():
		return Ack{}, eventloop.ErrClosed
	}
}

// Status returns the snapshot taken after the last processed event.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *Handle) step(ev Event) {
	// Replies are held back until the snapshot reflects the command.
	var reply chan<- Ack
	var held chan Ack
	if cmd, ok := ev.(Command); ok && cmd.Reply != nil {
		reply = cmd.Reply
		held = make(chan Ack, 1)
		cmd.Reply = held
		ev = cmd
	}

	h.session.Step(ev)

	h.mu.Lock()
	h.status.Active = h.session.Active()
	h.status.SessionID = h.session.ID()
	h.status.Videos = len(h.session.targets)
	h.status.ControlsEnabled = h.session.ControlsEnabled()
	h.mu.Unlock()

	if reply != nil {
		reply <- <-held
	}
}

// PageEventListener is called when a page is opened or closed.
type PageEventListener func(event string, status Status)

// Manager tracks every connected page and owns their event loops.
type Manager struct {
	pages     map[string]*Handle
	mu        sync.RWMutex
	listeners []PageEventListener
	eventBus  *eventbus.Bus
	config    Config
	localizer Localizer
}

// NewManager creates a manager applying cfg to every new session.
func NewManager(cfg Config) *Manager {
	return &Manager{
		pages:  make(map[string]*Handle),
		config: cfg,
	}
}

// UseEventBus wires the manager with the shared event bus.
func (m *Manager) UseEventBus(bus *eventbus.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventBus = bus
}

// UseLocalizer sets the localizer for pages that do not bring their own.
func (m *Manager) UseLocalizer(l Localizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localizer = l
}

// AddEventListener adds a listener for page events.
func (m *Manager) AddEventListener(listener PageEventListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

func (m *Manager) notifyListeners(event string, status Status) {
	m.mu.RLock()
	listeners := append([]PageEventListener(nil), m.listeners...)
	m.mu.RUnlock()

	for _, listener := range listeners {
		listener(event, status)
	}
}

func (m *Manager) getBus() *eventbus.Bus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventBus
}

// Open attaches a page and starts its event loop. The loop stops when ctx is
// cancelled or Close is called.
func (m *Manager) Open(ctx context.Context, spec PageSpec) (*Handle, error) {
	if spec.Page == nil {
		return nil, errors.New("session: page is required")
	}
	if spec.ID == "" {
		spec.ID = uuid.New().String()[:8]
	}

	m.mu.Lock()
	if _, exists := m.pages[spec.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session: page %s already open", spec.ID)
	}
	bus := m.eventBus
	localizer := spec.Localizer
	if localizer == nil {
		localizer = m.localizer
	}
	cfg := m.config
	m.mu.Unlock()

	h := &Handle{
		status: Status{
			PageID:      spec.ID,
			Origin:      spec.Origin,
			Site:        spec.Site,
			ConnectedAt: time.Now().UTC(),
		},
	}
	h.loop = eventloop.New(h.step)
	h.session = New(Options{
		PageID:    spec.ID,
		Site:      spec.Site,
		Page:      spec.Page,
		Chrome:    spec.Chrome,
		Watcher:   spec.Watcher,
		Host:      spec.Host,
		Localizer: localizer,
		Bus:       bus,
		Config:    cfg,
		Dispatch: func(ev Event) {
			if err := h.loop.Post(ev); err != nil && !errors.Is(err, eventloop.ErrClosed) {
				log.Printf("[Manager] page %s: dropped timer event: %v", spec.ID, err)
			}
		},
	})

	m.mu.Lock()
	if _, exists := m.pages[spec.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session: page %s already open", spec.ID)
	}
	m.pages[spec.ID] = h
	m.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.session.Start()
	go func() {
		if err := h.loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Manager] page %s: event loop stopped: %v", spec.ID, err)
		}
	}()

	status := h.Status()
	log.Printf("[Manager] page %s attached (%s, site %q)", spec.ID, spec.Origin, spec.Site)
	m.notifyListeners("page_opened", status)
	eventbus.Publish(context.Background(), bus, eventbus.Pages.Presence, eventbus.SourceSession, eventbus.PagePresenceEvent{
		PageID:    spec.ID,
		Origin:    spec.Origin,
		Site:      spec.Site,
		Connected: true,
	})
	return h, nil
}

// Get returns a page handle by ID.
func (m *Manager) Get(id string) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	return h, nil
}

// List returns page snapshots ordered by connection time.
func (m *Manager) List() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.pages))
	for _, h := range m.pages {
		out = append(out, h.Status())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].PageID < out[j].PageID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Close ends the page's session, drains its loop and forgets the page.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	h, ok := m.pages[id]
	if ok {
		delete(m.pages, id)
	}
	bus := m.eventBus
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}

	postErr := h.loop.Post(PageClosed{})
	h.loop.Close()
	<-h.loop.Done()
	h.cancel()
	if postErr != nil {
		// The loop already stopped with its context; nothing else owns the session now.
		h.step(PageClosed{})
	}

	status := h.Status()
	log.Printf("[Manager] page %s detached", id)
	m.notifyListeners("page_closed", status)
	eventbus.Publish(context.Background(), bus, eventbus.Pages.Presence, eventbus.SourceSession, eventbus.PagePresenceEvent{
		PageID:    id,
		Origin:    status.Origin,
		Site:      status.Site,
		Connected: false,
	})
	return nil
}

// CloseAll closes every page.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.pages))
	for id := range m.pages {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Close(id); err != nil && !errors.Is(err, ErrPageNotFound) {
			log.Printf("[Manager] close page %s: %v", id, err)
		}
	}
}
