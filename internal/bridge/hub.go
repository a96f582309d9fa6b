package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nupi-ai/comfort/internal/constants"
	"github.com/nupi-ai/comfort/internal/geometry"
	"github.com/nupi-ai/comfort/internal/i18n"
	"github.com/nupi-ai/comfort/internal/session"
	"github.com/nupi-ai/comfort/internal/sites"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// TypeReady is sent once the hello has been accepted.
const TypeReady = "ready"

type readyPayload struct {
	PageID string `json:"pageId"`
	Site   string `json:"site"`
	Locale string `json:"locale"`
	// ControlsSelector locates the player element that hosts the toggle
	// button. Empty on sites without one.
	ControlsSelector string `json:"controlsSelector,omitempty"`
}

// Hub accepts page connections and attaches each one to the session manager.
type Hub struct {
	manager  *session.Manager
	registry *sites.Registry
	catalog  *i18n.Catalog
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a hub. registry and catalog may be nil; originAllowed nil
// accepts every origin.
func NewHub(manager *session.Manager, registry *sites.Registry, catalog *i18n.Catalog, originAllowed func(string) bool) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		manager:  manager,
		registry: registry,
		catalog:  catalog,
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || originAllowed == nil {
					return true
				}
				return originAllowed(origin)
			},
		},
	}
}

// AllowOrigins returns an origin check accepting the listed origins, matched
// on scheme and host. An empty list accepts everything.
func AllowOrigins(origins []string) func(string) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if key, ok := originKey(o); ok {
			allowed[key] = true
		}
	}
	return func(origin string) bool {
		if len(allowed) == 0 {
			return true
		}
		key, ok := originKey(origin)
		return ok && allowed[key]
	}
}

func originKey(origin string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

// ClientCount returns the number of connected pages.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and serves the page connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Bridge] websocket upgrade error: %v", err)
		return
	}

	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		hub:  h,
		out:  make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

// Shutdown flushes queued messages and disconnects every page. Sessions still
// open are closed as the read pumps exit.
func (h *Hub) Shutdown() {
	h.cancel()
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.closeSend()
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	if handle := c.handleRef(); handle != nil {
		if err := h.manager.Close(handle.ID()); err != nil && !errors.Is(err, session.ErrPageNotFound) {
			log.Printf("[Bridge] close page %s: %v", handle.ID(), err)
		}
	}
	c.closeSend()
}

// Client is one connected page.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	mu     sync.Mutex
	out    chan []byte
	closed bool
	handle *session.Handle
	page   *remotePage
}

func (c *Client) handleRef() *session.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// send queues a message without blocking; the session loop must never wait on
// a slow page.
func (c *Client) send(msgType string, data any) {
	payload, err := encode(msgType, data)
	if err != nil {
		log.Printf("[Bridge] encode %s: %v", msgType, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- payload:
	default:
		log.Printf("[Bridge] client %s send buffer full, dropping %s", c.id, msgType)
	}
}

func (c *Client) sendError(message string) {
	c.send(TypeError, errorPayload{Message: message})
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Bridge] websocket error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError(fmt.Sprintf("invalid message: %v", err))
			continue
		}
		if err := c.dispatch(msg); err != nil {
			c.sendError(err.Error())
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func decode[T any](msg Message) (T, error) {
	var out T
	if len(msg.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		return out, fmt.Errorf("%s: invalid payload: %w", msg.Type, err)
	}
	return out, nil
}

func (c *Client) dispatch(msg Message) error {
	if msg.Type == TypeHello {
		hello, err := decode[Hello](msg)
		if err != nil {
			return err
		}
		return c.attach(hello)
	}

	handle := c.handleRef()
	if handle == nil {
		return fmt.Errorf("%s: hello required first", msg.Type)
	}

	switch msg.Type {
	case TypeVideos:
		p, err := decode[videosPayload](msg)
		if err != nil {
			return err
		}
		c.page.replace(p.Videos)
		return nil

	case TypeCursorMove, TypeClick:
		p, err := decode[pointPayload](msg)
		if err != nil {
			return err
		}
		pt := geometry.Point{X: p.X, Y: p.Y}
		if msg.Type == TypeClick {
			return handle.Post(session.Click{Point: pt})
		}
		return handle.Post(session.CursorMove{Point: pt})

	case TypeKeyDown:
		p, err := decode[keyPayload](msg)
		if err != nil {
			return err
		}
		return handle.Post(session.KeyDown{Key: p.Key})

	case TypePlayback:
		p, err := decode[playbackPayload](msg)
		if err != nil {
			return err
		}
		kind := session.PlaybackKind(p.Event)
		if v, ok := c.page.video(p.VideoID); ok {
			switch kind {
			case session.PlaybackPlay:
				v.setPlayback(false, false)
			case session.PlaybackPause:
				v.setPlayback(true, v.Ended())
			case session.PlaybackEnded:
				v.setPlayback(v.Paused(), true)
			default:
				return fmt.Errorf("playback: unknown event %q", p.Event)
			}
		}
		return handle.Post(session.PlaybackChanged{VideoID: p.VideoID, Kind: kind})

	case TypeResize:
		p, err := decode[resizePayload](msg)
		if err != nil {
			return err
		}
		size := geometry.Size{Width: p.Width, Height: p.Height}
		if size.Valid() {
			c.page.setViewport(size)
		}
		return handle.Post(session.Resize{Viewport: size})

	case TypeLifecycle:
		p, err := decode[lifecyclePayload](msg)
		if err != nil {
			return err
		}
		kind := session.NoticeKind(p.Kind)
		switch kind {
		case session.NoticeVideoRemoved:
			c.page.remove(p.VideoID)
		case session.NoticeContainerMutated, session.NoticeAllEnded:
		default:
			return fmt.Errorf("lifecycle: unknown kind %q", p.Kind)
		}
		return handle.Post(session.LifecycleNotice{Kind: kind, VideoID: p.VideoID})

	case TypeExitClick:
		return handle.Post(session.ExitClicked{})

	case TypeToggle:
		p, err := decode[requestPayload](msg)
		if err != nil {
			return err
		}
		go c.toggle(handle, p)
		return nil

	case TypeSettingsUpdated:
		p, err := decode[requestPayload](msg)
		if err != nil {
			return err
		}
		st := handle.Status()
		c.send(TypeAck, Ack{RequestID: p.RequestID, Success: true, Active: st.Active})
		return nil
	}
	return fmt.Errorf("unknown message type %q", msg.Type)
}

func (c *Client) attach(hello Hello) error {
	c.mu.Lock()
	attached := c.handle != nil
	c.mu.Unlock()
	if attached {
		return errors.New("hello: page already attached")
	}

	kind, host := c.hub.resolveSite(hello.Origin)
	spec := session.PageSpec{
		ID:     hello.PageID,
		Origin: hello.Origin,
		Site:   string(kind),
	}
	ready := readyPayload{Site: string(kind)}
	if host != nil {
		spec.Host = host
		ready.ControlsSelector = host.Selector()
	}
	locale := ""
	if c.hub.catalog != nil {
		l := c.hub.catalog.Localizer(hello.Locale)
		spec.Localizer = l
		locale = l.Tag().String()
	}

	pg := newRemotePage(c, hello.Viewport)
	chrome := remoteChrome{out: c}
	spec.Page = pg
	spec.Chrome = chrome
	spec.Watcher = chrome

	c.mu.Lock()
	c.page = pg
	c.mu.Unlock()

	handle, err := c.hub.manager.Open(c.hub.ctx, spec)
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()

	log.Printf("[Bridge] client %s attached as page %s (%s)", c.id, handle.ID(), hello.Origin)
	ready.PageID = handle.ID()
	ready.Locale = locale
	c.send(TypeReady, ready)
	return nil
}

func (h *Hub) resolveSite(origin string) (sites.Kind, sites.ControlsHost) {
	if h.registry == nil {
		kind, _ := sites.Identify(origin)
		return kind, nil
	}
	kind, host, err := h.registry.Resolve(origin)
	if err != nil {
		if !errors.Is(err, sites.ErrUnknownSite) {
			log.Printf("[Bridge] resolve site %q: %v", origin, err)
		}
		return sites.KindUnknown, nil
	}
	return kind, host
}

func (c *Client) toggle(handle *session.Handle, req requestPayload) {
	ctx, cancel := context.WithTimeout(c.hub.ctx, constants.PageCommandTimeout)
	defer cancel()

	ack, err := handle.Toggle(ctx, session.ContextHint{IsVideoContext: req.IsVideoContext})
	if err != nil {
		log.Printf("[Bridge] toggle on page %s: %v", handle.ID(), err)
		c.send(TypeAck, Ack{RequestID: req.RequestID, Success: false})
		return
	}
	c.send(TypeAck, Ack{RequestID: req.RequestID, Success: ack.Success, Active: ack.Active, NoVideo: ack.NoVideo})
}
