package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nupi-ai/comfort/internal/constants"
	"github.com/nupi-ai/comfort/internal/eventbus"
	"github.com/nupi-ai/comfort/internal/journal"
	"github.com/nupi-ai/comfort/internal/session"
	"github.com/nupi-ai/comfort/internal/version"
)

const maxHistoryLimit = 1000

// History is the read side of the session journal.
type History interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
	Get(ctx context.Context, id string) (journal.Entry, error)
}

// Bridge is the page WebSocket endpoint.
type Bridge interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Config wires the HTTP API. Only Manager is required.
type Config struct {
	Manager *session.Manager
	History History
	Bridge  Bridge
	Bus     *eventbus.Bus
	// Quiet disables request logging.
	Quiet bool
}

// Server serves the local HTTP API.
type Server struct {
	router  chi.Router
	manager *session.Manager
	history History
	bridge  Bridge
	bus     *eventbus.Bus
	now     func() time.Time
}

// New builds the router.
func New(cfg Config) *Server {
	r := chi.NewRouter()
	if !cfg.Quiet {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	s := &Server{
		router:  r,
		manager: cfg.Manager,
		history: cfg.History,
		bridge:  cfg.Bridge,
		bus:     cfg.Bus,
		now:     time.Now,
	}

	r.Get("/api/health", s.handleHealth)
	r.Route("/api/pages", func(r chi.Router) {
		r.Get("/", s.handleListPages)
		r.Get("/{id}", s.handleGetPage)
		r.Post("/{id}/toggle", s.handleToggle)
	})
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)
	})
	if cfg.Bridge != nil {
		r.Get("/ws", cfg.Bridge.HandleWebSocket)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.bus.Metrics()
	dto := HealthDTO{
		Status:       "ok",
		Version:      version.String(),
		Pages:        len(s.manager.List()),
		PublishTotal: m.PublishTotal,
		DroppedTotal: m.DroppedTotal,
		SpilledTotal: m.SpilledTotal,
		SpillBacklog: m.SpillBacklog,
	}
	if s.bridge != nil {
		dto.Clients = s.bridge.ClientCount()
	}
	writeJSON(w, http.StatusOK, dto)
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ToPageDTOList(s.manager.List()))
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	h, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	writeJSON(w, http.StatusOK, ToPageDTO(h.Status()))
}

type toggleRequest struct {
	IsVideoContext bool `json:"is_video_context"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	h, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}

	var req toggleRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.PageCommandTimeout)
	defer cancel()
	ack, err := h.Toggle(ctx, session.ContextHint{IsVideoContext: req.IsVideoContext})
	if err != nil {
		log.Printf("[API] toggle page %s: %v", h.ID(), err)
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, "page did not respond")
			return
		}
		writeError(w, http.StatusConflict, "page is closing")
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{Success: ack.Success, Active: ack.Active, NoVideo: ack.NoVideo})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 0 and 1000")
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		log.Printf("[API] list sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	now := s.now()
	out := make([]SessionDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToSessionDTO(e, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	e, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if journal.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		log.Printf("[API] get session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, ToSessionDTO(e, s.now()))
}
