// Package server exposes reading sessions over HTTP: opening books,
// navigation, rendered pages, text layers, search, annotations, and a
// WebSocket event stream for the surrounding app.
package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/ocr"
	"github.com/leafmark/reader/internal/session"
	"github.com/leafmark/reader/internal/store"
	"github.com/leafmark/reader/internal/textlayer"
)

// Deps are the collaborators the server hands to every session it opens.
type Deps struct {
	Source      document.Source
	OCR         ocr.Engine
	Cache       textlayer.Cache
	Progress    store.ProgressStore
	Annotations store.AnnotationStore
}

// Server holds the HTTP server state: configuration, session dependencies,
// and the open sessions.
type Server struct {
	cfg  *config.Config
	deps Deps

	rateLimiter *RateLimiter

	mu       sync.RWMutex
	sessions map[string]*openSession
}

type openSession struct {
	id      string
	userID  string
	session *session.Session
}

// NewServer creates a server. deps.Source must be set; the remaining
// dependencies may be nil and fall back to session defaults.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("server needs a document source")
	}
	return &Server{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*openSession),
	}, nil
}

// SetRateLimiter enables per-user request limiting.
func (s *Server) SetRateLimiter(rl *RateLimiter) { s.rateLimiter = rl }

// Close closes every open session.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, open := range s.sessions {
		open.session.Close()
		delete(s.sessions, id)
	}
	return nil
}

// SetupRoutes configures the HTTP routes. Method checks live in the
// handlers so CORS preflight requests reach the middleware on every path.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/sessions", s.corsMiddleware(s.rateLimitMiddleware(s.openSessionHandler)))
	mux.HandleFunc("/sessions/{id}", s.corsMiddleware(s.sessionHandler))
	mux.HandleFunc("/sessions/{id}/goto", s.corsMiddleware(s.gotoHandler))
	mux.HandleFunc("/sessions/{id}/next", s.corsMiddleware(s.nextHandler))
	mux.HandleFunc("/sessions/{id}/prev", s.corsMiddleware(s.prevHandler))
	mux.HandleFunc("/sessions/{id}/zoom", s.corsMiddleware(s.zoomHandler))
	mux.HandleFunc("/sessions/{id}/fontscale", s.corsMiddleware(s.fontScaleHandler))
	mux.HandleFunc("/sessions/{id}/page.png", s.corsMiddleware(s.pageImageHandler))
	mux.HandleFunc("/sessions/{id}/text", s.corsMiddleware(s.pageTextHandler))
	mux.HandleFunc("/sessions/{id}/search", s.corsMiddleware(s.searchHandler))
	mux.HandleFunc("/sessions/{id}/search/next", s.corsMiddleware(s.searchNextHandler))
	mux.HandleFunc("/sessions/{id}/search/prev", s.corsMiddleware(s.searchPrevHandler))
	mux.HandleFunc("/sessions/{id}/annotations", s.corsMiddleware(s.annotationsHandler))
	mux.HandleFunc("/sessions/{id}/events", s.eventsHandler)
}

// track registers an opened session and returns its id.
func (s *Server) track(userID string, sess *session.Session) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &openSession{id: id, userID: userID, session: sess}
	s.mu.Unlock()
	activeSessions.Inc()
	return id
}

// lookup finds an open session by id.
func (s *Server) lookup(id string) (*openSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	open, ok := s.sessions[id]
	return open, ok
}

// drop closes and forgets a session.
func (s *Server) drop(id string) bool {
	s.mu.Lock()
	open, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok {
		open.session.Close()
		activeSessions.Dec()
	}
	return ok
}

// Request and response shapes.

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type OpenSessionRequest struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
}

type SessionState struct {
	SessionID string  `json:"session_id"`
	BookID    string  `json:"book_id"`
	Kind      string  `json:"kind"`
	Position  string  `json:"position"`
	Page      int     `json:"page"`
	PageCount int     `json:"page_count"`
	Zoom      float64 `json:"zoom"`
}

type GotoRequest struct {
	Page int `json:"page"`
}

type ZoomRequest struct {
	Zoom float64 `json:"zoom"`
}

type FontScaleRequest struct {
	Scale int `json:"scale"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type SearchResponse struct {
	Query string `json:"query"`
	Hits  int    `json:"hits"`
}

type SearchHitResponse struct {
	Page    int    `json:"page"`
	Offset  int    `json:"offset"`
	Excerpt string `json:"excerpt"`
}

type CreateAnnotationRequest struct {
	Type  string      `json:"type"` // "highlight" or "bookmark"
	Rects []RectPixel `json:"rects,omitempty"`
	Range string      `json:"range,omitempty"`
	Text  string      `json:"text,omitempty"`
}

type RectPixel struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
