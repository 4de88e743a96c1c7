package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/leafmark/reader/internal/annotate"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/ocr"
	"github.com/leafmark/reader/internal/search"
	"github.com/leafmark/reader/internal/session"
	"github.com/leafmark/reader/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// openSessionHandler resolves a book and opens a reading session for it.
func (s *Server) openSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.BookID == "" {
		s.writeErrorResponse(w, "user_id and book_id are required", http.StatusBadRequest)
		return
	}

	handle, err := s.deps.Source.Resolve(r.Context(), req.UserID, req.BookID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			s.writeErrorResponse(w, "Book not found", http.StatusNotFound)
		} else {
			s.writeErrorResponse(w, fmt.Sprintf("Resolving book failed: %v", err), http.StatusBadGateway)
		}
		sessionsOpenedTotal.WithLabelValues("unknown", "error").Inc()
		return
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.SessionOpened(req.UserID); err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusTooManyRequests)
			return
		}
	}

	doc := document.Document{ID: req.BookID, Kind: handle.Kind, Path: handle.URL}
	sess, err := session.Open(r.Context(), s.cfg, req.UserID, doc, session.Deps{
		OCR:         s.deps.OCR,
		Cache:       s.deps.Cache,
		Progress:    s.deps.Progress,
		Annotations: s.deps.Annotations,
	})
	if err != nil {
		if s.rateLimiter != nil {
			s.rateLimiter.SessionClosed(req.UserID)
		}
		sessionsOpenedTotal.WithLabelValues(string(handle.Kind), "error").Inc()
		if document.IsDecodeError(err) {
			s.writeErrorResponse(w, fmt.Sprintf("Book cannot be decoded: %v", err), http.StatusUnprocessableEntity)
		} else {
			s.writeErrorResponse(w, fmt.Sprintf("Opening session failed: %v", err), http.StatusInternalServerError)
		}
		return
	}
	sessionsOpenedTotal.WithLabelValues(string(handle.Kind), "ok").Inc()

	id := s.track(req.UserID, sess)
	s.writeJSONStatus(w, http.StatusCreated, s.state(id, sess))
}

func (s *Server) state(id string, sess *session.Session) SessionState {
	pos := sess.Position()
	return SessionState{
		SessionID: id,
		BookID:    sess.Document().ID,
		Kind:      string(sess.Document().Kind),
		Position:  pos.String(),
		Page:      sess.Ordinal(),
		PageCount: sess.PageCount(),
		Zoom:      sess.Zoom(),
	}
}

// withSession resolves the {id} path value to an open session.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request) (*openSession, bool) {
	open, ok := s.lookup(r.PathValue("id"))
	if !ok {
		s.writeErrorResponse(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return open, true
}

// postSession is withSession plus a POST method check.
func (s *Server) postSession(w http.ResponseWriter, r *http.Request) (*openSession, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	return s.withSession(w, r)
}

// getSession is withSession plus a GET method check.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) (*openSession, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	return s.withSession(w, r)
}

// sessionHandler dispatches on method: GET reports state, DELETE closes.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		open, ok := s.withSession(w, r)
		if !ok {
			return
		}
		s.writeJSON(w, s.state(open.id, open.session))
	case http.MethodDelete:
		open, ok := s.lookup(r.PathValue("id"))
		if !ok {
			s.writeErrorResponse(w, "Session not found", http.StatusNotFound)
			return
		}
		s.drop(open.id)
		if s.rateLimiter != nil {
			s.rateLimiter.SessionClosed(open.userID)
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// gotoHandler jumps the session to a page ordinal.
func (s *Server) gotoHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.postSession(w, r)
	if !ok {
		return
	}
	var req GotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Page < 1 {
		s.writeErrorResponse(w, "Invalid page", http.StatusBadRequest)
		return
	}
	if err := open.session.GoTo(r.Context(), req.Page); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, s.state(open.id, open.session))
}

func (s *Server) nextHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.postSession(w, r)
	if !ok {
		return
	}
	if err := open.session.NextPage(r.Context()); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, s.state(open.id, open.session))
}

func (s *Server) prevHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.postSession(w, r)
	if !ok {
		return
	}
	if err := open.session.PrevPage(r.Context()); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, s.state(open.id, open.session))
}

// zoomHandler sets the requested zoom; the response carries the clamped
// value actually in effect.
func (s *Server) zoomHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.postSession(w, r)
	if !ok {
		return
	}
	var req ZoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := open.session.SetZoom(r.Context(), req.Zoom); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, s.state(open.id, open.session))
}

// fontScaleHandler sets the EPUB font scale; the page count in the response
// reflects the relayout.
func (s *Server) fontScaleHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.postSession(w, r)
	if !ok {
		return
	}
	var req FontScaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := open.session.SetFontScale(r.Context(), req.Scale); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, s.state(open.id, open.session))
}

// pageImageHandler renders the current page synchronously and returns it as
// PNG.
func (s *Server) pageImageHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.getSession(w, r)
	if !ok {
		return
	}

	img, err := s.renderCurrent(r, open)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Render failed: %v", err), http.StatusInternalServerError)
		return
	}
	pagesServedTotal.WithLabelValues(string(open.session.Document().Kind)).Inc()

	w.Header().Set("Content-Type", "image/png")
	_ = png.Encode(w, img)
}

// renderCurrent waits for the current position's surface. The session
// renders asynchronously through its single-flight queue; the HTTP surface
// wants the finished bitmap, so poll the session until the render for the
// current position lands.
func (s *Server) renderCurrent(r *http.Request, open *openSession) (image.Image, error) {
	sess := open.session
	want := sess.Position()
	if page := sess.CurrentPage(); page != nil && page.Position.Equal(want) {
		return page.Image, nil
	}
	if err := sess.Render(r.Context()); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if err := r.Context().Err(); err != nil {
			return nil, err
		}
		if page := sess.CurrentPage(); page != nil && page.Position.Equal(want) {
			return page.Image, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil, fmt.Errorf("render timed out")
}

// pageTextHandler resolves and returns the text layer for a page.
func (s *Server) pageTextHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.getSession(w, r)
	if !ok {
		return
	}

	page := open.session.Ordinal()
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeErrorResponse(w, "Invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}

	text, err := open.session.PageText(r.Context(), page)
	if err != nil {
		if errors.Is(err, ocr.ErrUnavailable) {
			textResolutionsTotal.WithLabelValues("none", "unavailable").Inc()
			s.writeErrorResponse(w, "No text layer available for this page", http.StatusUnprocessableEntity)
			return
		}
		textResolutionsTotal.WithLabelValues("none", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Text resolution failed: %v", err), http.StatusInternalServerError)
		return
	}
	textResolutionsTotal.WithLabelValues(string(text.Source), "ok").Inc()
	s.writeJSON(w, text)
}

// searchHandler runs a query over the session's document.
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.postSession(w, r)
	if !ok {
		return
	}
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	hits, err := open.session.Search(r.Context(), req.Query)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Search failed: %v", err), http.StatusInternalServerError)
		return
	}
	searchHits.Observe(float64(hits))
	s.writeJSON(w, SearchResponse{Query: req.Query, Hits: hits})
}

func (s *Server) searchNextHandler(w http.ResponseWriter, r *http.Request) {
	s.searchStep(w, r, true)
}

func (s *Server) searchPrevHandler(w http.ResponseWriter, r *http.Request) {
	s.searchStep(w, r, false)
}

func (s *Server) searchStep(w http.ResponseWriter, r *http.Request, forward bool) {
	open, ok := s.postSession(w, r)
	if !ok {
		return
	}

	var hit searchHit
	var found bool
	var err error
	if forward {
		hit, found, err = toSearchHit(open.session.NextHit(r.Context()))
	} else {
		hit, found, err = toSearchHit(open.session.PrevHit(r.Context()))
	}
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Navigation failed: %v", err), http.StatusInternalServerError)
		return
	}
	if !found {
		s.writeErrorResponse(w, "No search results", http.StatusNotFound)
		return
	}
	s.writeJSON(w, SearchHitResponse(hit))
}

type searchHit struct {
	Page    int    `json:"page"`
	Offset  int    `json:"offset"`
	Excerpt string `json:"excerpt"`
}

func toSearchHit(hit search.Hit, found bool, err error) (searchHit, bool, error) {
	return searchHit{Page: hit.Page, Offset: hit.Offset, Excerpt: hit.Excerpt}, found, err
}

// annotationsHandler dispatches on method: POST creates, GET lists.
func (s *Server) annotationsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createAnnotationHandler(w, r)
	case http.MethodGet:
		s.listAnnotationsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// createAnnotationHandler captures a highlight or bookmark on the session's
// current page.
func (s *Server) createAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.postSession(w, r)
	if !ok {
		return
	}
	var req CreateAnnotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var a *annotate.Annotation
	var err error
	switch req.Type {
	case string(annotate.TypeBookmark):
		a = open.session.Bookmark(r.Context())
	case string(annotate.TypeHighlight):
		if req.Range != "" {
			a, err = open.session.HighlightRange(r.Context(), req.Range, req.Text)
		} else {
			rects := make([]image.Rectangle, len(req.Rects))
			for i, rp := range req.Rects {
				rects[i] = image.Rect(rp.X, rp.Y, rp.X+rp.W, rp.Y+rp.H)
			}
			a, err = open.session.Highlight(r.Context(), rects)
		}
	default:
		s.writeErrorResponse(w, "Unknown annotation type", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if a == nil {
		// Empty selection: a no-op, not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSONStatus(w, http.StatusCreated, a)
}

// listAnnotationsHandler returns the annotations on a page.
func (s *Server) listAnnotationsHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.getSession(w, r)
	if !ok {
		return
	}

	page := open.session.Ordinal()
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeErrorResponse(w, "Invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}

	anns, err := open.session.AnnotationsForPage(r.Context(), page)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Listing annotations failed: %v", err), http.StatusInternalServerError)
		return
	}
	if anns == nil {
		anns = []*annotate.Annotation{}
	}
	s.writeJSON(w, anns)
}
