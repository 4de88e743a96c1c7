package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leafmark/reader/internal/session"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		// In production, you should check against allowed origins
		return true
	},
}

// WebSocketEvent is the wire form of a session event.
type WebSocketEvent struct {
	Type       string `json:"type"`
	Position   string `json:"position,omitempty"`
	Annotation any    `json:"annotation,omitempty"`
	Notice     string `json:"notice,omitempty"`
	Error      string `json:"error,omitempty"`
}

// eventsHandler streams a session's events over a WebSocket connection:
// position changes for "continue reading" widgets, annotation creations for
// sharing features, and degradation notices.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	open, ok := s.lookup(r.PathValue("id"))
	if !ok {
		s.writeErrorResponse(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket event stream established",
		"session", open.id,
		"remote_addr", r.RemoteAddr)

	s.streamEvents(conn, open.session)
}

// streamEvents forwards session events until the session closes or the
// client goes away.
func (s *Server) streamEvents(conn *websocket.Conn, sess *session.Session) {
	// Drain client messages so pongs and close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			websocketMessagesTotal.WithLabelValues("received").Inc()
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sess.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(time.Second))
				return
			}
			if err := writeEvent(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event session.Event) error {
	wire := WebSocketEvent{Type: string(event.Type), Notice: event.Notice}
	if !event.Position.IsZero() {
		wire.Position = event.Position.String()
	}
	if event.Annotation != nil {
		wire.Annotation = event.Annotation
	}
	if event.Err != nil {
		wire.Error = event.Err.Error()
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}
