package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Upgrader is a thin wrapper around websocket.Upgrader matching
// vanducng-goclaw's gateway server origin-check shape, generalized to a
// caller-supplied allowlist instead of a fixed config field.
type Upgrader struct {
	AllowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewUpgrader builds an Upgrader. An empty allowlist permits every origin
// (dev-mode default, same as the teacher's gateway).
func NewUpgrader(allowedOrigins []string) *Upgrader {
	u := &Upgrader{AllowedOrigins: allowedOrigins}
	u.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     u.checkOrigin,
	}
	return u
}

func (u *Upgrader) checkOrigin(r *http.Request) bool {
	if len(u.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range u.AllowedOrigins {
		if origin == allowed || allowed == "*" {
			return true
		}
	}
	return false
}

// Upgrade promotes an HTTP request to a WebSocket connection.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return u.upgrader.Upgrade(w, r, nil)
}

// Serve runs a session's full connection lifetime: one writer goroutine
// draining the outbox in enqueue order, and the calling goroutine reading
// client frames and dispatching them to handle until the connection closes
// or ctx is cancelled. Callers run Serve in the goroutine handling the
// upgraded HTTP request.
func (m *Manager) Serve(ctx context.Context, s *Session, handle func(ClientFrame)) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		m.runWriter(ctx, s)
	}()

	m.runReader(ctx, s, handle)

	m.Disconnect(s)
	<-writerDone
}

func (m *Manager) runWriter(ctx context.Context, s *Session) {
	for {
		select {
		case frame, ok := <-s.outbox:
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				slog.Warn("gateway: write failed, marking session inactive", "user_id", s.UserID, "conversation_id", s.ConversationID, "error", err)
				s.markInactive()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) runReader(ctx context.Context, s *Session, handle func(ClientFrame)) {
	for {
		if ctx.Err() != nil {
			return
		}
		var frame ClientFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			return
		}
		s.touch()
		handle(frame)
	}
}
