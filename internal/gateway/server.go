package gateway

import (
	"log/slog"
	"net/http"
)

// Server is the HTTP entry point that upgrades /ws connections and hands
// them to Manager.Serve, per §6.2's socket endpoint.
type Server struct {
	Manager  *Manager
	Handler  *RequestHandler
	Upgrader *Upgrader
}

// UserResolver extracts (user_id, conversation_id) from an inbound upgrade
// request (query params, headers, or an auth token -- left to the caller).
type UserResolver func(r *http.Request) (userID, conversationID string, ok bool)

// ServeWS upgrades r and serves the session for its full lifetime, blocking
// until the connection closes.
func (s *Server) ServeWS(resolve UserResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, conversationID, ok := resolve(r)
		if !ok {
			http.Error(w, "missing user/conversation identity", http.StatusUnauthorized)
			return
		}

		conn, err := s.Upgrader.Upgrade(w, r)
		if err != nil {
			slog.Error("gateway: websocket upgrade failed", "error", err)
			return
		}

		session := s.Manager.Connect(userID, conversationID, conn)
		ctx := r.Context()
		s.Manager.Serve(ctx, session, func(frame ClientFrame) {
			s.Handler.Handle(ctx, session, frame)
		})
	}
}
