package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/orchestrax/workflow-orchestrator/internal/config"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// heartbeatInterval is how often a connected session's activity clock is
// nudged independently of inbound traffic, so a quiet-but-open connection
// is not swept as idle.
const heartbeatInterval = 30 * time.Second

// Manager tracks every connected session, the idle-sweep loop, and the
// sandbox bindings shared across a session's requests (§4.10.1, §5).
type Manager struct {
	cfg   config.Config
	store *kvstore.Store

	mu       sync.RWMutex
	sessions map[string]*Session

	sandboxes *sandboxBinder
}

// NewManager builds a Manager. sandboxFactory is consulted lazily, the
// first time a session's request references a CSV document (§4.10.2 step 2).
func NewManager(cfg config.Config, store *kvstore.Store, sandboxFactory SandboxFactory) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		sessions:  make(map[string]*Session),
		sandboxes: newSandboxBinder(sandboxFactory),
	}
}

// Connect registers a session and starts its heartbeat (§4.10.1). If a
// session is already tracked for (userID, conversationID) -- reconnecting
// after a disconnect, possibly while paused at an interrupt -- it is
// rebound to the new connection instead of replaced, so a run parked
// waiting for an interrupt_reply (S6) is not orphaned by the reconnect.
func (m *Manager) Connect(userID, conversationID string, conn *websocket.Conn) *Session {
	key := sessionKey(userID, conversationID)

	m.mu.Lock()
	existing, ok := m.sessions[key]
	var s *Session
	if ok {
		s = existing
	} else {
		s = newSession(userID, conversationID, conn)
		m.sessions[key] = s
	}
	m.mu.Unlock()

	if ok {
		s.reconnect(conn)
	}
	go m.runHeartbeat(s)
	return s
}

// Disconnect marks a session inactive; it is retained (for reconnect and
// pending-interrupt replay) until the sweeper reclaims it past
// RunResumeGrace (§4.10.1).
func (m *Manager) Disconnect(s *Session) {
	s.markInactive()
	s.stopHeartbeat()
}

// Lookup returns the registered session for (userID, conversationID).
func (m *Manager) Lookup(userID, conversationID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionKey(userID, conversationID)]
	return s, ok
}

func (m *Manager) runHeartbeat(s *Session) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.isActive() {
				s.touch()
			}
		case <-s.heartbeatStop:
			return
		}
	}
}

// Sweep runs one pass over every tracked session, destroying any bound
// sandbox and closing the connection for sessions idle past SessionTimeout
// (active sessions) or past RunResumeGrace (already-disconnected sessions).
// Intended to be called periodically by cmd/orchestratord.
func (m *Manager) Sweep(ctx context.Context) {
	m.mu.Lock()
	var reclaimed []*Session
	for key, s := range m.sessions {
		limit := time.Duration(m.cfg.SessionTimeout)
		if !s.isActive() {
			limit = time.Duration(m.cfg.RunResumeGrace)
		}
		if s.idleSince() > limit {
			reclaimed = append(reclaimed, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range reclaimed {
		s.markInactive()
		s.stopHeartbeat()
		if sbx := s.boundSandbox(); sbx != nil {
			_ = sbx.Cleanup(ctx)
		}
		m.sandboxes.Forget(s.UserID, s.ConversationID)
		_ = s.conn.Close()
	}
}

// Count returns the number of tracked sessions (active or in grace period),
// mainly for tests and health reporting.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
