// Package gateway implements the Session & Connection Manager (C10): the
// WebSocket lifecycle, per-request config resolution, and FIFO outbound
// delivery described in §4.10. Grounded on vanducng-goclaw/internal/gateway's
// Server/Client split (upgrade, per-client registration, event fan-out)
// generalized to this spec's session/run/sandbox binding instead of its
// multi-channel bus.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/sandbox"
	"golang.org/x/time/rate"
)

// outboxCapacity bounds each session's outbound frame channel (§5
// "Back-pressure": the outbound channel per session is bounded).
const outboxCapacity = 64

// thinkEventRate and thinkEventBurst throttle non-critical "think" events
// per session, so a chatty agent loop sheds its own intermediate frames
// under load instead of crowding out the message/done frames a client
// needs to make progress (§5 "outbound channel shedding").
const (
	thinkEventRate  = 5
	thinkEventBurst = 10
)

// Session is one connected (user_id, conversation_id) pair's live state
// (§4.10.1).
type Session struct {
	UserID         string
	ConversationID string

	conn    *websocket.Conn
	outbox  chan ServerFrame
	thinkRL *rate.Limiter

	mu            sync.Mutex
	active        bool
	lastActive    time.Time
	cancelRun     context.CancelFunc
	sandbox       *sandbox.PersistentSandbox
	interrupter   *graph.Interrupter
	heartbeatStop chan struct{}
	stopOnce      sync.Once
}

func newSession(userID, conversationID string, conn *websocket.Conn) *Session {
	return &Session{
		UserID:         userID,
		ConversationID: conversationID,
		conn:           conn,
		outbox:         make(chan ServerFrame, outboxCapacity),
		thinkRL:        rate.NewLimiter(rate.Limit(thinkEventRate), thinkEventBurst),
		active:         true,
		lastActive:     time.Now(),
		heartbeatStop:  make(chan struct{}),
	}
}

func sessionKey(userID, conversationID string) string { return userID + ":" + conversationID }

func (s *Session) key() string { return sessionKey(s.UserID, s.ConversationID) }

// touch records client activity, resetting the idle clock the sweeper reads.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// markInactive marks the session disconnected and cancels its current run,
// if any (§4.10.1 disconnect, §5 cancellation semantics). A run currently
// paused at an interrupt is the one exception: its goroutine is parked
// waiting for an interrupt_reply that may arrive after a reconnect (S6), so
// disconnecting must not tear it down the way an ordinary in-flight run is
// torn down.
func (s *Session) markInactive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	if s.interrupter != nil {
		return
	}
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
}

func (s *Session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive)
}

// bindRun records the cancel function for the run currently executing on
// this session, so disconnect can cancel it (§4.10.4).
func (s *Session) bindRun(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()
}

func (s *Session) clearRun() {
	s.mu.Lock()
	s.cancelRun = nil
	s.mu.Unlock()
}

// cancelCurrentRun cancels the run bound to this session, if any, without
// marking the session disconnected (§6.1 "cancel" frame).
func (s *Session) cancelCurrentRun() {
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) bindSandbox(sbx *sandbox.PersistentSandbox) {
	s.mu.Lock()
	s.sandbox = sbx
	s.mu.Unlock()
}

func (s *Session) boundSandbox() *sandbox.PersistentSandbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sandbox
}

// bindInterrupter records the Interrupter a run paused on this session is
// waiting on, so a later interrupt_reply frame (possibly on a reconnected
// connection, see Manager.Connect) can find it and deliver a resume value.
func (s *Session) bindInterrupter(in *graph.Interrupter) {
	s.mu.Lock()
	s.interrupter = in
	s.mu.Unlock()
}

func (s *Session) boundInterrupter() *graph.Interrupter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupter
}

func (s *Session) clearInterrupter() {
	s.mu.Lock()
	s.interrupter = nil
	s.mu.Unlock()
}

// reconnect rebinds s to a freshly upgraded connection, preserving any
// paused interrupter and sandbox binding across the gap (§4.10.1 reconnect,
// S6). The previous connection is closed first so its reader/writer
// goroutines observe an I/O error and exit instead of racing the new pair.
func (s *Session) reconnect(conn *websocket.Conn) {
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.active = true
	s.lastActive = time.Now()
	s.stopOnce = sync.Once{}
	s.heartbeatStop = make(chan struct{})
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// stopHeartbeat is idempotent: disconnect and sweep may both call it for
// the same session.
func (s *Session) stopHeartbeat() {
	s.stopOnce.Do(func() { close(s.heartbeatStop) })
}
