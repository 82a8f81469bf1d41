package gateway

import (
	"context"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// EmitMessage delivers one user-visible "message" event, deduplicated by
// C1's IsMessageNew so a message already delivered before a reconnect is
// never sent twice (§4.10.3). Returns false if back-pressure forced the
// session inactive instead of delivering.
func (m *Manager) EmitMessage(ctx context.Context, s *Session, requestID string, msg kvstore.Message) (bool, error) {
	isNew, err := m.store.IsMessageNew(ctx, s.UserID, s.ConversationID, msg.ID)
	if err != nil {
		return false, err
	}
	if !isNew {
		return true, nil
	}
	return m.send(s, ServerFrame{
		Event:                   EventMessage,
		RequestID:               requestID,
		AgentType:               msg.AgentType,
		Content:                 msg.Content,
		AdditionalKwargs:        msg.AdditionalKwargs,
		ID:                      msg.ID,
		CumulativeUsageMetadata: msg.CumulativeUsage,
	})
}

// EmitThink delivers an intermediate, non-deduplicated "think" event.
// Unlike EmitMessage/EmitDone, a think event is shed rather than queued
// once the session's think-event rate limiter is exhausted, so a chatty
// agent loop cannot itself trigger the back-pressure disconnect that a
// must-deliver message/done frame would (§5 "outbound channel shedding").
func (m *Manager) EmitThink(s *Session, requestID, agentType, content string, kwargs map[string]any) (bool, error) {
	if !s.thinkRL.Allow() {
		return false, nil
	}
	return m.send(s, ServerFrame{Event: EventThink, RequestID: requestID, AgentType: agentType, Content: content, AdditionalKwargs: kwargs})
}

// EmitInterrupt delivers an "interrupt" event: the run is paused awaiting
// client input.
func (m *Manager) EmitInterrupt(s *Session, requestID, agentType, content string, kwargs map[string]any) (bool, error) {
	return m.send(s, ServerFrame{Event: EventInterrupt, RequestID: requestID, AgentType: agentType, Content: content, AdditionalKwargs: kwargs})
}

// EmitError delivers an "error" event (e.g. S3's non_existent_subgraph).
func (m *Manager) EmitError(s *Session, requestID, agentType, content, errorType string) (bool, error) {
	return m.send(s, ServerFrame{Event: EventError, RequestID: requestID, AgentType: agentType, Content: content, ErrorType: errorType})
}

// EmitDone delivers the terminal "done" event for a request.
func (m *Manager) EmitDone(s *Session, requestID, agentType string) (bool, error) {
	return m.send(s, ServerFrame{Event: EventDone, RequestID: requestID, AgentType: agentType})
}

// EmitPong answers a client "ping" frame.
func (m *Manager) EmitPong(s *Session, requestID string) (bool, error) {
	return m.send(s, ServerFrame{Event: EventPong, RequestID: requestID})
}

// send enqueues frame onto the session's bounded outbox. The outbox is
// drained strictly in enqueue order by one writer goroutine per session
// (conn.go), which is what gives §4.10.3's "FIFO per session" guarantee.
// A full outbox blocks the producer up to EmitBackpressureTimeout before
// giving up and marking the session inactive (§5 "Back-pressure").
func (m *Manager) send(s *Session, frame ServerFrame) (bool, error) {
	select {
	case s.outbox <- frame:
		return true, nil
	default:
	}

	timeout := time.Duration(m.cfg.EmitBackpressureTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.outbox <- frame:
		return true, nil
	case <-timer.C:
		m.Disconnect(s)
		return false, nil
	}
}
