package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orchestrax/workflow-orchestrator/internal/agent"
	"github.com/orchestrax/workflow-orchestrator/internal/datascience"
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/orchestrax/workflow-orchestrator/internal/router"
	"github.com/orchestrax/workflow-orchestrator/internal/sandbox"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
)

// ModelResolver resolves a request's provider name to the model client the
// planner should call (§6.4: base URLs, headers, and model identifiers are
// configuration).
type ModelResolver func(provider string) (model.Client, error)

// RequestHandler resolves per-request config (§4.10.2) and drives the
// planner for every "request" frame on a session.
type RequestHandler struct {
	Manager *Manager
	Store   *kvstore.Store
	Models  ModelResolver
	// BaseCatalogue returns a fresh copy of the always-available subgraphs
	// (the peer subgraphs registered by cmd/orchestratord) for one request.
	BaseCatalogue func() router.Catalogue
	// DataScience builds the data-science subgraph bound to a request's
	// sandbox; only called once a referenced document is a CSV.
	DataScience func(sbx *sandbox.PersistentSandbox, modelClient model.Client) *graph.Subgraph
	NodeTimeout time.Duration
}

// Handle dispatches one client frame for session s (§6.1).
func (h *RequestHandler) Handle(ctx context.Context, s *Session, frame ClientFrame) {
	switch frame.Type {
	case ClientFrameRequest:
		// Runs in its own goroutine so a run parked at an interrupt never
		// blocks the reader loop from accepting the interrupt_reply (or
		// cancel) frame that would unblock it.
		go h.handleRequest(ctx, s, frame)
	case ClientFrameCancel:
		s.cancelCurrentRun()
	case ClientFramePing:
		_, _ = h.Manager.EmitPong(s, frame.RequestID)
	case ClientFrameInterruptReply:
		if in := s.boundInterrupter(); in != nil {
			in.Resume(frame.Text)
		}
	}
}

func (h *RequestHandler) plannerName() string { return router.DefaultName }

// handleRequest resolves config with the connection-scoped ctx (quick KV
// reads that should not outlive this connection) but routes the planner on
// a context rooted in context.Background(): a run may pause at an
// interrupt and wait across a disconnect/reconnect (S6), so its lifetime
// must not be tied to the connection that happened to submit it. The run
// is instead cancelled through s.cancelRun (the "cancel" frame, or a
// disconnect while the run is not paused at an interrupt) or by
// NodeTimeout.
func (h *RequestHandler) handleRequest(ctx context.Context, s *Session, frame ClientFrame) {
	runCtx, cancel := context.WithCancel(context.Background())
	if h.NodeTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, h.NodeTimeout)
		defer timeoutCancel()
	}
	s.bindRun(cancel)
	defer func() {
		cancel()
		s.clearRun()
		s.clearInterrupter()
	}()

	modelClient, err := h.Models(frame.Provider)
	if err != nil {
		h.failRequest(s, frame, fmt.Sprintf("model provider %q is unavailable", frame.Provider), "provider_error")
		return
	}

	catalogue, systemPrompt, err := h.resolveConfig(ctx, s, frame, modelClient)
	if err != nil {
		h.failRequest(s, frame, fmt.Sprintf("could not resolve request: %v", err), "config_error")
		return
	}

	notify := agent.Interceptor(func(msg model.Message, agentType string) {
		if content := textOf(msg); content != "" {
			_, _ = h.Manager.EmitThink(s, frame.RequestID, agentType, content, nil)
		}
	})
	p := router.New(modelClient, notify)
	p.Name = h.plannerName()

	runID := frame.RequestID
	if runID == "" {
		runID = uuid.NewString()
	}
	var in *graph.Interrupter
	in = graph.NewInterrupter(runID, h.Store, func(_ context.Context, _, node string, payload any) {
		s.bindInterrupter(in)
		content, _ := payload.(string)
		if content == "" && payload != nil {
			content = fmt.Sprintf("%v", payload)
		}
		_, _ = h.Manager.EmitInterrupt(s, frame.RequestID, node, content, nil)
	})
	runCtx = graph.WithInterrupter(runCtx, in)

	final, err := p.Route(runCtx, frame.Text, systemPrompt, catalogue)
	if err != nil {
		h.failRequest(s, frame, err.Error(), "run_error")
		return
	}
	if final.ID == "" {
		final.ID = uuid.NewString()
	}

	_, _ = h.Manager.EmitMessage(runCtx, s, frame.RequestID, final)
	h.Manager.EmitDone(s, frame.RequestID, final.AgentType)
}

func (h *RequestHandler) failRequest(s *Session, frame ClientFrame, content, errorType string) {
	h.Manager.EmitError(s, frame.RequestID, h.plannerName(), content, errorType)
	h.Manager.EmitDone(s, frame.RequestID, h.plannerName()+"_end")
}

// resolveConfig implements §4.10.2: resolve referenced docs, decide whether
// to attach the data-science subgraph, and render the system prompt.
func (h *RequestHandler) resolveConfig(ctx context.Context, s *Session, frame ClientFrame, modelClient model.Client) (router.Catalogue, string, error) {
	catalogue := h.BaseCatalogue()

	var indexedFilenames []string
	var csvDocIDs []string
	var directoryContent []string

	for _, doc := range frame.DocIDs {
		file, err := h.Store.GetFile(ctx, s.UserID, doc.ID)
		if err != nil {
			if err == kvstore.ErrNotFound {
				continue
			}
			return nil, "", fmt.Errorf("resolve doc %s: %w", doc.ID, err)
		}
		if file.Indexed {
			indexedFilenames = append(indexedFilenames, file.Filename)
		}
		if file.Mime == csvMime {
			csvDocIDs = append(csvDocIDs, file.ID)
			directoryContent = append(directoryContent, file.Filename)
		}
	}

	if len(csvDocIDs) > 0 && h.DataScience != nil {
		sbx := h.Manager.sandboxes.Bind(s.UserID, s.ConversationID, csvDocIDs)
		s.bindSandbox(sbx)
		catalogue[datascience.SubgraphName] = h.DataScience(sbx, modelClient)
	}

	systemPrompt := buildSystemPrompt(len(indexedFilenames) > 0, directoryContent, len(csvDocIDs) > 0)
	return catalogue, systemPrompt, nil
}

func buildSystemPrompt(hasIndexedDocs bool, directoryContent []string, hasDataScience bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today's date is %s.\n", time.Now().Format("2006-01-02"))
	if hasIndexedDocs {
		b.WriteString("You have access to indexed documents; retrieve from them before answering from general knowledge.\n")
	}
	if len(directoryContent) > 0 {
		fmt.Fprintf(&b, "The following datasets are available in the working directory: %s.\n", strings.Join(directoryContent, ", "))
	}
	if hasDataScience {
		b.WriteString("Route any code authoring or data analysis to the sandboxed data_science subgraph; never author code inline.\n")
	}
	return b.String()
}

func textOf(msg model.Message) string {
	for i := len(msg.Parts) - 1; i >= 0; i-- {
		if tp, ok := msg.Parts[i].(model.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}
