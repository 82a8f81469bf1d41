package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// RunStore is the slice of kvstore.Store the Graph Engine needs to persist
// and clear interrupt snapshots at run:<run_id> (§6.6). *kvstore.Store
// satisfies this directly.
type RunStore interface {
	PutRunPause(ctx context.Context, pause kvstore.RunPause) error
	GetRunPause(ctx context.Context, runID string) (kvstore.RunPause, error)
	ClearRunPause(ctx context.Context, runID string) error
}

// OnInterrupt notifies the owning session/connection layer (C10) that a run
// has suspended, so it can hand control back to the client.
type OnInterrupt func(ctx context.Context, runID, node string, payload any)

type interrupterKey struct{}

// Interrupter gives a running graph's nodes the single suspension
// primitive named in §4.5: a node calls Interrupt once, execution blocks
// until Resume is called for this same Interrupter, and the resumed value
// becomes the call's return value.
//
// Unlike an engine-backed signal wait, the resume channel lives entirely in
// this process's memory for the run's duration: whatever accepts the
// out-of-band reply (gateway's interrupt_reply frame) delivers straight
// into it via Resume, with no workflow engine or signal bus in between.
type Interrupter struct {
	runID    string
	store    RunStore
	onPause  OnInterrupt
	resumeCh chan any
}

// NewInterrupter builds an Interrupter bound to one run. store may be nil,
// in which case the pause is not persisted (tests, or callers tracking
// pause state some other way).
func NewInterrupter(runID string, store RunStore, onPause OnInterrupt) *Interrupter {
	return &Interrupter{runID: runID, store: store, onPause: onPause, resumeCh: make(chan any, 1)}
}

// WithInterrupter attaches in to ctx so node functions can call Interrupt.
func WithInterrupter(ctx context.Context, in *Interrupter) context.Context {
	return context.WithValue(ctx, interrupterKey{}, in)
}

func interrupterFromContext(ctx context.Context) (*Interrupter, bool) {
	in, ok := ctx.Value(interrupterKey{}).(*Interrupter)
	return in, ok && in != nil
}

// Interrupt suspends the current node: it persists {paused_at, payload,
// partial_state} to C1, notifies the session layer, blocks until Resume is
// called or ctx is cancelled, clears the persisted snapshot, and returns
// the resumed value. node is the calling node's own name; state is the
// state committed so far this run.
//
// A node with no Interrupter bound to ctx cannot suspend at all, so the run
// fails outright rather than hang on an interrupt nothing could ever
// resume.
func Interrupt(ctx context.Context, node string, state State, payload any) (any, error) {
	in, ok := interrupterFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("graph: interrupt called without an Interrupter bound to the context")
	}
	return in.interrupt(ctx, node, state, payload)
}

func (in *Interrupter) interrupt(ctx context.Context, node string, state State, payload any) (any, error) {
	if in.store != nil {
		pause := kvstore.RunPause{
			RunID:      in.runID,
			PausedAt:   node,
			Payload:    payload,
			State:      map[string]any(state),
			PausedUnix: time.Now().UnixMilli(),
		}
		if err := in.store.PutRunPause(ctx, pause); err != nil {
			return nil, fmt.Errorf("graph: persist interrupt snapshot: %w", err)
		}
	}
	if in.onPause != nil {
		in.onPause(ctx, in.runID, node, payload)
	}

	select {
	case v := <-in.resumeCh:
		if in.store != nil {
			if err := in.store.ClearRunPause(ctx, in.runID); err != nil {
				return nil, fmt.Errorf("graph: clear interrupt snapshot: %w", err)
			}
		}
		return v, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("graph: wait for resume: %w", ctx.Err())
	}
}

// Resume delivers value to the node blocked in Interrupt for this
// Interrupter. The resume channel buffers one value, so a Resume with no
// node waiting is queued for the next Interrupt and still returns true.
// Returns false only when an undelivered value is already queued.
func (in *Interrupter) Resume(value any) bool {
	select {
	case in.resumeCh <- value:
		return true
	default:
		return false
	}
}
