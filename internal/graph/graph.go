// Package graph implements the Graph Engine (C5): a typed-state directed
// graph of nodes connected by static or conditional edges, committed through
// named-field reducers, with a single suspension primitive (interrupt/resume,
// see Interrupter) under which a blocked node is simply a goroutine parked
// on an in-memory resume channel, with no workflow engine involved.
package graph

import (
	"context"
	"errors"
	"fmt"
)

const (
	// Start is the synthetic entry node. AddEdge(Start, name) or SetEntry
	// designates the first node to run.
	Start = "__start__"
	// End is the synthetic terminal node. A graph finishes when the
	// committed next node equals End.
	End = "__end__"
)

// ErrUnknownNode marks a fatal engine error (§7 "Engine errors"): a node
// function returned Command.Goto, or an edge resolved to, a name that is
// neither a registered node nor End. The run is finalized with an error.
var ErrUnknownNode = errors.New("graph: unknown next node")

type (
	// State is a typed-state graph's generic field->value mapping (§4.4/§4.5).
	State map[string]any

	// Reducer combines a state field's previous committed value with an
	// incoming partial update into the new committed value. Reducers must be
	// pure and total (§4.5 invariants).
	Reducer func(prev, incoming any) any

	// Command lets a node redirect control flow explicitly instead of
	// relying on static/conditional edges, optionally also committing a
	// partial state update.
	Command struct {
		Goto   string
		Update State
	}

	// NodeFunc is the async function backing a node: (state) -> partial
	// state. It may return a State (applied through each field's reducer),
	// a Command (update plus explicit goto), or nil (no-op, fall through to
	// edges).
	NodeFunc func(ctx context.Context, state State) (any, error)

	// Node is a named, invocable unit of state transition.
	Node struct {
		Name string
		Fn   NodeFunc
	}

	// Router evaluates a conditional edge against committed state and
	// returns the name of the next node (or End).
	Router func(state State) string

	// Graph is a typed-state directed graph: nodes plus static and
	// conditional edges, committed through a reducer schema.
	Graph struct {
		reducers    map[string]Reducer
		nodes       map[string]Node
		staticEdges map[string]string
		condEdges   map[string]Router
		entry       string
	}
)

// New builds a Graph with the given per-field reducer schema. Fields not
// present in reducers commit via ReducerReplace.
func New(reducers map[string]Reducer) *Graph {
	return &Graph{
		reducers:    reducers,
		nodes:       make(map[string]Node),
		staticEdges: make(map[string]string),
		condEdges:   make(map[string]Router),
	}
}

// AddNode registers a node. A duplicate name overwrites the prior entry.
func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	g.nodes[name] = Node{Name: name, Fn: fn}
	return g
}

// SetEntry designates the first node executed after Start.
func (g *Graph) SetEntry(name string) *Graph {
	g.entry = name
	return g
}

// AddEdge adds a static edge from -> to. from may be Start; to may be End.
func (g *Graph) AddEdge(from, to string) *Graph {
	if from == Start {
		g.entry = to
		return g
	}
	g.staticEdges[from] = to
	return g
}

// AddConditionalEdge adds a conditional edge: after from commits, route is
// evaluated against the committed state to pick the next node.
func (g *Graph) AddConditionalEdge(from string, route Router) *Graph {
	g.condEdges[from] = route
	return g
}

// Validate checks that every statically-known edge target is either End or a
// registered node. Conditional edge targets are dynamic and cannot be
// validated ahead of time; an invalid route surfaces at run time as
// ErrUnknownNode.
func (g *Graph) Validate() error {
	if g.entry == "" {
		return errors.New("graph: no entry node (call SetEntry or AddEdge(Start, name))")
	}
	if g.entry != End {
		if _, ok := g.nodes[g.entry]; !ok {
			return fmt.Errorf("%w: entry %q", ErrUnknownNode, g.entry)
		}
	}
	for from, to := range g.staticEdges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("%w: edge source %q", ErrUnknownNode, from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("%w: edge target %q", ErrUnknownNode, to)
			}
		}
	}
	return nil
}

// reducerFor returns the reducer for field, defaulting to ReducerReplace.
func (g *Graph) reducerFor(field string) Reducer {
	if r, ok := g.reducers[field]; ok && r != nil {
		return r
	}
	return ReducerReplace
}

// commit applies update to state through each field's reducer, returning a
// new State so prior callers retain their own immutable view (§9 "Cyclic
// message/state references").
func (g *Graph) commit(state State, update State) State {
	next := make(State, len(state)+len(update))
	for k, v := range state {
		next[k] = v
	}
	for k, incoming := range update {
		next[k] = g.reducerFor(k)(next[k], incoming)
	}
	return next
}

// next resolves the node to run after from commits, preferring a
// conditional edge over a static one. Evaluated against committed state
// (§4.5 invariant: "conditional edges are evaluated on committed state").
func (g *Graph) next(from string, state State) (string, error) {
	if route, ok := g.condEdges[from]; ok {
		return route(state), nil
	}
	if to, ok := g.staticEdges[from]; ok {
		return to, nil
	}
	return "", fmt.Errorf("graph: node %q has no outgoing edge", from)
}

// Run executes the graph from Start to End, applying exactly one node at a
// time (§4.5 invariant, §8 invariant 4). ctx carries the Interrupter (see
// WithInterrupter) that nodes calling Interrupt rely on; Run itself does not
// require one. Returns the final committed state, or an error if a node
// fails or an unknown next node is reached -- both fatal per §7's "Engine
// errors" taxonomy, intended to finalize the run with an error event.
func (g *Graph) Run(ctx context.Context, initial State) (State, error) {
	if err := g.Validate(); err != nil {
		return initial, err
	}

	state := g.commit(State{}, initial)
	current := g.entry

	for current != End {
		node, ok := g.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrUnknownNode, current)
		}

		result, err := node.Fn(ctx, state)
		if err != nil {
			return state, fmt.Errorf("graph: node %q: %w", current, err)
		}

		var explicitGoto string
		switch v := result.(type) {
		case Command:
			state = g.commit(state, v.Update)
			explicitGoto = v.Goto
		case State:
			state = g.commit(state, v)
		case nil:
			// no-op: edges alone decide the next node.
		default:
			return state, fmt.Errorf("graph: node %q returned unsupported result type %T", current, result)
		}

		nextNode := explicitGoto
		if nextNode == "" {
			nextNode, err = g.next(current, state)
			if err != nil {
				return state, err
			}
		}
		if nextNode != End {
			if _, ok := g.nodes[nextNode]; !ok {
				return state, fmt.Errorf("%w: %s", ErrUnknownNode, nextNode)
			}
		}
		current = nextNode
	}

	return state, nil
}
