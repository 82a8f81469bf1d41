package graph

import (
	"context"
	"fmt"

	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// Subgraph satisfies the §4.5 subgraph contract: a graph exposing
// state_input_mapper and state_output_mapper can be registered by C10 under
// a name. Router/Planner (C9) looks subgraphs up by Name.
type Subgraph struct {
	Name        string
	Description string
	Graph       *Graph

	// InputMapper turns an inbound request into the subgraph's initial
	// state.
	InputMapper func(request any) State
	// OutputMapper turns the subgraph's final committed state into the
	// single message forwarded upstream.
	OutputMapper func(final State) kvstore.Message
}

// Invoke runs the subgraph to completion and forwards the last emitted
// message tagged agent_type = "<name>_end", per §4.5's subgraph contract.
func (sg *Subgraph) Invoke(ctx context.Context, request any) (kvstore.Message, error) {
	if sg.InputMapper == nil || sg.OutputMapper == nil || sg.Graph == nil {
		return kvstore.Message{}, fmt.Errorf("graph: subgraph %q is missing its graph or mappers", sg.Name)
	}
	initial := sg.InputMapper(request)
	final, err := sg.Graph.Run(ctx, initial)
	if err != nil {
		return kvstore.Message{}, fmt.Errorf("graph: subgraph %q: %w", sg.Name, err)
	}
	msg := sg.OutputMapper(final)
	msg.AgentType = sg.Name + "_end"
	return msg, nil
}
