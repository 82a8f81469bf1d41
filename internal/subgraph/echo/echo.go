// Package echo implements the smallest possible peer subgraph satisfying
// the §4.5 contract: it reflects the request text back unchanged. Its only
// purpose is to give Router/Planner's catalogue (C9) a second real entry
// alongside data_science, so the multi-subgraph-catalogue path is exercised
// without pulling in a second subgraph's worth of domain logic.
package echo

import (
	"context"

	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
)

// SubgraphName is the catalogue key Router/Planner looks this subgraph up by.
const SubgraphName = "echo"

const fieldText = "text"

// New builds the echo subgraph: one node, no model call.
func New() *graph.Subgraph {
	g := graph.New(nil)
	g.AddNode("reflect", func(_ context.Context, state graph.State) (any, error) {
		text, _ := state[fieldText].(string)
		return graph.State{fieldText: text}, nil
	})
	g.AddEdge(graph.Start, "reflect")
	g.AddEdge("reflect", graph.End)

	return &graph.Subgraph{
		Name:        SubgraphName,
		Description: "Reflects the request text back unchanged.",
		Graph:       g,
		InputMapper: func(request any) graph.State {
			text, _ := request.(string)
			return graph.State{fieldText: text}
		},
		OutputMapper: func(final graph.State) kvstore.Message {
			text, _ := final[fieldText].(string)
			return kvstore.Message{Content: text}
		},
	}
}
