package graph

import (
	"context"
	"testing"

	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/stretchr/testify/require"
)

func TestSubgraphInvokeTagsEndMessage(t *testing.T) {
	g := New(map[string]Reducer{"messages": ReducerReplace})
	g.AddNode("Echo", func(_ context.Context, s State) (any, error) {
		return State{"messages": "echo: " + s["input"].(string)}, nil
	})
	g.AddEdge(Start, "Echo")
	g.AddEdge("Echo", End)

	sg := &Subgraph{
		Name:  "echo",
		Graph: g,
		InputMapper: func(request any) State {
			return State{"input": request.(string)}
		},
		OutputMapper: func(final State) kvstore.Message {
			return kvstore.Message{Content: final["messages"].(string)}
		},
	}

	msg, err := sg.Invoke(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "echo: hello", msg.Content)
	require.Equal(t, "echo_end", msg.AgentType)
}

func TestSubgraphInvokeRequiresMappers(t *testing.T) {
	sg := &Subgraph{Name: "broken", Graph: New(nil)}
	_, err := sg.Invoke(context.Background(), "x")
	require.Error(t, err)
}
