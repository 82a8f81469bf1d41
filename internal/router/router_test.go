package router

import (
	"context"
	"errors"
	"testing"

	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns one canned response per call, repeating the last.
type scriptedClient struct {
	responses []*model.Response
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	i := c.calls
	c.calls++
	if i >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	return c.responses[i], nil
}

func (c *scriptedClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, errors.New("not supported")
}

func textResponse(s string) *model.Response {
	return &model.Response{Content: []model.Message{{
		Role:  model.ConversationRoleAssistant,
		Parts: []model.Part{model.TextPart{Text: s}},
	}}}
}

func stubSubgraph(name string) *graph.Subgraph {
	g := graph.New(nil)
	g.AddEdge(graph.Start, graph.End)
	return &graph.Subgraph{
		Name:         name,
		Description:  "stub",
		Graph:        g,
		InputMapper:  func(request any) graph.State { return graph.State{} },
		OutputMapper: func(graph.State) kvstore.Message { return kvstore.Message{Content: "handled by " + name} },
	}
}

func TestRouteToAvailableSubgraph(t *testing.T) {
	p := New(&scriptedClient{responses: []*model.Response{textResponse(`{"subgraph":"data_science"}`)}}, nil)
	catalogue := Catalogue{"data_science": stubSubgraph("data_science")}

	msg, err := p.Route(context.Background(), "analyze sales.csv", "system prompt", catalogue)
	require.NoError(t, err)
	require.Equal(t, "handled by data_science", msg.Content)
	require.Equal(t, "data_science_end", msg.AgentType)
}

func TestRouteToMissingSubgraphEmitsError(t *testing.T) {
	p := New(&scriptedClient{responses: []*model.Response{textResponse(`{"subgraph":"nonexistent"}`)}}, nil)

	msg, err := p.Route(context.Background(), "do something weird", "system prompt", Catalogue{})
	require.NoError(t, err)
	require.Equal(t, "planner_end", msg.AgentType)
	require.Equal(t, "I am not able to route to the nonexistent subgraph as it is not available", msg.Content)
	require.Equal(t, ErrorTypeNonExistentSubgraph, msg.AdditionalKwargs["error_type"])
}

func TestRouteEndAnswersDirectly(t *testing.T) {
	p := New(&scriptedClient{responses: []*model.Response{textResponse(`{"subgraph":"end"}`)}}, nil)

	msg, err := p.Route(context.Background(), "hi there", "system prompt", Catalogue{})
	require.NoError(t, err)
	require.Equal(t, "planner_end", msg.AgentType)
	require.Equal(t, `{"subgraph":"end"}`, msg.Content)
}
