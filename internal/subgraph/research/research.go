// Package research implements the second minimal peer subgraph named in
// the expanded module list: a single agent with a web-search tool, wired
// only to give Router/Planner's catalogue (C9) a third entry and exercise
// picking between multiple available subgraphs end to end. Grounded on
// internal/agent.Agent (C7) and internal/datascience.SearchClient (C8),
// reused rather than reimplemented.
package research

import (
	"context"

	"github.com/orchestrax/workflow-orchestrator/internal/agent"
	"github.com/orchestrax/workflow-orchestrator/internal/datascience"
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/orchestrax/workflow-orchestrator/internal/tool"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
)

// SubgraphName is the catalogue key Router/Planner looks this subgraph up by.
const SubgraphName = "research"

const fieldText = "text"
const roleResearcher = "researcher"

// New builds the research subgraph: one agent, one web-search tool.
func New(modelClient model.Client, search *datascience.SearchClient, notify agent.Interceptor) *graph.Subgraph {
	g := graph.New(nil)
	g.AddNode(roleResearcher, researcherNode(modelClient, search, notify))
	g.AddEdge(graph.Start, roleResearcher)
	g.AddEdge(roleResearcher, graph.End)

	return &graph.Subgraph{
		Name:        SubgraphName,
		Description: "Answers a question using a single web-search-equipped agent.",
		Graph:       g,
		InputMapper: func(request any) graph.State {
			text, _ := request.(string)
			return graph.State{fieldText: text}
		},
		OutputMapper: func(final graph.State) kvstore.Message {
			msg, _ := final[fieldText+"_result"].(model.Message)
			return kvstore.Message{Content: textOf(msg)}
		},
	}
}

func researcherNode(modelClient model.Client, search *datascience.SearchClient, notify agent.Interceptor) graph.NodeFunc {
	a := &agent.Agent{
		Name:      roleResearcher,
		AgentType: roleResearcher,
		Model:     modelClient,
		Tools:     tool.NewRegistry(webSearchTool(search)),
		Prompt:    prompt,
		Primary:   notify,
		Fixing:    notify,
	}
	return func(ctx context.Context, state graph.State) (any, error) {
		text, _ := state[fieldText].(string)
		result := a.Run(ctx, map[string]any{fieldText: text})
		return graph.State{fieldText + "_result": result.Final}, nil
	}
}

func prompt(state map[string]any) []*model.Message {
	text, _ := state[fieldText].(string)
	return []*model.Message{
		{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: "Answer the question, using web_search when you need current information."}}},
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
	}
}

func webSearchTool(search *datascience.SearchClient) tool.Tool {
	return tool.Tool{
		Name:        "web_search",
		Description: "Search the web for current information.",
		ParamSchema: []tool.Param{{Name: "query", Description: "search query", Required: true}},
		Invoke: func(ctx context.Context, params map[string]any) (string, error) {
			query, _ := params["query"].(string)
			return search.Web(ctx, query)
		},
	}
}

func textOf(msg model.Message) string {
	for i := len(msg.Parts) - 1; i >= 0; i-- {
		if tp, ok := msg.Parts[i].(model.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}
