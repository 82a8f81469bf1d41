// Package router implements the Router/Planner (C9): a one-node graph whose
// single agent picks a subgraph from the request's catalogue, or "end" to
// answer directly, per §4.9.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/orchestrax/workflow-orchestrator/internal/agent"
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultName is the planner's agent_type prefix when Planner.Name is unset.
const DefaultName = "planner"

// RouteEnd is the decision that means "answer directly, no subgraph".
const RouteEnd = "end"

// ErrorTypeNonExistentSubgraph tags the error event emitted when the
// planner names a subgraph absent from the request's catalogue (§4.9 / S3).
const ErrorTypeNonExistentSubgraph = "non_existent_subgraph"

// Catalogue is the set of subgraphs available to route to for one request.
// §4.10.2 attaches the data-science subgraph to it only when the request
// references a CSV document.
type Catalogue map[string]*graph.Subgraph

type decision struct {
	Subgraph string `json:"subgraph"`
}

// Planner routes one inbound request to a subgraph, or answers it directly.
type Planner struct {
	Name     string
	Model    model.Client
	Notify   agent.Interceptor
	MaxIters int
}

// New builds a Planner with the default agent_type prefix "planner".
func New(modelClient model.Client, notify agent.Interceptor) *Planner {
	return &Planner{Name: DefaultName, Model: modelClient, Notify: notify}
}

func (p *Planner) name() string {
	if p.Name == "" {
		return DefaultName
	}
	return p.Name
}

func (p *Planner) endAgentType() string { return p.name() + "_end" }

func (p *Planner) subgraphAgentType(route string) string { return p.name() + "_subgraph_" + route }

func (p *Planner) maxIters() int {
	if p.MaxIters == 0 {
		return 6
	}
	return p.MaxIters
}

// Route runs the planner against text and catalogue and returns the final
// message to forward to the client: either the planner's own direct answer,
// a "subgraph not available" error, or the invoked subgraph's output.
func (p *Planner) Route(ctx context.Context, text, systemPrompt string, catalogue Catalogue) (kvstore.Message, error) {
	g := graph.New(nil)
	g.AddNode("choose", p.chooseNode(text, systemPrompt, catalogue))
	g.AddEdge(graph.Start, "choose")
	g.AddEdge("choose", graph.End)

	const resultField = "result"
	final, err := g.Run(ctx, graph.State{})
	if err != nil {
		return kvstore.Message{}, fmt.Errorf("router: %w", err)
	}
	msg, _ := final[resultField].(kvstore.Message)
	return msg, nil
}

func (p *Planner) chooseNode(text, systemPrompt string, catalogue Catalogue) graph.NodeFunc {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(ctx context.Context, _ graph.State) (any, error) {
		a := &agent.Agent{
			Name:         p.name(),
			AgentType:    p.name(),
			Model:        p.Model,
			Primary:      p.Notify,
			OutputSchema: decisionSchema(),
			MaxIters:     p.maxIters(),
			Prompt:       promptFunc(text, systemPrompt, names),
		}
		result := a.Run(ctx, map[string]any{})

		route, ok := parseDecision(textOf(result.Final))
		if !ok || route == "" {
			route = RouteEnd
		}

		if route == RouteEnd {
			return graph.State{"result": kvstore.Message{
				AgentType: p.endAgentType(),
				Content:   textOf(result.Final),
			}}, nil
		}

		sg, ok := catalogue[route]
		if !ok {
			return graph.State{"result": kvstore.Message{
				AgentType:        p.endAgentType(),
				Content:          fmt.Sprintf("I am not able to route to the %s subgraph as it is not available", route),
				AdditionalKwargs: map[string]any{"error_type": ErrorTypeNonExistentSubgraph},
			}}, nil
		}

		if p.Notify != nil {
			p.Notify(result.Final, p.subgraphAgentType(route))
		}

		out, err := sg.Invoke(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("invoke subgraph %q: %w", route, err)
		}
		return graph.State{"result": out}, nil
	}
}

func promptFunc(text, systemPrompt string, names []string) agent.PromptFunc {
	return func(map[string]any) []*model.Message {
		var sys strings.Builder
		sys.WriteString(systemPrompt)
		sys.WriteString("\n\nAvailable subgraphs: ")
		if len(names) == 0 {
			sys.WriteString("(none)")
		} else {
			sys.WriteString(strings.Join(names, ", "))
		}
		sys.WriteString(`. Reply with JSON {"subgraph": "<name>"} naming one of the available subgraphs, or "end" to answer directly.`)
		return []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: sys.String()}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: text}}},
		}
	}
}

func parseDecision(text string) (string, bool) {
	var d decision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return "", false
	}
	return d.Subgraph, true
}

func textOf(msg model.Message) string {
	for i := len(msg.Parts) - 1; i >= 0; i-- {
		if tp, ok := msg.Parts[i].(model.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

func decisionSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	const url = "mem://router-decision-schema.json"
	const schemaJSON = `{"type":"object","required":["subgraph"],"properties":{"subgraph":{"type":"string"}}}`
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		panic(err)
	}
	return schema
}
