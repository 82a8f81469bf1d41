package datascience

import (
	"github.com/orchestrax/workflow-orchestrator/internal/agent"
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/sandbox"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
)

// SubgraphName is the catalogue key Router/Planner (C9) looks this subgraph
// up by.
const SubgraphName = "data_science"

// New builds the Data-Science Subgraph (C8): ten roles wired per §4.8.2's
// routing table, sharing one model client, one sandbox binding, and one
// search client. notify is the message interceptor every role's captured
// messages flow through (typically forwarding to the session's emit path,
// C10).
func New(modelClient model.Client, sbx *sandbox.PersistentSandbox, search *SearchClient, notify agent.Interceptor) *graph.Subgraph {
	r := &roles{model: modelClient, sbx: sbx, search: search, notify: notify}

	g := graph.New(reducerSchema())
	g.AddNode(RoleHypothesis, r.hypothesisNode())
	g.AddNode(RoleHumanChoice, r.humanChoiceNode())
	g.AddNode(RoleProcess, r.processNode())
	g.AddNode(RoleCoder, r.coderNode())
	g.AddNode(RoleVisualization, r.visualizationNode())
	g.AddNode(RoleSearch, r.searchNode())
	g.AddNode(RoleReport, r.reportNode())
	g.AddNode(RoleQualityReview, r.qualityReviewNode())
	g.AddNode(RoleNote, r.noteNode())
	g.AddNode(RoleRefiner, r.refinerNode())
	g.AddNode(roleCleanup, r.cleanupNode())

	g.AddEdge(graph.Start, RoleHypothesis)
	g.AddEdge(RoleHypothesis, RoleHumanChoice)
	g.AddConditionalEdge(RoleHumanChoice, func(state graph.State) string {
		modArea, _ := state[FieldModificationArea].(string)
		if modArea != "" {
			return RoleHypothesis
		}
		return RoleProcess
	})
	// Process, QualityReview, and NoteTaker always route via an explicit
	// Command.Goto (§4.8.2), so they carry no static/conditional edge here.
	g.AddEdge(RoleCoder, RoleQualityReview)
	g.AddEdge(RoleVisualization, RoleQualityReview)
	g.AddEdge(RoleSearch, RoleQualityReview)
	g.AddEdge(RoleReport, RoleQualityReview)
	g.AddEdge(RoleRefiner, roleCleanup)
	g.AddEdge(roleCleanup, graph.End)

	return &graph.Subgraph{
		Name:         SubgraphName,
		Description:  "Forms a data hypothesis, reviews it with the user, then dispatches coding, visualization, search, and reporting specialists under a quality-review retry loop.",
		Graph:        g,
		InputMapper:  InputMapper,
		OutputMapper: OutputMapper,
	}
}
