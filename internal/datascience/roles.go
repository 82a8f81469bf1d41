package datascience

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orchestrax/workflow-orchestrator/internal/agent"
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/sandbox"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Role names used as node names. agentTypeByRole maps each to the
// agent_type stamped on every message a role's model call produces: its
// snake_case form prefixed with AgentTypePrefix (§4.8.6).
const (
	RoleHypothesis    = "Hypothesis"
	RoleHumanChoice   = "HumanChoice"
	RoleProcess       = "Process"
	RoleCoder         = "Coder"
	RoleVisualization = "Visualization"
	RoleSearch        = "Search"
	RoleReport        = "Report"
	RoleQualityReview = "QualityReview"
	RoleNote          = "Note"
	RoleRefiner       = "Refiner"
	roleCleanup       = "Cleanup"
)

var agentTypeByRole = map[string]string{
	RoleHypothesis:    "data_science_hypothesis",
	RoleHumanChoice:   "data_science_human_choice",
	RoleProcess:       "data_science_process",
	RoleCoder:         "data_science_coder",
	RoleVisualization: "data_science_visualization",
	RoleSearch:        "data_science_search",
	RoleReport:        "data_science_report",
	RoleQualityReview: "data_science_quality_review",
	RoleNote:          "data_science_note",
	RoleRefiner:       "data_science_refiner",
}

// maxQARetries is the default per-specialist retry cap before QualityReview
// forces NoteTaker (§4.8.2).
const maxQARetries = 2

// maxProcessSelfLoops bounds consecutive Process self-loops and consecutive
// identical (route, task) decisions before the engine forces Refiner
// (§4.8.2's tie-breaks).
const maxProcessSelfLoops = 3

// roles bundles what every node closure needs: the shared model client,
// the session's sandbox binding, the search client, and the message
// interceptor that forwards captured messages upstream.
type roles struct {
	model  model.Client
	sbx    *sandbox.PersistentSandbox
	search *SearchClient
	notify agent.Interceptor
}

// appendMessage returns a state update appending msg to internal_messages.
func appendMessage(msg model.Message) graph.State {
	return graph.State{FieldInternalMessages: []any{msg}}
}

func assistantMessage(text, agentType string) model.Message {
	return model.Message{
		Role:  model.ConversationRoleAssistant,
		Parts: []model.Part{model.TextPart{Text: text}},
		Meta:  map[string]any{"agent_type": agentType},
	}
}

func renderTranscript(state graph.State) string {
	items, _ := state[FieldInternalMessages].([]any)
	var b strings.Builder
	for _, v := range items {
		msg, ok := v.(model.Message)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, textOf(msg))
	}
	return b.String()
}

// hypothesisNode forms or revises a hypothesis about the data (§4.8.1).
func (r *roles) hypothesisNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		modArea, _ := state[FieldModificationArea].(string)
		a := &agent.Agent{
			Name:      RoleHypothesis,
			AgentType: agentTypeByRole[RoleHypothesis],
			Model:     r.model,
			Tools:     hypothesisTools(r.sbx, r.search),
			Primary:   r.notify,
			Prompt: func(map[string]any) []*model.Message {
				sys := "You form a data-analysis hypothesis from the conversation and any directory contents. " +
					"Use search and file tools as needed, then state the hypothesis plainly."
				user := renderTranscript(state)
				if modArea != "" {
					user += "\nRevise the prior hypothesis to address: " + modArea
				}
				return []*model.Message{
					{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: sys}}},
					{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: user}}},
				}
			},
		}
		result := a.Run(ctx, state)
		update := appendMessage(result.Final)
		update[FieldHypothesis] = textOf(result.Final)
		return graph.Command{Update: update}, nil
	}
}

// humanChoiceNode interrupts for human feedback on the current hypothesis
// and classifies it APPROVE/REVISE (§4.8.4). The classification itself is a
// deterministic keyword rule, not a model call, so only the received text
// is captured as a message (tagged data_science_human_choice).
func (r *roles) humanChoiceNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		hypothesis, _ := state[FieldHypothesis].(string)
		resp, err := graph.Interrupt(ctx, RoleHumanChoice, state, hypothesis)
		if err != nil {
			return nil, err
		}
		text, _ := resp.(string)

		msg := model.Message{
			Role:  model.ConversationRoleUser,
			Parts: []model.Part{model.TextPart{Text: text}},
			Meta:  map[string]any{"agent_type": agentTypeByRole[RoleHumanChoice]},
		}
		if r.notify != nil {
			r.notify(msg, agentTypeByRole[RoleHumanChoice])
		}

		update := appendMessage(msg)
		if classifyHumanChoice(text) == "REVISE" {
			update[FieldModificationArea] = text
		} else {
			update[FieldModificationArea] = ""
		}
		return graph.Command{Update: update}, nil
	}
}

// humanChoiceKeywords are the markers of doubt/question/request that force
// REVISE, per §4.8.4 and the recorded classification rule.
var humanChoiceKeywords = []string{"can", "could", "what about", "but", "however"}

func classifyHumanChoice(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "APPROVE"
	}
	if strings.Contains(trimmed, "?") {
		return "REVISE"
	}
	lower := strings.ToLower(trimmed)
	for _, kw := range humanChoiceKeywords {
		if strings.Contains(lower, kw) {
			return "REVISE"
		}
	}
	return "APPROVE"
}

// processHistoryKey renders one routing decision for the tie-break counters
// in §4.8.2.
func processHistoryKey(route, task string) string {
	return route + ":" + task
}

func trailingRun(history []any, matches func(string) bool) int {
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		key, ok := history[i].(string)
		if !ok || !matches(key) {
			break
		}
		n++
	}
	return n
}

// processNode picks the next specialist (or finishes) from the accumulated
// state (§4.8.1, §4.8.2).
func (r *roles) processNode() graph.NodeFunc {
	decisionSchema := mustCompileSchema(`{"type":"object","required":["route","task"],"properties":{"route":{"type":"string"},"task":{"type":"string"}}}`)
	return func(ctx context.Context, state graph.State) (any, error) {
		a := &agent.Agent{
			Name:         RoleProcess,
			AgentType:    agentTypeByRole[RoleProcess],
			Model:        r.model,
			OutputSchema: decisionSchema,
			Primary:      r.notify,
			Fixing:       r.notify,
			Prompt: func(map[string]any) []*model.Message {
				sys := `Choose the next step. Reply with JSON {"route": one of "Coder","Visualization","Search","Report","Refiner","FINISH", "task": "<instructions for that specialist>"}.`
				user := renderTranscript(state)
				return []*model.Message{
					{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: sys}}},
					{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: user}}},
				}
			},
		}
		result := a.Run(ctx, state)

		decision, ok := parseProcessDecision(textOf(result.Final))
		if !ok {
			decision = ProcessDecision{}
		}
		if decision.Route == routeFinish {
			decision.Route = RoleRefiner
		}

		history, _ := state[FieldProcessHistory].([]any)
		key := processHistoryKey(decision.Route, decision.Task)
		route := decision.Route

		switch {
		case route == "" || route == RoleProcess:
			if trailingRun(history, func(k string) bool {
				prefix, _, _ := strings.Cut(k, ":")
				return prefix == "" || prefix == RoleProcess
			})+1 >= maxProcessSelfLoops {
				route = RoleRefiner
			} else {
				route = RoleProcess
			}
		case route != RoleRefiner:
			if trailingRun(history, func(k string) bool { return k == key })+1 >= maxProcessSelfLoops {
				route = RoleRefiner
			}
		}

		update := appendMessage(result.Final)
		update[FieldProcessDecision] = decision
		update[FieldTask] = decision.Task
		update[FieldSender] = route
		update[FieldProcessHistory] = []any{key}
		return graph.Command{Goto: route, Update: update}, nil
	}
}

func parseProcessDecision(text string) (ProcessDecision, bool) {
	var d ProcessDecision
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return ProcessDecision{}, false
	}
	return d, true
}

// specialistResult folds one specialist agent's run into the state update
// §4.8.1/§4.8.7 prescribe: write the role's *_state field, and either route
// normally (static edge to QualityReview) or short-circuit to Refiner on a
// second consecutive sandbox outage.
func specialistResult(role, stateField string, result agent.Result, outage bool, produced []string, state graph.State) (any, error) {
	text := textOf(result.Final)
	update := appendMessage(result.Final)
	update[stateField] = text
	if len(produced) > 0 {
		items := make([]any, len(produced))
		for i, p := range produced {
			items[i] = p
		}
		update[FieldProducedFiles] = items
	}

	prevStrikes, _ := state[FieldSandboxStrikes].(int)
	if !outage {
		if prevStrikes > 0 {
			// A run that reached the sandbox ends the streak.
			update[FieldSandboxStrikes] = -prevStrikes
		}
		return graph.Command{Update: update}, nil
	}

	update[FieldSandboxStrikes] = 1
	if prevStrikes >= 1 {
		warn := assistantMessage("sandbox_unavailable: "+role+" could not reach the sandbox twice in a row; finishing with partial results.", agentTypeByRole[role])
		existing, _ := update[FieldInternalMessages].([]any)
		update[FieldInternalMessages] = append(existing, warn)
		return graph.Command{Goto: RoleRefiner, Update: update}, nil
	}
	return graph.Command{Update: update}, nil
}

func (r *roles) coderNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		task, _ := state[FieldTask].(string)
		outage := new(bool)
		var produced []string
		a := &agent.Agent{
			Name:      RoleCoder,
			AgentType: agentTypeByRole[RoleCoder],
			Model:     r.model,
			Tools:     codeTools(r.sbx, outage, &produced),
			Primary:   r.notify,
			Prompt:    taskPrompt("You write and run Python to accomplish the task. Use execute_code, pip_install, list, and describe_data as needed.", task, state),
		}
		result := a.Run(ctx, state)
		return specialistResult(RoleCoder, FieldCodeState, result, *outage, produced, state)
	}
}

func (r *roles) visualizationNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		task, _ := state[FieldTask].(string)
		outage := new(bool)
		var produced []string
		a := &agent.Agent{
			Name:      RoleVisualization,
			AgentType: agentTypeByRole[RoleVisualization],
			Model:     r.model,
			Tools:     visualizationTools(r.sbx, outage, &produced),
			Primary:   r.notify,
			Prompt:    taskPrompt("You write plotting code to visualize data. Use execute_code.", task, state),
		}
		result := a.Run(ctx, state)
		return specialistResult(RoleVisualization, FieldVisualState, result, *outage, produced, state)
	}
}

func (r *roles) searchNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		task, _ := state[FieldTask].(string)
		a := &agent.Agent{
			Name:      RoleSearch,
			AgentType: agentTypeByRole[RoleSearch],
			Model:     r.model,
			Tools:     searchTools(r.search),
			Primary:   r.notify,
			Prompt:    taskPrompt("You research the task using web, wiki, and arxiv search.", task, state),
		}
		result := a.Run(ctx, state)
		return specialistResult(RoleSearch, FieldSearchState, result, false, nil, state)
	}
}

func (r *roles) reportNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		task, _ := state[FieldTask].(string)
		var produced []string
		a := &agent.Agent{
			Name:      RoleReport,
			AgentType: agentTypeByRole[RoleReport],
			Model:     r.model,
			Tools:     fileTools(r.sbx, &produced),
			Primary:   r.notify,
			Prompt:    taskPrompt("You compose the final markdown report from all accumulated state. Use write_file and read_file.", task, state),
		}
		result := a.Run(ctx, state)
		return specialistResult(RoleReport, FieldReportState, result, false, produced, state)
	}
}

// taskPrompt renders a uniform specialist prompt: a fixed system
// instruction plus the task and accumulated transcript.
func taskPrompt(sys, task string, state graph.State) func(map[string]any) []*model.Message {
	return func(map[string]any) []*model.Message {
		user := "Task: " + task + "\n\n" + renderTranscript(state)
		return []*model.Message{
			{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: sys}}},
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: user}}},
		}
	}
}

// qualityReviewNode judges the last specialist's output (§4.8.1, §4.8.3).
func (r *roles) qualityReviewNode() graph.NodeFunc {
	reviewSchema := mustCompileSchema(`{"type":"object","required":["passed","reason"],"properties":{"passed":{"type":"boolean"},"reason":{"type":"string"}}}`)
	return func(ctx context.Context, state graph.State) (any, error) {
		sender, _ := state[FieldSender].(string)
		lastOutput := lastSpecialistOutput(state, sender)

		a := &agent.Agent{
			Name:         RoleQualityReview,
			AgentType:    agentTypeByRole[RoleQualityReview],
			Model:        r.model,
			OutputSchema: reviewSchema,
			Primary:      r.notify,
			Fixing:       r.notify,
			Prompt: func(map[string]any) []*model.Message {
				sys := `Judge whether this specialist output satisfies its task. Reply with JSON {"passed": bool, "reason": "..."}.`
				return []*model.Message{
					{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: sys}}},
					{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: lastOutput}}},
				}
			},
		}
		result := a.Run(ctx, state)

		var review QualityReview
		if err := json.Unmarshal([]byte(textOf(result.Final)), &review); err != nil {
			review = QualityReview{Passed: true, Reason: "review_unavailable"}
		}

		update := appendMessage(result.Final)
		update[FieldQualityReview] = review

		if review.Passed {
			update[FieldQARetries] = map[string]int{sender: 0}
			return graph.Command{Goto: RoleNote, Update: update}, nil
		}

		retries := qaRetriesFor(state, sender) + 1
		update[FieldQARetries] = map[string]int{sender: 1}
		if retries > maxQARetries {
			return graph.Command{Goto: RoleNote, Update: update}, nil
		}
		return graph.Command{Goto: sender, Update: update}, nil
	}
}

func lastSpecialistOutput(state graph.State, sender string) string {
	var field string
	switch sender {
	case RoleCoder:
		field = FieldCodeState
	case RoleVisualization:
		field = FieldVisualState
	case RoleSearch:
		field = FieldSearchState
	case RoleReport:
		field = FieldReportState
	}
	out, _ := state[field].(string)
	return out
}

// noteNode appends a run summary to internal_messages and routes back to
// Process for the next decision (§4.8.1, §4.8.2).
func (r *roles) noteNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		sender, _ := state[FieldSender].(string)
		task, _ := state[FieldTask].(string)
		note := assistantMessage(fmt.Sprintf("completed task %q via %s", task, sender), agentTypeByRole[RoleNote])
		if r.notify != nil {
			r.notify(note, agentTypeByRole[RoleNote])
		}
		update := appendMessage(note)
		update[FieldCompletedTasks] = []any{task}
		return graph.Command{Goto: RoleProcess, Update: update}, nil
	}
}

// refinerNode polishes the accumulated report into the final message
// (§4.8.1).
func (r *roles) refinerNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		report, _ := state[FieldReportState].(string)
		a := &agent.Agent{
			Name:      RoleRefiner,
			AgentType: agentTypeByRole[RoleRefiner],
			Model:     r.model,
			Primary:   r.notify,
			Prompt: func(map[string]any) []*model.Message {
				sys := "Polish the accumulated report into a final, user-facing response."
				user := report
				if user == "" {
					user = renderTranscript(state)
				}
				return []*model.Message{
					{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: sys}}},
					{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: user}}},
				}
			},
		}
		result := a.Run(ctx, state)
		return graph.Command{Update: appendMessage(result.Final)}, nil
	}
}

// cleanupNode tears down the bound sandbox. Per §4.8.2's tie-break, a
// Cleanup failure never fails the run: it is emitted as a tagged warning
// and execution still reaches End.
func (r *roles) cleanupNode() graph.NodeFunc {
	return func(ctx context.Context, state graph.State) (any, error) {
		if err := r.sbx.Cleanup(ctx); err != nil {
			warn := assistantMessage("cleanup warning: "+err.Error(), agentTypeByRole[RoleRefiner])
			if r.notify != nil {
				r.notify(warn, agentTypeByRole[RoleRefiner])
			}
			return graph.Command{Update: appendMessage(warn)}, nil
		}
		return nil, nil
	}
}

func mustCompileSchema(schemaJSON string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	const url = "mem://datascience-schema.json"
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		panic(err)
	}
	return schema
}
