// Package datascience implements the Data-Science Subgraph (C8): the
// richest pipeline named in spec.md's overview, with ten cooperating roles,
// a quality-review retry loop, and a dual message stream. Built on
// internal/graph (C5) for execution and internal/agent (C7) for each role.
package datascience

import (
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
)

// State field names (§4.8.1, §4.8.5).
const (
	FieldInternalMessages = "internal_messages"
	FieldMessages         = "messages"
	FieldSender           = "sender"
	FieldHypothesis       = "hypothesis"
	FieldModificationArea = "modification_areas"
	FieldProcessDecision  = "process_decision"
	FieldTask             = "task"
	FieldCodeState        = "code_state"
	FieldVisualState      = "visualization_state"
	FieldSearchState      = "searcher_state"
	FieldReportState      = "report_state"
	FieldQualityReview    = "quality_review"
	FieldQARetries        = "agent_quality_review_retries"
	FieldCompletedTasks   = "completed_tasks"
	FieldDirectoryContent = "directory_content"
	FieldProcessHistory   = "process_history"
	FieldSandboxStrikes   = "sandbox_strikes"
	FieldProducedFiles    = "produced_files"
)

// QualityReview is the structured pass/fail gate named in §4.8.3. Only
// Passed and Reason are consulted; any other field a model emits is
// ignored.
type QualityReview struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// ProcessDecision is what the Process role returns: either the literal
// "FINISH" (Task empty, Route "FINISH") or a routed specialist with a task.
type ProcessDecision struct {
	Route string `json:"route"`
	Task  string `json:"task"`
}

const routeFinish = "FINISH"

// reducerSchema builds the §4.8's "Data-science state" reducer table.
func reducerSchema() map[string]graph.Reducer {
	sep := graph.ReducerConcatWithSeparator(" ")
	return map[string]graph.Reducer{
		FieldInternalMessages: graph.ReducerAppend,
		FieldMessages:         graph.ReducerReplace,
		FieldSender:           graph.ReducerReplace,
		FieldHypothesis:       graph.ReducerReplace,
		FieldModificationArea: graph.ReducerReplace,
		FieldProcessDecision:  graph.ReducerReplace,
		FieldTask:             graph.ReducerReplace,
		FieldCodeState:        sep,
		FieldVisualState:      sep,
		FieldSearchState:      sep,
		FieldReportState:      sep,
		FieldQualityReview:    graph.ReducerReplace,
		FieldQARetries:        perSpecialistSumReducer,
		FieldCompletedTasks:   graph.ReducerAppend,
		FieldDirectoryContent: graph.ReducerReplace,
		FieldProcessHistory:   graph.ReducerAppend,
		FieldSandboxStrikes:   graph.ReducerSum,
		FieldProducedFiles:    graph.ReducerAppend,
	}
}

// perSpecialistSumReducer implements agent_quality_review_retries as a sum
// keyed by specialist name rather than one global counter, since §4.8.2's
// cap ("MaxQARetries ... per specialist") is scoped per specialist while
// the reducer family named in §4.4 is "sum". incoming is always a
// map[string]int of deltas (usually a single {specialist: 1} after a failed
// review, or a reset {specialist: 0} once QualityReview passes that
// specialist).
func perSpecialistSumReducer(prev, incoming any) any {
	base, _ := prev.(map[string]int)
	merged := make(map[string]int, len(base))
	for k, v := range base {
		merged[k] = v
	}
	delta, _ := incoming.(map[string]int)
	for k, v := range delta {
		if v == 0 {
			merged[k] = 0
			continue
		}
		merged[k] += v
	}
	return merged
}

func qaRetriesFor(state graph.State, specialist string) int {
	m, _ := state[FieldQARetries].(map[string]int)
	return m[specialist]
}
