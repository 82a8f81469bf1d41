package datascience

import (
	"github.com/google/uuid"
	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/kvstore"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
)

// AgentTypePrefix tags every message this subgraph captures with
// "data_science_<role>" (§4.8.6).
const AgentTypePrefix = "data_science_"

// EndAgentType is written on the message forwarded upstream after this
// subgraph completes (§4.8.5 output mapper).
const EndAgentType = "data_science_end"

// InputMapper implements §4.8.5's input mapper: text -> the subgraph's
// initial state, with every accumulated-state field reset to empty so a
// fresh run never inherits a prior run's partial progress.
func InputMapper(request any) graph.State {
	text, _ := request.(string)
	msg := model.Message{
		Role:  model.ConversationRoleUser,
		Parts: []model.Part{model.TextPart{Text: text}},
		Meta:  map[string]any{"id": uuid.NewString()},
	}
	return graph.State{
		FieldInternalMessages: []any{msg},
		FieldHypothesis:       "",
		FieldProcessDecision:  nil,
		FieldVisualState:      "",
		FieldSearchState:      "",
		FieldCodeState:        "",
		FieldReportState:      "",
		FieldQualityReview:    "",
		FieldSender:           "",
	}
}

// OutputMapper implements §4.8.5's output mapper: the last
// internal_messages entry, tagged data_science_end. Subgraph.Invoke (C5)
// also stamps agent_type on the returned kvstore.Message, but the subgraph
// produces it here too so callers reading state directly see the same tag.
func OutputMapper(final graph.State) kvstore.Message {
	items, _ := final[FieldInternalMessages].([]any)
	var content string
	if n := len(items); n > 0 {
		if msg, ok := items[n-1].(model.Message); ok {
			content = textOf(msg)
		}
	}
	return kvstore.Message{
		AgentType:        EndAgentType,
		Content:          content,
		AdditionalKwargs: map[string]any{"agent_type": EndAgentType, "files": producedFiles(final)},
	}
}

func producedFiles(state graph.State) []string {
	items, _ := state[FieldProducedFiles].([]any)
	files := make([]string, 0, len(items))
	for _, v := range items {
		if s, ok := v.(string); ok {
			files = append(files, s)
		}
	}
	return files
}

func textOf(msg model.Message) string {
	for i := len(msg.Parts) - 1; i >= 0; i-- {
		if tp, ok := msg.Parts[i].(model.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}
