// Package agent implements the Agent Runtime (C7): a named unit combining a
// model, a tool set, a prompt template, and two interceptors (primary,
// fixing) that capture every model call as attributed messages. Grounded on
// runtime/agent/model.Client for model invocation and internal/tool for
// tool execution.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/tool"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Interceptor records one captured message, tagged with the agent_type that
// produced it (§9 glossary: "a recorder wrapping a model call, producing a
// stream of attributed messages").
type Interceptor func(msg model.Message, agentType string)

// PromptFunc renders the transcript sent to the model for the current state.
type PromptFunc func(state map[string]any) []*model.Message

type (
	// Agent is the uniform shape named in §4.7: model + tools + prompt +
	// name + primary/fixing interceptors.
	Agent struct {
		Name      string
		AgentType string
		Model     model.Client
		Tools     *tool.Registry
		Prompt    PromptFunc
		Primary   Interceptor
		Fixing    Interceptor

		// OutputSchema, when set, is compiled JSON Schema the agent's final
		// text must satisfy. Validation failure triggers the fixing loop;
		// if still invalid after MaxFix attempts, Run returns the last
		// message unchanged and the caller decides the default (§4.8.3's
		// QualityReview default is the canonical example).
		OutputSchema *jsonschema.Schema

		// MaxIters bounds the model/tool loop (§4.7 step 3). Zero uses 15.
		MaxIters int
		// MaxFix bounds the fixing-interceptor retry loop (§4.7 step 4).
		// Zero uses 3.
		MaxFix int
		// ToolTimeout bounds each tool invocation. Zero means no timeout.
		ToolTimeout time.Duration
	}

	// Result is what Run returns: the final message plus every message
	// captured along the way (both interceptors), in emission order.
	Result struct {
		Final    model.Message
		Captured []model.Message
	}
)

// Run executes one agent turn per §4.7: render, call, loop on tool calls
// (bounded by MaxIters), repair malformed structured output (bounded by
// MaxFix), and return. Per §4.7's error policy, Run never returns an error:
// any unhandled failure becomes an AIMessage("Error in <name>: <reason>")
// tagged with AgentType, because a single agent's failure must not abort
// the run.
func (a *Agent) Run(ctx context.Context, state map[string]any) Result {
	maxIters := a.MaxIters
	if maxIters == 0 {
		maxIters = 15
	}
	maxFix := a.MaxFix
	if maxFix == 0 {
		maxFix = 3
	}

	messages := a.Prompt(state)
	var captured []model.Message

	final, err := a.loop(ctx, messages, maxIters, &captured)
	if err != nil {
		return a.errorResult(err, &captured)
	}

	if a.OutputSchema != nil {
		final = a.repair(ctx, messages, final, maxFix, &captured)
	}

	return Result{Final: final, Captured: captured}
}

func (a *Agent) loop(ctx context.Context, messages []*model.Message, maxIters int, captured *[]model.Message) (model.Message, error) {
	var last model.Message
	for i := 0; i < maxIters; i++ {
		resp, err := a.Model.Complete(ctx, &model.Request{Messages: messages, Tools: a.toolDefinitions()})
		if err != nil {
			return model.Message{}, err
		}
		for _, msg := range resp.Content {
			a.capture(msg, captured)
			last = msg
		}
		if len(resp.ToolCalls) == 0 {
			return last, nil
		}

		toolResults := make([]model.Part, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			toolResults = append(toolResults, a.invokeTool(ctx, call))
		}
		messages = append(messages, &model.Message{
			Role:  model.ConversationRoleUser,
			Parts: toolResults,
		})
	}
	return last, nil
}

func (a *Agent) invokeTool(ctx context.Context, call model.ToolCall) model.Part {
	raw := string(call.Payload)
	var out string
	if a.Tools != nil {
		if t, ok := a.Tools.Lookup(string(call.Name)); ok {
			out = tool.Call(ctx, t, raw, a.ToolTimeout)
		} else {
			out = fmt.Sprintf("tool error: unknown tool %q", call.Name)
		}
	} else {
		out = "tool error: no tool registry configured"
	}
	return model.ToolResultPart{ToolUseID: call.ID, Content: out, IsError: strings.HasPrefix(out, "tool error:")}
}

func (a *Agent) toolDefinitions() []*model.ToolDefinition {
	if a.Tools == nil {
		return nil
	}
	all := a.Tools.All()
	defs := make([]*model.ToolDefinition, 0, len(all))
	for _, t := range all {
		defs = append(defs, &model.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: paramSchema(t.ParamSchema),
		})
	}
	return defs
}

// paramSchema renders a tool.Param list as a minimal JSON Schema object, the
// shape model.ToolDefinition.InputSchema expects.
func paramSchema(params []tool.Param) map[string]any {
	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		props[p.Name] = map[string]any{"type": "string", "description": p.Description}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (a *Agent) capture(msg model.Message, captured *[]model.Message) {
	if a.Primary != nil {
		a.Primary(msg, a.AgentType)
	}
	*captured = append(*captured, msg)
}

// repair validates final against OutputSchema, retrying through the fixing
// interceptor up to maxFix times on failure (§4.7 step 4).
func (a *Agent) repair(ctx context.Context, messages []*model.Message, final model.Message, maxFix int, captured *[]model.Message) model.Message {
	if a.validates(final) {
		return final
	}
	for i := 0; i < maxFix; i++ {
		repairMessages := append(append([]*model.Message{}, messages...), &model.Message{
			Role:  model.ConversationRoleUser,
			Parts: []model.Part{model.TextPart{Text: "Your previous response did not match the required schema. Reply again with valid JSON matching the schema only."}},
		})
		resp, err := a.Model.Complete(ctx, &model.Request{Messages: repairMessages})
		if err != nil || len(resp.Content) == 0 {
			continue
		}
		candidate := resp.Content[len(resp.Content)-1]
		if a.Fixing != nil {
			a.Fixing(candidate, a.AgentType)
		}
		*captured = append(*captured, candidate)
		if a.validates(candidate) {
			return candidate
		}
		final = candidate
	}
	return final
}

func (a *Agent) validates(msg model.Message) bool {
	if a.OutputSchema == nil {
		return true
	}
	text := textOf(msg)
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return false
	}
	return a.OutputSchema.Validate(decoded) == nil
}

func (a *Agent) errorResult(err error, captured *[]model.Message) Result {
	msg := model.Message{
		Role:  model.ConversationRoleAssistant,
		Parts: []model.Part{model.TextPart{Text: fmt.Sprintf("Error in %s: %s", a.Name, err)}},
	}
	a.capture(msg, captured)
	return Result{Final: msg, Captured: *captured}
}

func textOf(msg model.Message) string {
	var b strings.Builder
	for _, p := range msg.Parts {
		if tp, ok := p.(model.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}
