// Package tool implements the Tool Invocation Layer (C6): uniform tool
// schema, parameter normalization across the two wire encodings a model
// may emit, and per-call timeout/cancellation. Grounded on
// runtime/agent/toolerrors.ToolError for failure reporting and on
// runtime/agent/tools.FieldIssue for structured validation issues.
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/orchestrax/workflow-orchestrator/runtime/agent/toolerrors"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/tools"
)

type (
	// Param describes one named parameter in a tool's schema.
	Param struct {
		Name        string
		Description string
		Required    bool
	}

	// Tool is the uniform shape every invokable capability exposes:
	// {name, description, param_schema, invoke(params) -> string}.
	Tool struct {
		Name        string
		Description string
		ParamSchema []Param
		Invoke      func(ctx context.Context, params map[string]any) (string, error)
	}

	// Registry looks tools up by name for the Agent Runtime (C7).
	Registry struct {
		tools map[string]Tool
	}
)

// NewRegistry builds a Registry from the given tools. Later entries with a
// duplicate name overwrite earlier ones.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name] = t
	}
	return r
}

// Lookup returns the named tool and whether it exists.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, in no particular order. Used by the
// Agent Runtime (C7) to advertise tool definitions to the model.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// ErrBadArgs marks a failure to normalize or validate tool parameters. It
// never escapes as a control-flow error to the agent loop; callers convert
// it into textual tool result via Call.
var ErrBadArgs = toolerrors.New("bad arguments")

// Call normalizes raw model-emitted arguments, validates them against
// schema, and invokes the tool with a per-call timeout. All failures
// (normalization, validation, invocation, timeout) are converted to a
// textual tool result rather than propagated as errors, per §4.6: "All
// failures are converted to a textual tool result; they do not interrupt
// the agent loop."
func Call(ctx context.Context, t Tool, raw string, timeout time.Duration) string {
	params, issues := Normalize(raw, t.ParamSchema)
	if len(issues) > 0 {
		return fmt.Sprintf("tool error: %s: %s", ErrBadArgs, formatIssues(issues))
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := t.Invoke(ctx, params)
	if err != nil {
		return fmt.Sprintf("tool error: %v", toolerrors.FromError(err))
	}
	return result
}

func formatIssues(issues []tools.FieldIssue) string {
	if len(issues) == 0 {
		return ""
	}
	out := issues[0].Field + " (" + issues[0].Constraint + ")"
	for _, iss := range issues[1:] {
		out += ", " + iss.Field + " (" + iss.Constraint + ")"
	}
	return out
}
