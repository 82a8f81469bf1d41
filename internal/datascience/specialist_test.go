package datascience

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/orchestrax/workflow-orchestrator/internal/graph"
	"github.com/orchestrax/workflow-orchestrator/internal/sandbox"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/model"
	"github.com/orchestrax/workflow-orchestrator/runtime/agent/tools"
	"github.com/stretchr/testify/require"
)

// outageClient is a sandbox.Client whose ExecCode always fails with
// ErrUnavailable, simulating a down sandbox backend for §4.8.7.
type outageClient struct{}

func (outageClient) CreateFromSnapshot(context.Context, string) (string, error) { return "sbx-1", nil }
func (outageClient) Upload(context.Context, string, string, []byte) error       { return nil }
func (outageClient) Read(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, nil
}
func (outageClient) Write(context.Context, string, string, []byte) (bool, error) { return true, nil }
func (outageClient) List(context.Context, string, string) ([]sandbox.Entry, error) {
	return nil, nil
}
func (outageClient) Exec(context.Context, string, string, time.Duration) (string, error) {
	return "", sandbox.ErrUnavailable
}
func (outageClient) ExecCode(context.Context, string, string, time.Duration) (bool, string, error) {
	return false, "", sandbox.ErrUnavailable
}
func (outageClient) Destroy(context.Context, string) error { return nil }

func execCodeCallThenDone() *scriptedClient {
	toolCall := &model.Response{
		ToolCalls: []model.ToolCall{{Name: tools.Ident("execute_code"), Payload: json.RawMessage(`{"code":"print(1)"}`)}},
	}
	return &scriptedClient{responses: []*model.Response{toolCall, textResponse("done")}}
}

func TestSpecialistResultShortCircuitsToRefinerOnSecondOutage(t *testing.T) {
	sbx := sandbox.NewPersistentSandbox(outageClient{}, "user-1", "snap", nil, nil, 0, time.Second)
	r := &roles{sbx: sbx, model: execCodeCallThenDone()}

	node := r.coderNode()

	first, err := node(context.Background(), graph.State{FieldTask: "load csv"})
	require.NoError(t, err)
	cmd1 := first.(graph.Command)
	require.Equal(t, "", cmd1.Goto)
	require.Equal(t, 1, cmd1.Update[FieldSandboxStrikes])

	r2 := &roles{sbx: sbx, model: execCodeCallThenDone()}
	node2 := r2.coderNode()
	state2 := graph.State{FieldTask: "load csv", FieldSandboxStrikes: 1}
	second, err := node2(context.Background(), state2)
	require.NoError(t, err)
	cmd2 := second.(graph.Command)
	require.Equal(t, RoleRefiner, cmd2.Goto)
}
