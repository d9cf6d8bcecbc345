package toolexecutor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/runcontrol"
)

func echoTool(name string, caps ...string) ToolDefinition {
	return ToolDefinition{
		Name:         name,
		Description:  "echoes its input",
		Capabilities: caps,
		InputSchema: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
			"required":             []interface{}{"text"},
			"additionalProperties": false,
		},
		Execute: func(ctx context.Context, execCtx *ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			return args["text"], nil
		},
	}
}

func TestExecutor_AllowsAndRunsTool(t *testing.T) {
	exec, err := New(Config{Tools: []ToolDefinition{echoTool("echo")}, Policy: AllowAllPolicy{}})
	require.NoError(t, err)

	result, err := exec.ExecuteFromProvider(context.Background(), "echo", map[string]interface{}{"text": "hi"}, "call-1")
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hi", result.Result)
}

func TestExecutor_UnknownToolIsDenied(t *testing.T) {
	exec, err := New(Config{Tools: []ToolDefinition{echoTool("echo")}})
	require.NoError(t, err)

	_, err = exec.ExecuteFromProvider(context.Background(), "nope", nil, "call-1")
	require.Error(t, err)
	var denied *ToolDenied
	require.ErrorAs(t, err, &denied)
}

func TestExecutor_InvalidArgsAreDenied(t *testing.T) {
	exec, err := New(Config{Tools: []ToolDefinition{echoTool("echo")}})
	require.NoError(t, err)

	_, err = exec.ExecuteFromProvider(context.Background(), "echo", map[string]interface{}{"count": 3}, "call-1")
	require.Error(t, err)
	var denied *ToolDenied
	require.ErrorAs(t, err, &denied)
}

func TestExecutor_PolicyDenyRaisesToolDenied(t *testing.T) {
	exec, err := New(Config{
		Tools:  []ToolDefinition{echoTool("fs_write_file", "fs:write")},
		Policy: NewToolDenyListPolicy("fs_write_file"),
	})
	require.NoError(t, err)

	_, err = exec.ExecuteFromProvider(context.Background(), "fs_write_file", map[string]interface{}{"text": "x"}, "call-1")
	require.Error(t, err)
	var denied *ToolDenied
	require.ErrorAs(t, err, &denied)
}

func TestExecutor_FailingHandlerBecomesErrorResultNotError(t *testing.T) {
	failing := ToolDefinition{
		Name:        "boom",
		InputSchema: map[string]interface{}{"type": "object"},
		Execute: func(ctx context.Context, execCtx *ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			return nil, errors.New("kaboom")
		},
	}
	exec, err := New(Config{Tools: []ToolDefinition{failing}})
	require.NoError(t, err)

	result, err := exec.ExecuteFromProvider(context.Background(), "boom", nil, "call-1")
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Result, "kaboom")
}

func TestExecutor_PanickingHandlerBecomesErrorResult(t *testing.T) {
	panicky := ToolDefinition{
		Name:        "panics",
		InputSchema: map[string]interface{}{"type": "object"},
		Execute: func(ctx context.Context, execCtx *ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			panic("unreachable state")
		},
	}
	exec, err := New(Config{Tools: []ToolDefinition{panicky}})
	require.NoError(t, err)

	result, err := exec.ExecuteFromProvider(context.Background(), "panics", nil, "call-1")
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestExecutor_AskPolicyAwaitsApprovalAndProceedsOnApprove(t *testing.T) {
	controller := runcontrol.New("run-1")
	bus := runbus.New()

	exec, err := New(Config{
		Tools:          []ToolDefinition{echoTool("fs_write_file", "fs:write")},
		Policy:         &CapabilityRequiresApprovalPolicy{Capabilities: []string{"fs:write"}},
		Controller:     controller,
		Bus:            bus,
		EmitToolEvents: true,
	})
	require.NoError(t, err)

	events := bus.Iter()
	go func() {
		time.Sleep(10 * time.Millisecond)
		controller.ResolveApproval("call-1", true)
	}()

	result, err := exec.ExecuteFromProvider(context.Background(), "fs_write_file", map[string]interface{}{"text": "x"}, "call-1")
	require.NoError(t, err)
	assert.False(t, result.IsError)

	seen := map[runbus.EventType]bool{}
	for i := 0; i < 3; i++ {
		ev := <-events
		seen[ev.Type] = true
	}
	assert.True(t, seen[runbus.EventToolApprovalRequest])
	assert.True(t, seen[runbus.EventToolCall])
	assert.True(t, seen[runbus.EventToolResult])
}

func TestExecutor_AskPolicyDeniesOnRejection(t *testing.T) {
	controller := runcontrol.New("run-1")

	exec, err := New(Config{
		Tools:      []ToolDefinition{echoTool("fs_write_file", "fs:write")},
		Policy:     &CapabilityRequiresApprovalPolicy{Capabilities: []string{"fs:write"}},
		Controller: controller,
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		controller.ResolveApproval("call-1", false)
	}()

	_, err = exec.ExecuteFromProvider(context.Background(), "fs_write_file", map[string]interface{}{"text": "x"}, "call-1")
	require.Error(t, err)
	var denied *ToolDenied
	require.ErrorAs(t, err, &denied)
}

func TestExecutor_CancelledControllerDeniesBeforeInvoke(t *testing.T) {
	controller := runcontrol.New("run-1")
	controller.Cancel(nil)

	exec, err := New(Config{Tools: []ToolDefinition{echoTool("echo")}, Controller: controller})
	require.NoError(t, err)

	_, err = exec.ExecuteFromProvider(context.Background(), "echo", map[string]interface{}{"text": "hi"}, "call-1")
	require.Error(t, err)
	var cancelled *runcontrol.ToolCancelled
	require.ErrorAs(t, err, &cancelled)
}

func TestExecutor_DuplicateToolNameRejectedAtConstruction(t *testing.T) {
	_, err := New(Config{Tools: []ToolDefinition{echoTool("echo"), echoTool("echo")}})
	require.Error(t, err)
}
