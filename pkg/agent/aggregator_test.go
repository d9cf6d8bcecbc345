package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/ranya/pkg/runbus"
)

func TestToolCallAggregator_JoinsCallAndResultOnce(t *testing.T) {
	type joined struct{ name, args, result string }
	var calls []joined

	agg := NewToolCallAggregator(SessionUpdateCallbacks{
		OnToolCall: func(name, args, result string) {
			calls = append(calls, joined{name, args, result})
		},
	})

	agg.Handle(runbus.AgentEvent{Type: runbus.EventToolCall, Call: &runbus.ToolCall{
		ID: "c1", ToolName: "echo", Args: map[string]interface{}{"x": "a"},
	}})
	agg.Handle(runbus.AgentEvent{Type: runbus.EventToolResult, Result: &runbus.ToolResult{
		ID: "c1", ToolName: "echo", Result: map[string]interface{}{"y": "a"},
	}})
	// A duplicate result for the same id is ignored.
	agg.Handle(runbus.AgentEvent{Type: runbus.EventToolResult, Result: &runbus.ToolResult{
		ID: "c1", ToolName: "echo", Result: "again",
	}})

	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].name)
	assert.JSONEq(t, `{"x":"a"}`, calls[0].args)
	assert.JSONEq(t, `{"y":"a"}`, calls[0].result)
}

func TestToolCallAggregator_ResultWithoutCallIsDropped(t *testing.T) {
	fired := false
	agg := NewToolCallAggregator(SessionUpdateCallbacks{
		OnToolCall: func(string, string, string) { fired = true },
	})

	agg.Handle(runbus.AgentEvent{Type: runbus.EventToolResult, Result: &runbus.ToolResult{ID: "orphan"}})
	assert.False(t, fired)
}

func TestToolCallAggregator_DeltaRouting(t *testing.T) {
	var messages, thoughts []string
	agg := NewToolCallAggregator(SessionUpdateCallbacks{
		OnMessage: func(text string) { messages = append(messages, text) },
		OnThought: func(text string) { thoughts = append(thoughts, text) },
	})

	agg.Handle(runbus.AgentEvent{Type: runbus.EventTextDelta, Text: "hel"})
	agg.Handle(runbus.AgentEvent{Type: runbus.EventTextDelta, Text: "lo"})
	agg.Handle(runbus.AgentEvent{Type: runbus.EventThinkingDelta, Text: "hmm"})

	assert.Equal(t, []string{"hel", "lo"}, messages)
	assert.Equal(t, []string{"hmm"}, thoughts)
}
