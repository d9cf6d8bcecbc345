package agent

import (
	"encoding/json"
	"sync"

	"github.com/harun/ranya/pkg/runbus"
)

// SessionUpdateCallbacks are the compatibility surface older session-update
// consumers expect: one joined callback per completed tool call, plus raw
// text/thinking deltas.
type SessionUpdateCallbacks struct {
	OnToolCall func(toolName, argsJSON, resultJSON string)
	OnMessage  func(text string)
	OnThought  func(text string)
}

// ToolCallAggregator joins tool_call and tool_result events by id and
// invokes OnToolCall exactly once per completed pair. Subscribe its Handle
// method on a run's Bus (RunHooks.SessionUpdates does this).
type ToolCallAggregator struct {
	cb SessionUpdateCallbacks

	mu      sync.Mutex
	pending map[string]runbus.ToolCall
}

// NewToolCallAggregator builds an aggregator over cb.
func NewToolCallAggregator(cb SessionUpdateCallbacks) *ToolCallAggregator {
	return &ToolCallAggregator{cb: cb, pending: make(map[string]runbus.ToolCall)}
}

// Handle consumes one bus event.
func (a *ToolCallAggregator) Handle(ev runbus.AgentEvent) {
	switch ev.Type {
	case runbus.EventToolCall:
		if ev.Call == nil {
			return
		}
		a.mu.Lock()
		a.pending[ev.Call.ID] = *ev.Call
		a.mu.Unlock()

	case runbus.EventToolResult:
		if ev.Result == nil || a.cb.OnToolCall == nil {
			return
		}
		a.mu.Lock()
		call, ok := a.pending[ev.Result.ID]
		if ok {
			delete(a.pending, ev.Result.ID)
		}
		a.mu.Unlock()
		if !ok {
			return
		}
		a.cb.OnToolCall(call.ToolName, marshalCompact(call.Args), marshalCompact(ev.Result.Result))

	case runbus.EventTextDelta:
		if a.cb.OnMessage != nil {
			a.cb.OnMessage(ev.Text)
		}

	case runbus.EventThinkingDelta:
		if a.cb.OnThought != nil {
			a.cb.OnThought(ev.Text)
		}
	}
}

func marshalCompact(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}
