package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/runcontrol"
	"github.com/harun/ranya/pkg/toolexecutor"
)

// Message is one entry in the conversation an engine replays to its backend.
type Message struct {
	Role       string                 `json:"role"` // system, user, assistant, tool
	Content    string                 `json:"content"`
	ToolCalls  []runbus.ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// EngineRequest carries everything an engine needs for one attempt against
// one (provider, model) candidate. Tools carry their provider-facing names;
// the engine never sees originals.
type EngineRequest struct {
	RunID       string
	Provider    string
	Model       string
	System      string
	Messages    []Message
	Tools       []toolexecutor.ToolDefinition
	Temperature float64
	MaxTokens   int
	MaxSteps    int
	Metadata    map[string]interface{}
}

// EngineDeps are the run-scoped collaborators an engine drives: the
// Controller for pause/stop/cancel, the Executor for tool dispatch, the Bus
// for event emission, and the name mapping for egress remapping.
type EngineDeps struct {
	Controller *runcontrol.Controller
	Executor   *toolexecutor.Executor
	Bus        *runbus.Bus
	Mapping    *toolexecutor.NameMapping
}

// EngineResult is an attempt's final outcome. Tool names are already
// remapped to their originals.
type EngineResult struct {
	Text         string
	FinishReason runbus.FinishReason
	ToolCalls    []runbus.ToolCall
	ToolResults  []runbus.ToolResult
	Usage        *runbus.Usage
}

// Engine adapts one LLM backend to the uniform streaming + multi-step tool
// loop contract. Run blocks until the attempt finishes; deltas, tool events,
// step summaries, and usage flow onto deps.Bus as they happen. The run's
// bracketing run_start/run_finish events are owned by the Supervisor so the
// exactly-once invariant holds across failover attempts.
type Engine interface {
	Provider() string
	Run(ctx context.Context, req EngineRequest, deps EngineDeps) (*EngineResult, error)
}

// turn is one model response inside the tool loop: streamed text already
// emitted as deltas, plus the tool calls (provider-facing names) the model
// requested, the backend finish reason, and token usage.
type turn struct {
	Text         string
	ToolCalls    []runbus.ToolCall
	FinishReason runbus.FinishReason
	Usage        *runbus.Usage
}

// streamTurnFunc is a backend's single-turn streaming call. Implementations
// emit thinking_delta/text_delta onto the bus as tokens arrive and return
// the assembled turn.
type streamTurnFunc func(ctx context.Context, conv []Message) (*turn, error)

const defaultMaxSteps = 10

// runToolLoop drives the multi-step tool loop shared by every engine: stream
// a turn, dispatch its tool calls through the executor, feed serialized
// results back into the conversation, and repeat until the model stops
// calling tools, the step budget runs out, or the controller intervenes.
func runToolLoop(ctx context.Context, req EngineRequest, deps EngineDeps, stream streamTurnFunc) (*EngineResult, error) {
	conv := append([]Message(nil), req.Messages...)
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	var allCalls []runbus.ToolCall
	var allResults []runbus.ToolResult

	emit(deps.Bus, runbus.AgentEvent{Type: runbus.EventStatus, Status: runbus.StatusThinking})

	for step := 0; step < maxSteps; step++ {
		if deps.Controller != nil {
			if err := deps.Controller.WaitIfPaused(ctx); err != nil {
				return cancelledResult(allCalls, allResults), nil
			}
			if deps.Controller.Cancelled() {
				return cancelledResult(allCalls, allResults), nil
			}
			// Stop is cooperative: honored here, at the step boundary.
			if deps.Controller.StopRequested() {
				emit(deps.Bus, runbus.AgentEvent{Type: runbus.EventStatus, Status: runbus.StatusStopping})
				return cancelledResult(allCalls, allResults), nil
			}
		}

		t, err := stream(ctx, conv)
		if err != nil {
			if deps.Controller != nil && deps.Controller.Cancelled() {
				return cancelledResult(allCalls, allResults), nil
			}
			return nil, classifyEngineError(req.Provider, req.Model, err)
		}

		if t.Usage != nil {
			emit(deps.Bus, runbus.AgentEvent{Type: runbus.EventUsage, TokenUsage: t.Usage})
		}

		if len(t.ToolCalls) == 0 {
			reason := t.FinishReason
			if reason == "" {
				reason = runbus.FinishStop
			}
			emit(deps.Bus, runbus.AgentEvent{Type: runbus.EventStatus, Status: runbus.StatusResponding})
			emit(deps.Bus, stepFinishEvent(step, reason, nil, nil))
			return &EngineResult{
				Text:         t.Text,
				FinishReason: reason,
				ToolCalls:    allCalls,
				ToolResults:  allResults,
				Usage:        t.Usage,
			}, nil
		}

		// Backends that omit stable call ids get one generated here, before
		// dispatch, so the call/result pair always shares an id.
		for i := range t.ToolCalls {
			if t.ToolCalls[i].ID == "" {
				t.ToolCalls[i].ID = newCallID()
			}
		}

		emit(deps.Bus, runbus.AgentEvent{Type: runbus.EventStatus, Status: runbus.StatusActing})

		// The assistant turn carrying this step's calls is recorded once; each
		// serialized result follows it as a tool message.
		conv = append(conv, Message{Role: "assistant", Content: t.Text, ToolCalls: t.ToolCalls})

		stepCalls := make([]runbus.ToolCall, 0, len(t.ToolCalls))
		stepResults := make([]runbus.ToolResult, 0, len(t.ToolCalls))
		for _, call := range t.ToolCalls {
			original := deps.Mapping.Original(call.ToolName)
			res, execErr := deps.Executor.ExecuteFromProvider(ctx, call.ToolName, call.Args, call.ID)
			if execErr != nil {
				var tc *runcontrol.ToolCancelled
				if asToolCancelled(execErr, &tc) || (deps.Controller != nil && deps.Controller.Cancelled()) {
					return cancelledResult(allCalls, allResults), nil
				}
				// Denials never reach a handler and emit no call/result
				// events; the conversation still needs a stable error result
				// so the loop continues.
				res = &toolexecutor.ToolResult{Result: execErr.Error(), IsError: true}
			}

			stepCalls = append(stepCalls, runbus.ToolCall{ID: call.ID, ToolName: original, Args: call.Args})
			stepResults = append(stepResults, runbus.ToolResult{
				ID:       call.ID,
				ToolName: original,
				Result:   res.Result,
				IsError:  res.IsError,
			})

			conv = append(conv, Message{
				Role:       "tool",
				Content:    serializeToolResult(res),
				ToolCallID: call.ID,
			})
		}

		allCalls = append(allCalls, stepCalls...)
		allResults = append(allResults, stepResults...)

		emit(deps.Bus, stepFinishEvent(step, runbus.FinishToolCalls, stepCalls, stepResults))
		emit(deps.Bus, runbus.AgentEvent{Type: runbus.EventStatus, Status: runbus.StatusThinking})
	}

	// The model still wanted tools when the step budget ran out.
	return &EngineResult{
		FinishReason: runbus.FinishToolCalls,
		ToolCalls:    allCalls,
		ToolResults:  allResults,
	}, nil
}

func serializeToolResult(res *toolexecutor.ToolResult) string {
	if s, ok := res.Result.(string); ok {
		return s
	}
	data, err := json.Marshal(res.Result)
	if err != nil {
		return fmt.Sprintf("%v", res.Result)
	}
	return string(data)
}

func cancelledResult(calls []runbus.ToolCall, results []runbus.ToolResult) *EngineResult {
	return &EngineResult{FinishReason: runbus.FinishCancelled, ToolCalls: calls, ToolResults: results}
}

func stepFinishEvent(index int, reason runbus.FinishReason, calls []runbus.ToolCall, results []runbus.ToolResult) runbus.AgentEvent {
	return runbus.AgentEvent{
		Type:         runbus.EventStepFinish,
		StepIndex:    index,
		FinishReason: reason,
		ToolCalls:    calls,
		ToolResults:  results,
	}
}

func emit(bus *runbus.Bus, ev runbus.AgentEvent) {
	if bus == nil {
		return
	}
	ev.At = time.Now()
	bus.Emit(ev)
}

func asToolCancelled(err error, target **runcontrol.ToolCancelled) bool {
	tc, ok := err.(*runcontrol.ToolCancelled)
	if ok {
		*target = tc
	}
	return ok
}

// newCallID generates an id for a call the backend emitted without one, so
// the call/result pair still carries a stable shared id. The loop assigns it
// before dispatch, which is why no hash-indexed pending queue is needed to
// rejoin results afterwards.
func newCallID() string {
	return "call_" + gonanoid.Must(12)
}
