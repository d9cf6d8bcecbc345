package toolexecutor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/ranya/internal/observability"
	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/runcontrol"
)

// ToolDenied is raised when a call is refused before it ever reaches a
// handler: an unknown tool, a deny decision, or a rejected approval.
type ToolDenied struct {
	ToolName string
	Reason   string
}

func (e *ToolDenied) Error() string {
	return fmt.Sprintf("tool %q denied: %s", e.ToolName, e.Reason)
}

// Executor joins a tool definition list, a Policy, a run Controller, and an
// Event Bus, and dispatches provider-issued calls through guard -> policy ->
// (approval) -> invoke -> event emission.
type Executor struct {
	mu      sync.RWMutex
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	caps    *capabilityIndex

	policy         Policy
	controller     *runcontrol.Controller
	bus            *runbus.Bus
	execCtx        *ToolExecutionContext
	emitToolEvents bool
	mapping        *NameMapping

	approvalTimeout time.Duration
}

// Config bundles Executor's construction-time dependencies.
type Config struct {
	Tools          []ToolDefinition
	Policy         Policy
	Controller     *runcontrol.Controller
	Bus            *runbus.Bus
	ExecContext    *ToolExecutionContext
	EmitToolEvents bool // false when the engine natively emits call/result pairs
	Mapping        *NameMapping
}

// New builds an Executor from cfg. Returns an error if any tool definition
// is malformed or its InputSchema fails to compile.
func New(cfg Config) (*Executor, error) {
	policy := cfg.Policy
	if policy == nil {
		policy = AllowAllPolicy{}
	}

	e := &Executor{
		tools:           make(map[string]*ToolDefinition, len(cfg.Tools)),
		schemas:         make(map[string]*gojsonschema.Schema, len(cfg.Tools)),
		caps:            newCapabilityIndex(cfg.Tools),
		policy:          policy,
		controller:      cfg.Controller,
		bus:             cfg.Bus,
		execCtx:         cfg.ExecContext,
		emitToolEvents:  cfg.EmitToolEvents,
		mapping:         cfg.Mapping,
		approvalTimeout: 0,
	}

	for i := range cfg.Tools {
		def := cfg.Tools[i]
		if def.Name == "" {
			return nil, fmt.Errorf("toolexecutor: tool at index %d has an empty name", i)
		}
		if def.Execute == nil {
			return nil, fmt.Errorf("toolexecutor: tool %q has no handler", def.Name)
		}
		if _, exists := e.tools[def.Name]; exists {
			return nil, fmt.Errorf("toolexecutor: duplicate tool name %q", def.Name)
		}

		schema, err := compileSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("toolexecutor: tool %q: %w", def.Name, err)
		}

		e.tools[def.Name] = &def
		e.schemas[def.Name] = schema
	}

	log.Info().Int("tools", len(e.tools)).Str("policy", policy.Name()).Msg("toolexecutor: executor initialised")
	return e, nil
}

func compileSchema(inputSchema map[string]interface{}) (*gojsonschema.Schema, error) {
	schema := inputSchema
	if schema == nil {
		schema = map[string]interface{}{"type": "object"}
	}
	loader := gojsonschema.NewGoLoader(schema)
	compiled, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to compile input schema: %w", err)
	}
	return compiled, nil
}

// ListTools returns every registered tool's provider-facing definition,
// suitable for handing to a Provider Engine.
func (e *Executor) ListTools() []ToolDefinition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(e.tools))
	for _, d := range e.tools {
		out = append(out, *d)
	}
	return out
}

// ExecuteFromProvider runs the full dispatch algorithm for one
// provider-issued call and returns the ToolResult to feed back into the
// conversation. It never returns a Go error for ordinary denials or
// execution failures — both are folded into the returned ToolResult/err
// pair per the documented contract: denials return (nil, *ToolDenied);
// anything that actually ran, succeeding or not, returns a ToolResult.
func (e *Executor) ExecuteFromProvider(ctx context.Context, toolName string, args map[string]interface{}, callID string) (*ToolResult, error) {
	e.mu.RLock()
	def, ok := e.tools[toolName]
	schema := e.schemas[toolName]
	e.mu.RUnlock()

	if !ok {
		return nil, &ToolDenied{ToolName: toolName, Reason: "unknown tool"}
	}

	if e.controller != nil {
		if err := e.controller.GuardToolExecution(ctx, toolName); err != nil {
			return nil, err
		}
	}

	if err := validateArgs(schema, args); err != nil {
		return nil, &ToolDenied{ToolName: toolName, Reason: fmt.Sprintf("invalid arguments: %v", err)}
	}

	decision := e.policy.Decide(toolName, args, e.caps)
	switch decision.Decision {
	case DecisionDeny:
		log.Warn().Str("tool", toolName).Str("policy", decision.Policy).Str("reason", decision.Reason).Msg("toolexecutor: denied")
		observability.RecordToolAudit(ctx, toolName, e.actor(), "denied", map[string]interface{}{"policy": decision.Policy, "reason": decision.Reason})
		return nil, &ToolDenied{ToolName: toolName, Reason: decision.Reason}

	case DecisionAsk:
		e.emit(runbus.AgentEvent{
			Type:   runbus.EventToolApprovalRequest,
			Call:   &runbus.ToolCall{ID: callID, ToolName: e.mapping.Original(toolName), Args: args},
			Reason: decision.Reason,
			Policy: decision.Policy,
		})
		if e.controller == nil {
			return nil, &ToolDenied{ToolName: toolName, Reason: "approval required but no controller is configured"}
		}
		approved, err := e.awaitApproval(ctx, callID)
		if err != nil {
			return nil, err
		}
		if !approved {
			return nil, &ToolDenied{ToolName: toolName, Reason: "user denied"}
		}

	case DecisionAllow:
		// continue

	default:
		return nil, &ToolDenied{ToolName: toolName, Reason: fmt.Sprintf("unknown policy decision %q", decision.Decision)}
	}

	// Egress events always carry the tool's original name; the provider-facing
	// (possibly sanitized) name never leaves the provider boundary.
	original := e.mapping.Original(toolName)

	if e.emitToolEvents {
		e.emit(runbus.AgentEvent{Type: runbus.EventToolCall, Call: &runbus.ToolCall{ID: callID, ToolName: original, Args: args}})
	}

	result := e.invoke(ctx, def, args)
	status := "success"
	if result.IsError {
		status = "failure"
	}
	observability.RecordToolAudit(ctx, toolName, e.actor(), status, nil)

	if e.emitToolEvents {
		e.emit(runbus.AgentEvent{
			Type:   runbus.EventToolResult,
			Result: &runbus.ToolResult{ID: callID, ToolName: original, Result: result.Result, IsError: result.IsError},
		})
	}

	return result, nil
}

// awaitApproval blocks on the controller's rendezvous channel for callID.
func (e *Executor) awaitApproval(ctx context.Context, callID string) (bool, error) {
	ch := e.controller.RequestApproval(callID)

	waitCtx := ctx
	var cancel context.CancelFunc
	if e.approvalTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, e.approvalTimeout)
		defer cancel()
	}

	select {
	case approved := <-ch:
		return approved, nil
	case <-e.controller.Signal():
		return false, &runcontrol.ToolCancelled{}
	case <-waitCtx.Done():
		return false, waitCtx.Err()
	}
}

// invoke calls the handler and converts any panic or error into an
// isError ToolResult rather than letting it propagate: a provider loop
// must always see a result to continue stably.
func (e *Executor) invoke(ctx context.Context, def *ToolDefinition, args map[string]interface{}) *ToolResult {
	start := time.Now()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		value, err := def.Execute(ctx, e.execCtx, args)
		done <- outcome{value: value, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	duration := time.Since(start)
	observability.RecordToolExecution(def.Name, duration, out.err == nil)
	if out.err != nil {
		log.Warn().Str("tool", def.Name).Dur("duration", duration).Err(out.err).Msg("toolexecutor: execution failed")
		return &ToolResult{Result: out.err.Error(), IsError: true}
	}

	log.Debug().Str("tool", def.Name).Dur("duration", duration).Msg("toolexecutor: executed")
	return &ToolResult{Result: out.value, IsError: false}
}

// actor identifies the run in audit records, when the execution context
// carries a run id.
func (e *Executor) actor() string {
	if e.execCtx == nil || e.execCtx.Metadata == nil {
		return ""
	}
	if runID, ok := e.execCtx.Metadata["run_id"].(string); ok {
		return runID
	}
	return ""
}

func (e *Executor) emit(ev runbus.AgentEvent) {
	if e.bus == nil {
		return
	}
	ev.At = time.Now()
	e.bus.Emit(ev)
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%v", msgs)
	}
	return nil
}
