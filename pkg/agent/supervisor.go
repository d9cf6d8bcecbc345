package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/ranya/internal/observability"
	"github.com/harun/ranya/internal/tracing"
	"github.com/harun/ranya/pkg/coretools"
	"github.com/harun/ranya/pkg/memorypool"
	"github.com/harun/ranya/pkg/memorytools"
	"github.com/harun/ranya/pkg/routing"
	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/runcontrol"
	"github.com/harun/ranya/pkg/toolexecutor"
	"github.com/harun/ranya/pkg/workspace"
)

// WorkspaceMode selects how a run's file effects are staged.
type WorkspaceMode string

const (
	// ModeLive applies effects directly, journaled per attempt for rollback.
	ModeLive WorkspaceMode = "live"
	// ModePreview buffers all effects in an overlay until CommitPreview.
	ModePreview WorkspaceMode = "preview"
)

// AuthProfile holds one provider's credentials. A provider is available iff
// a profile with a non-empty API key exists and an engine is registered.
type AuthProfile struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Priority int    `json:"priority"`
}

// EngineFactory builds a provider's engine from its credentials.
type EngineFactory func(apiKey string) Engine

// DefaultEngineFactories returns the built-in provider engines.
func DefaultEngineFactories() map[string]EngineFactory {
	return map[string]EngineFactory{
		"anthropic": func(key string) Engine { return NewAnthropicEngine(key) },
		"openai":    func(key string) Engine { return NewOpenAIEngine(key) },
		"gemini":    func(key string) Engine { return NewGeminiEngine(key) },
	}
}

// DefaultCatalog seeds a catalog with the models the built-in engines serve.
func DefaultCatalog() *routing.Catalog {
	caps := &routing.Capabilities{Streaming: true, Tools: true}
	ctx200k := 200000
	ctx128k := 128000
	return routing.NewCatalog(
		routing.ModelProfile{ProviderID: "anthropic", ModelID: "claude-opus-4", Classes: []routing.ModelClass{routing.ClassFrontier, routing.ClassLongContext}, LatencyRank: 3, CostRank: 4, MaxContextTokens: &ctx200k, Capabilities: caps},
		routing.ModelProfile{ProviderID: "anthropic", ModelID: "claude-sonnet-4", Classes: []routing.ModelClass{routing.ClassFrontier, routing.ClassFast, routing.ClassLongContext}, LatencyRank: 2, CostRank: 2, MaxContextTokens: &ctx200k, Capabilities: caps},
		routing.ModelProfile{ProviderID: "anthropic", ModelID: "claude-haiku-3-5", Classes: []routing.ModelClass{routing.ClassFast, routing.ClassCheap}, LatencyRank: 1, CostRank: 1, MaxContextTokens: &ctx200k, Capabilities: caps},
		routing.ModelProfile{ProviderID: "openai", ModelID: "gpt-4-turbo", Classes: []routing.ModelClass{routing.ClassFrontier, routing.ClassLongContext}, LatencyRank: 3, CostRank: 3, MaxContextTokens: &ctx128k, Capabilities: caps},
		routing.ModelProfile{ProviderID: "openai", ModelID: "gpt-4o-mini", Classes: []routing.ModelClass{routing.ClassFast, routing.ClassCheap}, LatencyRank: 1, CostRank: 1, MaxContextTokens: &ctx128k, Capabilities: caps},
	)
}

// SupervisorConfig bundles a Supervisor's construction-time dependencies.
type SupervisorConfig struct {
	AuthProfiles []AuthProfile
	Catalog      *routing.Catalog
	Breaker      *routing.Breaker
	ConfigStore  routing.ConfigStore
	MemoryPool   *memorypool.Pool
	Engines      map[string]EngineFactory
	Logger       zerolog.Logger
}

// Supervisor owns runs: it builds tools, plans candidates through the
// Router, executes attempts with failover and transactional workspace
// rollback, and remaps tool names on egress.
type Supervisor struct {
	catalog  *routing.Catalog
	breaker  *routing.PersistedBreaker
	pool     *memorypool.Pool
	engines  map[string]EngineFactory
	profiles map[string]AuthProfile
	logger   zerolog.Logger

	loadOnce sync.Once
}

// NewSupervisor creates a Supervisor from cfg. At least one auth profile is
// required; every other dependency has a default.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	observability.EnsureRegistered()

	if len(cfg.AuthProfiles) == 0 {
		return nil, &UnifiedAgentError{Message: "at least one auth profile is required"}
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = routing.NewBreaker(routing.DefaultBreakerConfig())
	}
	pool := cfg.MemoryPool
	if pool == nil {
		pool = memorypool.New(memorypool.DefaultConfig())
	}
	engines := cfg.Engines
	if engines == nil {
		engines = DefaultEngineFactories()
	}

	profiles := make(map[string]AuthProfile, len(cfg.AuthProfiles))
	for _, p := range cfg.AuthProfiles {
		if existing, ok := profiles[p.Provider]; ok && existing.Priority <= p.Priority {
			continue
		}
		profiles[p.Provider] = p
	}

	return &Supervisor{
		catalog:  catalog,
		breaker:  routing.NewPersistedBreaker(breaker, cfg.ConfigStore),
		pool:     pool,
		engines:  engines,
		profiles: profiles,
		logger:   cfg.Logger,
	}, nil
}

// RunHooks are the caller's best-effort event callbacks, wired as Bus
// subscribers before the run starts.
type RunHooks struct {
	OnEvent         func(ev runbus.AgentEvent)
	OnThinkingDelta func(text string)
	OnTextDelta     func(text string)
	SessionUpdates  *ToolCallAggregator
}

// RunOptions configures one run.
type RunOptions struct {
	Prompt   string
	Messages []Message
	System   string

	Provider    string
	Model       string
	Preference  routing.RoutePreference
	Constraints routing.RouteConstraints

	Temperature float64
	MaxTokens   int
	MaxSteps    int

	Workspace workspace.Port
	Mode      WorkspaceMode

	// ExternalWatchRoot, when set on a live-mode run, watches that directory
	// for changes made outside the run's own tool calls and surfaces them as
	// file_change events with Preview=false.
	ExternalWatchRoot string

	Policy     toolexecutor.Policy
	Tools      []toolexecutor.ToolDefinition
	Retriever  memorytools.Retriever
	NameMode   toolexecutor.NameMode
	MemoryScope string

	Metadata map[string]interface{}
	Hooks    RunHooks
}

// Result is a run's final outcome, with tool names remapped to originals.
type Result struct {
	RunID        string
	Provider     string
	Model        string
	Text         string
	FinishReason runbus.FinishReason
	ToolCalls    []runbus.ToolCall
	ToolResults  []runbus.ToolResult
	Usage        *runbus.Usage
}

// Run is one live invocation: an event stream, a result future, and the
// control surface (pause/resume/stop/cancel, approvals, preview commit).
type Run struct {
	ID string

	controller *runcontrol.Controller
	bus        *runbus.Bus
	preview    *workspace.Preview
	events     <-chan runbus.AgentEvent

	// started tracks run_start emission; only touched from the failover
	// goroutine, so the bracketing invariant holds even for runs that fail
	// before planning.
	started bool

	done   chan struct{}
	result *Result
	err    error
}

// Events returns a channel delivering this run's events in emission order,
// subscribed before the first event fires. The channel closes once the run
// finishes. Additional consumers can Subscribe on the bus directly.
func (r *Run) Events() <-chan runbus.AgentEvent {
	return r.events
}

// Result blocks until the run finishes and returns its outcome.
func (r *Run) Result(ctx context.Context) (*Result, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pause blocks new tool executions until Resume.
func (r *Run) Pause() { r.controller.Pause() }

// Resume releases executions blocked by Pause.
func (r *Run) Resume() { r.controller.Resume() }

// Stop requests a graceful exit at the next step boundary.
func (r *Run) Stop() { r.controller.Stop() }

// Cancel aborts the run immediately, denying pending approvals.
func (r *Run) Cancel(reason error) { r.controller.Cancel(reason) }

// ApproveToolCall delivers the decision for a pending tool_approval_request.
func (r *Run) ApproveToolCall(callID string, allowed bool) {
	r.controller.ResolveApproval(callID, allowed)
}

// CommitPreview applies the preview overlay to the base workspace. Only
// meaningful for runs started in ModePreview.
func (r *Run) CommitPreview() error {
	if r.preview == nil {
		return &UnifiedAgentError{Message: "run is not in preview mode"}
	}
	return r.preview.Commit()
}

// DiscardPreview drops the preview overlay without touching the base.
func (r *Run) DiscardPreview() error {
	if r.preview == nil {
		return &UnifiedAgentError{Message: "run is not in preview mode"}
	}
	r.preview.Discard()
	return nil
}

// Run starts a run and returns its handle immediately; the attempt loop
// continues on its own goroutine until a terminal event.
func (s *Supervisor) Run(opts RunOptions) (*Run, error) {
	if opts.Prompt == "" && len(opts.Messages) == 0 {
		return nil, &UnifiedAgentError{Message: "a prompt or message list is required"}
	}

	runID := uuid.New().String()
	run := &Run{
		ID:         runID,
		controller: runcontrol.New(runID),
		bus:        runbus.New(),
		done:       make(chan struct{}),
	}
	if opts.Mode == ModePreview && opts.Workspace != nil {
		run.preview = workspace.NewPreview(opts.Workspace)
	}
	run.events = run.bus.Iter()

	s.subscribeHooks(run, opts.Hooks)

	go s.runWithFailover(run, opts)
	return run, nil
}

func (s *Supervisor) subscribeHooks(run *Run, hooks RunHooks) {
	if hooks.OnEvent != nil {
		run.bus.Subscribe(hooks.OnEvent)
	}
	if hooks.OnThinkingDelta != nil || hooks.OnTextDelta != nil {
		run.bus.Subscribe(func(ev runbus.AgentEvent) {
			switch ev.Type {
			case runbus.EventThinkingDelta:
				if hooks.OnThinkingDelta != nil {
					hooks.OnThinkingDelta(ev.Text)
				}
			case runbus.EventTextDelta:
				if hooks.OnTextDelta != nil {
					hooks.OnTextDelta(ev.Text)
				}
			}
		})
	}
	if hooks.SessionUpdates != nil {
		run.bus.Subscribe(hooks.SessionUpdates.Handle)
	}
}

// runWithFailover is the attempt loop of one run: assemble tools, apply the
// name policy, plan candidates, and try each in order with per-attempt
// journal rollback (live) or a shared preview overlay.
func (s *Supervisor) runWithFailover(run *Run, opts RunOptions) {
	ctx := run.controller.Context()
	ctx = tracing.WithRunID(ctx, run.ID)
	ctx, span := tracing.StartSpan(ctx, "ranya.agent", "agent.run",
		attribute.String("run_id", run.ID))
	defer span.End()

	logger := s.logger.With().Str("run_id", run.ID).Logger()
	start := time.Now()

	if opts.ExternalWatchRoot != "" && run.preview == nil {
		watcher, werr := workspace.WatchExternalChanges(opts.ExternalWatchRoot, func(change workspace.ExternalChange) {
			emit(run.bus, runbus.AgentEvent{
				Type: runbus.EventFileChange,
				Change: &runbus.FileChange{
					Kind: runbus.FileChangeKind(change.Kind),
					Path: change.Path,
				},
			})
		})
		if werr != nil {
			logger.Warn().Err(werr).Msg("agent: external watch unavailable")
		} else {
			defer func() { _ = watcher.Stop() }()
		}
	}

	rawTools := s.assembleTools(run, opts)
	providerTools, mapping, err := toolexecutor.ApplyNamePolicy(rawTools, opts.NameMode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.finishWithError(run, &UnifiedAgentError{Message: "tool name policy rejected the run", Cause: err})
		return
	}

	system, conv := normalizeMessages(opts)

	availability := s.availability()
	s.loadOnce.Do(func() {
		if err := s.breaker.Load(ctx); err != nil {
			logger.Warn().Err(err).Msg("agent: failed to load breaker state")
		}
	})

	plan := s.plan(ctx, availability, opts)
	if len(plan) == 0 {
		s.finishWithError(run, &UnifiedAgentError{Message: "no provider candidates available"})
		return
	}

	refs := make([]string, len(plan))
	for i, c := range plan {
		refs[i] = c.Ref()
	}
	logger.Info().Strs("candidates", refs).Msg("agent: run planned")

	emit(run.bus, runbus.AgentEvent{
		Type:      runbus.EventRunStart,
		RunID:     run.ID,
		Provider:  plan[0].Provider,
		Model:     plan[0].Model,
		StartedAt: start,
	})
	run.started = true
	emit(run.bus, runbus.AgentEvent{
		Type:   runbus.EventStatus,
		Status: runbus.StatusInitialising,
		Detail: fmt.Sprintf("candidates: %v", refs),
	})

	var lastErr error

	for _, candidate := range plan {
		if run.controller.Cancelled() {
			break
		}
		ref := candidate.Ref()
		attemptStart := time.Now()

		result, attemptErr := s.attempt(ctx, run, opts, candidate, providerTools, mapping, system, conv)
		if attemptErr == nil {
			if result.FinishReason != runbus.FinishCancelled {
				s.breaker.RecordSuccessAndPersist(ctx, ref)
			}
			observability.RecordRun(candidate.Provider, time.Since(attemptStart), string(result.FinishReason))
			s.finish(run, result)
			return
		}

		lastErr = attemptErr
		s.breaker.RecordFailureAndPersist(ctx, ref)
		observability.RecordRun(candidate.Provider, time.Since(attemptStart), "error")
		logger.Warn().Str("ref", ref).Err(attemptErr).Msg("agent: candidate failed, advancing")

		emit(run.bus, runbus.AgentEvent{Type: runbus.EventError, Err: attemptErr})
		emit(run.bus, runbus.AgentEvent{
			Type:   runbus.EventStatus,
			Status: runbus.StatusError,
			Detail: fmt.Sprintf("candidate %s failed, advancing", ref),
		})
	}

	if run.controller.Cancelled() {
		s.finish(run, &Result{RunID: run.ID, FinishReason: runbus.FinishCancelled})
		return
	}

	err = &UnifiedAgentError{Message: "all provider candidates failed", Cause: lastErr}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.finishWithError(run, err)
}

// attempt runs one candidate: wrap the workspace, build the executor, run
// the engine, and on failure unwind the attempt's file effects.
func (s *Supervisor) attempt(
	ctx context.Context,
	run *Run,
	opts RunOptions,
	candidate routing.RouteCandidate,
	providerTools []toolexecutor.ToolDefinition,
	mapping *toolexecutor.NameMapping,
	system string,
	conv []Message,
) (*Result, error) {
	ctx = tracing.PropagateToAttempt(ctx, candidate.Ref())
	ctx, span := tracing.StartSpan(ctx, "ranya.agent", "agent.execute_with_provider",
		attribute.String("provider", candidate.Provider),
		attribute.String("model", candidate.Model))
	defer span.End()

	var port workspace.Port
	var journal *workspace.Journal
	switch {
	case run.preview != nil:
		port = run.preview
	case opts.Workspace != nil:
		journal = workspace.NewJournal(opts.Workspace)
		port = journal
	}

	scope := opts.MemoryScope
	if scope == "" {
		scope = "shared"
	}

	execCtx := &toolexecutor.ToolExecutionContext{
		Workspace: port,
		Memory:    s.pool.Scope(scope),
		Metadata: map[string]interface{}{
			"run_id":   run.ID,
			"provider": candidate.Provider,
			"model":    candidate.Model,
		},
	}

	executor, err := toolexecutor.New(toolexecutor.Config{
		Tools:          providerTools,
		Policy:         opts.Policy,
		Controller:     run.controller,
		Bus:            run.bus,
		ExecContext:    execCtx,
		EmitToolEvents: true,
		Mapping:        mapping,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	engine, err := s.engineFor(candidate.Provider)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	req := EngineRequest{
		RunID:       run.ID,
		Provider:    candidate.Provider,
		Model:       candidate.Model,
		System:      system,
		Messages:    conv,
		Tools:       providerTools,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		MaxSteps:    opts.MaxSteps,
		Metadata:    opts.Metadata,
	}
	deps := EngineDeps{
		Controller: run.controller,
		Executor:   executor,
		Bus:        run.bus,
		Mapping:    mapping,
	}

	res, err := engine.Run(ctx, req, deps)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if journal != nil {
			journal.Rollback()
		}
		if run.preview != nil {
			run.preview.Discard()
		}
		return nil, err
	}

	if journal != nil {
		journal.Commit()
	}

	reason := res.FinishReason
	if run.controller.Cancelled() {
		reason = runbus.FinishCancelled
	}

	return &Result{
		RunID:        run.ID,
		Provider:     candidate.Provider,
		Model:        candidate.Model,
		Text:         res.Text,
		FinishReason: reason,
		ToolCalls:    res.ToolCalls,
		ToolResults:  res.ToolResults,
		Usage:        res.Usage,
	}, nil
}

func (s *Supervisor) assembleTools(run *Run, opts RunOptions) []toolexecutor.ToolDefinition {
	var tools []toolexecutor.ToolDefinition
	if opts.Workspace != nil {
		tools = append(tools, coretools.FileSystemTools(run.bus, run.preview != nil)...)
	}
	tools = append(tools, memorytools.MemoryTools(run.bus)...)
	if opts.Retriever != nil {
		tools = append(tools, memorytools.RetrievalTools(run.bus, opts.Retriever)...)
	}
	return append(tools, opts.Tools...)
}

// normalizeMessages builds the engine conversation: explicit messages win
// over a bare prompt, and embedded system roles are hoisted into the system
// string (options.System takes precedence).
func normalizeMessages(opts RunOptions) (string, []Message) {
	system := opts.System
	var conv []Message

	if len(opts.Messages) > 0 {
		for _, m := range opts.Messages {
			if m.Role == "system" {
				if system == "" {
					system = m.Content
				}
				continue
			}
			conv = append(conv, m)
		}
	} else {
		conv = []Message{{Role: "user", Content: opts.Prompt}}
	}
	return system, conv
}

func (s *Supervisor) availability() map[string]bool {
	out := make(map[string]bool, len(s.profiles))
	for provider, profile := range s.profiles {
		_, hasEngine := s.engines[provider]
		out[provider] = hasEngine && profile.APIKey != ""
	}
	return out
}

func (s *Supervisor) plan(ctx context.Context, availability map[string]bool, opts RunOptions) routing.RoutePlan {
	_, span := tracing.StartSpan(ctx, "ranya.routing", "routing.plan")
	defer span.End()

	pref := opts.Preference
	if opts.Provider != "" {
		pref.Provider = opts.Provider
	}
	if opts.Model != "" {
		pref.Model = opts.Model
	}

	now := time.Now()
	score := func(c routing.RouteCandidate) int {
		base := 0
		if c.Profile != nil {
			base = c.Profile.LatencyRank*10 + c.Profile.CostRank
		}
		return base + s.breaker.GetPenalty(c.Ref(), now)
	}
	return routing.Plan(s.catalog, availability, pref, opts.Constraints, score)
}

func (s *Supervisor) engineFor(provider string) (Engine, error) {
	factory, ok := s.engines[provider]
	if !ok {
		return nil, &ProviderUnavailable{Provider: provider, Reason: "no engine registered"}
	}
	profile, ok := s.profiles[provider]
	if !ok || profile.APIKey == "" {
		return nil, &ProviderUnavailable{Provider: provider, Reason: "no credentials configured"}
	}
	return factory(profile.APIKey), nil
}

func (s *Supervisor) finish(run *Run, result *Result) {
	emit(run.bus, runbus.AgentEvent{
		Type:         runbus.EventRunFinish,
		RunID:        run.ID,
		FinishReason: result.FinishReason,
	})
	run.bus.Close(nil)
	run.result = result
	close(run.done)
}

func (s *Supervisor) finishWithError(run *Run, err error) {
	if !run.started {
		emit(run.bus, runbus.AgentEvent{Type: runbus.EventRunStart, RunID: run.ID, StartedAt: time.Now()})
		run.started = true
	}
	emit(run.bus, runbus.AgentEvent{Type: runbus.EventError, Err: err})
	emit(run.bus, runbus.AgentEvent{
		Type:         runbus.EventRunFinish,
		RunID:        run.ID,
		FinishReason: runbus.FinishError,
	})
	run.bus.Close(err)
	run.err = err
	close(run.done)
}
