// Package runbus implements the run's Event Bus: an ordered, multi-consumer
// broadcast of AgentEvents with best-effort synchronous hooks and a
// channel-based iterator per subscriber. Events emitted after Close are
// dropped; iterators complete once Close is observed and any buffered
// events are drained.
package runbus

import "time"

// EventType is the discriminant of the AgentEvent tagged union.
type EventType string

const (
	EventRunStart            EventType = "run_start"
	EventStatus              EventType = "status"
	EventThinkingDelta       EventType = "thinking_delta"
	EventTextDelta           EventType = "text_delta"
	EventToolCall            EventType = "tool_call"
	EventToolResult          EventType = "tool_result"
	EventToolApprovalRequest EventType = "tool_approval_request"
	EventFileChange          EventType = "file_change"
	EventMemoryRead          EventType = "memory_read"
	EventMemoryWrite         EventType = "memory_write"
	EventRetrievalQuery      EventType = "retrieval_query"
	EventRetrievalResults    EventType = "retrieval_results"
	EventStepFinish          EventType = "step_finish"
	EventUsage               EventType = "usage"
	EventError               EventType = "error"
	EventRunFinish           EventType = "run_finish"
)

// RunStatus is the Run's lifecycle state.
type RunStatus string

const (
	StatusInitialising RunStatus = "initialising"
	StatusThinking     RunStatus = "thinking"
	StatusResponding   RunStatus = "responding"
	StatusActing       RunStatus = "acting"
	StatusPaused       RunStatus = "paused"
	StatusStopping     RunStatus = "stopping"
	StatusFinished     RunStatus = "finished"
	StatusError        RunStatus = "error"
)

// FinishReason is the run's terminal outcome, surfaced in run_finish and in
// the Supervisor's final Result.
type FinishReason string

const (
	FinishStop       FinishReason = "stop"
	FinishLength     FinishReason = "length"
	FinishToolCalls  FinishReason = "tool_calls"
	FinishCancelled  FinishReason = "cancelled"
	FinishError      FinishReason = "error"
	FinishOther      FinishReason = "other"
)

// FileChangeKind classifies one file_change event.
type FileChangeKind string

const (
	FileChangeCreate    FileChangeKind = "create"
	FileChangeUpdate    FileChangeKind = "update"
	FileChangeDelete    FileChangeKind = "delete"
	FileChangeRename    FileChangeKind = "rename"
	FileChangePatchHunk FileChangeKind = "patch_hunk"
)

// ToolCall is one invocation the model requested. IDs are assigned at call
// emission — engines generate one before dispatch when the backend doesn't
// supply a stable id — and calls and results are joined by id.
type ToolCall struct {
	ID       string                 `json:"id"`
	ToolName string                 `json:"toolName"`
	Args     map[string]interface{} `json:"args"`
}

// ToolResult is the outcome of one ToolCall, joined by ID.
type ToolResult struct {
	ID       string      `json:"id"`
	ToolName string      `json:"toolName"`
	Result   interface{} `json:"result"`
	IsError  bool        `json:"isError"`
}

// FileChange describes one file-effect observed during a tool's execution
// (or, for externally made changes, outside any tool call).
type FileChange struct {
	Kind     FileChangeKind `json:"kind"`
	Path     string         `json:"path,omitempty"`
	FromPath string         `json:"fromPath,omitempty"`
	ToPath   string         `json:"toPath,omitempty"`
	Preview  bool           `json:"preview"`

	// patch_hunk only
	HunkIndex int `json:"hunkIndex,omitempty"`
	HunkCount int `json:"hunkCount,omitempty"`
}

// RetrievalResult is one hit returned by a Retriever.
type RetrievalResult struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Score    *float64               `json:"score,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Usage reports token accounting for a step or run, when the backend exposes it.
type Usage struct {
	InputTokens  *int `json:"inputTokens,omitempty"`
	OutputTokens *int `json:"outputTokens,omitempty"`
	TotalTokens  *int `json:"totalTokens,omitempty"`
}

// Meta carries optional correlation fields uniformly attached to any event.
type Meta struct {
	AgentID  string `json:"agentId,omitempty"`
	StepID   string `json:"stepId,omitempty"`
	Workflow string `json:"workflow,omitempty"`
	Trace    string `json:"trace,omitempty"`
}

// AgentEvent is the tagged union every run emits on its Event Bus. Exactly
// one field group is populated per Type; consumers switch on Type rather
// than probing for non-nil fields.
type AgentEvent struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
	Meta *Meta     `json:"meta,omitempty"`

	// run_start
	RunID     string `json:"runId,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`

	// status
	Status RunStatus `json:"status,omitempty"`
	Detail string    `json:"detail,omitempty"`

	// thinking_delta / text_delta
	Text string `json:"text,omitempty"`

	// tool_call / tool_approval_request
	Call   *ToolCall `json:"call,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Policy string    `json:"policy,omitempty"`

	// tool_result
	Result *ToolResult `json:"result,omitempty"`

	// file_change
	Change *FileChange `json:"change,omitempty"`

	// memory_read / memory_write
	Key   string      `json:"key,omitempty"`
	Value interface{} `json:"value,omitempty"`

	// retrieval_query / retrieval_results
	Query   string            `json:"query,omitempty"`
	TopK    int               `json:"topK,omitempty"`
	Results []RetrievalResult `json:"results,omitempty"`

	// step_finish
	StepIndex    int          `json:"stepIndex,omitempty"`
	FinishReason FinishReason `json:"finishReason,omitempty"`
	ToolCalls    []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults  []ToolResult `json:"toolResults,omitempty"`

	// usage
	TokenUsage *Usage `json:"usage,omitempty"`

	// error
	Err error       `json:"-"`
	Raw interface{} `json:"raw,omitempty"`
}
