package toolexecutor

import "context"

// ToolHandler is the function a ToolDefinition invokes once a call has
// cleared policy and approval. args has already been schema-validated
// against InputSchema.
type ToolHandler func(ctx context.Context, execCtx *ToolExecutionContext, args map[string]interface{}) (interface{}, error)

// ToolDefinition is a single tool a run exposes to the provider: name,
// description, input schema, free-form capability tags used by
// capability-based policies, and a handler.
type ToolDefinition struct {
	Name         string
	Description  string
	InputSchema  map[string]interface{}
	Capabilities []string
	Execute      ToolHandler
}

// ToolResult is the outcome the executor hands back to the provider loop.
// A failed handler is folded into IsError rather than returned as a Go
// error, so the caller always has a result to feed back into the
// conversation.
type ToolResult struct {
	Result  interface{}
	IsError bool
}
