// Package toolexecutor implements the Tool Name Policy and Tool Executor:
// the boundary between a provider's raw, schema-validated tool calls and the
// handlers that actually touch a workspace, the memory pool, or anything
// else a run is allowed to reach.
//
// Invariants:
//   - Provider-facing tool names are unique and match ^[A-Za-z0-9_-]{1,64}$.
//   - Parameters are schema-validated before a handler ever runs.
//   - A handler's panic or error becomes a ToolResult{IsError: true}; it
//     never propagates to the provider loop.
//   - Every execution passes through the run's Controller guard before and
//     (for "ask" decisions) during approval, so pause/cancel apply uniformly.
package toolexecutor
