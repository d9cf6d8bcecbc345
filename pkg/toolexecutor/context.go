package toolexecutor

import (
	"github.com/harun/ranya/pkg/memorypool"
	"github.com/harun/ranya/pkg/workspace"
)

// ToolExecutionContext is the per-run bundle a handler receives instead of
// a back-pointer to the executor or the run: a workspace port, a scoped
// memory handle, and free-form metadata (run id, agent id, step index).
// Passing a value rather than an interface keeps built-in and user tools on
// the same footing.
type ToolExecutionContext struct {
	Workspace workspace.Port
	Memory    *memorypool.Scope
	Metadata  map[string]interface{}
}
