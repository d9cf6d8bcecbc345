// Package memorytools provides the built-in memory and retrieval tools:
// memory_get/memory_set over the run's scoped view of the Shared Memory
// Pool, and retrieve_context over a caller-supplied Retriever. Each
// operation emits its corresponding event on the run's Bus.
package memorytools

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/toolexecutor"
)

// Retriever is the pluggable context-retrieval port behind retrieve_context.
// No concrete embedding or vector-index implementation ships in this module.
type Retriever interface {
	Query(ctx context.Context, query string, topK int) ([]runbus.RetrievalResult, error)
}

const defaultTopK = 5

// MemoryTools returns the memory_get and memory_set definitions, bound to
// the run's bus.
func MemoryTools(bus *runbus.Bus) []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		memoryGetTool(bus),
		memorySetTool(bus),
	}
}

// RetrievalTools returns the retrieve_context definition over retriever,
// bound to the run's bus.
func RetrievalTools(bus *runbus.Bus, retriever Retriever) []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{retrieveContextTool(bus, retriever)}
}

func emitEvent(bus *runbus.Bus, ev runbus.AgentEvent) {
	if bus == nil {
		return
	}
	ev.At = time.Now()
	bus.Emit(ev)
}

func memoryGetTool(bus *runbus.Bus) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:         "memory_get",
		Description:  "Read a value from shared memory by key.",
		Capabilities: []string{"memory:read"},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"key": map[string]interface{}{"type": "string", "description": "Memory key"},
			},
			"required": []interface{}{"key"},
		},
		Execute: func(ctx context.Context, execCtx *toolexecutor.ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			key, err := requireString(args, "key")
			if err != nil {
				return nil, err
			}
			value, ok := execCtx.Memory.KVGet(key)
			if !ok {
				value = nil
			}
			emitEvent(bus, runbus.AgentEvent{Type: runbus.EventMemoryRead, Key: key, Value: value})
			return map[string]interface{}{"key": key, "value": value, "found": ok}, nil
		},
	}
}

func memorySetTool(bus *runbus.Bus) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:         "memory_set",
		Description:  "Store a value in shared memory under a key.",
		Capabilities: []string{"memory:write"},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"key":   map[string]interface{}{"type": "string", "description": "Memory key"},
				"value": map[string]interface{}{"description": "Value to store"},
			},
			"required": []interface{}{"key"},
		},
		Execute: func(ctx context.Context, execCtx *toolexecutor.ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			key, err := requireString(args, "key")
			if err != nil {
				return nil, err
			}
			value := args["value"]
			execCtx.Memory.KVSet(key, value)
			emitEvent(bus, runbus.AgentEvent{Type: runbus.EventMemoryWrite, Key: key, Value: value})
			return map[string]interface{}{"ok": true}, nil
		},
	}
}

func retrieveContextTool(bus *runbus.Bus, retriever Retriever) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:         "retrieve_context",
		Description:  "Retrieve relevant context snippets for a query.",
		Capabilities: []string{"retrieval:read"},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string", "description": "Search query"},
				"topK":  map[string]interface{}{"type": "number", "description": "Maximum results (default 5)"},
			},
			"required": []interface{}{"query"},
		},
		Execute: func(ctx context.Context, execCtx *toolexecutor.ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			query, err := requireString(args, "query")
			if err != nil {
				return nil, err
			}
			topK := defaultTopK
			if raw, ok := args["topK"].(float64); ok && raw > 0 {
				topK = int(raw)
			}

			emitEvent(bus, runbus.AgentEvent{Type: runbus.EventRetrievalQuery, Query: query, TopK: topK})

			results, err := retriever.Query(ctx, query, topK)
			if err != nil {
				return nil, err
			}
			emitEvent(bus, runbus.AgentEvent{Type: runbus.EventRetrievalResults, Query: query, TopK: topK, Results: results})
			return results, nil
		},
	}
}

func requireString(args map[string]interface{}, key string) (string, error) {
	value, _ := args[key].(string)
	if value == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return value, nil
}
