// Package coretools provides the built-in filesystem tools every run can
// expose to its provider: read/write/delete/rename plus a unified-diff patch
// applier. All file effects go through the run's workspace Port (journaled
// or previewed by the supervisor), and every mutation emits a file_change
// event on the run's Bus at mutation time.
package coretools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/toolexecutor"
)

const defaultReadLimit = 200000

// FileSystemTools returns the built-in FS tool definitions, bound to the
// run's bus and preview flag.
func FileSystemTools(bus *runbus.Bus, preview bool) []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		readFileTool(),
		writeFileTool(bus, preview),
		deletePathTool(bus, preview),
		renamePathTool(bus, preview),
		applyPatchTool(bus, preview),
	}
}

func emitFileChange(bus *runbus.Bus, change runbus.FileChange) {
	if bus == nil {
		return
	}
	bus.Emit(runbus.AgentEvent{Type: runbus.EventFileChange, At: time.Now(), Change: &change})
}

func readFileTool() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        "fs_read_file",
		Description: "Read a file from the workspace as UTF-8 text.",
		Capabilities: []string{"fs:read"},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":     map[string]interface{}{"type": "string", "description": "Workspace-relative file path"},
				"maxBytes": map[string]interface{}{"type": "number", "description": "Maximum bytes to read (default 200000)"},
			},
			"required": []interface{}{"path"},
		},
		Execute: func(ctx context.Context, execCtx *toolexecutor.ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			path, err := requireString(args, "path")
			if err != nil {
				return nil, err
			}
			data, err := execCtx.Workspace.ReadFile(path)
			if err != nil {
				return nil, err
			}
			maxBytes := defaultReadLimit
			if raw, ok := args["maxBytes"].(float64); ok && raw > 0 {
				maxBytes = int(raw)
			}
			if len(data) > maxBytes {
				data = data[:maxBytes]
			}
			return string(data), nil
		},
	}
}

func writeFileTool(bus *runbus.Bus, preview bool) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        "fs_write_file",
		Description: "Write content to a file in the workspace, creating parent directories.",
		Capabilities: []string{"fs:write"},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":    map[string]interface{}{"type": "string", "description": "Workspace-relative file path"},
				"content": map[string]interface{}{"type": "string", "description": "File content"},
			},
			"required": []interface{}{"path", "content"},
		},
		Execute: func(ctx context.Context, execCtx *toolexecutor.ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			path, err := requireString(args, "path")
			if err != nil {
				return nil, err
			}
			content, _ := args["content"].(string)

			kind := runbus.FileChangeCreate
			if st, _ := execCtx.Workspace.Stat(path); st != nil {
				kind = runbus.FileChangeUpdate
			}
			if err := execCtx.Workspace.WriteFile(path, []byte(content)); err != nil {
				return nil, err
			}
			emitFileChange(bus, runbus.FileChange{Kind: kind, Path: path, Preview: preview})
			return map[string]interface{}{"ok": true}, nil
		},
	}
}

func deletePathTool(bus *runbus.Bus, preview bool) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        "fs_delete_path",
		Description: "Delete a file or directory (recursively) from the workspace.",
		Capabilities: []string{"fs:delete"},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"type": "string", "description": "Workspace-relative path"},
			},
			"required": []interface{}{"path"},
		},
		Execute: func(ctx context.Context, execCtx *toolexecutor.ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			path, err := requireString(args, "path")
			if err != nil {
				return nil, err
			}
			if err := execCtx.Workspace.DeletePath(path); err != nil {
				return nil, err
			}
			emitFileChange(bus, runbus.FileChange{Kind: runbus.FileChangeDelete, Path: path, Preview: preview})
			return map[string]interface{}{"ok": true}, nil
		},
	}
}

func renamePathTool(bus *runbus.Bus, preview bool) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        "fs_rename_path",
		Description: "Move or rename a path within the workspace.",
		Capabilities: []string{"fs:rename"},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fromPath": map[string]interface{}{"type": "string", "description": "Current workspace-relative path"},
				"toPath":   map[string]interface{}{"type": "string", "description": "Destination workspace-relative path"},
			},
			"required": []interface{}{"fromPath", "toPath"},
		},
		Execute: func(ctx context.Context, execCtx *toolexecutor.ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			from, err := requireString(args, "fromPath")
			if err != nil {
				return nil, err
			}
			to, err := requireString(args, "toPath")
			if err != nil {
				return nil, err
			}
			if err := execCtx.Workspace.RenamePath(from, to); err != nil {
				return nil, err
			}
			emitFileChange(bus, runbus.FileChange{Kind: runbus.FileChangeRename, FromPath: from, ToPath: to, Preview: preview})
			return map[string]interface{}{"ok": true}, nil
		},
	}
}

func applyPatchTool(bus *runbus.Bus, preview bool) toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        "fs_apply_patch",
		Description: "Apply a unified diff patch to workspace files.",
		Capabilities: []string{"fs:write"},
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"patch":       map[string]interface{}{"type": "string", "description": "Unified diff patch text"},
				"incremental": map[string]interface{}{"type": "boolean", "description": "Write after each hunk and emit patch_hunk events"},
			},
			"required": []interface{}{"patch"},
		},
		Execute: func(ctx context.Context, execCtx *toolexecutor.ToolExecutionContext, args map[string]interface{}) (interface{}, error) {
			patchText, err := requireString(args, "patch")
			if err != nil {
				return nil, err
			}
			incremental, _ := args["incremental"].(bool)

			patches, err := parseUnifiedPatch(patchText)
			if err != nil {
				return nil, err
			}
			if len(patches) == 0 {
				return nil, fmt.Errorf("patch contains no file sections")
			}

			results := make([]map[string]interface{}, 0, len(patches))
			for _, patch := range patches {
				applied, err := applyFilePatch(execCtx.Workspace, bus, preview, patch, incremental)
				if err != nil {
					return nil, err
				}
				results = append(results, map[string]interface{}{
					"path":         patch.path,
					"hunksApplied": applied,
				})
			}
			return map[string]interface{}{"ok": true, "results": results}, nil
		},
	}
}

func requireString(args map[string]interface{}, key string) (string, error) {
	value, _ := args[key].(string)
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return value, nil
}
