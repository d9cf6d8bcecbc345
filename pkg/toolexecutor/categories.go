package toolexecutor

// capabilityIndex indexes each ToolDefinition's free-form capability tags
// (e.g. "fs:write", "memory:write") so capability-based policies can decide
// without scanning the full definition list on every call.
type capabilityIndex struct {
	byTool map[string][]string
}

func newCapabilityIndex(defs []ToolDefinition) *capabilityIndex {
	idx := &capabilityIndex{byTool: make(map[string][]string, len(defs))}
	for _, d := range defs {
		idx.byTool[d.Name] = d.Capabilities
	}
	return idx
}

// Has reports whether toolName declares capability.
func (idx *capabilityIndex) Has(toolName, capability string) bool {
	for _, c := range idx.byTool[toolName] {
		if c == capability {
			return true
		}
	}
	return false
}

// HasAny reports whether toolName declares any of capabilities.
func (idx *capabilityIndex) HasAny(toolName string, capabilities []string) bool {
	for _, c := range capabilities {
		if idx.Has(toolName, c) {
			return true
		}
	}
	return false
}

// Capabilities returns the capability tags declared for toolName.
func (idx *capabilityIndex) Capabilities(toolName string) []string {
	return idx.byTool[toolName]
}
