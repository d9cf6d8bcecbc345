package toolexecutor

import (
	"fmt"
	"regexp"
	"strings"
)

// NameMode selects how ToolDefinition names are made safe for a provider.
type NameMode string

const (
	// NameStrict refuses the run outright if any name is invalid or two
	// provider-facing names collide.
	NameStrict NameMode = "strict"
	// NameSanitize rewrites illegal characters and resolves collisions by
	// appending a numeric suffix.
	NameSanitize NameMode = "sanitize"
)

var validToolName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const maxToolNameBytes = 64

// NameCollisionError reports every invalid or colliding name found while
// applying a strict NameMode, so the caller can refuse the run with a
// precise message.
type NameCollisionError struct {
	Invalid    []int               // indices into the original slice
	Collisions map[string][]int    // provider name -> indices that produced it
	Names      []string            // original names, for message formatting
}

func (e *NameCollisionError) Error() string {
	var parts []string
	for _, i := range e.Invalid {
		parts = append(parts, fmt.Sprintf("invalid tool name %q at index %d", e.Names[i], i))
	}
	for name, idxs := range e.Collisions {
		parts = append(parts, fmt.Sprintf("tool name %q collides across indices %v", name, idxs))
	}
	return "tool name policy: " + strings.Join(parts, "; ")
}

// NameMapping records the original<->provider name translation a run
// applies for its lifetime. All egress events and the final result rewrite
// provider names back to originals via Original, so SDK callers never see
// sanitized forms.
type NameMapping struct {
	toProvider map[string]string
	toOriginal map[string]string
}

// Provider returns the provider-facing name for an original tool name, or
// the original name unchanged if it was never remapped.
func (m *NameMapping) Provider(original string) string {
	if m == nil {
		return original
	}
	if p, ok := m.toProvider[original]; ok {
		return p
	}
	return original
}

// Original returns the original tool name for a provider-facing name, or
// the provider name unchanged if it was never remapped.
func (m *NameMapping) Original(provider string) string {
	if m == nil {
		return provider
	}
	if o, ok := m.toOriginal[provider]; ok {
		return o
	}
	return provider
}

// ApplyNamePolicy validates or sanitizes every definition's name according
// to mode and returns the resulting mapping alongside definitions rewritten
// to carry their provider-facing names.
func ApplyNamePolicy(defs []ToolDefinition, mode NameMode) ([]ToolDefinition, *NameMapping, error) {
	if mode == "" {
		mode = NameStrict
	}

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}

	switch mode {
	case NameStrict:
		return applyStrict(defs, names)
	case NameSanitize:
		return applySanitize(defs, names)
	default:
		return nil, nil, fmt.Errorf("toolexecutor: unknown name mode %q", mode)
	}
}

func applyStrict(defs []ToolDefinition, names []string) ([]ToolDefinition, *NameMapping, error) {
	var invalid []int
	seen := make(map[string][]int, len(names))
	for i, n := range names {
		if !validToolName.MatchString(n) {
			invalid = append(invalid, i)
			continue
		}
		seen[n] = append(seen[n], i)
	}

	collisions := make(map[string][]int)
	for n, idxs := range seen {
		if len(idxs) > 1 {
			collisions[n] = idxs
		}
	}

	if len(invalid) > 0 || len(collisions) > 0 {
		return nil, nil, &NameCollisionError{Invalid: invalid, Collisions: collisions, Names: names}
	}

	mapping := &NameMapping{toProvider: map[string]string{}, toOriginal: map[string]string{}}
	for _, n := range names {
		mapping.toProvider[n] = n
		mapping.toOriginal[n] = n
	}
	out := make([]ToolDefinition, len(defs))
	copy(out, defs)
	return out, mapping, nil
}

func applySanitize(defs []ToolDefinition, names []string) ([]ToolDefinition, *NameMapping, error) {
	mapping := &NameMapping{toProvider: map[string]string{}, toOriginal: map[string]string{}}
	used := make(map[string]bool, len(names))
	out := make([]ToolDefinition, len(defs))

	for i, n := range names {
		sanitized := sanitizeName(n)
		final := sanitized
		suffix := 2
		for used[final] {
			final = withSuffix(sanitized, suffix)
			suffix++
		}
		used[final] = true
		mapping.toProvider[n] = final
		mapping.toOriginal[final] = n

		out[i] = defs[i]
		out[i].Name = final
	}
	return out, mapping, nil
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > maxToolNameBytes {
		s = s[:maxToolNameBytes]
	}
	if s == "" {
		s = "_"
	}
	return s
}

func withSuffix(base string, n int) string {
	suffix := fmt.Sprintf("_%d", n)
	if len(base)+len(suffix) <= maxToolNameBytes {
		return base + suffix
	}
	trimmed := base[:maxToolNameBytes-len(suffix)]
	return trimmed + suffix
}
