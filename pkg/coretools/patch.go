package coretools

import (
	"fmt"
	"strings"

	"github.com/harun/ranya/pkg/runbus"
	"github.com/harun/ranya/pkg/workspace"
)

type hunkLine struct {
	kind byte
	text string
}

type hunk struct {
	start int // 1-based old-file start line from the @@ header
	lines []hunkLine
}

type filePatch struct {
	path  string
	hunks []hunk
}

// parseUnifiedPatch splits a unified diff into per-file hunk lists. Only the
// "+++ " path headers and "@@" hunk headers are structural; "--- " lines and
// anything outside a hunk are skipped.
func parseUnifiedPatch(patchText string) ([]filePatch, error) {
	var patches []filePatch
	var current *filePatch
	var currentHunk *hunk

	for _, raw := range strings.Split(patchText, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.HasPrefix(line, "--- ") {
			continue
		}
		if strings.HasPrefix(line, "+++ ") {
			path := strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
			path = strings.TrimPrefix(path, "a/")
			path = strings.TrimPrefix(path, "b/")
			if path == "" {
				continue
			}
			patches = append(patches, filePatch{path: path})
			current = &patches[len(patches)-1]
			currentHunk = nil
			continue
		}
		if strings.HasPrefix(line, "@@") {
			if current == nil {
				continue
			}
			start, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			current.hunks = append(current.hunks, hunk{start: start})
			currentHunk = &current.hunks[len(current.hunks)-1]
			continue
		}
		if currentHunk == nil || len(line) == 0 {
			continue
		}
		switch line[0] {
		case ' ', '+', '-':
			currentHunk.lines = append(currentHunk.lines, hunkLine{kind: line[0], text: line[1:]})
		}
	}
	return patches, nil
}

func parseHunkHeader(line string) (int, error) {
	// format: @@ -start,count +start,count @@
	parts := strings.Split(line, " ")
	if len(parts) < 3 {
		return 0, fmt.Errorf("invalid hunk header: %s", line)
	}
	left := strings.TrimPrefix(parts[1], "-")
	fields := strings.Split(left, ",")
	var start int
	if _, err := fmt.Sscanf(fields[0], "%d", &start); err != nil {
		return 0, fmt.Errorf("invalid hunk header: %s", line)
	}
	if start < 1 {
		start = 1
	}
	return start, nil
}

// applyFilePatch applies every hunk of one file's patch. In incremental mode
// the file is written after each hunk with a patch_hunk file_change; otherwise
// a single write happens after all hunks, with a create/update file_change.
func applyFilePatch(port workspace.Port, bus *runbus.Bus, preview bool, patch filePatch, incremental bool) (int, error) {
	orig, readErr := port.ReadFile(patch.path)
	existed := readErr == nil
	lines := splitLines(string(orig))

	applied := 0
	for i, h := range patch.hunks {
		var err error
		lines, err = applyHunk(lines, h)
		if err != nil {
			return applied, fmt.Errorf("hunk %d of %s: %w", i+1, patch.path, err)
		}
		applied++

		if incremental {
			if err := port.WriteFile(patch.path, []byte(joinLines(lines))); err != nil {
				return applied, err
			}
			emitFileChange(bus, runbus.FileChange{
				Kind:      runbus.FileChangePatchHunk,
				Path:      patch.path,
				Preview:   preview,
				HunkIndex: i,
				HunkCount: len(patch.hunks),
			})
		}
	}

	if !incremental {
		if err := port.WriteFile(patch.path, []byte(joinLines(lines))); err != nil {
			return applied, err
		}
		kind := runbus.FileChangeCreate
		if existed {
			kind = runbus.FileChangeUpdate
		}
		emitFileChange(bus, runbus.FileChange{Kind: kind, Path: patch.path, Preview: preview})
	}
	return applied, nil
}

// applyHunk applies one hunk at its declared start line. When the context or
// delete lines do not match there, a single re-anchoring attempt locates the
// hunk's first context line in the file; if the hunk still does not match,
// the apply fails and nothing is written.
func applyHunk(lines []string, h hunk) ([]string, error) {
	start := h.start - 1
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}

	if matchesAt(lines, h, start) {
		return splice(lines, h, start), nil
	}

	anchor, offset, ok := firstContextLine(h)
	if !ok {
		return nil, fmt.Errorf("context mismatch at line %d", start+1)
	}
	for idx, line := range lines {
		if line != anchor {
			continue
		}
		candidate := idx - offset
		if candidate >= 0 && matchesAt(lines, h, candidate) {
			return splice(lines, h, candidate), nil
		}
		break // the anchor is tried once
	}
	return nil, fmt.Errorf("context mismatch at line %d", start+1)
}

// firstContextLine returns the hunk's first context line and its offset into
// the hunk's pre-image (the sequence of context and delete lines).
func firstContextLine(h hunk) (string, int, bool) {
	offset := 0
	for _, ln := range h.lines {
		switch ln.kind {
		case ' ':
			return ln.text, offset, true
		case '-':
			offset++
		}
	}
	return "", 0, false
}

func matchesAt(lines []string, h hunk, start int) bool {
	idx := start
	for _, ln := range h.lines {
		switch ln.kind {
		case ' ', '-':
			if idx >= len(lines) || lines[idx] != ln.text {
				return false
			}
			idx++
		}
	}
	return true
}

func splice(lines []string, h hunk, start int) []string {
	out := make([]string, 0, len(lines))
	out = append(out, lines[:start]...)
	idx := start
	for _, ln := range h.lines {
		switch ln.kind {
		case ' ':
			out = append(out, lines[idx])
			idx++
		case '-':
			idx++
		case '+':
			out = append(out, ln.text)
		}
	}
	return append(out, lines[idx:]...)
}

func splitLines(content string) []string {
	if content == "" {
		return []string{}
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
