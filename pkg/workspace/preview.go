package workspace

import (
	"fmt"
	"sync"
)

// overlayKind identifies the kind of pending mutation buffered for a key.
type overlayKind string

const (
	overlayWrite  overlayKind = "write"
	overlayDelete overlayKind = "delete"
	overlayRename overlayKind = "rename"
)

// overlayEntry is the buffered form of one pending mutation. Rename uses a
// composite key (fromPath|toPath) so the entry can be applied atomically at
// commit time.
type overlayEntry struct {
	kind         overlayKind
	path         string // write / delete
	bytes        []byte
	existedBefore bool

	fromPath string // rename
	toPath   string
}

// Preview wraps a base Port, buffering every mutation in an in-memory
// overlay keyed by path until the caller calls Commit or Discard. Reads
// consult the overlay first.
type Preview struct {
	base Port
	mu   sync.Mutex

	// writes and deletes keyed by path; renames keyed by "from\x00to"
	entries map[string]overlayEntry
	order   []string
}

// NewPreview wraps base in a Preview overlay.
func NewPreview(base Port) *Preview {
	return &Preview{base: base, entries: make(map[string]overlayEntry)}
}

func renameKey(from, to string) string {
	return from + "\x00" + to
}

// ReadFile consults the overlay first; a pending delete makes the read fail
// as if the file were absent, and a pending rename is resolved so the
// destination reads the moved content while the source reads as gone.
func (p *Preview) ReadFile(path string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[path]; ok {
		switch e.kind {
		case overlayWrite:
			return e.bytes, nil
		case overlayDelete:
			return nil, fmt.Errorf("file does not exist: %s", path)
		}
	}
	if from, moved, ok := p.renameForLocked(path); ok {
		if moved {
			return nil, fmt.Errorf("file does not exist: %s", path)
		}
		return p.base.ReadFile(from)
	}
	return p.base.ReadFile(path)
}

// Stat returns a synthetic stat for a pending write, absence for a pending
// delete or rename source, the moved file's stat for a rename destination,
// and otherwise defers to the base workspace.
func (p *Preview) Stat(path string) (*Stat, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[path]; ok {
		switch e.kind {
		case overlayWrite:
			return &Stat{IsFile: true, Size: int64(len(e.bytes))}, nil
		case overlayDelete:
			return nil, nil
		}
	}
	if from, moved, ok := p.renameForLocked(path); ok {
		if moved {
			return nil, nil
		}
		return p.base.Stat(from)
	}
	return p.base.Stat(path)
}

// renameForLocked resolves path against pending renames: ok reports whether
// a rename touches path, moved is true when path is a rename source (read as
// absent), and from carries the source path when path is a destination.
// Caller must hold p.mu.
func (p *Preview) renameForLocked(path string) (from string, moved bool, ok bool) {
	for _, e := range p.entries {
		if e.kind != overlayRename {
			continue
		}
		if e.fromPath == path {
			return "", true, true
		}
		if e.toPath == path {
			return e.fromPath, false, true
		}
	}
	return "", false, false
}

// ListFiles overlays pending writes/deletes onto the base listing.
func (p *Preview) ListFiles(glob string) ([]string, error) {
	base, err := p.base.ListFiles(glob)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	present := make(map[string]bool, len(base))
	for _, f := range base {
		present[f] = true
	}
	for _, e := range p.entries {
		switch e.kind {
		case overlayWrite:
			present[e.path] = true
		case overlayDelete:
			delete(present, e.path)
		case overlayRename:
			delete(present, e.fromPath)
			present[e.toPath] = true
		}
	}

	out := make([]string, 0, len(present))
	for f := range present {
		out = append(out, f)
	}
	return out, nil
}

// WriteFile buffers a pending write in the overlay.
func (p *Preview) WriteFile(path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existed := p.existsLocked(path)
	p.setLocked(path, overlayEntry{kind: overlayWrite, path: path, bytes: data, existedBefore: existed})
	return nil
}

// DeletePath buffers a pending delete in the overlay.
func (p *Preview) DeletePath(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existed := p.existsLocked(path)
	p.setLocked(path, overlayEntry{kind: overlayDelete, path: path, existedBefore: existed})
	return nil
}

// RenamePath buffers a pending rename in the overlay using a composite key.
func (p *Preview) RenamePath(fromPath, toPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existed := p.existsLocked(fromPath)
	key := renameKey(fromPath, toPath)
	p.entries[key] = overlayEntry{kind: overlayRename, fromPath: fromPath, toPath: toPath, existedBefore: existed}
	p.order = append(p.order, key)
	return nil
}

func (p *Preview) existsLocked(path string) bool {
	if e, ok := p.entries[path]; ok {
		return e.kind == overlayWrite
	}
	st, err := p.base.Stat(path)
	return err == nil && st != nil
}

func (p *Preview) setLocked(key string, e overlayEntry) {
	if _, exists := p.entries[key]; !exists {
		p.order = append(p.order, key)
	}
	p.entries[key] = e
}

// Commit applies buffered renames, then writes, then deletes to the base
// workspace, in that order, then clears the overlay.
func (p *Preview) Commit() error {
	p.mu.Lock()
	entries := p.entries
	order := p.order
	p.entries = make(map[string]overlayEntry)
	p.order = nil
	p.mu.Unlock()

	var renames, writes, deletes []overlayEntry
	for _, key := range order {
		e, ok := entries[key]
		if !ok {
			continue
		}
		switch e.kind {
		case overlayRename:
			renames = append(renames, e)
		case overlayWrite:
			writes = append(writes, e)
		case overlayDelete:
			deletes = append(deletes, e)
		}
	}

	for _, e := range renames {
		if err := p.base.RenamePath(e.fromPath, e.toPath); err != nil {
			return fmt.Errorf("preview commit: rename %s -> %s: %w", e.fromPath, e.toPath, err)
		}
	}
	for _, e := range writes {
		if err := p.base.WriteFile(e.path, e.bytes); err != nil {
			return fmt.Errorf("preview commit: write %s: %w", e.path, err)
		}
	}
	for _, e := range deletes {
		if err := p.base.DeletePath(e.path); err != nil {
			return fmt.Errorf("preview commit: delete %s: %w", e.path, err)
		}
	}
	return nil
}

// Discard drops the overlay without touching the base workspace.
func (p *Preview) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]overlayEntry)
	p.order = nil
}

var _ Port = (*Preview)(nil)
