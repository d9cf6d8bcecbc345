package workspace

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// JournalOpKind identifies the kind of mutation a JournalOp records.
type JournalOpKind string

const (
	JournalOpWrite  JournalOpKind = "write"
	JournalOpDelete JournalOpKind = "delete"
	JournalOpRename JournalOpKind = "rename"
)

// JournalOp is the inverse of one mutating operation, appended in forward
// order and replayed in reverse to roll an attempt back.
type JournalOp struct {
	Kind JournalOpKind

	// write / delete
	Path         string
	BeforeBytes  []byte
	BeforeExists bool

	// rename
	FromPath       string
	ToPath         string
	BeforeFromData []byte
	BeforeFromOK   bool
	BeforeToData   []byte
	BeforeToOK     bool
}

// Journal wraps a base Port, recording the inverse of every mutation so a
// failed attempt can be rolled back to the state it started from.
type Journal struct {
	base Port
	mu   sync.Mutex
	ops  []JournalOp
}

// NewJournal wraps base in a Journal.
func NewJournal(base Port) *Journal {
	return &Journal{base: base}
}

// ReadFile passes through to the base workspace.
func (j *Journal) ReadFile(path string) ([]byte, error) {
	return j.base.ReadFile(path)
}

// Stat passes through to the base workspace.
func (j *Journal) Stat(path string) (*Stat, error) {
	return j.base.Stat(path)
}

// ListFiles passes through to the base workspace.
func (j *Journal) ListFiles(glob string) ([]string, error) {
	return j.base.ListFiles(glob)
}

// WriteFile records the prior bytes at path, then performs the write.
func (j *Journal) WriteFile(path string, data []byte) error {
	before, existed := j.readExisting(path)
	if err := j.base.WriteFile(path, data); err != nil {
		return err
	}
	j.append(JournalOp{Kind: JournalOpWrite, Path: path, BeforeBytes: before, BeforeExists: existed})
	return nil
}

// DeletePath records the prior bytes at path, then performs the delete.
func (j *Journal) DeletePath(path string) error {
	before, existed := j.readExisting(path)
	if err := j.base.DeletePath(path); err != nil {
		return err
	}
	j.append(JournalOp{Kind: JournalOpDelete, Path: path, BeforeBytes: before, BeforeExists: existed})
	return nil
}

// RenamePath records the prior bytes at both endpoints, then performs the rename.
func (j *Journal) RenamePath(fromPath, toPath string) error {
	fromBytes, fromOK := j.readExisting(fromPath)
	toBytes, toOK := j.readExisting(toPath)
	if err := j.base.RenamePath(fromPath, toPath); err != nil {
		return err
	}
	j.append(JournalOp{
		Kind:           JournalOpRename,
		FromPath:       fromPath,
		ToPath:         toPath,
		BeforeFromData: fromBytes,
		BeforeFromOK:   fromOK,
		BeforeToData:   toBytes,
		BeforeToOK:     toOK,
	})
	return nil
}

func (j *Journal) readExisting(path string) ([]byte, bool) {
	data, err := j.base.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (j *Journal) append(op JournalOp) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = append(j.ops, op)
}

// Commit discards the journal without touching the base workspace.
func (j *Journal) Commit() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ops = nil
}

// Rollback replays recorded ops in reverse, restoring the base workspace to
// its pre-attempt state. Individual restore errors are swallowed so the
// best-effort unwind completes; Rollback itself never fails.
func (j *Journal) Rollback() {
	j.mu.Lock()
	ops := j.ops
	j.ops = nil
	j.mu.Unlock()

	for i := len(ops) - 1; i >= 0; i-- {
		j.undo(ops[i])
	}
}

func (j *Journal) undo(op JournalOp) {
	switch op.Kind {
	case JournalOpWrite, JournalOpDelete:
		if op.BeforeExists {
			if err := j.base.WriteFile(op.Path, op.BeforeBytes); err != nil {
				log.Debug().Str("path", op.Path).Err(err).Msg("rollback: failed to restore file")
			}
		} else {
			if err := j.base.DeletePath(op.Path); err != nil {
				log.Debug().Str("path", op.Path).Err(err).Msg("rollback: failed to remove file")
			}
		}
	case JournalOpRename:
		// Undo a rename by restoring both endpoints to their prior contents.
		if op.BeforeToOK {
			if err := j.base.WriteFile(op.ToPath, op.BeforeToData); err != nil {
				log.Debug().Str("path", op.ToPath).Err(err).Msg("rollback: failed to restore rename destination")
			}
		} else {
			if err := j.base.DeletePath(op.ToPath); err != nil {
				log.Debug().Str("path", op.ToPath).Err(err).Msg("rollback: failed to clear rename destination")
			}
		}
		if op.BeforeFromOK {
			if err := j.base.WriteFile(op.FromPath, op.BeforeFromData); err != nil {
				log.Debug().Str("path", op.FromPath).Err(err).Msg("rollback: failed to restore rename source")
			}
		} else {
			if err := j.base.DeletePath(op.FromPath); err != nil {
				log.Debug().Str("path", op.FromPath).Err(err).Msg("rollback: failed to clear rename source")
			}
		}
	default:
		log.Debug().Str("kind", string(op.Kind)).Msg("rollback: unknown journal op kind")
	}
}

var _ Port = (*Journal)(nil)
