package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPort(t *testing.T) *LocalPort {
	t.Helper()
	port, err := NewLocalPort(t.TempDir())
	require.NoError(t, err)
	return port
}

func TestJournal_RollbackRestoresWrite(t *testing.T) {
	base := newTestPort(t)
	require.NoError(t, base.WriteFile("a.txt", []byte("before")))

	j := NewJournal(base)
	require.NoError(t, j.WriteFile("a.txt", []byte("after")))
	j.Rollback()

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "before", string(data))
}

func TestJournal_RollbackRemovesCreatedFile(t *testing.T) {
	base := newTestPort(t)

	j := NewJournal(base)
	require.NoError(t, j.WriteFile("new.txt", []byte("x")))
	j.Rollback()

	st, err := base.Stat("new.txt")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestJournal_RollbackRestoresDelete(t *testing.T) {
	base := newTestPort(t)
	require.NoError(t, base.WriteFile("a.txt", []byte("keep me")))

	j := NewJournal(base)
	require.NoError(t, j.DeletePath("a.txt"))
	j.Rollback()

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestJournal_RollbackUndoesRename(t *testing.T) {
	base := newTestPort(t)
	require.NoError(t, base.WriteFile("from.txt", []byte("src")))
	require.NoError(t, base.WriteFile("to.txt", []byte("dst")))

	j := NewJournal(base)
	require.NoError(t, j.RenamePath("from.txt", "to.txt"))
	j.Rollback()

	data, err := base.ReadFile("from.txt")
	require.NoError(t, err)
	assert.Equal(t, "src", string(data))

	data, err = base.ReadFile("to.txt")
	require.NoError(t, err)
	assert.Equal(t, "dst", string(data))
}

func TestJournal_RollbackReplaysMixedSequenceInReverse(t *testing.T) {
	base := newTestPort(t)
	require.NoError(t, base.WriteFile("a.txt", []byte("a0")))
	require.NoError(t, base.WriteFile("b.txt", []byte("b0")))

	j := NewJournal(base)
	require.NoError(t, j.WriteFile("a.txt", []byte("a1")))
	require.NoError(t, j.DeletePath("b.txt"))
	require.NoError(t, j.WriteFile("c.txt", []byte("c1")))
	require.NoError(t, j.RenamePath("a.txt", "d.txt"))
	j.Rollback()

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a0", string(data))

	data, err = base.ReadFile("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b0", string(data))

	for _, gone := range []string{"c.txt", "d.txt"} {
		st, err := base.Stat(gone)
		require.NoError(t, err)
		assert.Nil(t, st, gone)
	}
}

func TestJournal_CommitKeepsChangesAndClearsOps(t *testing.T) {
	base := newTestPort(t)

	j := NewJournal(base)
	require.NoError(t, j.WriteFile("a.txt", []byte("committed")))
	j.Commit()
	j.Rollback() // nothing left to undo

	data, err := base.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "committed", string(data))
}

func TestJournal_ReadsPassThrough(t *testing.T) {
	base := newTestPort(t)
	require.NoError(t, base.WriteFile("a.txt", []byte("x")))

	j := NewJournal(base)
	data, err := j.ReadFile("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	files, err := j.ListFiles("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, files)
}
