package toolexecutor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defsNamed(names ...string) []ToolDefinition {
	defs := make([]ToolDefinition, len(names))
	for i, n := range names {
		defs[i] = ToolDefinition{Name: n}
	}
	return defs
}

func TestApplyNamePolicy_StrictPassesValidUniqueNames(t *testing.T) {
	defs, mapping, err := ApplyNamePolicy(defsNamed("fs_read_file", "memory_get"), NameStrict)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "fs_read_file", mapping.Provider("fs_read_file"))
	assert.Equal(t, "fs_read_file", mapping.Original("fs_read_file"))
}

func TestApplyNamePolicy_StrictRejectsInvalidName(t *testing.T) {
	_, _, err := ApplyNamePolicy(defsNamed("fs.read-file!"), NameStrict)
	require.Error(t, err)
	var collErr *NameCollisionError
	require.ErrorAs(t, err, &collErr)
	assert.Equal(t, []int{0}, collErr.Invalid)
}

func TestApplyNamePolicy_StrictRejectsCollision(t *testing.T) {
	_, _, err := ApplyNamePolicy(defsNamed("dup", "dup"), NameStrict)
	require.Error(t, err)
	var collErr *NameCollisionError
	require.ErrorAs(t, err, &collErr)
	assert.Equal(t, []int{0, 1}, collErr.Collisions["dup"])
}

func TestApplyNamePolicy_SanitizeRewritesIllegalCharacters(t *testing.T) {
	defs, mapping, err := ApplyNamePolicy(defsNamed("fs.read file!"), NameSanitize)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Regexp(t, `^[A-Za-z0-9_-]{1,64}$`, defs[0].Name)
	assert.Equal(t, defs[0].Name, mapping.Provider("fs.read file!"))
	assert.Equal(t, "fs.read file!", mapping.Original(defs[0].Name))
}

func TestApplyNamePolicy_SanitizeResolvesCollisionsWithSuffix(t *testing.T) {
	defs, mapping, err := ApplyNamePolicy(defsNamed("a!", "a@", "a#"), NameSanitize)
	require.NoError(t, err)
	require.Len(t, defs, 3)

	seen := map[string]bool{}
	for _, d := range defs {
		assert.False(t, seen[d.Name], "provider name %q must be unique", d.Name)
		seen[d.Name] = true
	}
	assert.Equal(t, "a_", defs[0].Name)
	assert.Equal(t, "a__2", defs[1].Name)
	assert.Equal(t, "a__3", defs[2].Name)
	assert.Equal(t, "a@", mapping.Original("a__2"))
}

func TestApplyNamePolicy_SanitizeTruncatesLongNames(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	defs, _, err := ApplyNamePolicy(defsNamed(long), NameSanitize)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(defs[0].Name), maxToolNameBytes)
}

func TestNameMapping_NilSafe(t *testing.T) {
	var mapping *NameMapping
	assert.Equal(t, "foo", mapping.Provider("foo"))
	assert.Equal(t, "foo", mapping.Original("foo"))
}
