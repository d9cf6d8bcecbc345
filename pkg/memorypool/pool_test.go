package memorypool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_LRUEvictsOldestOnOverflow(t *testing.T) {
	p := New(Config{KVCapacity: 3})

	p.KVSet("a", 1)
	p.KVSet("b", 2)
	p.KVSet("c", 3)
	p.KVSet("d", 4) // evicts "a"
	p.KVSet("e", 5) // evicts "b"

	_, ok := p.KVGet("a")
	assert.False(t, ok)
	_, ok = p.KVGet("b")
	assert.False(t, ok)

	for _, k := range []string{"c", "d", "e"} {
		_, ok := p.KVGet(k)
		assert.True(t, ok, "expected %s to survive", k)
	}
	assert.Equal(t, 3, p.KVLen())
}

func TestPool_GetRefreshesRecency(t *testing.T) {
	p := New(Config{KVCapacity: 2})

	p.KVSet("a", 1)
	p.KVSet("b", 2)
	_, _ = p.KVGet("a") // touch a, making b the LRU candidate
	p.KVSet("c", 3)     // should evict b, not a

	_, ok := p.KVGet("a")
	assert.True(t, ok)
	_, ok = p.KVGet("b")
	assert.False(t, ok)
}

func TestPool_TTLExpiryRemovesEntryAndReportsMiss(t *testing.T) {
	p := New(Config{KVCapacity: 10, KVTTL: 10 * time.Millisecond})

	p.KVSet("a", "v1")
	_, ok := p.KVGet("a")
	require.True(t, ok)

	time.Sleep(25 * time.Millisecond)

	_, ok = p.KVGet("a")
	assert.False(t, ok)
	assert.Equal(t, 0, p.KVLen())
}

func TestPool_IndependentCaches(t *testing.T) {
	p := New(DefaultConfig())

	p.KVSet("k", "kv-value")
	p.EmbeddingSet("k", []float64{1, 2, 3})
	p.FileSnapshotSet("k", FileSnapshot{Hash: "abc", Bytes: []byte("x")})

	kv, _ := p.KVGet("k")
	assert.Equal(t, "kv-value", kv)
	emb, _ := p.EmbeddingGet("k")
	assert.Equal(t, []float64{1, 2, 3}, emb)
	snap, _ := p.FileSnapshotGet("k")
	assert.Equal(t, "abc", snap.Hash)
}

func TestScope_PrefixesKeysTransparently(t *testing.T) {
	p := New(DefaultConfig())
	runA := p.Scope("run-a")
	runB := p.Scope("run-b")

	runA.KVSet("x", 1)
	runB.KVSet("x", 2)

	va, _ := runA.KVGet("x")
	vb, _ := runB.KVGet("x")
	assert.Equal(t, 1, va)
	assert.Equal(t, 2, vb)

	_, okGlobal := p.KVGet("x")
	assert.False(t, okGlobal)
}
