package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileConfigStore_GetSetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileConfigStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	_, ok, err := store.Get(ctx, BreakerSnapshotKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, BreakerSnapshotKey, []byte(`{"version":1}`)))
	data, ok, err := store.Get(ctx, BreakerSnapshotKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"version":1}`, string(data))
}

func TestPersistedBreaker_LoadRestoresState(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileConfigStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	b1 := NewPersistedBreaker(NewBreaker(DefaultBreakerConfig()), store)
	b1.RecordFailureAndPersist(ctx, "anthropic:claude-fast")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := store.Get(ctx, BreakerSnapshotKey); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	b2 := NewPersistedBreaker(NewBreaker(DefaultBreakerConfig()), store)
	require.NoError(t, b2.Load(ctx))
	assert.Equal(t, 1, b2.Snapshot().Entries["anthropic:claude-fast"].ConsecutiveFailures)
}
