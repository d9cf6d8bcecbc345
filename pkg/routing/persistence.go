package routing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// PersistedBreaker pairs a Breaker with a ConfigStore and serializes every
// write through a single-goroutine queue so overlapping runs never
// interleave partial snapshots.
type PersistedBreaker struct {
	*Breaker
	store ConfigStore
	queue chan func()
}

// NewPersistedBreaker wraps breaker with store. store may be nil, in which
// case Persist/Load are no-ops.
func NewPersistedBreaker(breaker *Breaker, store ConfigStore) *PersistedBreaker {
	pb := &PersistedBreaker{Breaker: breaker, store: store, queue: make(chan func(), 64)}
	if store != nil {
		go pb.drain()
	}
	return pb
}

func (pb *PersistedBreaker) drain() {
	for fn := range pb.queue {
		fn()
	}
}

// Load restores breaker state from the store, once per process. A missing
// key or a version mismatch leaves the breaker at its zero state.
func (pb *PersistedBreaker) Load(ctx context.Context) error {
	if pb.store == nil {
		return nil
	}
	data, ok, err := pb.store.Get(ctx, BreakerSnapshotKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var snap BreakerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("routing: failed to decode breaker snapshot, starting closed")
		return nil
	}
	pb.Restore(snap)
	return nil
}

// Persist enqueues the current breaker state for a write, serialized behind
// every other pending Persist call. Errors are logged, not returned: a
// failed snapshot write must never block the run it was guarding.
func (pb *PersistedBreaker) Persist(ctx context.Context) {
	if pb.store == nil {
		return
	}
	snap := pb.Snapshot()
	pb.queue <- func() {
		data, err := json.Marshal(snap)
		if err != nil {
			log.Warn().Err(err).Msg("routing: failed to encode breaker snapshot")
			return
		}
		if err := pb.store.Set(ctx, BreakerSnapshotKey, data); err != nil {
			log.Warn().Err(err).Msg("routing: failed to persist breaker snapshot")
		}
	}
}

// RecordSuccess records success and schedules a persist.
func (pb *PersistedBreaker) RecordSuccessAndPersist(ctx context.Context, ref string) {
	pb.Breaker.RecordSuccess(ref)
	pb.Persist(ctx)
}

// RecordFailureAndPersist records a failure and schedules a persist.
func (pb *PersistedBreaker) RecordFailureAndPersist(ctx context.Context, ref string) {
	pb.Breaker.RecordFailure(ref, time.Now())
	pb.Persist(ctx)
}
