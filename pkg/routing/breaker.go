package routing

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/ranya/internal/observability"
)

// BreakerConfig tunes the Circuit Breaker.
type BreakerConfig struct {
	FailureThreshold int
	BaseCooldown     time.Duration
	MaxCooldown      time.Duration
	PenaltyPerFailure int
	OpenCircuitPenalty int
}

// DefaultBreakerConfig returns the standard tuning: open after 2
// consecutive failures, 5 minute base cooldown doubling up to an hour.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:   2,
		BaseCooldown:       5 * time.Minute,
		MaxCooldown:        60 * time.Minute,
		PenaltyPerFailure:  1000,
		OpenCircuitPenalty: 1_000_000,
	}
}

// BreakerEntry is the persisted state for one ref.
type BreakerEntry struct {
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	OpenUntil           *time.Time `json:"openUntil,omitempty"`
}

// BreakerSnapshot is the versioned, persistable dump of every entry.
type BreakerSnapshot struct {
	Version int                     `json:"version"`
	Entries map[string]BreakerEntry `json:"entries"`
}

const breakerSnapshotVersion = 1

// Breaker is a per-ref failure counter with exponential open windows and
// penalty scoring, shared across runs.
type Breaker struct {
	cfg BreakerConfig
	mu  sync.Mutex
	m   map[string]*BreakerEntry
}

// NewBreaker creates a Breaker with cfg. Zero-value fields in cfg are
// replaced with DefaultBreakerConfig's.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.BaseCooldown == 0 {
		cfg.BaseCooldown = def.BaseCooldown
	}
	if cfg.MaxCooldown == 0 {
		cfg.MaxCooldown = def.MaxCooldown
	}
	if cfg.PenaltyPerFailure == 0 {
		cfg.PenaltyPerFailure = def.PenaltyPerFailure
	}
	if cfg.OpenCircuitPenalty == 0 {
		cfg.OpenCircuitPenalty = def.OpenCircuitPenalty
	}
	return &Breaker{cfg: cfg, m: make(map[string]*BreakerEntry)}
}

func (b *Breaker) entry(ref string) *BreakerEntry {
	e, ok := b.m[ref]
	if !ok {
		e = &BreakerEntry{}
		b.m[ref] = e
	}
	return e
}

// RecordSuccess resets ref's entry to zero failures.
func (b *Breaker) RecordSuccess(ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[ref] = &BreakerEntry{}
	observability.SetBreakerOpen(ref, false)
	log.Debug().Str("ref", ref).Msg("routing: breaker reset after success")
}

// RecordFailure increments ref's failure count and, once the threshold is
// reached, opens the circuit for an exponentially growing cooldown window:
// base * 2^(count-threshold), capped at MaxCooldown.
func (b *Breaker) RecordFailure(ref string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(ref)
	e.ConsecutiveFailures++
	e.LastFailureAt = &now

	if e.ConsecutiveFailures >= b.cfg.FailureThreshold {
		exp := e.ConsecutiveFailures - b.cfg.FailureThreshold
		cooldown := b.cfg.BaseCooldown
		for i := 0; i < exp; i++ {
			cooldown *= 2
			if cooldown >= b.cfg.MaxCooldown {
				cooldown = b.cfg.MaxCooldown
				break
			}
		}
		openUntil := now.Add(cooldown)
		e.OpenUntil = &openUntil
		observability.SetBreakerOpen(ref, true)
		log.Warn().Str("ref", ref).Int("failures", e.ConsecutiveFailures).
			Dur("cooldown", cooldown).Msg("routing: circuit opened")
	}
}

// IsOpen reports whether ref's circuit is currently open.
func (b *Breaker) IsOpen(ref string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.m[ref]
	if !ok || e.OpenUntil == nil {
		return false
	}
	return now.Before(*e.OpenUntil)
}

// GetPenalty returns OpenCircuitPenalty while ref's circuit is open, else
// consecutiveFailures * PenaltyPerFailure.
func (b *Breaker) GetPenalty(ref string, now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.m[ref]
	if !ok {
		return 0
	}
	penalty := e.ConsecutiveFailures * b.cfg.PenaltyPerFailure
	if e.OpenUntil != nil && now.Before(*e.OpenUntil) {
		penalty = b.cfg.OpenCircuitPenalty
	}
	observability.SetCandidatePenalty(ref, penalty)
	return penalty
}

// Snapshot returns a versioned, deep-copied dump of every entry for durable
// persistence.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := make(map[string]BreakerEntry, len(b.m))
	for ref, e := range b.m {
		entries[ref] = *e
	}
	return BreakerSnapshot{Version: breakerSnapshotVersion, Entries: entries}
}

// Restore replaces the Breaker's state from snap. A snapshot whose Version
// is not the current breakerSnapshotVersion is discarded entirely.
func (b *Breaker) Restore(snap BreakerSnapshot) {
	if snap.Version != breakerSnapshotVersion {
		log.Warn().Int("version", snap.Version).Msg("routing: discarding breaker snapshot with unknown version")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m = make(map[string]*BreakerEntry, len(snap.Entries))
	for ref, e := range snap.Entries {
		entryCopy := e
		b.m[ref] = &entryCopy
	}
}
