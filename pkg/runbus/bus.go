package runbus

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Hook is a best-effort synchronous subscriber. Hooks must not destabilise
// the run: any panic or error the hook itself might produce is swallowed by
// the Bus before delivery continues to the next hook and to iterators.
type Hook func(ev AgentEvent)

// Bus is an ordered, multi-consumer broadcast of AgentEvents. A single
// producer (the run's Supervisor/Engine goroutine) calls Emit; any number
// of consumers subscribe via Subscribe (callback) or Iter (channel).
//
// Ordering: events observed by one consumer appear in emission order. Hook
// callbacks fire before the same event is delivered to channel iterators.
type Bus struct {
	mu     sync.Mutex
	hooks  []Hook
	iters  []chan AgentEvent
	closed bool
	reason error
}

// New creates an empty, open Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers a best-effort hook. Hooks registered after Close
// receive nothing further (Close has already fired); the call itself never
// fails.
func (b *Bus) Subscribe(hook Hook) {
	if hook == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, hook)
}

// Iter returns a channel that receives every event emitted from this point
// forward, in emission order. The channel is closed once the Bus closes and
// all events buffered ahead of it have been delivered. Callers must drain
// the channel (or stop caring) to avoid blocking the producer; buffer size
// is generous but not unbounded-safe under permanent non-consumption.
func (b *Bus) Iter() <-chan AgentEvent {
	ch := make(chan AgentEvent, 256)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.iters = append(b.iters, ch)
	return ch
}

// Emit broadcasts ev to all hooks, then all channel iterators, in that
// order. Emit is a no-op once the Bus has been closed: events emitted after
// Close are dropped.
func (b *Bus) Emit(ev AgentEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	hooks := b.hooks
	iters := b.iters
	b.mu.Unlock()

	for _, h := range hooks {
		safeInvoke(h, ev)
	}
	for _, ch := range iters {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("event_type", string(ev.Type)).Msg("runbus: iterator channel full, event dropped")
		}
	}
}

func safeInvoke(h Hook, ev AgentEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("event_type", string(ev.Type)).Msg("runbus: hook panicked, ignoring")
		}
	}()
	h(ev)
}

// Close marks the Bus terminal with reason (nil for a clean stop) and closes
// every channel iterator so its range loop completes. Subsequent Emit calls
// are no-ops. Close is idempotent.
func (b *Bus) Close(reason error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.reason = reason
	iters := b.iters
	b.iters = nil
	b.mu.Unlock()

	for _, ch := range iters {
		close(ch)
	}
}

// Err returns the reason the Bus was closed with, if any.
func (b *Bus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
