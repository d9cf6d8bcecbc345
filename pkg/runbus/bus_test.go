package runbus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_HooksFireBeforeIteration(t *testing.T) {
	b := New()
	var hookOrder []string

	b.Subscribe(func(ev AgentEvent) {
		hookOrder = append(hookOrder, string(ev.Type))
	})

	ch := b.Iter()
	b.Emit(AgentEvent{Type: EventRunStart})
	b.Emit(AgentEvent{Type: EventRunFinish})
	b.Close(nil)

	var seen []string
	for ev := range ch {
		seen = append(seen, string(ev.Type))
	}

	assert.Equal(t, []string{"run_start", "run_finish"}, hookOrder)
	assert.Equal(t, []string{"run_start", "run_finish"}, seen)
}

func TestBus_EventsAfterCloseAreDropped(t *testing.T) {
	b := New()
	ch := b.Iter()

	b.Emit(AgentEvent{Type: EventRunStart})
	b.Close(nil)
	b.Emit(AgentEvent{Type: EventRunFinish})

	var seen []AgentEvent
	for ev := range ch {
		seen = append(seen, ev)
	}
	require.Len(t, seen, 1)
	assert.Equal(t, EventRunStart, seen[0].Type)
}

func TestBus_CloseIsIdempotentAndRecordsReason(t *testing.T) {
	b := New()
	cause := errors.New("boom")
	b.Close(cause)
	b.Close(errors.New("second close ignored"))

	assert.True(t, b.Closed())
	assert.Equal(t, cause, b.Err())
}

func TestBus_IterAfterCloseReturnsClosedChannel(t *testing.T) {
	b := New()
	b.Close(nil)
	ch := b.Iter()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected closed channel to be immediately readable")
	}
}

func TestBus_PanickingHookDoesNotStopDelivery(t *testing.T) {
	b := New()
	b.Subscribe(func(ev AgentEvent) { panic("hook exploded") })

	var got []string
	b.Subscribe(func(ev AgentEvent) { got = append(got, string(ev.Type)) })

	ch := b.Iter()
	b.Emit(AgentEvent{Type: EventTextDelta, Text: "hi"})
	b.Close(nil)

	assert.Equal(t, []string{"text_delta"}, got)
	ev := <-ch
	assert.Equal(t, "hi", ev.Text)
}
