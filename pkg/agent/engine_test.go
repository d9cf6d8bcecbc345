package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallID_UniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newCallID()
		require.True(t, strings.HasPrefix(id, "call_"))
		require.False(t, seen[id], "call ids must not repeat")
		seen[id] = true
	}
}

func TestClassifyEngineError_TransientMarkers(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		retryable bool
	}{
		{"rate limit", "got 429 rate limit from upstream", true},
		{"server error", "unexpected 503 from backend", true},
		{"network reset", "read: connection reset by peer", true},
		{"bad request", "invalid model name", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ee := classifyEngineError("anthropic", "m", assert.AnError)
			assert.False(t, ee.IsRetryable())

			ee = classifyEngineError("anthropic", "m", &UnifiedAgentError{Message: tt.msg})
			assert.Equal(t, tt.retryable, ee.IsRetryable())
		})
	}
}

func TestClassifyEngineError_PassesThroughEngineError(t *testing.T) {
	original := &EngineError{Provider: "openai", Model: "m", Retryable: true, Cause: assert.AnError}
	assert.Same(t, original, classifyEngineError("anthropic", "other", original))
}
