package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderUnavailable indicates a backend is missing or misconfigured: no
// credentials, no registered engine, or an SDK that refuses to initialise.
// The failover loop skips the candidate and continues.
type ProviderUnavailable struct {
	Provider string
	Reason   string
}

func (e *ProviderUnavailable) Error() string {
	return fmt.Sprintf("provider %q unavailable: %s", e.Provider, e.Reason)
}

// IsRetryable reports whether a later attempt against the same provider could
// succeed. Misconfiguration is permanent for the life of the process.
func (e *ProviderUnavailable) IsRetryable() bool { return false }

// EngineError wraps a streaming or backend failure that terminated an
// attempt. Retryable is set at construction from the failure class (network,
// rate limit, 5xx) instead of sniffing the message afterwards.
type EngineError struct {
	Provider  string
	Model     string
	Retryable bool
	Cause     error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s:%s failed: %v", e.Provider, e.Model, e.Cause)
}

func (e *EngineError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the failure class is transient.
func (e *EngineError) IsRetryable() bool { return e.Retryable }

// UnifiedAgentError is the terminal wrapper for configuration errors and
// "all candidates failed" outcomes, carrying the last underlying cause.
type UnifiedAgentError struct {
	Message string
	Cause   error
}

func (e *UnifiedAgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UnifiedAgentError) Unwrap() error { return e.Cause }

// classifyEngineError wraps err in an EngineError with a retryable flag
// derived from well-known transient failure markers surfaced by the provider
// SDKs (status codes in the message, network resets, rate limits).
func classifyEngineError(provider, model string, err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return &EngineError{
		Provider:  provider,
		Model:     model,
		Retryable: isTransient(err),
		Cause:     err,
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"ECONNRESET", "ETIMEDOUT", "connection reset", "timeout",
		"429", "rate limit", "overloaded",
		"500", "502", "503", "504",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
