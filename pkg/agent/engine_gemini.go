package agent

import "context"

// GeminiEngine is a placeholder for Google Gemini. It registers as a third
// catalog-visible provider so routing can order across all three, but every
// attempt reports ProviderUnavailable and failover moves on.
type GeminiEngine struct {
	apiKey string
}

// NewGeminiEngine creates the placeholder engine.
func NewGeminiEngine(apiKey string) *GeminiEngine {
	return &GeminiEngine{apiKey: apiKey}
}

// Provider returns the provider id this engine serves.
func (e *GeminiEngine) Provider() string {
	return "gemini"
}

// Run always fails with ProviderUnavailable.
func (e *GeminiEngine) Run(ctx context.Context, req EngineRequest, deps EngineDeps) (*EngineResult, error) {
	return nil, &ProviderUnavailable{Provider: "gemini", Reason: "gemini engine not yet implemented - use anthropic or openai"}
}
