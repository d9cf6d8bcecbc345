package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main run supervisor configuration
type Config struct {
	// Provider credentials
	Providers []ProviderProfile `json:"providers" mapstructure:"providers"`

	// Routing preferences
	Routing RoutingConfig `json:"routing" mapstructure:"routing"`

	// Circuit breaker tuning
	Breaker BreakerConfig `json:"breaker" mapstructure:"breaker"`

	// Shared memory pool sizing
	MemoryPool MemoryPoolConfig `json:"memory_pool" mapstructure:"memory_pool"`

	// Tool name policy at the provider boundary: strict or sanitize
	ToolNamePolicy string `json:"tool_name_policy" mapstructure:"tool_name_policy"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory (breaker snapshots, config store)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Workspace path
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`
}

// ProviderProfile represents one provider's credentials
type ProviderProfile struct {
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// RoutingConfig steers candidate ordering
type RoutingConfig struct {
	DefaultClass       string   `json:"default_class" mapstructure:"default_class"` // default, frontier, fast, long_context, cheap
	PreferredProviders []string `json:"preferred_providers" mapstructure:"preferred_providers"`
	BlockedProviders   []string `json:"blocked_providers" mapstructure:"blocked_providers"`
	AllowFallback      bool     `json:"allow_fallback" mapstructure:"allow_fallback"`
	MustStream         bool     `json:"must_stream" mapstructure:"must_stream"`
	RequiresTools      bool     `json:"requires_tools" mapstructure:"requires_tools"`
}

// BreakerConfig tunes the circuit breaker
type BreakerConfig struct {
	FailureThreshold   int `json:"failure_threshold" mapstructure:"failure_threshold"`
	BaseCooldownMins   int `json:"base_cooldown_minutes" mapstructure:"base_cooldown_minutes"`
	MaxCooldownMins    int `json:"max_cooldown_minutes" mapstructure:"max_cooldown_minutes"`
	PenaltyPerFailure  int `json:"penalty_per_failure" mapstructure:"penalty_per_failure"`
	OpenCircuitPenalty int `json:"open_circuit_penalty" mapstructure:"open_circuit_penalty"`
}

// MemoryPoolConfig sizes the shared memory pool caches
type MemoryPoolConfig struct {
	KVCapacity            int `json:"kv_capacity" mapstructure:"kv_capacity"`
	EmbeddingsCapacity    int `json:"embeddings_capacity" mapstructure:"embeddings_capacity"`
	FileSnapshotsCapacity int `json:"file_snapshots_capacity" mapstructure:"file_snapshots_capacity"`
	TTLSeconds            int `json:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Providers: []ProviderProfile{},
		Routing: RoutingConfig{
			DefaultClass:  "default",
			AllowFallback: true,
			RequiresTools: true,
		},
		Breaker: BreakerConfig{
			FailureThreshold:   2,
			BaseCooldownMins:   5,
			MaxCooldownMins:    60,
			PenaltyPerFailure:  1000,
			OpenCircuitPenalty: 1000000,
		},
		MemoryPool: MemoryPoolConfig{
			KVCapacity:            1024,
			EmbeddingsCapacity:    4096,
			FileSnapshotsCapacity: 1024,
		},
		ToolNamePolicy: "sanitize",
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		DataDir:       "",
		WorkspacePath: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Require at least one provider profile
	if len(c.Providers) == 0 {
		return fmt.Errorf("no provider credentials configured: at least one provider profile is required")
	}

	for i, profile := range c.Providers {
		if profile.Provider == "" {
			return fmt.Errorf("provider profile %d: provider is required", i)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("provider profile %s: api_key is required", profile.Provider)
		}
		validProviders := []string{"anthropic", "openai", "gemini"}
		valid := false
		for _, vp := range validProviders {
			if profile.Provider == vp {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("provider profile %d: invalid provider %s (must be: anthropic, openai, gemini)", i, profile.Provider)
		}
	}

	if c.ToolNamePolicy != "" && c.ToolNamePolicy != "strict" && c.ToolNamePolicy != "sanitize" {
		return fmt.Errorf("invalid tool name policy: %s (must be: strict, sanitize)", c.ToolNamePolicy)
	}

	if c.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("breaker failure_threshold must be >= 0")
	}
	if c.Breaker.BaseCooldownMins < 0 || c.Breaker.MaxCooldownMins < 0 {
		return fmt.Errorf("breaker cooldowns must be >= 0")
	}
	if c.Breaker.MaxCooldownMins > 0 && c.Breaker.BaseCooldownMins > c.Breaker.MaxCooldownMins {
		return fmt.Errorf("breaker base_cooldown_minutes must not exceed max_cooldown_minutes")
	}

	if c.MemoryPool.KVCapacity < 0 || c.MemoryPool.EmbeddingsCapacity < 0 || c.MemoryPool.FileSnapshotsCapacity < 0 {
		return fmt.Errorf("memory pool capacities must be >= 0")
	}

	return nil
}
