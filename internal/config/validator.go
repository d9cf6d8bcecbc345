package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateModelClass validates a routing model class
func (v *Validator) ValidateModelClass(class string) error {
	if class == "" {
		return nil // Use default
	}

	validClasses := []string{"default", "frontier", "fast", "long_context", "cheap"}
	for _, valid := range validClasses {
		if class == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid model class: %s (must be one of: %s)", class, strings.Join(validClasses, ", "))
}

// ValidateToolNamePolicy validates the tool name policy mode
func (v *Validator) ValidateToolNamePolicy(policy string) error {
	if policy == "" {
		return nil // Use default
	}

	validPolicies := []string{"strict", "sanitize"}
	for _, valid := range validPolicies {
		if policy == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid tool name policy: %s (must be one of: %s)", policy, strings.Join(validPolicies, ", "))
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.Providers {
		if profile.Provider != "" {
			if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("provider profile %d (%s): %w", i, profile.Provider, err))
			}
		}
	}

	if err := v.ValidateModelClass(cfg.Routing.DefaultClass); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateToolNamePolicy(cfg.ToolNamePolicy); err != nil {
		errors = append(errors, err)
	}

	if cfg.Breaker.FailureThreshold < 0 {
		errors = append(errors, fmt.Errorf("breaker failure_threshold must be >= 0"))
	}
	if cfg.Breaker.PenaltyPerFailure < 0 {
		errors = append(errors, fmt.Errorf("breaker penalty_per_failure must be >= 0"))
	}
	if cfg.MemoryPool.TTLSeconds < 0 {
		errors = append(errors, fmt.Errorf("memory pool ttl_seconds must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
