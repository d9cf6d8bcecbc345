package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		key      string
		provider string
		wantErr  bool
	}{
		{"valid anthropic key", "sk-ant-abc123", "anthropic", false},
		{"invalid anthropic key", "sk-abc123", "anthropic", true},
		{"valid openai key", "sk-abc123", "openai", false},
		{"invalid openai key", "abc123", "openai", true},
		{"empty key", "", "anthropic", true},
		{"unknown provider accepts any format", "whatever", "gemini", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateAPIKey(tt.key, tt.provider)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateModelClass(t *testing.T) {
	v := NewValidator()

	for _, class := range []string{"", "default", "frontier", "fast", "long_context", "cheap"} {
		assert.NoError(t, v.ValidateModelClass(class), class)
	}
	assert.Error(t, v.ValidateModelClass("turbo"))
}

func TestValidateToolNamePolicy(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateToolNamePolicy(""))
	assert.NoError(t, v.ValidateToolNamePolicy("strict"))
	assert.NoError(t, v.ValidateToolNamePolicy("sanitize"))
	assert.Error(t, v.ValidateToolNamePolicy("lenient"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level), level)
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("clean config has no errors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = []ProviderProfile{{Provider: "anthropic", APIKey: "sk-ant-x"}}

		errs := v.ValidateConfig(cfg)
		assert.Empty(t, errs)
	})

	t.Run("collects every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers = []ProviderProfile{{Provider: "anthropic", APIKey: "bad-key"}}
		cfg.Routing.DefaultClass = "turbo"
		cfg.ToolNamePolicy = "lenient"
		cfg.Breaker.FailureThreshold = -1
		cfg.Logging.Level = "trace"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 5)
	})
}
