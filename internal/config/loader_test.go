package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "sanitize", cfg.ToolNamePolicy)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"providers": [
				{"provider": "anthropic", "api_key": "sk-ant-test", "priority": 0}
			],
			"routing": {
				"default_class": "fast",
				"allow_fallback": true
			},
			"tool_name_policy": "strict",
			"data_dir": "` + tmpDir + `"
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		require.Len(t, cfg.Providers, 1)
		assert.Equal(t, "anthropic", cfg.Providers[0].Provider)
		assert.Equal(t, "sk-ant-test", cfg.Providers[0].APIKey)
		assert.Equal(t, "fast", cfg.Routing.DefaultClass)
		assert.Equal(t, "strict", cfg.ToolNamePolicy)
		assert.Equal(t, tmpDir, cfg.DataDir)
	})

	t.Run("defaults fill unspecified sections", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"providers": [
				{"provider": "openai", "api_key": "sk-test", "priority": 0}
			],
			"data_dir": "` + tmpDir + `"
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Breaker.FailureThreshold)
		assert.Equal(t, 1024, cfg.MemoryPool.KVCapacity)
		assert.Equal(t, filepath.Join(tmpDir, "ranya.log"), cfg.Logging.File)
	})

	t.Run("invalid json fails", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0644))

		loader := NewLoader(configPath)
		_, err := loader.Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.Providers = []ProviderProfile{{Provider: "anthropic", APIKey: "sk-ant-save", Priority: 0}}
	cfg.DataDir = tmpDir

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	reloaded, err := loader.Load()
	require.NoError(t, err)
	require.Len(t, reloaded.Providers, 1)
	assert.Equal(t, "sk-ant-save", reloaded.Providers[0].APIKey)
	assert.Equal(t, cfg.ToolNamePolicy, reloaded.ToolNamePolicy)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/custom/path.json")
	assert.Equal(t, "/custom/path.json", loader.GetConfigPath())

	defaultLoader := NewLoader("")
	path := defaultLoader.GetConfigPath()
	assert.Contains(t, path, ".ranya")
}
