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
		assert.Equal(t, "local", cfg.Backend)
		assert.Equal(t, 40, cfg.Orchestrator.MaxIterations)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"backend": "remote",
			"platform": {
				"base_url": "https://deploy.example.com",
				"session_token": "tok-123",
				"environment_id": "env-1",
				"project_id": "proj-1"
			},
			"providers": {
				"default": "openai"
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "remote", cfg.Backend)
		assert.Equal(t, "https://deploy.example.com", cfg.Platform.BaseURL)
		assert.Equal(t, "tok-123", cfg.Platform.SessionToken)
		assert.Equal(t, "openai", cfg.Providers.Default)
		// Unset fields keep their defaults
		assert.Equal(t, 60, cfg.Platform.PollAttempts)
		assert.Equal(t, 40, cfg.Orchestrator.MaxIterations)
	})

	t.Run("invalid json", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte("{not json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()
		assert.Error(t, err)
	})

	t.Run("derived paths follow data_dir", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{"data_dir": "` + tmpDir + `"}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, filepath.Join(tmpDir, "excel-agent.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(tmpDir, "sandbox"), cfg.Interpreter.SandboxRoot)
		assert.Equal(t, filepath.Join(tmpDir, "plots"), cfg.Platform.PlotsDir)
		assert.Equal(t, filepath.Join(tmpDir, "knowledge.db"), cfg.Knowledge.DBPath)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.Backend = "remote"
	cfg.Providers.Anthropic.APIKey = "sk-ant-test"

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	reloaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "remote", reloaded.Backend)
	assert.Equal(t, "sk-ant-test", reloaded.Providers.Anthropic.APIKey)
}

func TestGetConfigPath(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		loader := NewLoader("/custom/path.json")
		assert.Equal(t, "/custom/path.json", loader.GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		loader := NewLoader("")
		path := loader.GetConfigPath()
		assert.Contains(t, path, ".excel-agent")
		assert.Contains(t, path, "config.json")
	})
}
