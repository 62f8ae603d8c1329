package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "sk-ant-test123"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("valid local config", func(t *testing.T) {
		assert.NoError(t, Validate(validConfig()))
	})

	t.Run("valid remote config", func(t *testing.T) {
		cfg := validConfig()
		cfg.Backend = "remote"
		cfg.Platform.BaseURL = "https://deploy.example.com"
		cfg.Platform.SessionToken = "tok"
		cfg.Platform.EnvironmentID = "env-1"
		cfg.Platform.ProjectID = "proj-1"
		assert.NoError(t, Validate(cfg))
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.Backend = "docker"
		err := Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "backend")
	})

	t.Run("remote backend missing platform fields", func(t *testing.T) {
		cfg := validConfig()
		cfg.Backend = "remote"
		err := Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "platform.base_url")
		assert.Contains(t, err.Error(), "platform.session_token")
		assert.Contains(t, err.Error(), "platform.environment_id")
		assert.Contains(t, err.Error(), "platform.project_id")
	})

	t.Run("local backend missing base url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Interpreter.BaseURL = ""
		err := Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "interpreter.base_url")
	})

	t.Run("missing api key for default provider", func(t *testing.T) {
		cfg := DefaultConfig()
		err := Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "providers.anthropic.api_key")
	})

	t.Run("unknown default provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Providers.Default = "cohere"
		err := Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "providers.default")
	})

	t.Run("soft iteration bound exceeds hard bound", func(t *testing.T) {
		cfg := validConfig()
		cfg.Orchestrator.SoftIterations = 50
		err := Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "soft_iterations")
	})

	t.Run("non positive max iterations", func(t *testing.T) {
		cfg := validConfig()
		cfg.Orchestrator.MaxIterations = 0
		cfg.Orchestrator.SoftIterations = 0
		err := Validate(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "max_iterations")
	})

	t.Run("aggregates multiple errors", func(t *testing.T) {
		cfg := validConfig()
		cfg.Backend = "docker"
		cfg.Knowledge.TopK = 0
		err := Validate(cfg)
		assert.Error(t, err)
		errs, ok := err.(ValidationErrors)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, len(errs), 2)
	})
}
