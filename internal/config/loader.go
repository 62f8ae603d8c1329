package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to determine config path")
	}

	// Missing file means defaults plus environment overrides
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		applyDefaults(cfg)
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("EXCEL_AGENT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills in paths derived from the data directory.
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		cfg.DataDir = filepath.Join(home, ".excel-agent")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "excel-agent.log")
	}
	if cfg.Interpreter.SandboxRoot == "" {
		cfg.Interpreter.SandboxRoot = filepath.Join(cfg.DataDir, "sandbox")
	}
	if cfg.Platform.PlotsDir == "" {
		cfg.Platform.PlotsDir = filepath.Join(cfg.DataDir, "plots")
	}
	if cfg.Knowledge.DBPath == "" {
		cfg.Knowledge.DBPath = filepath.Join(cfg.DataDir, "knowledge.db")
	}
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("backend", cfg.Backend)
	v.Set("interpreter", cfg.Interpreter)
	v.Set("platform", cfg.Platform)
	v.Set("providers", cfg.Providers)
	v.Set("orchestrator", cfg.Orchestrator)
	v.Set("knowledge", cfg.Knowledge)
	v.Set("janitor", cfg.Janitor)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".excel-agent", "config.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
