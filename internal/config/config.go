package config

import (
	"time"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/logger"
)

// Config is the root configuration for the analysis engine.
type Config struct {
	// Backend selects the execution backend: "local" or "remote".
	Backend string `mapstructure:"backend" json:"backend"`

	Interpreter  InterpreterConfig  `mapstructure:"interpreter" json:"interpreter"`
	Platform     PlatformConfig     `mapstructure:"platform" json:"platform"`
	Providers    ProvidersConfig    `mapstructure:"providers" json:"providers"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" json:"orchestrator"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge" json:"knowledge"`
	Janitor      JanitorConfig      `mapstructure:"janitor" json:"janitor"`
	Logging      logger.Config      `mapstructure:"logging" json:"logging"`

	DataDir string `mapstructure:"data_dir" json:"data_dir"`
}

// InterpreterConfig configures the local interpreter service and its client.
type InterpreterConfig struct {
	Addr           string        `mapstructure:"addr" json:"addr"`
	BaseURL        string        `mapstructure:"base_url" json:"base_url"`
	SandboxRoot    string        `mapstructure:"sandbox_root" json:"sandbox_root"`
	ExecTimeout    time.Duration `mapstructure:"exec_timeout" json:"exec_timeout"`
	InstallTimeout time.Duration `mapstructure:"install_timeout" json:"install_timeout"`
}

// PlatformConfig configures the remote deployment platform.
type PlatformConfig struct {
	BaseURL       string        `mapstructure:"base_url" json:"base_url"`
	SessionToken  string        `mapstructure:"session_token" json:"session_token"`
	EnvironmentID string        `mapstructure:"environment_id" json:"environment_id"`
	ProjectID     string        `mapstructure:"project_id" json:"project_id"`
	PlotsDir      string        `mapstructure:"plots_dir" json:"plots_dir"`
	PollInterval  time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	PollAttempts  int           `mapstructure:"poll_attempts" json:"poll_attempts"`
	StartupGrace  time.Duration `mapstructure:"startup_grace" json:"startup_grace"`
}

// ProvidersConfig holds model provider credentials and selection.
type ProvidersConfig struct {
	Default   string         `mapstructure:"default" json:"default"`
	Anthropic ProviderConfig `mapstructure:"anthropic" json:"anthropic"`
	OpenAI    ProviderConfig `mapstructure:"openai" json:"openai"`
}

// ProviderConfig holds one provider's credentials and model choice.
type ProviderConfig struct {
	APIKey    string `mapstructure:"api_key" json:"api_key"`
	Model     string `mapstructure:"model" json:"model"`
	MaxTokens int    `mapstructure:"max_tokens" json:"max_tokens"`
}

// OrchestratorConfig bounds the step worker loop.
type OrchestratorConfig struct {
	MaxIterations  int           `mapstructure:"max_iterations" json:"max_iterations"`
	SoftIterations int           `mapstructure:"soft_iterations" json:"soft_iterations"`
	LLMRetries     int           `mapstructure:"llm_retries" json:"llm_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" json:"retry_base_delay"`
}

// KnowledgeConfig configures the snippet knowledge base.
type KnowledgeConfig struct {
	DBPath            string `mapstructure:"db_path" json:"db_path"`
	EmbeddingEndpoint string `mapstructure:"embedding_endpoint" json:"embedding_endpoint"`
	EmbeddingModel    string `mapstructure:"embedding_model" json:"embedding_model"`
	EmbeddingDims     int    `mapstructure:"embedding_dims" json:"embedding_dims"`
	TopK              int    `mapstructure:"top_k" json:"top_k"`
}

// JanitorConfig configures the sandbox artifact sweep.
type JanitorConfig struct {
	Schedule string        `mapstructure:"schedule" json:"schedule"`
	TTL      time.Duration `mapstructure:"ttl" json:"ttl"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Backend: "local",
		Interpreter: InterpreterConfig{
			Addr:           ":8000",
			BaseURL:        "http://localhost:8000",
			ExecTimeout:    120 * time.Second,
			InstallTimeout: 120 * time.Second,
		},
		Platform: PlatformConfig{
			PollInterval: 2 * time.Second,
			PollAttempts: 60,
			StartupGrace: 5 * time.Second,
		},
		Providers: ProvidersConfig{
			Default: "anthropic",
			Anthropic: ProviderConfig{
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 8192,
			},
			OpenAI: ProviderConfig{
				Model:     "gpt-4o",
				MaxTokens: 8192,
			},
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:  40,
			SoftIterations: 10,
			LLMRetries:     3,
			RetryBaseDelay: time.Second,
		},
		Knowledge: KnowledgeConfig{
			EmbeddingModel: "text-embedding-3-small",
			EmbeddingDims:  1536,
			TopK:           5,
		},
		Janitor: JanitorConfig{
			Schedule: "@hourly",
			TTL:      24 * time.Hour,
		},
		Logging: logger.DefaultConfig(),
	}
}
