package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes one invalid configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one pass
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for internal consistency. It reports
// every problem it finds rather than stopping at the first.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	switch cfg.Backend {
	case "local", "remote":
	default:
		errs = append(errs, ValidationError{
			Field:   "backend",
			Message: fmt.Sprintf("must be %q or %q, got %q", "local", "remote", cfg.Backend),
		})
	}

	if cfg.Backend == "remote" {
		if cfg.Platform.BaseURL == "" {
			errs = append(errs, ValidationError{Field: "platform.base_url", Message: "required for the remote backend"})
		} else if _, err := url.Parse(cfg.Platform.BaseURL); err != nil {
			errs = append(errs, ValidationError{Field: "platform.base_url", Message: "must be a valid URL"})
		}
		if cfg.Platform.SessionToken == "" {
			errs = append(errs, ValidationError{Field: "platform.session_token", Message: "required for the remote backend"})
		}
		if cfg.Platform.EnvironmentID == "" {
			errs = append(errs, ValidationError{Field: "platform.environment_id", Message: "required for the remote backend"})
		}
		if cfg.Platform.ProjectID == "" {
			errs = append(errs, ValidationError{Field: "platform.project_id", Message: "required for the remote backend"})
		}
	}

	if cfg.Backend == "local" && cfg.Interpreter.BaseURL == "" {
		errs = append(errs, ValidationError{Field: "interpreter.base_url", Message: "required for the local backend"})
	}

	switch cfg.Providers.Default {
	case "anthropic":
		if cfg.Providers.Anthropic.APIKey == "" {
			errs = append(errs, ValidationError{Field: "providers.anthropic.api_key", Message: "required when anthropic is the default provider"})
		}
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			errs = append(errs, ValidationError{Field: "providers.openai.api_key", Message: "required when openai is the default provider"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "providers.default",
			Message: fmt.Sprintf("must be %q or %q, got %q", "anthropic", "openai", cfg.Providers.Default),
		})
	}

	if cfg.Orchestrator.MaxIterations <= 0 {
		errs = append(errs, ValidationError{Field: "orchestrator.max_iterations", Message: "must be positive"})
	}
	if cfg.Orchestrator.SoftIterations < 0 {
		errs = append(errs, ValidationError{Field: "orchestrator.soft_iterations", Message: "must not be negative"})
	}
	if cfg.Orchestrator.SoftIterations > cfg.Orchestrator.MaxIterations {
		errs = append(errs, ValidationError{Field: "orchestrator.soft_iterations", Message: "must not exceed max_iterations"})
	}

	if cfg.Knowledge.TopK <= 0 {
		errs = append(errs, ValidationError{Field: "knowledge.top_k", Message: "must be positive"})
	}
	if cfg.Knowledge.EmbeddingDims <= 0 {
		errs = append(errs, ValidationError{Field: "knowledge.embedding_dims", Message: "must be positive"})
	}

	if cfg.Janitor.TTL < 0 {
		errs = append(errs, ValidationError{Field: "janitor.ttl", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
