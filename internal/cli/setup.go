package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/config"
	"github.com/Dhruv1969Karnwal/excel-agent/internal/logger"
	"github.com/Dhruv1969Karnwal/excel-agent/internal/observability"
)

// loadConfigAndLogger loads the configuration and builds the root logger,
// applying the global flag overrides.
func loadConfigAndLogger(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.DataDir != "" {
		if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
			log.Warn().Err(err).Msg("Audit log unavailable")
		}
	}

	return cfg, log, nil
}
