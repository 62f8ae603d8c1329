package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend/local"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local interpreter service",
	Long: `Run the sandboxed Python interpreter service. On first start this creates
the sandbox virtual environment and installs the base analysis packages, which
can take a few minutes.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := local.NewServer(local.ServerConfig{
		Addr:           cfg.Interpreter.Addr,
		SandboxRoot:    cfg.Interpreter.SandboxRoot,
		ExecTimeout:    cfg.Interpreter.ExecTimeout,
		InstallTimeout: cfg.Interpreter.InstallTimeout,
	}, log.GetZerolog())

	janitor := local.NewJanitor(server.Env(), cfg.Janitor.TTL, log.GetZerolog())
	if err := janitor.Start(cfg.Janitor.Schedule); err != nil {
		return err
	}
	defer janitor.Stop()

	return server.Start(ctx)
}
