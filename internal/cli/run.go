package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/config"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/artifacts"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend/local"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/backend/remote"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/knowledge"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/orchestrator"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/progress"
	"github.com/Dhruv1969Karnwal/excel-agent/pkg/tools"
)

var (
	runPlanFile  string
	runSessionID string
	runFiles     []string
	runAgent     string
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Execute an analysis plan",
	Long: `Execute an analysis plan against the configured execution backend.
Either pass a plan JSON file with --plan, or give a goal as the argument to
run it as a single general analysis step.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "plan JSON file ({goal, steps:[{order, description, assigned_agent}]})")
	runCmd.Flags().StringVar(&runSessionID, "session", "", "session id (default: random)")
	runCmd.Flags().StringSliceVar(&runFiles, "file", nil, "input file available to the analysis (repeatable)")
	runCmd.Flags().StringVar(&runAgent, "agent", orchestrator.AgentGeneral, "specialist agent for single-goal runs")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Close()

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	plan, err := loadPlan(args)
	if err != nil {
		return err
	}

	sessionID := runSessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zl := log.GetZerolog()

	execBackend, err := buildBackend(cfg, sessionID, zl)
	if err != nil {
		return err
	}

	store, err := openKnowledge(ctx, cfg, zl)
	if err != nil {
		zl.Warn().Err(err).Msg("Knowledge base unavailable, continuing without it")
	} else {
		defer store.Close()
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	var searcher tools.KnowledgeSearcher
	if store != nil {
		searcher = store
	}
	invoker := tools.NewInvoker(execBackend, searcher, zl)

	notifier := progress.NewNotifier(64, zl)
	go printProgress(notifier)

	collector := artifacts.NewCollector(zl, summarizer(ctx, cfg, provider))

	dispatcher, err := orchestrator.NewDispatcher(orchestrator.DispatcherConfig{
		Provider:  provider,
		Invoker:   invoker,
		Collector: collector,
		Notifier:  notifier,
		Loop: orchestrator.LoopConfig{
			MaxIterations:  cfg.Orchestrator.MaxIterations,
			SoftIterations: cfg.Orchestrator.SoftIterations,
			LLMRetries:     cfg.Orchestrator.LLMRetries,
			RetryBaseDelay: cfg.Orchestrator.RetryBaseDelay,
			Model:          providerModel(cfg),
			MaxTokens:      providerMaxTokens(cfg),
		},
		Logger: zl,
	})
	if err != nil {
		return err
	}

	assets := make([]orchestrator.AssetFile, 0, len(runFiles))
	for _, f := range runFiles {
		assets = append(assets, orchestrator.AssetFile{Path: f})
	}

	result, err := dispatcher.Run(ctx, &orchestrator.Request{
		SessionID: sessionID,
		Plan:      plan,
		Assets:    assets,
	})
	notifier.Close()
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func loadPlan(args []string) (*orchestrator.Plan, error) {
	if runPlanFile != "" {
		data, err := os.ReadFile(runPlanFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read plan file: %w", err)
		}
		var plan orchestrator.Plan
		if err := json.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("invalid plan file: %w", err)
		}
		for i := range plan.Steps {
			if plan.Steps[i].Status == "" {
				plan.Steps[i].Status = orchestrator.StepPending
			}
		}
		return &plan, nil
	}

	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, fmt.Errorf("either --plan or a goal argument is required")
	}

	return &orchestrator.Plan{
		Goal: args[0],
		Steps: []orchestrator.AnalysisStep{
			{
				Order:         1,
				Description:   args[0],
				AssignedAgent: runAgent,
				Status:        orchestrator.StepPending,
			},
		},
	}, nil
}

func buildBackend(cfg *config.Config, sessionID string, zl zerolog.Logger) (backend.Backend, error) {
	switch cfg.Backend {
	case "local":
		return local.NewClient(cfg.Interpreter.BaseURL, zl).ForSession(sessionID), nil
	case "remote":
		client, err := remote.NewPlatformClient(remote.PlatformConfig{
			BaseURL:       cfg.Platform.BaseURL,
			SessionToken:  cfg.Platform.SessionToken,
			EnvironmentID: cfg.Platform.EnvironmentID,
			ProjectID:     cfg.Platform.ProjectID,
			PollInterval:  cfg.Platform.PollInterval,
			PollAttempts:  cfg.Platform.PollAttempts,
			StartupGrace:  cfg.Platform.StartupGrace,
		}, zl)
		if err != nil {
			return nil, err
		}
		registry := remote.NewRegistry(client, cfg.Platform.PlotsDir, zl)
		return registry.Executor(sessionID), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

func openKnowledge(ctx context.Context, cfg *config.Config, zl zerolog.Logger) (*knowledge.Store, error) {
	var embedder knowledge.EmbeddingProvider
	if cfg.Providers.OpenAI.APIKey != "" {
		embedder = knowledge.NewHTTPProvider(
			cfg.Knowledge.EmbeddingEndpoint,
			cfg.Providers.OpenAI.APIKey,
			cfg.Knowledge.EmbeddingModel,
			cfg.Knowledge.EmbeddingDims,
		)
	}

	store, err := knowledge.NewStore(knowledge.Config{
		DBPath:   cfg.Knowledge.DBPath,
		Logger:   zl,
		Embedder: embedder,
		TopK:     cfg.Knowledge.TopK,
	})
	if err != nil {
		return nil, err
	}

	if err := knowledge.Seed(ctx, store); err != nil {
		zl.Warn().Err(err).Msg("Knowledge base seeding failed")
	}
	return store, nil
}

func buildProvider(cfg *config.Config) (orchestrator.LLMProvider, error) {
	factory := &orchestrator.ProviderFactory{}
	creds := orchestrator.ProviderCredentials{Provider: cfg.Providers.Default}
	switch cfg.Providers.Default {
	case "anthropic":
		creds.APIKey = cfg.Providers.Anthropic.APIKey
		creds.Model = cfg.Providers.Anthropic.Model
		creds.MaxTokens = cfg.Providers.Anthropic.MaxTokens
	case "openai":
		creds.APIKey = cfg.Providers.OpenAI.APIKey
		creds.Model = cfg.Providers.OpenAI.Model
		creds.MaxTokens = cfg.Providers.OpenAI.MaxTokens
	}
	return factory.NewProvider(creds)
}

func providerModel(cfg *config.Config) string {
	if cfg.Providers.Default == "openai" {
		return cfg.Providers.OpenAI.Model
	}
	return cfg.Providers.Anthropic.Model
}

func providerMaxTokens(cfg *config.Config) int {
	if cfg.Providers.Default == "openai" {
		return cfg.Providers.OpenAI.MaxTokens
	}
	return cfg.Providers.Anthropic.MaxTokens
}

// summarizer builds the fallback narrative generator used when no freeform
// response qualifies as the final insight.
func summarizer(ctx context.Context, cfg *config.Config, provider orchestrator.LLMProvider) artifacts.Summarizer {
	return func(stepSummaries []string) (string, error) {
		if len(stepSummaries) == 0 {
			return "", nil
		}
		response, err := provider.Call(ctx, orchestrator.LLMRequest{
			Model:     providerModel(cfg),
			MaxTokens: providerMaxTokens(cfg),
			Messages: []orchestrator.Message{{
				Role: "user",
				Content: "Write a concise final summary of this analysis for the user, " +
					"based on these completed steps:\n- " + strings.Join(stepSummaries, "\n- "),
			}},
		})
		if err != nil {
			return "", err
		}
		return response.Content, nil
	}
}

func printProgress(notifier *progress.Notifier) {
	for event := range notifier.Events() {
		switch event.Type {
		case "step_started":
			fmt.Printf("==> step %d: %s\n", event.StepOrder, event.Message)
		case "tool_started":
			fmt.Printf("    %s...\n", event.Tool)
		case "step_completed":
			fmt.Printf("==> step %d done\n", event.StepOrder)
		}
	}
}

func printResult(result *artifacts.Result) {
	fmt.Println()
	fmt.Println(result.Message)
	fmt.Println()
	for _, artifact := range result.Artifacts {
		switch artifact.Type {
		case artifacts.TypePlot:
			fmt.Printf("[plot]  %s\n", artifact.Content)
		case artifacts.TypeTable:
			fmt.Printf("[table] %s\n%s\n", artifact.Description, artifact.Content)
		}
	}
}
