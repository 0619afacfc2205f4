// Package main provides the CLI entry point for the IronClaw agent runtime.
//
// IronClaw runs an autonomous agentic loop over a capability-scoped WASM
// sandbox and a per-job Docker container orchestrator, with a credential
// vault, a cost guard, and a tool-output safety pipeline sitting between
// the model and anything it touches.
//
// # Basic usage
//
//	ironclaw serve --config ironclaw.yaml
//	ironclaw status
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironclaw/ironclaw/internal/agent"
	"github.com/ironclaw/ironclaw/internal/channels"
	"github.com/ironclaw/ironclaw/internal/checkpoint"
	"github.com/ironclaw/ironclaw/internal/config"
	"github.com/ironclaw/ironclaw/internal/costguard"
	"github.com/ironclaw/ironclaw/internal/egress"
	"github.com/ironclaw/ironclaw/internal/jobs"
	"github.com/ironclaw/ironclaw/internal/orchestrator"
	"github.com/ironclaw/ironclaw/internal/providers/venice"
	"github.com/ironclaw/ironclaw/internal/safety"
	"github.com/ironclaw/ironclaw/internal/secrets"
	"github.com/ironclaw/ironclaw/internal/sessions"
	"github.com/ironclaw/ironclaw/internal/storage"
	exectools "github.com/ironclaw/ironclaw/internal/tools/exec"
	"github.com/ironclaw/ironclaw/internal/tools/files"
	"github.com/ironclaw/ironclaw/internal/wasmrt"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

// checkpointDepth bounds how many turns can be undone per thread.
// checkpointMaxSessions bounds how many threads are tracked before the
// least-recently-touched one is evicted.
const (
	checkpointDepth       = 10
	checkpointMaxSessions = 500
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ironclaw",
		Short:        "IronClaw - local-first autonomous AI agent runtime",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "ironclaw.yaml", "path to configuration file")
	root.AddCommand(buildServeCmd(), buildStatusCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the agent runtime, job orchestrator, and internal APIs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a snapshot of runtime health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fmt.Printf("workspace: %s\n", cfg.Workspace.Path)
			fmt.Printf("version:   %s (%s)\n", version, commit)
			return nil
		},
	}
}

// runServe wires together the subsystems built to host and police
// autonomous tool execution: a cost guard in front of every LLM/tool
// call, a credential vault for outbound requests, a safety pipeline on
// every tool result, a capability-scoped WASM runtime for dynamic tools,
// and a Docker orchestrator + egress proxy for heavier sandboxed jobs.
func runServe(ctx context.Context) error {
	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	guard := costguard.New(costguard.Config{
		DailyLimitCents: int64(cfg.LLM.DailyBudgetCents),
		HourlyLimit:     cfg.LLM.HourlyRateLimit,
	})

	masterKey, err := secrets.LoadMasterKey(true)
	if err != nil {
		return fmt.Errorf("loading secrets master key: %w", err)
	}
	vault, err := secrets.New(masterKey, secrets.NewMemoryStore())
	if err != nil {
		return fmt.Errorf("initializing secrets vault: %w", err)
	}
	defer vault.Close()

	pipeline := safety.NewPipeline(safety.DefaultMaxOutputBytes,
		safety.NewLeakDetector(safety.DefaultLeakPatterns),
		nil,
		safety.NewSanitizer(safety.DefaultInjectionPhrases),
	)

	jobStore := jobs.NewMemoryStore()
	go jobs.RunRepairLoop(ctx, jobStore, nil, jobs.DefaultRepairConfig())

	wazeroRuntime := wasmrt.NewRuntime(ctx, wasmrt.DefaultLimits(), logger)
	defer wazeroRuntime.Close(ctx)

	var provider agent.LLMProvider
	if veniceCfg, ok := cfg.LLM.Providers["venice"]; ok && veniceCfg.APIKey != "" {
		veniceProvider, err := venice.NewVeniceProvider(venice.VeniceConfig{
			APIKey:       veniceCfg.APIKey,
			DefaultModel: veniceCfg.DefaultModel,
			BaseURL:      veniceCfg.BaseURL,
		})
		if err != nil {
			logger.Warn("venice provider unavailable", "error", err)
		} else {
			provider = veniceProvider
		}
	}
	sessionStore := sessions.NewMemoryStore()
	checkpoints := checkpoint.NewManager(checkpointDepth, checkpointMaxSessions)
	runtime := agent.NewRuntimeWithOptions(provider, sessionStore, agent.RuntimeOptions{
		CostGuard:   guard,
		Safety:      pipeline,
		Checkpoints: checkpoints,
		JobStore:    jobStore,
	})

	stores := storage.NewMemoryStores()
	runtime.SetActionLog(stores.Actions)
	runtime.SetToolFailureStore(stores.ToolFailures)

	workspaceRoot := cfg.Workspace.Path
	execManager := exectools.NewManager(workspaceRoot)
	runtime.RegisterTool(exectools.NewExecTool("exec", execManager))
	runtime.RegisterTool(exectools.NewProcessTool(execManager))
	fileCfg := files.Config{Workspace: workspaceRoot}
	runtime.RegisterTool(files.NewReadTool(fileCfg))
	runtime.RegisterTool(files.NewWriteTool(fileCfg))
	runtime.RegisterTool(files.NewEditTool(fileCfg))
	runtime.RegisterTool(files.NewApplyPatchTool(fileCfg))

	registry := channels.NewRegistry()
	if errs := channels.RegisterConfigured(registry, cfg.Channels, logger); len(errs) > 0 {
		for _, chErr := range errs {
			logger.Warn("channel adapter unavailable", "error", chErr)
		}
	}
	if err := registry.StartAll(ctx); err != nil {
		logger.Warn("one or more channel adapters failed to start", "error", err)
	}
	defer registry.StopAll(context.Background())
	go channels.NewDispatcher(registry, runtime, sessionStore, logger).Run(ctx)

	if cfg.Tools.Sandbox.DockerEnabled {
		hardening := orchestrator.DefaultHardening(cfg.Tools.Sandbox.DockerImage, cfg.Tools.Sandbox.NetworkName)
		manager, err := orchestrator.NewManager(hardening, logger)
		if err != nil {
			logger.Warn("docker orchestrator unavailable, job sandboxing disabled", "error", err)
		} else {
			api := orchestrator.NewAPI(manager, nil, nil, nil, logger)
			addr, err := api.Start(ctx, "127.0.0.1:0")
			if err != nil {
				logger.Warn("internal worker api failed to start", "error", err)
			} else {
				logger.Info("internal worker api listening", "addr", addr)
			}
			defer api.Stop(context.Background())
		}
	}

	if len(cfg.Tools.Sandbox.EgressAllowlist) > 0 {
		allow := egress.NewAllowlist(cfg.Tools.Sandbox.EgressAllowlist)
		proxy := egress.NewProxy(allow, logger)
		_ = proxy // mounted by the orchestrator's container network once wired to an HTTP server
	}

	logger.Info("ironclaw runtime started", "version", version)
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = shutdownCtx
	return nil
}
