package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ngoclaw/ngoclaw/gateway/internal/application"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/gateway/internal/infrastructure/logger"
	"github.com/ngoclaw/ngoclaw/gateway/internal/interfaces/cli"
)

const (
	appName    = "ngoclaw"
	appVersion = "0.2.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the cobra command tree: `run` drives one goal to
// completion non-interactively, `repl` starts the interactive shell, and
// `version` prints the build version. Invoking the binary with no
// subcommand falls back to `repl`, matching the teacher's single-entrypoint
// habit.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     appName,
		Short:   "NGOClaw — an autonomous agent kernel with closed-loop self-evolution",
		Version: appVersion,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var initGoal string
			if len(args) == 1 {
				initGoal = args[0]
			}
			return runREPL(cmd.Context(), initGoal)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("%s v{{.Version}}\n", appName))

	root.AddCommand(newRunCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <goal>",
		Short: "Drive one agent run to completion against a goal, non-interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), args[0])
		},
	}
}

func newReplCmd() *cobra.Command {
	var initGoal string
	c := &cobra.Command{
		Use:   "repl",
		Short: "Start the interactive REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), initGoal)
		},
	}
	c.Flags().StringVar(&initGoal, "goal", "", "run this goal once before dropping into the REPL")
	return c
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s v%s\n", appName, appVersion)
			return nil
		},
	}
}

// bootstrap wires logging, the ~/.ngoclaw home directory, layered config,
// and the application orchestrator — shared by both `run` and `repl`.
func bootstrap() (*application.App, *config.Config, error) {
	log, err := logger.NewLogger(logger.Config{
		Level:      "warn", // the REPL/run output is the foreground UI; keep stderr quiet
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}

	if err := config.Bootstrap(log); err != nil {
		log.Warn("failed to bootstrap config home directory", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	app, err := application.New(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize application: %w", err)
	}
	return app, cfg, nil
}

func runOnce(ctx context.Context, goal string) error {
	app, _, err := bootstrap()
	if err != nil {
		return err
	}
	defer app.Shutdown(ctx)

	result, err := app.Run(ctx, goal, nil, nil)
	if result != nil && result.Agent != nil {
		fmt.Println(result.Agent.FinalDelta.Description)
		fmt.Printf("%d steps, %d/%d milestones reached\n",
			result.Agent.TotalSteps, result.Agent.MilestonesHit, result.Agent.TotalMilestones)
	}
	return err
}

func runREPL(ctx context.Context, initGoal string) error {
	app, cfg, err := bootstrap()
	if err != nil {
		return err
	}

	replCfg := cli.REPLConfig{
		Model:      cfg.Agent.DefaultModel,
		Workspace:  cfg.Agent.Workspace,
		ToolCount:  len(app.ToolNames()),
		InitPrompt: initGoal,
	}

	err = cli.RunREPL(app, replCfg)
	if shutdownErr := app.Shutdown(ctx); shutdownErr != nil {
		app.Logger().Warn("error during shutdown", zap.Error(shutdownErr))
	}
	return err
}
