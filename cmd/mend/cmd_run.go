package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mend/internal/orchestrator"
	"mend/internal/tasks"
)

var (
	runMaxTasks   int
	runReportPath string
)

// runCmd runs the learning loop over a dataset.
var runCmd = &cobra.Command{
	Use:   "run [dataset]",
	Short: "Run repair episodes over a task dataset",
	Long: `Loads tasks from a JSON or JSONL dataset and runs each one as a repair
episode. Learned state (bandit posteriors and the failure index) is restored
from the state store before the batch and checkpointed after it, so repeated
runs accumulate experience.

Example:
  mend run data/swebench_lite.jsonl --max-tasks 50`,
	Args: cobra.ExactArgs(1),
	RunE: runLoop,
}

func init() {
	runCmd.Flags().IntVar(&runMaxTasks, "max-tasks", 0, "cap on tasks loaded from the dataset (0 = all)")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "report output path (default from config)")
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	maxTasks := runMaxTasks
	if maxTasks <= 0 {
		maxTasks = cfg.Learning.MaxTasks
	}
	batch, err := tasks.Load(args[0], maxTasks)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return fmt.Errorf("dataset %s contains no tasks", args[0])
	}
	logger.Info("dataset loaded", zap.String("path", args[0]), zap.Int("tasks", len(batch)))

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	result := rt.engine.RunBatch(ctx, batch)
	if err := rt.checkpoint(); err != nil {
		return err
	}

	summary, err := rt.store.Summarize()
	if err != nil {
		return fmt.Errorf("failed to summarize learning log: %w", err)
	}

	reportPath := runReportPath
	if reportPath == "" {
		reportPath = filepath.Join(workspace, cfg.Store.ReportPath)
	}
	report := orchestrator.BuildReport(result, summary)
	if err := orchestrator.WriteReport(reportPath, report); err != nil {
		return err
	}

	fmt.Printf("Tasks:   %d\n", report.Tasks)
	fmt.Printf("Passed:  %d\n", report.Passed)
	fmt.Printf("Failed:  %d\n", report.Failed)
	fmt.Printf("Aborted: %d\n", report.Aborted)
	fmt.Printf("Report:  %s\n", reportPath)
	return nil
}
