package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mend/internal/tasks"
)

var ciMinPassRate float64

// ciResult is the machine-readable benchmark verdict, printed as a single
// JSON line for CI pipelines to parse.
type ciResult struct {
	Tasks    int     `json:"tasks"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Aborted  int     `json:"aborted"`
	PassRate float64 `json:"pass_rate"`
	Strict   bool    `json:"strict"`
	OK       bool    `json:"ok"`
	Error    string  `json:"error,omitempty"`
}

// ciCmd runs the benchmark in CI mode: no interactive niceties, a single
// JSON verdict line, and a nonzero exit when the bar is missed.
// MEND_BENCH_STRICT must be set explicitly (0 or 1); an unset flag fails the
// run before any episode starts. Strict mode additionally treats any aborted
// episode (collaborator failure, degraded LLM) as a benchmark failure rather
// than a skip.
var ciCmd = &cobra.Command{
	Use:   "ci [dataset]",
	Short: "Run the benchmark for CI with a machine-readable verdict",
	Args:  cobra.ExactArgs(1),
	RunE:  runCI,
}

func init() {
	ciCmd.Flags().Float64Var(&ciMinPassRate, "min-pass-rate", 0, "fail the run below this pass rate [0,1]")
}

// strictFromEnv reads MEND_BENCH_STRICT. The flag must be set explicitly in
// ci mode; absence is a configuration error, not a default.
func strictFromEnv() (bool, error) {
	v, ok := os.LookupEnv("MEND_BENCH_STRICT")
	if !ok {
		return false, fmt.Errorf("strict_mode_not_set")
	}
	return v == "1", nil
}

func runCI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	strict, err := strictFromEnv()
	if err != nil {
		line, _ := json.Marshal(ciResult{Error: err.Error()})
		fmt.Printf("MEND_CI_RESULT %s\n", line)
		return fmt.Errorf("MEND_BENCH_STRICT must be set explicitly in ci mode (0 or 1)")
	}

	batch, err := tasks.Load(args[0], cfg.Learning.MaxTasks)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return fmt.Errorf("dataset %s contains no tasks", args[0])
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	result := rt.engine.RunBatch(ctx, batch)
	if err := rt.checkpoint(); err != nil {
		return err
	}

	verdict := ciResult{
		Tasks:    len(batch),
		Passed:   result.Passed,
		Failed:   result.Failed,
		Aborted:  result.Aborted,
		PassRate: float64(result.Passed) / float64(len(batch)),
		Strict:   strict,
	}
	verdict.OK = verdict.PassRate >= ciMinPassRate && (!strict || result.Aborted == 0)
	if !verdict.OK {
		if strict && result.Aborted > 0 {
			verdict.Error = fmt.Sprintf("strict benchmark: %d episode(s) aborted on collaborator errors", result.Aborted)
		} else {
			verdict.Error = fmt.Sprintf("pass rate %.3f below required %.3f", verdict.PassRate, ciMinPassRate)
		}
	}

	line, _ := json.Marshal(verdict)
	fmt.Printf("MEND_CI_RESULT %s\n", line)

	if !verdict.OK {
		return fmt.Errorf("%s", verdict.Error)
	}
	return nil
}
