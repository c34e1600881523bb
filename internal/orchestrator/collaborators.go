package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mend/internal/tasks"
)

// StaticGate applies cheap structural checks to a patch without touching the
// workspace: non-empty, unified-diff shaped, and under a size ceiling. It
// stands in when no project-specific gate is wired.
type StaticGate struct {
	// MaxPatchBytes rejects runaway patches; 0 means no ceiling.
	MaxPatchBytes int
}

func (g StaticGate) Check(_ context.Context, _ tasks.Task, patchText string) (GateResult, error) {
	trimmed := strings.TrimSpace(patchText)
	if trimmed == "" {
		return GateResult{Reason: "empty patch"}, nil
	}
	if g.MaxPatchBytes > 0 && len(patchText) > g.MaxPatchBytes {
		return GateResult{Reason: fmt.Sprintf("patch exceeds %d bytes", g.MaxPatchBytes)}, nil
	}
	if !strings.Contains(trimmed, "--- ") && !strings.HasPrefix(trimmed, "diff --git") {
		return GateResult{Reason: "not a unified diff"}, nil
	}
	return GateResult{Accepted: true}, nil
}

// CommandExecutor shells out to a harness command with the patch on stdin
// and MEND_TASK_ID/MEND_REPO in the environment. Exit code zero means the
// failing tests now pass. A missing or crashing harness is an executor
// error; a nonzero exit is a normal failed run.
type CommandExecutor struct {
	Command []string
	Timeout time.Duration
}

func (c CommandExecutor) Execute(ctx context.Context, task tasks.Task, patchText string) (ExecResult, error) {
	if len(c.Command) == 0 {
		return ExecResult{}, fmt.Errorf("no harness command configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdin = strings.NewReader(patchText)
	cmd.Env = append(cmd.Environ(),
		"MEND_TASK_ID="+task.ID,
		"MEND_REPO="+task.Repo,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	runtime := time.Since(start)

	if err == nil {
		return ExecResult{Passed: true, TestDelta: len(task.FailingFiles), Runtime: runtime, Output: out.String()}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExecResult{Runtime: runtime, Output: out.String()}, nil
	}
	return ExecResult{}, fmt.Errorf("harness did not run: %w", err)
}
