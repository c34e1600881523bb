// Package orchestrator runs repair episodes: the bounded-retry loop that
// proposes candidates, gates and executes them, scores outcomes, feeds the
// bandits, and appends to the persisted learning log. Episodes are
// independent; only the bandits and the failure index are shared.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mend/internal/agent"
	"mend/internal/learning"
	"mend/internal/logging"
	"mend/internal/planner"
	"mend/internal/repair"
	"mend/internal/store"
	"mend/internal/tasks"
)

// State is one phase of the per-task state machine.
type State string

const (
	StateProposing State = "PROPOSING"
	StateGating    State = "GATING"
	StateExecuting State = "EXECUTING"
	StateScoring   State = "SCORING"
	StatePassed    State = "PASSED"
	StateExhausted State = "EXHAUSTED"
)

// GateResult is the gate's verdict on one candidate.
type GateResult struct {
	Accepted bool
	Reason   string
}

// Gate is the external deterministic patch-acceptance capability. A normal
// rejection is a result, not an error; an error is a fatal collaborator
// failure that aborts the episode.
type Gate interface {
	Check(ctx context.Context, task tasks.Task, patchText string) (GateResult, error)
}

// ExecResult reports one execution of a gated patch against the test suite.
type ExecResult struct {
	Passed    bool
	TestDelta int
	Runtime   time.Duration
	Output    string
}

// Executor is the external test-execution capability.
type Executor interface {
	Execute(ctx context.Context, task tasks.Task, patchText string) (ExecResult, error)
}

// EpisodeRecorder persists learning-log rows. *store.StateStore satisfies it.
type EpisodeRecorder interface {
	RecordEpisode(rec store.EpisodeRecord) error
}

// Config bounds one episode.
type Config struct {
	MaxAttempts   int
	MaxCandidates int
	Parallelism   int
}

// DefaultConfig returns the standard episode bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   6,
		MaxCandidates: agent.DefaultMaxCandidates,
		Parallelism:   1,
	}
}

// Engine owns the shared learning state and external capabilities for a run.
type Engine struct {
	Builder   *agent.ContextBuilder
	Planners  *planner.Registry
	Generator agent.Generator
	Critic    agent.Critic
	Gate      Gate
	Executor  Executor
	// Recorder is optional; nil disables learning-log persistence.
	Recorder EpisodeRecorder
	Config   Config
}

// EpisodeResult summarizes one finished episode.
type EpisodeResult struct {
	ID             string
	TaskID         string
	Repo           string
	State          State
	Passed         bool
	Attempts       int
	GateRejections int
	FinalPatch     string
	FinalSummary   string
	Err            string
}

// RunEpisode drives one task through the bounded-retry loop until the first
// executor pass, attempt exhaustion, or a fatal collaborator error. Fatal
// errors abort only this episode; bandit updates already applied from
// completed attempts remain valid.
func (e *Engine) RunEpisode(ctx context.Context, task tasks.Task) EpisodeResult {
	cfg := e.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}

	res := EpisodeResult{ID: uuid.NewString(), TaskID: task.ID, Repo: task.Repo, State: StateProposing}
	bucket := repair.ClassifyBucket(task.FailureText())
	lastFailure := task.FailureText()

	logging.Orchestrator("Episode start: id=%s task=%s repo=%s bucket=%s", res.ID, task.ID, task.Repo, bucket)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			res.State = StateExhausted
			res.Err = fmt.Sprintf("episode abandoned: %v", ctx.Err())
			return res
		}
		res.Attempts = attempt

		res.State = StateProposing
		uctx := e.Builder.Build(task, lastFailure)
		plan := e.Planners.Get(uctx.PlannerName)(task, uctx.Hits)
		candidates := agent.Propose(ctx, e.Generator, e.Critic, task,
			agent.PromptContext{Plan: plan, Upstream: uctx}, cfg.MaxCandidates)

		executed := false
		var outcome learning.Outcome
		var executedSummary string

		for _, cand := range candidates {
			res.State = StateGating
			gate, err := e.Gate.Check(ctx, task, cand.PatchText)
			if err != nil {
				return e.abort(res, task, bucket, uctx, fmt.Errorf("gate failure: %w", err))
			}
			if !gate.Accepted {
				res.GateRejections++
				logging.OrchestratorDebug("Gate rejected candidate for task=%s: %s", task.ID, gate.Reason)
				continue
			}

			res.State = StateExecuting
			exec, err := e.Executor.Execute(ctx, task, cand.PatchText)
			if err != nil {
				return e.abort(res, task, bucket, uctx, fmt.Errorf("executor failure: %w", err))
			}

			executed = true
			executedSummary = cand.Summary
			outcome = learning.Outcome{
				Passed:        exec.Passed,
				TestDelta:     exec.TestDelta,
				Runtime:       exec.Runtime,
				CritiqueScore: cand.Critique.Score,
			}
			if !exec.Passed {
				outcome.ErrorMessage = firstLine(exec.Output)
				lastFailure = exec.Output
			}

			if exec.Passed {
				res.FinalPatch = cand.PatchText
				res.FinalSummary = cand.Summary
				break
			}
		}

		res.State = StateScoring
		if executed {
			e.score(task, bucket, uctx, outcome, executedSummary, attempt, lastFailure)
		}

		if outcome.Passed {
			res.State = StatePassed
			res.Passed = true
			logging.Orchestrator("Episode PASSED: task=%s attempts=%d", task.ID, attempt)
			return res
		}
	}

	res.State = StateExhausted
	logging.Orchestrator("Episode EXHAUSTED: task=%s attempts=%d", task.ID, res.Attempts)
	return res
}

// score applies the attempt's reward to the chosen bandit arms, records the
// failure for future retrieval, and appends to the learning log. Called only
// for executed attempts. No lock is held here: bandit and index do their own
// short internal locking.
func (e *Engine) score(task tasks.Task, bucket string, uctx agent.UpstreamContext, outcome learning.Outcome, patchSummary string, attempt int, failureText string) {
	reward := learning.Score(outcome)

	// Graded update: a pass credits alpha by the reward; a failure charges
	// beta by the shortfall, so near-misses penalize less than disasters.
	weight := reward
	if !outcome.Passed {
		weight = 1 - reward
	}
	e.Builder.PlannerBandit.Update(uctx.PlannerName, outcome.Passed, weight)
	e.Builder.StrategyBandit.Update(uctx.Strategy, outcome.Passed, weight)

	e.Builder.Index.Insert(task.Repo, failureText, nil, patchSummary, outcome.Passed)

	if e.Recorder != nil {
		rec := store.EpisodeRecord{
			TaskID:   task.ID,
			Repo:     task.Repo,
			Bucket:   bucket,
			Planner:  uctx.PlannerName,
			Strategy: uctx.Strategy,
			Template: uctx.Template,
			Outcome:  outcome,
			Reward:   reward,
			Attempts: attempt,
		}
		if err := e.Recorder.RecordEpisode(rec); err != nil {
			logging.Orchestrator("Failed to record episode for task=%s: %v", task.ID, err)
		}
	}
}

// abort finalizes an episode after a fatal collaborator error. The error is
// recorded but never propagated: one broken episode must not sink a batch.
func (e *Engine) abort(res EpisodeResult, task tasks.Task, bucket string, uctx agent.UpstreamContext, err error) EpisodeResult {
	res.State = StateExhausted
	res.Err = err.Error()
	logging.Orchestrator("Episode aborted: task=%s err=%v", task.ID, err)

	if e.Recorder != nil {
		rec := store.EpisodeRecord{
			TaskID:   task.ID,
			Repo:     task.Repo,
			Bucket:   bucket,
			Planner:  uctx.PlannerName,
			Strategy: uctx.Strategy,
			Template: uctx.Template,
			Outcome:  learning.Outcome{ErrorMessage: err.Error()},
			Attempts: res.Attempts,
		}
		if recErr := e.Recorder.RecordEpisode(rec); recErr != nil {
			logging.Orchestrator("Failed to record aborted episode for task=%s: %v", task.ID, recErr)
		}
	}
	return res
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
