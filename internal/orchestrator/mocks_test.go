package orchestrator

import (
	"context"
	"sync"
	"time"

	"mend/internal/agent"
	"mend/internal/embedding"
	"mend/internal/learning"
	"mend/internal/planner"
	"mend/internal/retrieval"
	"mend/internal/skills"
	"mend/internal/store"
	"mend/internal/tasks"
)

const validPatch = "diff --git a/solver.py b/solver.py\n--- a/solver.py\n+++ b/solver.py\n@@ -1 +1 @@\n-x\n+y\n"

type mockGenerator struct {
	mu         sync.Mutex
	candidates []agent.Candidate
	err        error
	calls      int
}

func (m *mockGenerator) Generate(_ context.Context, _ agent.PromptContext) ([]agent.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]agent.Candidate, len(m.candidates))
	copy(out, m.candidates)
	return out, nil
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockCritic struct {
	score float64
}

func (m *mockCritic) Critique(_ context.Context, _ tasks.Task, _ string) (agent.Critique, error) {
	return agent.Critique{Approved: true, Score: m.score, Reasoning: "looks fine"}, nil
}

type mockGate struct {
	accept bool
	reason string
	err    error
}

func (m *mockGate) Check(_ context.Context, _ tasks.Task, _ string) (GateResult, error) {
	if m.err != nil {
		return GateResult{}, m.err
	}
	return GateResult{Accepted: m.accept, Reason: m.reason}, nil
}

// mockExecutor passes on the Nth execution (1-based); 0 means never.
type mockExecutor struct {
	mu     sync.Mutex
	passOn int
	calls  int
	err    error
}

func (m *mockExecutor) Execute(_ context.Context, _ tasks.Task, _ string) (ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return ExecResult{}, m.err
	}
	if m.passOn > 0 && m.calls >= m.passOn {
		return ExecResult{Passed: true, TestDelta: 2, Runtime: 10 * time.Millisecond}, nil
	}
	return ExecResult{Output: "FAILED tests/test_solver.py::test_roots - AssertionError\nexpected 2 got 3", Runtime: 10 * time.Millisecond}, nil
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRecorder struct {
	mu   sync.Mutex
	err  error
	recs []store.EpisodeRecord
}

func (m *mockRecorder) RecordEpisode(rec store.EpisodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *mockRecorder) records() []store.EpisodeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.EpisodeRecord, len(m.recs))
	copy(out, m.recs)
	return out
}

func newTestEngine(gen agent.Generator, gate Gate, exec Executor) *Engine {
	engine := embedding.NewHashEngine(64)
	builder := &agent.ContextBuilder{
		Index:          retrieval.NewFailureIndex(engine),
		Skills:         skills.DefaultRegistry(),
		PlannerBandit:  learning.NewBandit(planner.DefaultPlanner, "planner_v2"),
		StrategyBandit: learning.NewBandit(learning.DefaultStrategies...),
	}
	return &Engine{
		Builder:   builder,
		Planners:  planner.DefaultRegistry(),
		Generator: gen,
		Critic:    &mockCritic{score: 0.9},
		Gate:      gate,
		Executor:  exec,
		Config:    Config{MaxAttempts: 3, MaxCandidates: 2, Parallelism: 2},
	}
}

func fixtureTask(id string) tasks.Task {
	return tasks.Task{
		ID:               id,
		Repo:             "sympy/sympy",
		ProblemStatement: "Polynomial roots come back in the wrong order",
		FailLog:          "FAILED tests/test_solver.py::test_roots - AssertionError: expected [1, 2]",
		FailingFiles:     []string{"tests/test_solver.py"},
	}
}
