package agent

import (
	"context"
	"errors"
	"sync"

	"mend/internal/tasks"
)

// mockGenerator counts calls and replays scripted responses.
type mockGenerator struct {
	mu    sync.Mutex
	calls []PromptContext
	// responses is consumed one per call; the last entry repeats.
	responses [][]Candidate
	err       error
}

func (m *mockGenerator) Generate(_ context.Context, pctx PromptContext) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, pctx)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockCritic returns a fixed score for every patch.
type mockCritic struct {
	score float64
	err   error
	calls int
}

func (m *mockCritic) Critique(_ context.Context, _ tasks.Task, _ string) (Critique, error) {
	m.calls++
	if m.err != nil {
		return Critique{}, m.err
	}
	return Critique{
		Approved:    m.score >= RefineThreshold,
		Score:       m.score,
		Reasoning:   "scripted critique",
		Suggestions: []string{"tighten the diff"},
	}, nil
}

var errUnavailable = errors.New("capability unavailable")

// taskFixture returns a minimal task for propose-cycle tests.
func taskFixture() tasks.Task {
	return tasks.Task{
		ID:               "task-1",
		Repo:             "example/repo",
		ProblemStatement: "the widget renders upside down",
		FailLog:          "AssertionError: orientation != expected",
		FailingFiles:     []string{"widget.py"},
	}
}
