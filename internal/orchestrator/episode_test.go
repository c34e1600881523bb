package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mend/internal/agent"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunEpisode_FirstPassEndsAfterOneAttempt(t *testing.T) {
	gen := &mockGenerator{candidates: []agent.Candidate{{PatchText: validPatch, Summary: "fix root ordering"}}}
	exec := &mockExecutor{passOn: 1}
	eng := newTestEngine(gen, &mockGate{accept: true}, exec)
	rec := &mockRecorder{}
	eng.Recorder = rec

	res := eng.RunEpisode(context.Background(), fixtureTask("sympy-001"))

	assert.Equal(t, StatePassed, res.State)
	assert.True(t, res.Passed)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, validPatch, res.FinalPatch)
	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, 1, exec.callCount())

	recs := rec.records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Outcome.Passed)
	assert.InDelta(t, 1.0, recs[0].Reward, 1e-9)
}

func TestRunEpisode_NeverPassExhaustsAllAttempts(t *testing.T) {
	gen := &mockGenerator{candidates: []agent.Candidate{{PatchText: validPatch, Summary: "attempted fix"}}}
	exec := &mockExecutor{passOn: 0}
	eng := newTestEngine(gen, &mockGate{accept: true}, exec)
	rec := &mockRecorder{}
	eng.Recorder = rec

	res := eng.RunEpisode(context.Background(), fixtureTask("sympy-002"))

	assert.Equal(t, StateExhausted, res.State)
	assert.False(t, res.Passed)
	assert.Equal(t, eng.Config.MaxAttempts, res.Attempts)
	assert.Empty(t, res.Err)
	// One proposal round per attempt, one recorded outcome per executed attempt.
	assert.Equal(t, eng.Config.MaxAttempts, gen.callCount())
	assert.Len(t, rec.records(), eng.Config.MaxAttempts)
}

func TestRunEpisode_GateRejectionCostsNoExecution(t *testing.T) {
	gen := &mockGenerator{candidates: []agent.Candidate{{PatchText: validPatch, Summary: "rejected fix"}}}
	exec := &mockExecutor{passOn: 1}
	eng := newTestEngine(gen, &mockGate{accept: false, reason: "touches generated code"}, exec)
	rec := &mockRecorder{}
	eng.Recorder = rec

	res := eng.RunEpisode(context.Background(), fixtureTask("sympy-003"))

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 0, exec.callCount())
	// maxAttempts rounds, maxCandidates per round, all rejected.
	assert.Equal(t, eng.Config.MaxAttempts, res.GateRejections)
	// Nothing executed, so nothing enters the learning log.
	assert.Empty(t, rec.records())
}

func TestRunEpisode_FatalGateErrorAbortsEpisode(t *testing.T) {
	gen := &mockGenerator{candidates: []agent.Candidate{{PatchText: validPatch, Summary: "fix"}}}
	eng := newTestEngine(gen, &mockGate{err: errors.New("sandbox offline")}, &mockExecutor{passOn: 1})
	rec := &mockRecorder{}
	eng.Recorder = rec

	res := eng.RunEpisode(context.Background(), fixtureTask("sympy-004"))

	assert.Equal(t, StateExhausted, res.State)
	assert.Contains(t, res.Err, "gate failure")
	assert.Contains(t, res.Err, "sandbox offline")

	recs := rec.records()
	require.Len(t, recs, 1)
	assert.Contains(t, recs[0].Outcome.ErrorMessage, "sandbox offline")
}

func TestRunEpisode_FatalExecutorErrorAbortsEpisode(t *testing.T) {
	gen := &mockGenerator{candidates: []agent.Candidate{{PatchText: validPatch, Summary: "fix"}}}
	eng := newTestEngine(gen, &mockGate{accept: true}, &mockExecutor{err: errors.New("harness image missing")})

	res := eng.RunEpisode(context.Background(), fixtureTask("sympy-005"))

	assert.Equal(t, StateExhausted, res.State)
	assert.Contains(t, res.Err, "executor failure")
}

func TestRunEpisode_EmptyProposalsBurnAttemptsWithoutUpdates(t *testing.T) {
	gen := &mockGenerator{err: errors.New("model unavailable")}
	eng := newTestEngine(gen, &mockGate{accept: true}, &mockExecutor{passOn: 1})

	res := eng.RunEpisode(context.Background(), fixtureTask("sympy-006"))

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, eng.Config.MaxAttempts, res.Attempts)
	for _, stats := range eng.Builder.StrategyBandit.Statistics() {
		assert.Zero(t, stats.N, "no executed attempt should touch the bandit")
	}
}

func TestRunEpisode_UpdatesBanditMassAndIndex(t *testing.T) {
	gen := &mockGenerator{candidates: []agent.Candidate{{PatchText: validPatch, Summary: "fix"}}}
	eng := newTestEngine(gen, &mockGate{accept: true}, &mockExecutor{passOn: 2})

	res := eng.RunEpisode(context.Background(), fixtureTask("sympy-007"))
	require.True(t, res.Passed)
	assert.Equal(t, 2, res.Attempts)

	total := 0.0
	for _, stats := range eng.Builder.StrategyBandit.Statistics() {
		total += stats.Alpha + stats.Beta
	}
	prior := float64(len(eng.Builder.StrategyBandit.Arms())) * 2
	assert.Greater(t, total, prior, "executed attempts must add posterior mass")

	// Both the failed and the passing attempt land in the failure index.
	assert.Equal(t, 2, eng.Builder.Index.Size())
}

func TestRunEpisode_CancelledContextAbandonsEpisode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &mockGenerator{candidates: []agent.Candidate{{PatchText: validPatch, Summary: "fix"}}}
	eng := newTestEngine(gen, &mockGate{accept: true}, &mockExecutor{passOn: 1})

	res := eng.RunEpisode(ctx, fixtureTask("sympy-008"))
	assert.Equal(t, StateExhausted, res.State)
	assert.Contains(t, res.Err, "abandoned")
	assert.Equal(t, 0, gen.callCount())
}
