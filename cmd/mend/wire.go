package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"mend/internal/agent"
	"mend/internal/config"
	"mend/internal/embedding"
	"mend/internal/learning"
	"mend/internal/llm"
	"mend/internal/orchestrator"
	"mend/internal/planner"
	"mend/internal/retrieval"
	"mend/internal/skills"
	"mend/internal/store"
)

// runtime bundles everything a run needs: the engine plus the shared state
// that must be checkpointed when the run ends.
type runtime struct {
	engine         *orchestrator.Engine
	store          *store.StateStore
	index          *retrieval.FailureIndex
	plannerBandit  *learning.Bandit
	strategyBandit *learning.Bandit
}

const (
	banditPlanner  = "planner"
	banditStrategy = "strategy"
)

// buildRuntime wires the full loop from configuration: persistence first,
// then learned state restored from it, then the LLM-backed agent on top.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.NewStateStore(filepath.Join(workspace, cfg.Store.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	index := retrieval.NewFailureIndex(embedding.NewHashEngine(cfg.Learning.EmbeddingDim))
	if err := st.LoadIndex(index); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to restore failure index: %w", err)
	}

	plannerBandit := learning.NewBandit(planner.DefaultRegistry().Names()...)
	strategyBandit := learning.NewBandit(learning.DefaultStrategies...)
	if err := st.LoadBandit(banditPlanner, plannerBandit); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to restore planner bandit: %w", err)
	}
	if err := st.LoadBandit(banditStrategy, strategyBandit); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to restore strategy bandit: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	client = client.WithTemperature(cfg.LLM.Temperature).WithTimeout(cfg.GetLLMTimeout())

	engine := &orchestrator.Engine{
		Builder: &agent.ContextBuilder{
			Index:          index,
			Skills:         skills.DefaultRegistry(),
			PlannerBandit:  plannerBandit,
			StrategyBandit: strategyBandit,
			RetrievalK:     cfg.Learning.RetrievalK,
			SkillK:         cfg.Learning.SkillK,
		},
		Planners:  planner.DefaultRegistry(),
		Generator: client.Generator(),
		Critic:    client.Critic(),
		Gate:      orchestrator.StaticGate{MaxPatchBytes: cfg.Harness.MaxPatchBytes},
		Executor: orchestrator.CommandExecutor{
			Command: cfg.Harness.Command,
			Timeout: cfg.GetHarnessTimeout(),
		},
		Recorder: st,
		Config: orchestrator.Config{
			MaxAttempts:   cfg.Learning.MaxAttempts,
			MaxCandidates: cfg.Learning.MaxCandidates,
			Parallelism:   cfg.Learning.Parallelism,
		},
	}

	logger.Info("runtime ready",
		zap.Int("index_entries", index.Size()),
		zap.Strings("planners", planner.DefaultRegistry().Names()),
		zap.Int("parallelism", cfg.Learning.Parallelism))

	return &runtime{
		engine:         engine,
		store:          st,
		index:          index,
		plannerBandit:  plannerBandit,
		strategyBandit: strategyBandit,
	}, nil
}

// checkpoint persists the bandits and the failure index. Called after every
// batch and again on shutdown.
func (r *runtime) checkpoint() error {
	if err := r.store.SaveBandit(banditPlanner, r.plannerBandit); err != nil {
		return fmt.Errorf("failed to checkpoint planner bandit: %w", err)
	}
	if err := r.store.SaveBandit(banditStrategy, r.strategyBandit); err != nil {
		return fmt.Errorf("failed to checkpoint strategy bandit: %w", err)
	}
	if err := r.store.SaveIndex(r.index); err != nil {
		return fmt.Errorf("failed to checkpoint failure index: %w", err)
	}
	return nil
}

func (r *runtime) close() {
	if err := r.checkpoint(); err != nil {
		logger.Warn("final checkpoint failed", zap.Error(err))
	}
	if err := r.store.Close(); err != nil {
		logger.Warn("state store close failed", zap.Error(err))
	}
}
