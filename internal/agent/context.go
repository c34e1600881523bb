// Package agent composes the upstream intelligence (classifier, failure
// retrieval, skill routing, bandit selection) into a per-task context bundle
// and drives the propose/critique/refine cycle against external patch
// generation and critique capabilities.
package agent

import (
	"mend/internal/learning"
	"mend/internal/logging"
	"mend/internal/repair"
	"mend/internal/retrieval"
	"mend/internal/skills"
	"mend/internal/tasks"
)

// UpstreamContext is the immutable context bundle for one attempt.
type UpstreamContext struct {
	Hypotheses  []repair.Hypothesis
	Hits        []retrieval.Hit
	Heads       []skills.Head
	PlannerName string
	Strategy    string
	Template    string
	// OverrideUsed reports whether the task's replay override supplied the
	// planner/strategy choices instead of bandit sampling.
	OverrideUsed bool
}

// ContextBuilder wires together the upstream leaves. Building a context is
// pure composition: reads only, no state mutation.
type ContextBuilder struct {
	Index          *retrieval.FailureIndex
	Skills         *skills.Registry
	PlannerBandit  *learning.Bandit
	StrategyBandit *learning.Bandit

	// RetrievalK and SkillK bound the hits/heads in the bundle.
	RetrievalK int
	SkillK     int
}

// Build composes the context bundle for a task given its latest failure text.
// A task-level override is honored verbatim: no bandit sampling occurs.
func (b *ContextBuilder) Build(task tasks.Task, lastFailure string) UpstreamContext {
	retrievalK := b.RetrievalK
	if retrievalK <= 0 {
		retrievalK = 3
	}
	skillK := b.SkillK
	if skillK <= 0 {
		skillK = 2
	}

	uctx := UpstreamContext{
		Hypotheses: repair.Classify(lastFailure, task.FailingFiles),
		Hits:       b.Index.Query(task.Repo, lastFailure, retrievalK),
		Heads:      b.Skills.Select(task.Fingerprint(), skillK),
	}

	if task.Upstream != nil {
		uctx.PlannerName = task.Upstream.Planner
		uctx.Strategy = task.Upstream.Strategy
		uctx.OverrideUsed = true
	} else {
		uctx.PlannerName = b.PlannerBandit.Pick()
		uctx.Strategy = b.StrategyBandit.Pick()
	}
	uctx.Template = learning.TemplateFor(uctx.Strategy)

	logging.AgentDebug("Built context for task=%s: planner=%s strategy=%s hits=%d heads=%d override=%v",
		task.ID, uctx.PlannerName, uctx.Strategy, len(uctx.Hits), len(uctx.Heads), uctx.OverrideUsed)
	return uctx
}
