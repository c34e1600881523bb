package agent

import (
	"context"

	"mend/internal/logging"
	"mend/internal/planner"
	"mend/internal/tasks"
)

// Critique is the structured verdict of the critic on one patch candidate.
type Critique struct {
	Approved    bool     `json:"approved"`
	Score       float64  `json:"score"` // 0.0 to 1.0
	Reasoning   string   `json:"reasoning"`
	Suggestions []string `json:"suggestions"`
}

// NeutralCritique is the fail-safe verdict used when the critic is
// unavailable: approve with a middling score so a broken critic never blocks
// the pipeline.
func NeutralCritique(reason string) Critique {
	return Critique{Approved: true, Score: 0.5, Reasoning: reason}
}

// Candidate is one proposed patch, short-lived within an episode. Every
// candidate leaving Propose carries critique metadata.
type Candidate struct {
	PatchText string            `json:"patch_text"`
	Summary   string            `json:"summary"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Critique  Critique          `json:"critique"`
	// Refined marks candidates produced by the feedback round.
	Refined bool `json:"refined"`
}

// Feedback carries critique output into the refinement generate call.
type Feedback struct {
	Reasoning   string
	Suggestions []string
}

// PromptContext is everything a generator may see for one generate call.
type PromptContext struct {
	Plan     planner.Plan
	Upstream UpstreamContext
	// Feedback is non-nil only for the single refinement round.
	Feedback *Feedback
}

// Generator produces patch candidates from a plan and its context. External
// capability: implementations must degrade to an empty list on internal
// failure rather than panic.
type Generator interface {
	Generate(ctx context.Context, pctx PromptContext) ([]Candidate, error)
}

// Critic evaluates a patch against its task. External capability.
type Critic interface {
	Critique(ctx context.Context, task tasks.Task, patchText string) (Critique, error)
}

// RefineThreshold is the critique score below which a candidate gets one
// refinement round.
const RefineThreshold = 0.7

// DefaultMaxCandidates bounds candidates per attempt.
const DefaultMaxCandidates = 6

// Propose runs the propose-critique-refine cycle: generate candidates,
// critique each, and give low-scoring ones exactly one feedback-informed
// regeneration. Refinement is single-level: refined candidates are not
// re-critiqued, trading thoroughness for bounded latency and call cost.
func Propose(ctx context.Context, gen Generator, critic Critic, task tasks.Task, pctx PromptContext, maxCandidates int) []Candidate {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}

	raw, err := gen.Generate(ctx, pctx)
	if err != nil {
		logging.Agent("Generate failed for task=%s: %v", task.ID, err)
		return nil
	}
	if len(raw) > maxCandidates {
		raw = raw[:maxCandidates]
	}

	out := make([]Candidate, 0, len(raw))
	for _, cand := range raw {
		crit, err := critic.Critique(ctx, task, cand.PatchText)
		if err != nil {
			logging.Agent("Critique failed for task=%s: %v", task.ID, err)
			crit = NeutralCritique("critique unavailable")
		}

		if crit.Score >= RefineThreshold {
			cand.Critique = crit
			out = append(out, cand)
			continue
		}

		refined := refineOnce(ctx, gen, pctx, crit)
		if refined == nil {
			// Refinement yielded nothing: keep the original low-scoring
			// candidate rather than silently dropping work.
			cand.Critique = crit
			out = append(out, cand)
			continue
		}
		out = append(out, *refined)
	}

	logging.Agent("Proposed %d candidates for task=%s", len(out), task.ID)
	return out
}

// refineOnce makes exactly one feedback-informed generate call and returns
// its first candidate, or nil if the call produced nothing.
func refineOnce(ctx context.Context, gen Generator, pctx PromptContext, crit Critique) *Candidate {
	pctx.Feedback = &Feedback{
		Reasoning:   crit.Reasoning,
		Suggestions: crit.Suggestions,
	}

	refined, err := gen.Generate(ctx, pctx)
	if err != nil || len(refined) == 0 {
		if err != nil {
			logging.AgentDebug("Refinement generate failed: %v", err)
		}
		return nil
	}

	cand := refined[0]
	cand.Refined = true
	// Optimistic placeholder: the refined patch addressed the critique but is
	// not re-critiqued.
	cand.Critique = Critique{
		Approved:  true,
		Score:     RefineThreshold,
		Reasoning: "refined once from critique feedback",
	}
	return &cand
}
