// Package planner builds structured repair plans. The plan fixes the
// structure of an attempt: the patch generator may fill content, never shape.
// Planner implementations live in a validated registry so the planner bandit
// can choose among them by name.
package planner

import (
	"fmt"

	"github.com/google/uuid"

	"mend/internal/retrieval"
	"mend/internal/tasks"
)

// Step is one intended action inside a plan.
type Step struct {
	Intent     string   `json:"intent"`
	Files      []string `json:"files"`
	Hypothesis string   `json:"hypothesis"`
}

// Plan is the structured output of a planner. Built once per attempt and
// immutable once handed to candidate generation.
type Plan struct {
	ID         string            `json:"id"`
	TaskID     string            `json:"task_id"`
	BugSummary string            `json:"bug_summary"`
	Steps      []Step            `json:"steps"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata"`
}

// Func generates a plan for a task, optionally informed by retrieval hits.
type Func func(task tasks.Task, hits []retrieval.Hit) Plan

// DefaultPlanner is the planner used when a chosen name is not registered.
const DefaultPlanner = "planner_v1"

// Registry maps planner names to implementations. Populated at startup;
// duplicate registrations are rejected.
type Registry struct {
	planners map[string]Func
	order    []string
}

// NewRegistry returns an empty planner registry.
func NewRegistry() *Registry {
	return &Registry{planners: make(map[string]Func)}
}

// Register adds a planner under a name. Empty names, nil funcs, and
// duplicates are errors.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("planner requires a name")
	}
	if fn == nil {
		return fmt.Errorf("planner %q requires a function", name)
	}
	if _, ok := r.planners[name]; ok {
		return fmt.Errorf("planner %q already registered", name)
	}
	r.planners[name] = fn
	r.order = append(r.order, name)
	return nil
}

// Get returns the planner for name, falling back to DefaultPlanner when the
// name is unknown.
func (r *Registry) Get(name string) Func {
	if fn, ok := r.planners[name]; ok {
		return fn
	}
	return r.planners[DefaultPlanner]
}

// Names returns registered planner names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DefaultRegistry returns a registry with the built-in planners.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Built-in names are unique, registration cannot fail.
	_ = r.Register("planner_v1", GenerateV1)
	_ = r.Register("planner_v2", GenerateV2)
	return r
}

// GenerateV1 is the deterministic two-step planner: identify the failing
// logic, then apply a minimal fix. When retrieval hits exist, a middle step
// applies the pattern from the closest past fix.
func GenerateV1(task tasks.Task, hits []retrieval.Hit) Plan {
	files := task.FailingFiles
	if len(files) == 0 {
		files = []string{"unknown"}
	}

	steps := []Step{
		{
			Intent:     "identify failing logic",
			Files:      files,
			Hypothesis: "logic mismatch with test expectations",
		},
		{
			Intent:     "apply minimal fix",
			Files:      files,
			Hypothesis: "boundary condition error",
		},
	}

	retrievalUsed := false
	if len(hits) > 0 {
		retrievalUsed = true
		summary := hits[0].PatchSummary
		if len(summary) > 100 {
			summary = summary[:100]
		}
		middle := Step{
			Intent:     "apply pattern from similar past fix",
			Files:      files,
			Hypothesis: fmt.Sprintf("similar to: %s", summary),
		}
		steps = append(steps[:1], append([]Step{middle}, steps[1:]...)...)
	}

	return Plan{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		BugSummary: bugSummary(task),
		Steps:      steps,
		Confidence: 0.35,
		Metadata: map[string]string{
			"source":         "planner_v1",
			"retrieval_used": fmt.Sprintf("%v", retrievalUsed),
		},
	}
}

// GenerateV2 frames the repair test-first: reproduce, localize from the
// failing assertion, then patch. It leans harder on retrieval when available.
func GenerateV2(task tasks.Task, hits []retrieval.Hit) Plan {
	files := task.FailingFiles
	if len(files) == 0 {
		files = []string{"unknown"}
	}

	steps := []Step{
		{
			Intent:     "reproduce the failure from the failing tests",
			Files:      files,
			Hypothesis: "the test encodes the intended behavior",
		},
		{
			Intent:     "localize the defect from the assertion site",
			Files:      files,
			Hypothesis: "the defect lives in the code path the assertion exercises",
		},
		{
			Intent:     "patch the localized defect without touching tests",
			Files:      files,
			Hypothesis: "a focused change flips the failing assertion",
		},
	}

	confidence := 0.4
	if len(hits) > 0 && hits[0].Passed {
		confidence = 0.5
		steps[1].Hypothesis = fmt.Sprintf("past fix suggests: %s", hits[0].PatchSummary)
	}

	return Plan{
		ID:         uuid.NewString(),
		TaskID:     task.ID,
		BugSummary: bugSummary(task),
		Steps:      steps,
		Confidence: confidence,
		Metadata: map[string]string{
			"source":         "planner_v2",
			"retrieval_used": fmt.Sprintf("%v", len(hits) > 0),
		},
	}
}

func bugSummary(task tasks.Task) string {
	if task.ProblemStatement != "" {
		return task.ProblemStatement
	}
	if task.FailLog != "" {
		return task.FailLog
	}
	return "unknown bug"
}
