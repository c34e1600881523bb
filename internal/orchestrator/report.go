package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mend/internal/store"
)

// Report is the end-of-run artifact: batch totals plus the ranked learning
// summary from the episode log.
type Report struct {
	Tasks    int           `json:"tasks"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Aborted  int           `json:"aborted"`
	Summary  store.Summary `json:"summary"`
	Episodes []EpisodeLine `json:"episodes"`
}

// EpisodeLine is one episode row in the report.
type EpisodeLine struct {
	ID       string `json:"id"`
	TaskID   string `json:"task_id"`
	Repo     string `json:"repo"`
	State    State  `json:"state"`
	Attempts int    `json:"attempts"`
	Err      string `json:"error,omitempty"`
}

// BuildReport assembles a Report from a batch result and a learning summary.
func BuildReport(batch BatchResult, summary store.Summary) Report {
	rep := Report{
		Tasks:   len(batch.Results),
		Passed:  batch.Passed,
		Failed:  batch.Failed,
		Aborted: batch.Aborted,
		Summary: summary,
	}
	for _, r := range batch.Results {
		rep.Episodes = append(rep.Episodes, EpisodeLine{
			ID:       r.ID,
			TaskID:   r.TaskID,
			Repo:     r.Repo,
			State:    r.State,
			Attempts: r.Attempts,
			Err:      r.Err,
		})
	}
	return rep
}

// WriteReport writes the report as JSON and a Markdown digest next to it.
func WriteReport(path string, rep Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	mdPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".md"
	if err := os.WriteFile(mdPath, []byte(rep.Markdown()), 0o644); err != nil {
		return fmt.Errorf("failed to write report digest: %w", err)
	}
	return nil
}

// Markdown renders a human-readable digest of the report.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Repair Run Report\n\n")
	fmt.Fprintf(&b, "- Tasks: %d\n- Passed: %d\n- Failed: %d\n- Aborted: %d\n\n", r.Tasks, r.Passed, r.Failed, r.Aborted)

	writeRank := func(title string, rows []store.RankRow) {
		if len(rows) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		fmt.Fprintf(&b, "| Key | Mean Reward | Successes | N |\n|---|---|---|---|\n")
		for _, row := range rows {
			fmt.Fprintf(&b, "| %s | %.3f | %d | %d |\n", row.Key, row.MeanReward, row.Successes, row.N)
		}
		b.WriteString("\n")
	}
	writeRank("Failure Buckets", r.Summary.BucketRank)
	writeRank("Strategies", r.Summary.StrategyRank)
	writeRank("Templates", r.Summary.TemplateRank)

	if len(r.Episodes) > 0 {
		fmt.Fprintf(&b, "## Episodes\n\n| Task | State | Attempts |\n|---|---|---|\n")
		for _, ep := range r.Episodes {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", ep.TaskID, ep.State, ep.Attempts)
		}
	}
	return b.String()
}
