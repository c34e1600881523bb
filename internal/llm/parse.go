// Package llm adapts the Gemini API into the agent's Generator and Critic
// capabilities. The adapters fail safe: a broken generator degrades to an
// empty candidate list, a broken critic to a neutral approval, so the repair
// pipeline keeps moving when the model misbehaves.
package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"mend/internal/agent"
)

var jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// rawCandidate is the schema the generator prompt asks for.
type rawCandidate struct {
	Summary   string `json:"summary"`
	PatchText string `json:"patch_text"`
}

// ParseCandidates parses a model response into candidates. It tries, in
// order: a fenced JSON block, bare JSON (array or single object), and
// finally raw unified-diff detection. Returns nil when nothing parses.
func ParseCandidates(text string) []agent.Candidate {
	content := text
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		content = m[1]
	}

	var raws []rawCandidate
	if err := json.Unmarshal([]byte(content), &raws); err != nil {
		var single rawCandidate
		if err := json.Unmarshal([]byte(content), &single); err == nil && single.PatchText != "" {
			raws = []rawCandidate{single}
		}
	}

	if len(raws) == 0 {
		// Fallback for models that ignore the JSON instruction and emit a
		// bare diff.
		if strings.Contains(text, "diff --git") || strings.Contains(text, "--- a/") {
			return []agent.Candidate{{
				PatchText: text,
				Summary:   "raw patch from model output",
			}}
		}
		return nil
	}

	out := make([]agent.Candidate, 0, len(raws))
	for _, r := range raws {
		if r.PatchText == "" {
			continue
		}
		summary := r.Summary
		if summary == "" {
			summary = "candidate"
		}
		out = append(out, agent.Candidate{PatchText: r.PatchText, Summary: summary})
	}
	return out
}

// ParseCritique parses a model critique response. The second return is false
// when the response cannot be parsed; callers treat that as a rejection, not
// an approval.
func ParseCritique(text string) (agent.Critique, bool) {
	content := text
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		content = m[1]
	}

	var parsed struct {
		Approved    bool     `json:"approved"`
		Score       float64  `json:"score"`
		Reasoning   string   `json:"reasoning"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return agent.Critique{
			Approved:  false,
			Score:     0,
			Reasoning: "failed to parse critique response",
		}, false
	}

	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 1 {
		parsed.Score = 1
	}
	return agent.Critique{
		Approved:    parsed.Approved,
		Score:       parsed.Score,
		Reasoning:   parsed.Reasoning,
		Suggestions: parsed.Suggestions,
	}, true
}
