package llm

import (
	"fmt"
	"strings"

	"mend/internal/agent"
)

// truncateAt bounds problem statements and patches embedded in prompts.
const truncateAt = 2000

// BuildPatchPrompt renders the context-rich repair prompt: bug report,
// ranked hypotheses, skill guidance, retrieved past fixes, and - on the
// refinement round - the critique feedback block.
func BuildPatchPrompt(pctx agent.PromptContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# BUG REPORT\n%s\n\n", truncate(pctx.Plan.BugSummary))

	fmt.Fprintf(&b, "# REPAIR PLAN (template: %s)\n", pctx.Upstream.Template)
	for i, step := range pctx.Plan.Steps {
		fmt.Fprintf(&b, "%d. %s (files: %s)\n", i+1, step.Intent, strings.Join(step.Files, ", "))
	}
	b.WriteString("\n")

	if len(pctx.Upstream.Hypotheses) > 0 {
		b.WriteString("# REPAIR ANALYSIS\nOur analysis suggests the following bug types:\n")
		for _, h := range pctx.Upstream.Hypotheses {
			fmt.Fprintf(&b, "- [%.2f] %s: %s\n", h.Confidence, strings.ToUpper(h.Kind), h.Reasoning)
		}
		b.WriteString("\n")
	}

	if len(pctx.Upstream.Heads) > 0 {
		b.WriteString("# REPO-SPECIFIC GUIDANCE\n")
		for _, head := range pctx.Upstream.Heads {
			fmt.Fprintf(&b, "## %s\n%s\n", head.Name, head.PromptSuffix)
			var limits []string
			if v, ok := head.PatchStyle["max_files"]; ok {
				limits = append(limits, fmt.Sprintf("Max files: %d", v))
			}
			if v, ok := head.PatchStyle["max_lines"]; ok {
				limits = append(limits, fmt.Sprintf("Max lines: %d", v))
			}
			if len(limits) > 0 {
				fmt.Fprintf(&b, "Size limits: %s\n", strings.Join(limits, ", "))
			}
		}
		b.WriteString("\n")
	}

	if len(pctx.Upstream.Hits) > 0 {
		b.WriteString("# LEARNED MEMORY (similar past fixes)\n")
		for i, hit := range pctx.Upstream.Hits {
			if i == 2 {
				break
			}
			fmt.Fprintf(&b, "## Previous fix (%.2f match)\n", hit.Score)
			fmt.Fprintf(&b, "Context: %s\n", hit.Signature)
			fmt.Fprintf(&b, "Fix strategy: %s\n\n", hit.PatchSummary)
		}
	}

	if pctx.Feedback != nil {
		b.WriteString("# REVIEWER FEEDBACK ON YOUR PREVIOUS ATTEMPT\n")
		fmt.Fprintf(&b, "%s\n", pctx.Feedback.Reasoning)
		for _, s := range pctx.Feedback.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("Address this feedback in the new patch.\n\n")
	}

	b.WriteString(`# INSTRUCTIONS
Generate a valid unified diff patch that fixes this bug.
Follow the guidance above. Output strictly as JSON:
` + "```json" + `
[
  {
    "summary": "Fix off-by-one error in ...",
    "patch_text": "--- a/file.py\n+++ b/file.py\n..."
  }
]
` + "```\n")

	return b.String()
}

// BuildCritiquePrompt renders the reviewer prompt for one patch.
func BuildCritiquePrompt(problem, patchText string) string {
	var b strings.Builder
	b.WriteString(`# SYSTEM: You are a senior code reviewer.
Critique the proposed patch. Be strict but constructive. Focus on:
1. Does the patch actually address the described issue?
2. Are there obvious bugs or regressions?
3. Is the code style consistent?
4. Is the patch minimal and safe?

`)
	fmt.Fprintf(&b, "# ISSUE DESCRIPTION\n%s\n\n", truncate(problem))
	fmt.Fprintf(&b, "# PROPOSED PATCH\n```diff\n%s\n```\n\n", truncate(patchText))
	b.WriteString(`# INSTRUCTIONS
Analyze the patch. Output strictly as JSON:
` + "```json" + `
{
  "approved": true,
  "score": 0.0,
  "reasoning": "explanation",
  "suggestions": ["suggestion 1"]
}
` + "```\n")
	return b.String()
}

func truncate(s string) string {
	if len(s) <= truncateAt {
		return s
	}
	return s[:truncateAt] + "... (truncated)"
}
