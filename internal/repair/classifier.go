// Package repair maps failure output to ranked bug-kind hypotheses.
// The rule table is a tuning surface: the contract is only that
// classification is deterministic and never returns an empty list.
package repair

import (
	"sort"
	"strings"

	"mend/internal/logging"
)

// Hypothesis is one ranked guess about what kind of bug caused a failure.
type Hypothesis struct {
	// Kind is a short bug-kind tag, e.g. "import_error".
	Kind string `json:"kind"`
	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`
	// Reasoning explains why the rule fired.
	Reasoning string `json:"reasoning"`
}

// rule matches failure text against keywords and produces a hypothesis.
type rule struct {
	kind       string
	keywords   []string
	confidence float64
	reasoning  string
}

// defaultRules is ordered; earlier rules state stronger signals.
var defaultRules = []rule{
	{
		kind:       "import_error",
		keywords:   []string{"importerror", "modulenotfounderror", "cannot import", "no module named"},
		confidence: 0.9,
		reasoning:  "failure output names a missing import or module",
	},
	{
		kind:       "assertion_mismatch",
		keywords:   []string{"assertionerror", "assert ", "expected", "!= "},
		confidence: 0.8,
		reasoning:  "an assertion compares actual output against an expectation",
	},
	{
		kind:       "nil_reference",
		keywords:   []string{"attributeerror", "nonetype", "nil pointer", "null pointer"},
		confidence: 0.8,
		reasoning:  "a value expected to be present was nil/None",
	},
	{
		kind:       "type_error",
		keywords:   []string{"typeerror", "unsupported operand", "cannot use", "type mismatch"},
		confidence: 0.75,
		reasoning:  "an operation received a value of the wrong type",
	},
	{
		kind:       "index_error",
		keywords:   []string{"indexerror", "keyerror", "out of range", "out of bounds"},
		confidence: 0.75,
		reasoning:  "a lookup went past a collection boundary",
	},
	{
		kind:       "boundary_condition",
		keywords:   []string{"off by one", "off-by-one", "boundary", "edge case", "fencepost"},
		confidence: 0.6,
		reasoning:  "the failure text suggests a boundary or off-by-one condition",
	},
	{
		kind:       "timeout",
		keywords:   []string{"timeout", "timed out", "deadline exceeded", "too slow"},
		confidence: 0.7,
		reasoning:  "the test exceeded a time budget",
	},
	{
		kind:       "syntax_error",
		keywords:   []string{"syntaxerror", "syntax error", "unexpected token", "invalid syntax"},
		confidence: 0.85,
		reasoning:  "the code under test does not parse",
	},
}

// testFileBoost is added when failing files include test files, which makes
// assertion-level hypotheses more plausible.
const testFileBoost = 0.05

// Classify returns hypotheses ordered by descending confidence.
// Deterministic for identical input and always non-empty: when no rule
// matches it emits the low-confidence unknown fallback.
func Classify(failureText string, failingFiles []string) []Hypothesis {
	lowered := strings.ToLower(failureText)
	hasTestFile := false
	for _, f := range failingFiles {
		name := strings.ToLower(f)
		if strings.Contains(name, "test") || strings.Contains(name, "spec") {
			hasTestFile = true
			break
		}
	}

	var out []Hypothesis
	for _, r := range defaultRules {
		for _, kw := range r.keywords {
			if strings.Contains(lowered, kw) {
				conf := r.confidence
				if hasTestFile && r.kind == "assertion_mismatch" {
					conf += testFileBoost
				}
				if conf > 1.0 {
					conf = 1.0
				}
				out = append(out, Hypothesis{
					Kind:       r.kind,
					Confidence: conf,
					Reasoning:  r.reasoning,
				})
				break
			}
		}
	}

	if len(out) == 0 {
		out = append(out, Hypothesis{
			Kind:       "unknown",
			Confidence: 0.2,
			Reasoning:  "no classification rule matched the failure output",
		})
	}

	// Stable sort keeps rule order for equal confidence, so results stay
	// deterministic across calls.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	logging.AgentDebug("Classified failure into %d hypotheses (top=%s)", len(out), out[0].Kind)
	return out
}
