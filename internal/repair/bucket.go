package repair

import "strings"

// Buckets are coarse failure groupings used as learning-log keys. They are
// intentionally cruder than hypotheses: a bucket keys aggregate statistics,
// a hypothesis guides a single repair.
const (
	BucketImport    = "import"
	BucketAssertion = "assertion"
	BucketType      = "type"
	BucketTimeout   = "timeout"
	BucketSyntax    = "syntax"
	BucketOther     = "other"
)

// ClassifyBucket maps a failure log to one coarse bucket.
func ClassifyBucket(failLog string) string {
	lowered := strings.ToLower(failLog)
	switch {
	case strings.Contains(lowered, "importerror") || strings.Contains(lowered, "modulenotfounderror") || strings.Contains(lowered, "no module named"):
		return BucketImport
	case strings.Contains(lowered, "syntaxerror") || strings.Contains(lowered, "invalid syntax"):
		return BucketSyntax
	case strings.Contains(lowered, "assertionerror") || strings.Contains(lowered, "assert"):
		return BucketAssertion
	case strings.Contains(lowered, "typeerror") || strings.Contains(lowered, "attributeerror"):
		return BucketType
	case strings.Contains(lowered, "timeout") || strings.Contains(lowered, "timed out"):
		return BucketTimeout
	default:
		return BucketOther
	}
}
