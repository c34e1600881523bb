package learning

import "time"

// Outcome records what happened when one patch attempt was executed.
type Outcome struct {
	Passed        bool          `json:"passed"`
	TestDelta     int           `json:"test_delta"` // Newly passing tests minus newly failing.
	Runtime       time.Duration `json:"runtime"`
	ErrorMessage  string        `json:"error_message"`
	CritiqueScore float64       `json:"critique_score"`
}

// Reward shaping weights for failed attempts. A failure still earns partial
// credit when the critic liked the patch or the test delta improved, so the
// bandit can distinguish near-misses from garbage.
const (
	critiqueWeight  = 0.25
	testDeltaWeight = 0.15
	deltaScale      = 10.0
)

// Score maps an outcome to a scalar reward in [0, 1].
func Score(o Outcome) float64 {
	if o.Passed {
		return 1.0
	}
	reward := critiqueWeight*clamp01(o.CritiqueScore) + testDeltaWeight*clamp01(float64(o.TestDelta)/deltaScale)
	return clamp01(reward)
}

// ScorePatchQuality rewards small, focused patches. Size is in diff lines.
func ScorePatchQuality(patchSize, filesTouched int) float64 {
	if patchSize <= 0 {
		return 0
	}
	score := 1.0
	if patchSize > 100 {
		score -= 0.3
	} else if patchSize > 40 {
		score -= 0.1
	}
	if filesTouched > 3 {
		score -= 0.2
	}
	return clamp01(score)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
