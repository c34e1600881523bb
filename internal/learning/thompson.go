// Package learning implements the outcome-driven learning state: a
// posterior-sampling (Thompson) bandit over named arms, scalar reward scoring
// for episode outcomes, and the strategy/template mapping. Two independent
// Bandit instances drive planner choice and strategy choice.
package learning

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"mend/internal/logging"
)

// BetaArm tracks one arm's Beta posterior. Alpha and Beta never shrink:
// total mass is monotonically non-decreasing.
type BetaArm struct {
	Name  string  `json:"name"`
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// Mean returns the posterior mean alpha/(alpha+beta).
func (a *BetaArm) Mean() float64 {
	return a.Alpha / (a.Alpha + a.Beta)
}

// N returns the observation count alpha+beta-2 (the prior carries no
// observations).
func (a *BetaArm) N() float64 {
	return a.Alpha + a.Beta - 2
}

// ArmStats is a read-only snapshot of one arm, as reported by Statistics.
type ArmStats struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Mean  float64 `json:"mean"`
	N     float64 `json:"n"`
}

// Bandit is a Thompson-sampling selector over named arms. Unseen arms start
// at the uninformative Beta(1,1) prior: mean 0.5, maximal uncertainty.
// Safe for concurrent use; no lock is ever held across an external call.
type Bandit struct {
	mu    sync.Mutex
	arms  map[string]*BetaArm
	order []string
	rng   *rand.Rand
}

// NewBandit creates a bandit with the given arms registered at the default
// prior, in the given order.
func NewBandit(names ...string) *Bandit {
	b := &Bandit{
		arms: make(map[string]*BetaArm),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, n := range names {
		b.ensureArmLocked(n)
	}
	return b
}

// Reseed makes subsequent picks deterministic for a given seed. Used for
// controlled replay and tests.
func (b *Bandit) Reseed(seed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng = rand.New(rand.NewSource(seed))
}

// ensureArmLocked registers an arm at the prior if missing. Caller must hold
// b.mu (or own the bandit exclusively, as in NewBandit).
func (b *Bandit) ensureArmLocked(name string) *BetaArm {
	if arm, ok := b.arms[name]; ok {
		return arm
	}
	arm := &BetaArm{Name: name, Alpha: 1, Beta: 1}
	b.arms[name] = arm
	b.order = append(b.order, name)
	return arm
}

// Pick draws one sample from each arm's posterior and returns the arm with
// the maximum draw. Ties resolve to the earliest-registered arm. Returns ""
// when no arms are registered.
func (b *Bandit) Pick() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	best := ""
	bestDraw := math.Inf(-1)
	for _, name := range b.order {
		arm := b.arms[name]
		draw := sampleBeta(b.rng, arm.Alpha, arm.Beta)
		if draw > bestDraw {
			best = name
			bestDraw = draw
		}
	}

	if best != "" {
		logging.LearningDebug("Bandit picked arm %q (draw=%.4f)", best, bestDraw)
	}
	return best
}

// Update applies a graded reward to an arm: weight is added to alpha on
// success, to beta on failure. Negative weights are ignored. Unregistered
// arms are lazily created at the prior before the update applies.
func (b *Bandit) Update(name string, success bool, weight float64) {
	if weight < 0 {
		weight = 0
	}

	b.mu.Lock()
	arm := b.ensureArmLocked(name)
	if success {
		arm.Alpha += weight
	} else {
		arm.Beta += weight
	}
	alpha, beta := arm.Alpha, arm.Beta
	b.mu.Unlock()

	logging.LearningDebug("Bandit updated arm %q: success=%v weight=%.2f -> Beta(%.2f, %.2f)",
		name, success, weight, alpha, beta)
}

// Restore sets an arm's posterior directly, registering it if needed.
// Used when loading checkpointed state; parameters below the prior are
// clamped to it.
func (b *Bandit) Restore(name string, alpha, beta float64) {
	if alpha < 1 {
		alpha = 1
	}
	if beta < 1 {
		beta = 1
	}
	b.mu.Lock()
	arm := b.ensureArmLocked(name)
	arm.Alpha = alpha
	arm.Beta = beta
	b.mu.Unlock()
}

// Arms returns arm names in registration order.
func (b *Bandit) Arms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Statistics returns a snapshot of every arm.
func (b *Bandit) Statistics() map[string]ArmStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]ArmStats, len(b.arms))
	for name, arm := range b.arms {
		out[name] = ArmStats{
			Alpha: arm.Alpha,
			Beta:  arm.Beta,
			Mean:  arm.Mean(),
			N:     arm.N(),
		}
	}
	return out
}

// sampleBeta draws from Beta(alpha, beta) via two gamma draws.
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using Marsaglia-Tsang squeeze
// rejection. Shapes below 1 use the boost Gamma(a) = Gamma(a+1) * U^(1/a).
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := rng.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if u > 0 && math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
