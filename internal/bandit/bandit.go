// Package bandit implements the variant-selection experimentation policy:
// an ε-best-arm identification bandit with a parallel generalized
// likelihood-ratio (GLR) stopping test. Each arm keeps a running mean and
// variance of a single nominated feedback metric (Welford's algorithm);
// allocation among arms approximates the second-order-cone relaxation of
// the optimal-allocation problem with a closed-form variance-proportional
// rule (no SOCP solver exists anywhere in the dependency set, so this is
// the stdlib-math surrogate), and a ridge term floors the variance so a
// still-undersampled arm never produces a zero or negative weight. Arms
// below min_pulls are exempt from the allocation rule and sampled
// uniformly instead, guaranteeing every arm accrues enough evidence for
// the stopping test to be meaningful.
package bandit

import (
	"math"
	"math/rand"
	"sync"

	"github.com/tensorzero/tensorzero-sub023/internal/logging"
)

// Defaults for the stopping test's risk budget, the ridge floor added to
// every variance estimate, and the minimum number of observed rewards an
// arm must have before it leaves uniform exploration.
const (
	DefaultDelta    = 0.05
	DefaultMinPulls = 30
	DefaultRidge    = 1e-6
	tieEpsilon      = 1e-9
)

// Arm tracks one variant's running reward statistics.
type Arm struct {
	Name  string
	Pulls int     // number of observed (fed-back) rewards
	Mean  float64 // running mean reward
	m2    float64 // Welford sum of squared deviations
}

// variance returns the arm's sample variance, or 1 (an uninformative
// prior) until at least two rewards have been observed.
func (a *Arm) variance() float64 {
	if a.Pulls < 2 {
		return 1
	}
	return a.m2 / float64(a.Pulls-1)
}

func (a *Arm) varianceWithRidge(ridge float64) float64 {
	return a.variance() + ridge
}

func (a *Arm) variancePerPull(ridge float64) float64 {
	if a.Pulls == 0 {
		return a.varianceWithRidge(ridge)
	}
	return a.varianceWithRidge(ridge) / float64(a.Pulls)
}

// Policy is a per-function ε-best-arm bandit over a fixed set of named
// arms. The zero value is not usable; construct with New.
type Policy struct {
	mu         sync.Mutex
	arms       map[string]*Arm
	order      []string // stable iteration order for deterministic tie-breaks
	rng        *rand.Rand
	delta      float64 // δ: stopping test's risk budget
	minPulls   int
	ridge      float64
	totalPulls int // t: total Select calls, used by the GLR threshold
	stopped    bool
	stoppedArm string
}

// New creates a Policy over names with the default risk budget, ridge
// floor, and min_pulls.
func New(names []string) *Policy {
	return NewWithParams(names, DefaultDelta, DefaultMinPulls, DefaultRidge)
}

// NewWithParams creates a Policy with an explicit risk budget δ,
// min_pulls floor, and variance-ridge term.
func NewWithParams(names []string, delta float64, minPulls int, ridge float64) *Policy {
	arms := make(map[string]*Arm, len(names))
	order := make([]string, 0, len(names))
	for _, n := range names {
		if _, exists := arms[n]; exists {
			continue
		}
		arms[n] = &Arm{Name: n}
		order = append(order, n)
	}
	return &Policy{
		arms:     arms,
		order:    order,
		rng:      rand.New(rand.NewSource(1)), //nolint:gosec
		delta:    delta,
		minPulls: minPulls,
		ridge:    ridge,
	}
}

// Select returns the name of the arm to use for the next inference. Arms
// that have not yet reached min_pulls observed rewards are sampled
// uniformly; once every arm clears that floor, Select deterministically
// picks the arm with the largest ridge-regularized variance-proportional
// allocation weight (the SOCP-relaxation surrogate), breaking a tie by
// the highest variance-per-pull and logging a warning. Once the GLR
// stopping test has fired, Select always returns the identified arm.
func (p *Policy) Select() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalPulls++

	if p.stopped {
		return p.stoppedArm
	}
	if len(p.order) == 0 {
		return ""
	}

	var underPulled []string
	for _, name := range p.order {
		if p.arms[name].Pulls < p.minPulls {
			underPulled = append(underPulled, name)
		}
	}
	if len(underPulled) > 0 {
		return underPulled[p.rng.Intn(len(underPulled))]
	}

	return p.pickAllocated()
}

// pickAllocated implements the post-warmup allocation rule: weight_i =
// sqrt(variance_i + ridge), pick argmax. Ties within tieEpsilon are
// broken by the highest variance-per-pull, with a warning logged since a
// true tie means the allocation problem is under-determined.
func (p *Policy) pickAllocated() string {
	var (
		best    string
		bestW   = -math.MaxFloat64
		tied    []string
	)
	for _, name := range p.order {
		w := math.Sqrt(p.arms[name].varianceWithRidge(p.ridge))
		switch {
		case w > bestW+tieEpsilon:
			bestW = w
			best = name
			tied = []string{name}
		case w > bestW-tieEpsilon:
			tied = append(tied, name)
		}
	}
	if len(tied) <= 1 {
		return best
	}

	logging.Logger.Warn("bandit: allocation weight tie, breaking by variance-per-pull",
		"candidates", tied)
	winner := tied[0]
	winnerVPP := p.arms[winner].variancePerPull(p.ridge)
	for _, name := range tied[1:] {
		if vpp := p.arms[name].variancePerPull(p.ridge); vpp > winnerVPP {
			winnerVPP = vpp
			winner = name
		}
	}
	return winner
}

// Update records an observed reward in [0, 1] for the named arm via
// Welford's online mean/variance update, then re-evaluates the GLR
// stopping test.
func (p *Policy) Update(name string, reward float64) {
	if reward < 0 {
		reward = 0
	}
	if reward > 1 {
		reward = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.arms[name]
	if !ok {
		return
	}
	a.Pulls++
	d1 := reward - a.Mean
	a.Mean += d1 / float64(a.Pulls)
	d2 := reward - a.Mean
	a.m2 += d1 * d2

	p.evaluateStoppingTest()
}

// evaluateStoppingTest implements the parallel-GLR ε-best-arm stopping
// rule: once every arm has at least min_pulls observations, compute the
// GLR statistic between the current best arm and every challenger,
// Z = (mean_best - mean_j)^2 / (2*(var_best/n_best + var_j/n_j)), and
// compare min_j Z against the confidence-budget threshold
// ln((1+ln t)/δ). If the smallest Z over all challengers clears the
// threshold, the best arm is identified with probability ≥ 1-δ and
// future Select calls commit to it.
func (p *Policy) evaluateStoppingTest() {
	if p.stopped || len(p.order) < 2 {
		return
	}
	for _, name := range p.order {
		if p.arms[name].Pulls < p.minPulls {
			return
		}
	}

	var bestName string
	bestMean := -math.MaxFloat64
	for _, name := range p.order {
		if m := p.arms[name].Mean; m > bestMean {
			bestMean = m
			bestName = name
		}
	}
	best := p.arms[bestName]
	bestVar := best.varianceWithRidge(p.ridge)

	t := float64(p.totalPulls)
	if t < 1 {
		t = 1
	}
	threshold := math.Log((1 + math.Log(t)) / p.delta)

	minZ := math.MaxFloat64
	for _, name := range p.order {
		if name == bestName {
			continue
		}
		challenger := p.arms[name]
		denom := 2 * (bestVar/float64(best.Pulls) + challenger.varianceWithRidge(p.ridge)/float64(challenger.Pulls))
		if denom <= 0 {
			continue
		}
		diff := bestMean - challenger.Mean
		z := (diff * diff) / denom
		if z < minZ {
			minZ = z
		}
	}

	if minZ > threshold {
		p.stopped = true
		p.stoppedArm = bestName
		logging.Logger.Info("bandit: GLR stopping test fired",
			"arm", bestName, "z", minZ, "threshold", threshold, "total_pulls", p.totalPulls)
	}
}

// Stopped reports whether the stopping test has fired, and if so, the
// arm it identified.
func (p *Policy) Stopped() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stoppedArm, p.stopped
}

// Snapshot returns a copy of the current per-arm statistics, useful for
// exposing bandit state through a metrics endpoint.
func (p *Policy) Snapshot() map[string]Arm {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Arm, len(p.arms))
	for name, a := range p.arms {
		out[name] = *a
	}
	return out
}
