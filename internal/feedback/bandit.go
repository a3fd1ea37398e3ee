package feedback

import (
	"math"
	"math/rand"
	"sort"
	"sync"
)

// Arm is one retrieval strategy the bandit can select between (§4.H).
type Arm string

const (
	ArmBM25Only          Arm = "bm25_only"
	ArmVectorOnly        Arm = "vector_only"
	ArmHybrid            Arm = "hybrid"
	ArmGraphTraversalFirst Arm = "graph_traversal_first"
	ArmContextPackDirect Arm = "context_pack_direct"
)

// Arms lists every strategy arm in a fixed order, used whenever the bandit
// needs to enumerate arms deterministically (selection, snapshotting).
var Arms = []Arm{ArmBM25Only, ArmVectorOnly, ArmHybrid, ArmGraphTraversalFirst, ArmContextPackDirect}

// beta holds a Beta(alpha, beta) posterior's pseudo-counts. Starting at
// (1,1) is the uniform prior: no arm is favored before any outcome is
// observed.
type beta struct {
	alpha float64
	betaP float64
}

// armKey scopes a beta posterior to one (intentType, arm) pair, since the
// best strategy for "/definition" queries need not be the best for
// "/refactor" queries.
type armKey struct {
	intentType string
	arm        Arm
}

// Bandit runs Thompson sampling over strategy arms, keeping one Beta
// posterior per (intentType, arm) pair.
type Bandit struct {
	mu        sync.Mutex
	posteriors map[armKey]*beta
	rng       *rand.Rand
}

// NewBandit seeds the bandit's PRNG deterministically (§9 design note:
// config.FeedbackConfig.BanditSeed), so arm selection is reproducible
// across runs given the same outcome history.
func NewBandit(seed int64) *Bandit {
	if seed == 0 {
		seed = 1
	}
	return &Bandit{
		posteriors: make(map[armKey]*beta),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (b *Bandit) posterior(intentType string, arm Arm) *beta {
	k := armKey{intentType, arm}
	p, ok := b.posteriors[k]
	if !ok {
		p = &beta{alpha: 1, betaP: 1}
		b.posteriors[k] = p
	}
	return p
}

// Select draws a sample from each arm's Beta posterior for the given intent
// type and returns the arm with the highest sample (Thompson sampling).
// Runs entirely in memory, no I/O, so it comfortably meets the <5ms p99
// latency budget at up to 100 tracked (intentType, arm) snapshots (§4.H).
func (b *Bandit) Select(intentType string) Arm {
	b.mu.Lock()
	defer b.mu.Unlock()

	best := Arms[0]
	bestSample := -1.0
	for _, arm := range Arms {
		p := b.posterior(intentType, arm)
		sample := sampleBeta(b.rng, p.alpha, p.betaP)
		if sample > bestSample {
			bestSample = sample
			best = arm
		}
	}
	return best
}

// Update records one outcome for an (intentType, arm) pair, incrementing
// the Beta posterior's success or failure pseudo-count.
func (b *Bandit) Update(intentType string, arm Arm, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.posterior(intentType, arm)
	if success {
		p.alpha++
	} else {
		p.betaP++
	}
}

// Snapshot is a point-in-time view of one (intentType, arm) posterior,
// used for diagnostics.
type Snapshot struct {
	IntentType string
	Arm        Arm
	Alpha      float64
	Beta       float64
}

// Snapshots returns every tracked posterior, sorted by intent type and then
// by the arm's position in Arms.
func (b *Bandit) Snapshots() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Snapshot, 0, len(b.posteriors))
	for k, p := range b.posteriors {
		out = append(out, Snapshot{IntentType: k.intentType, Arm: k.arm, Alpha: p.alpha, Beta: p.betaP})
	}
	rank := make(map[Arm]int, len(Arms))
	for i, a := range Arms {
		rank[a] = i
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IntentType != out[j].IntentType {
			return out[i].IntentType < out[j].IntentType
		}
		return rank[out[i].Arm] < rank[out[j].Arm]
	})
	return out
}

// sampleBeta draws from Beta(alpha, beta) via two independent Gamma draws:
// X ~ Gamma(alpha,1), Y ~ Gamma(beta,1), Beta = X/(X+Y).
func sampleBeta(rng *rand.Rand, alpha, betaP float64) float64 {
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, betaP)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma implements the Marsaglia-Tsang method for Gamma(shape,1)
// sampling, valid for shape >= 1; shape < 1 is boosted via the standard
// Gamma(a) = Gamma(a+1) * U^(1/a) identity.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)

	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
