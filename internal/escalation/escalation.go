// Package escalation implements the Escalation Controller (§4.G): it scores
// a retrieval result's adequacy via Shannon entropy over pack confidences
// and decides whether the pipeline should re-run at a deeper depth.
package escalation

import (
	"math"

	"github.com/nateschmiedehaus/librarian/internal/config"
	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// Status is the coarse adequacy bucket derived from total confidence and
// pack count (§4.G).
type Status string

const (
	StatusSufficient Status = "sufficient"
	StatusPartial    Status = "partial"
	StatusInsufficient Status = "insufficient"
)

// depthL3 mirrors internal/retrieval.DepthL3; duplicated as a plain int so
// this package doesn't need to import retrieval for one constant (§4.G
// jump-to-L3 rule).
const depthL3 = 3

// emptySetEntropy is the entropy assigned to an empty pack set: log2(10),
// the entropy of a uniform distribution over ten outcomes, chosen so an
// empty result reads as maximally uncertain rather than zero (§4.G).
var emptySetEntropy = math.Log2(10)

// Entropy computes Shannon entropy over normalized pack confidences:
// p_i = c_i / sum(c), H = -sum(p_i * log2(p_i)) (§4.G).
func Entropy(confidences []float64) float64 {
	if len(confidences) == 0 {
		return emptySetEntropy
	}

	var total float64
	for _, c := range confidences {
		total += c
	}
	if total <= 0 {
		return emptySetEntropy
	}

	var h float64
	for _, c := range confidences {
		if c <= 0 {
			continue
		}
		p := c / total
		h -= p * math.Log2(p)
	}
	return h
}

// TotalConfidence sums pack confidences (the Escalation Controller's own
// cheaper signal, distinct from the assembler's geometric mean).
func TotalConfidence(confidences []float64) float64 {
	var total float64
	for _, c := range confidences {
		total += c
	}
	return total
}

// ClassifyStatus buckets a result by total confidence and pack count
// (§4.G: sufficient requires both a confidence floor and at least one
// pack; partial is a lower confidence floor; anything else is
// insufficient).
func ClassifyStatus(totalConfidence float64, packCount int) Status {
	switch {
	case totalConfidence >= 0.7 && packCount >= 1:
		return StatusSufficient
	case totalConfidence >= 0.4:
		return StatusPartial
	default:
		return StatusInsufficient
	}
}

// Decision is the Escalation Controller's verdict for one attempt.
type Decision struct {
	Status          Status
	Entropy         float64
	TotalConfidence float64
	ShouldEscalate  bool
	NextDepth       int
	ExpandQuery     bool // the next attempt should run with an expanded query (§4.G jump-to-L3 rule)
	Reason          string
}

// Attempt describes one retrieval pass's outcome, as observed by the
// controller.
type Attempt struct {
	Depth       int
	Confidences []float64
	PackCount   int
	AttemptNum  int // 1-based; how many escalations have already happened
}

// MaxDepth resolves the escalation ceiling: an explicit override wins,
// falling back to configuration, defaulting to 2, always clamped to [0,8]
// (§4.G).
func MaxDepth(override *int, cfg config.RetrievalConfig) int {
	if override != nil {
		d := *override
		if d < 0 {
			d = 0
		}
		if d > 8 {
			d = 8
		}
		return d
	}
	return cfg.ClampMaxEscalationDepth()
}

// Decide evaluates one attempt and decides whether to escalate to a deeper
// retrieval pass (§4.G escalation rules, keyed on depth, totalConfidence,
// entropy, maxDepth, packCount; the attempt number is not consulted).
func Decide(a Attempt, maxDepth int) Decision {
	log := logging.Get(logging.CategoryEscalation)

	total := TotalConfidence(a.Confidences)
	ent := Entropy(a.Confidences)
	status := ClassifyStatus(total, a.PackCount)

	d := Decision{Status: status, Entropy: ent, TotalConfidence: total}

	if status == StatusSufficient {
		d.Reason = "sufficient confidence and pack coverage"
		log.Debug("escalation: %s at depth=%d", d.Reason, a.Depth)
		return d
	}

	if a.Depth >= maxDepth {
		d.Reason = "max escalation depth reached"
		log.Info("escalation: stopping, depth=%d maxDepth=%d status=%s", a.Depth, maxDepth, status)
		return d
	}

	// Three explicit threshold rules, checked in order (§4.G): a very low
	// confidence result jumps straight to L3 with query expansion rather
	// than walking depths one at a time; a moderately low confidence result
	// with scattered evidence (high entropy) escalates one depth; a
	// confident-looking result that's still highly entropic (evidence
	// spread thin across many candidates) also escalates one depth.
	// Anything else - including a middling partial result with ordinary
	// entropy - does not escalate.
	switch {
	case total < 0.2 && a.Depth < depthL3:
		d.ShouldEscalate = true
		d.ExpandQuery = true
		d.NextDepth = depthL3
		if d.NextDepth > maxDepth {
			d.NextDepth = maxDepth
		}
		d.Reason = "very low confidence, escalating straight to deepest depth with query expansion"
	case total < 0.4 && ent > 1.5:
		d.ShouldEscalate = true
		d.NextDepth = a.Depth + 1
		d.Reason = "low confidence with scattered evidence, escalating one depth"
	case ent > 2.0:
		d.ShouldEscalate = true
		d.NextDepth = a.Depth + 1
		d.Reason = "evidence spread too thin across candidates, escalating one depth"
	default:
		d.Reason = "confidence and entropy within acceptable bounds, not escalating"
	}

	if d.ShouldEscalate {
		log.Info("escalation: depth %d -> %d (%s)", a.Depth, d.NextDepth, d.Reason)
	} else {
		log.Debug("escalation: %s at depth=%d", d.Reason, a.Depth)
	}
	return d
}

// ConfidencesFromPacks extracts the confidence slice Decide/Entropy need
// from a pack list, the common caller shape.
func ConfidencesFromPacks(packs []model.ContextPack) []float64 {
	out := make([]float64, len(packs))
	for i, p := range packs {
		out[i] = p.Confidence
	}
	return out
}
