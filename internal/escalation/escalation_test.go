package escalation

import (
	"math"
	"testing"

	"github.com/nateschmiedehaus/librarian/internal/config"
)

func TestEntropyEmptySetIsLog2Ten(t *testing.T) {
	e := Entropy(nil)
	want := math.Log2(10)
	if math.Abs(e-want) > 1e-9 {
		t.Errorf("expected log2(10)=%f, got %f", want, e)
	}
}

func TestEntropyUniformDistributionIsMaximal(t *testing.T) {
	e := Entropy([]float64{0.5, 0.5, 0.5, 0.5})
	want := math.Log2(4)
	if math.Abs(e-want) > 1e-9 {
		t.Errorf("expected log2(4)=%f for uniform confidences, got %f", want, e)
	}
}

func TestEntropySingleConfidentPackIsZero(t *testing.T) {
	e := Entropy([]float64{0.9})
	if math.Abs(e) > 1e-9 {
		t.Errorf("expected zero entropy for a single pack, got %f", e)
	}
}

func TestClassifyStatusSufficient(t *testing.T) {
	if ClassifyStatus(0.8, 2) != StatusSufficient {
		t.Error("expected sufficient for high confidence and packs present")
	}
}

func TestClassifyStatusSufficientRequiresAtLeastOnePack(t *testing.T) {
	if ClassifyStatus(0.9, 0) == StatusSufficient {
		t.Error("expected sufficient to require packCount >= 1 even with high confidence")
	}
}

func TestClassifyStatusPartial(t *testing.T) {
	if ClassifyStatus(0.5, 1) != StatusPartial {
		t.Error("expected partial for mid-range confidence")
	}
}

func TestClassifyStatusInsufficient(t *testing.T) {
	if ClassifyStatus(0.1, 0) != StatusInsufficient {
		t.Error("expected insufficient for low confidence and no packs")
	}
}

func TestDecideStopsWhenSufficient(t *testing.T) {
	d := Decide(Attempt{Depth: 1, Confidences: []float64{0.9}, PackCount: 1}, 2)
	if d.ShouldEscalate {
		t.Error("did not expect escalation when already sufficient")
	}
}

func TestDecideDoesNotEscalateModeratePartialResult(t *testing.T) {
	// total=0.5 (partial), entropy ~0.97: neither threshold rule fires.
	d := Decide(Attempt{Depth: 0, Confidences: []float64{0.2, 0.3}, PackCount: 2}, 2)
	if d.ShouldEscalate {
		t.Errorf("did not expect escalation for a moderate partial result, got %+v", d)
	}
}

func TestDecideJumpsToL3WithExpandQueryOnVeryLowConfidence(t *testing.T) {
	d := Decide(Attempt{Depth: 0, Confidences: []float64{0.1}, PackCount: 1}, 4)
	if !d.ShouldEscalate || !d.ExpandQuery || d.NextDepth != 3 {
		t.Errorf("expected jump to depth 3 with query expansion, got %+v", d)
	}
}

func TestDecideJumpToL3ClampsToMaxDepth(t *testing.T) {
	d := Decide(Attempt{Depth: 0, Confidences: []float64{0.1}, PackCount: 1}, 2)
	if !d.ShouldEscalate || !d.ExpandQuery || d.NextDepth != 2 {
		t.Errorf("expected jump clamped to maxDepth=2, got %+v", d)
	}
}

func TestDecideEscalatesOneDepthOnLowConfidenceHighEntropy(t *testing.T) {
	// total=0.3 (not <0.2), uniform over 4 packs -> entropy=log2(4)=2.0 > 1.5.
	d := Decide(Attempt{Depth: 0, Confidences: []float64{0.075, 0.075, 0.075, 0.075}, PackCount: 4}, 4)
	if !d.ShouldEscalate || d.ExpandQuery || d.NextDepth != 1 {
		t.Errorf("expected one-depth escalation without query expansion, got %+v", d)
	}
}

func TestDecideEscalatesOneDepthOnHighEntropyAlone(t *testing.T) {
	// total=0.5 (>=0.4, so the confidence/entropy rule doesn't fire),
	// uniform over 5 packs -> entropy=log2(5)=2.32 > 2.0.
	d := Decide(Attempt{Depth: 0, Confidences: []float64{0.1, 0.1, 0.1, 0.1, 0.1}, PackCount: 5}, 4)
	if !d.ShouldEscalate || d.ExpandQuery || d.NextDepth != 1 {
		t.Errorf("expected one-depth escalation from high entropy alone, got %+v", d)
	}
}

func TestDecideStopsAtMaxDepthEvenIfInsufficient(t *testing.T) {
	d := Decide(Attempt{Depth: 2, Confidences: []float64{0.1}, PackCount: 1}, 2)
	if d.ShouldEscalate {
		t.Error("did not expect escalation past max depth")
	}
}

func TestMaxDepthOverrideWinsOverConfig(t *testing.T) {
	cfg := config.RetrievalConfig{MaxEscalationDepth: 4}
	override := 1
	if got := MaxDepth(&override, cfg); got != 1 {
		t.Errorf("expected override to win, got %d", got)
	}
}

func TestMaxDepthOverrideClampedAboveEight(t *testing.T) {
	override := 99
	if got := MaxDepth(&override, config.RetrievalConfig{}); got != 8 {
		t.Errorf("expected clamp to 8, got %d", got)
	}
}

func TestMaxDepthFallsBackToConfigDefault(t *testing.T) {
	cfg := config.RetrievalConfig{MaxEscalationDepth: 2}
	if got := MaxDepth(nil, cfg); got != 2 {
		t.Errorf("expected config default 2, got %d", got)
	}
}
