package feedback

import (
	"testing"
)

func TestNewBanditDefaultsUnseeded(t *testing.T) {
	b := NewBandit(0)
	if b.rng == nil {
		t.Fatal("expected a seeded rng even with seed=0")
	}
}

func TestSelectReturnsOneOfTheKnownArms(t *testing.T) {
	b := NewBandit(42)
	arm := b.Select("definition")

	found := false
	for _, a := range Arms {
		if a == arm {
			found = true
		}
	}
	if !found {
		t.Errorf("Select returned unknown arm %q", arm)
	}
}

func TestUpdateShiftsPosteriorTowardSuccessfulArm(t *testing.T) {
	b := NewBandit(7)

	for i := 0; i < 200; i++ {
		b.Update("bug_investigation", ArmHybrid, true)
		b.Update("bug_investigation", ArmBM25Only, false)
	}

	hybridWins := 0
	const trials = 200
	for i := 0; i < trials; i++ {
		if b.Select("bug_investigation") == ArmHybrid {
			hybridWins++
		}
	}
	if hybridWins < trials*7/10 {
		t.Errorf("expected hybrid arm to dominate after strong positive history, won %d/%d", hybridWins, trials)
	}
}

func TestPosteriorsAreScopedPerIntentType(t *testing.T) {
	b := NewBandit(3)
	b.Update("definition", ArmVectorOnly, true)
	b.Update("definition", ArmVectorOnly, true)
	b.Update("definition", ArmVectorOnly, true)

	snaps := b.Snapshots()
	for _, s := range snaps {
		if s.Arm == ArmVectorOnly && s.IntentType == "refactor" {
			t.Errorf("expected refactor intent's posterior to remain untouched by definition-intent updates, got %+v", s)
		}
	}
}

func TestSnapshotsReflectAlphaBetaCounts(t *testing.T) {
	b := NewBandit(5)
	b.Update("meta", ArmGraphTraversalFirst, true)
	b.Update("meta", ArmGraphTraversalFirst, true)
	b.Update("meta", ArmGraphTraversalFirst, false)

	var found bool
	for _, s := range b.Snapshots() {
		if s.IntentType == "meta" && s.Arm == ArmGraphTraversalFirst {
			found = true
			if s.Alpha != 3 || s.Beta != 2 {
				t.Errorf("expected alpha=3 beta=2 (prior 1,1 plus 2 successes 1 failure), got alpha=%f beta=%f", s.Alpha, s.Beta)
			}
		}
	}
	if !found {
		t.Fatal("expected a snapshot for (meta, graph_traversal_first)")
	}
}

func TestSampleBetaStaysWithinUnitInterval(t *testing.T) {
	b := NewBandit(11)
	for i := 0; i < 500; i++ {
		v := sampleBeta(b.rng, 2.5, 7.0)
		if v < 0 || v > 1 {
			t.Fatalf("sampleBeta produced out-of-range value %f", v)
		}
	}
}

func TestSampleGammaShapeLessThanOne(t *testing.T) {
	b := NewBandit(13)
	for i := 0; i < 200; i++ {
		v := sampleGamma(b.rng, 0.3)
		if v < 0 {
			t.Fatalf("sampleGamma produced negative value %f", v)
		}
	}
}
