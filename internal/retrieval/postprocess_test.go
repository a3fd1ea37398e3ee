package retrieval

import (
	"testing"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

func TestRunPostProcessingDedupesByPackID(t *testing.T) {
	tr := NewTracker(nil)
	packs := map[string]model.ContextPack{
		"p1": {PackID: "p1", Confidence: 0.7},
	}
	candidates := []Candidate{
		{EntityType: model.EntityFunction, EntityID: "f1", PackID: "p1"},
		{EntityType: model.EntityFunction, EntityID: "f2", PackID: "p1"},
	}

	out := RunPostProcessing(candidates, packs, tr)
	if len(out) != 1 {
		t.Fatalf("expected dedup to 1 pack, got %d", len(out))
	}
}

func TestRunPostProcessingOrdersByFinalScore(t *testing.T) {
	tr := NewTracker(nil)
	packs := map[string]model.ContextPack{
		"low":  {PackID: "low", Confidence: 0.3},
		"high": {PackID: "high", Confidence: 0.3},
	}
	candidates := []Candidate{
		{EntityType: model.EntityFunction, EntityID: "f1", PackID: "low", Scores: map[string]float64{"multiVectorScore": 0.2}},
		{EntityType: model.EntityFunction, EntityID: "f2", PackID: "high", Scores: map[string]float64{"multiVectorScore": 0.9}},
	}

	out := RunPostProcessing(candidates, packs, tr)
	if len(out) != 2 || out[0].PackID != "high" {
		t.Errorf("expected high-scoring pack first, got %+v", out)
	}
}

func TestRunPostProcessingSkipsCandidatesWithoutPacks(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{{EntityType: model.EntityFunction, EntityID: "f1"}}
	out := RunPostProcessing(candidates, map[string]model.ContextPack{}, tr)
	if len(out) != 0 {
		t.Errorf("expected no packs for pack-less candidates, got %d", len(out))
	}
}
