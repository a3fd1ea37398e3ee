package retrieval

import (
	"testing"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

func TestMergeCandidatesKeepsStrongestSignalPerDimension(t *testing.T) {
	a := Candidate{EntityType: model.EntityFunction, EntityID: "f1", Scores: map[string]float64{"semanticSimilarity": 0.4}}
	b := Candidate{EntityType: model.EntityFunction, EntityID: "f1", Scores: map[string]float64{"semanticSimilarity": 0.9, "graphSimilarity": 0.2}}

	merged := MergeCandidates([]Candidate{a}, []Candidate{b})
	if len(merged) != 1 {
		t.Fatalf("expected one merged candidate, got %d", len(merged))
	}
	if merged[0].score("semanticSimilarity") != 0.9 {
		t.Errorf("expected strongest semanticSimilarity to win, got %f", merged[0].score("semanticSimilarity"))
	}
	if merged[0].score("graphSimilarity") != 0.2 {
		t.Errorf("expected graphSimilarity to carry through, got %f", merged[0].score("graphSimilarity"))
	}
}

func TestMultiSignalScoringWeightsDimensions(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{
		{EntityType: model.EntityFile, EntityID: "x", Scores: map[string]float64{"directMatch": 1.0}},
	}
	out := RunMultiSignalScoring(candidates, tr)
	if out[0].score("multiSignalScore") <= 0 {
		t.Error("expected positive multiSignalScore from directMatch weight")
	}
}

func TestMultiVectorScoringBiasesByIntent(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{
		{EntityType: model.EntityFunction, EntityID: "f1", Scores: map[string]float64{"multiSignalScore": 0.5, "directMatch": 0.5}},
	}
	out := RunMultiVectorScoring(candidates, IntentDefinition, tr)
	if out[0].score("multiVectorScore") <= 0.5 {
		t.Error("expected definition intent bias to boost directMatch-backed score")
	}
}
