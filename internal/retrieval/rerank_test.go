package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

func TestRunRerankingRespectsWindowSize(t *testing.T) {
	tr := NewTracker(nil)
	candidates := make([]Candidate, 0, 10)
	for i := 0; i < 10; i++ {
		candidates = append(candidates, Candidate{
			EntityType: model.EntityFunction,
			EntityID:   "fn" + string(rune('a'+i)),
			Scores:     map[string]float64{"multiVectorScore": float64(10 - i)},
		})
	}
	out := RunReranking(context.Background(), nil, false, "", candidates, 3, DefaultMMRLambda, true, tr)
	if len(out) != len(candidates) {
		t.Fatalf("expected window to only reorder the first 3 and keep the rest, got %d candidates", len(out))
	}
}

func TestRunRerankingZeroWindowPreservesOrderAndRecordsSkipReason(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{
		{EntityType: model.EntityFile, EntityID: "a"},
		{EntityType: model.EntityFile, EntityID: "b"},
	}
	out := RunReranking(context.Background(), nil, false, "", candidates, 0, DefaultMMRLambda, true, tr)
	if len(out) != 2 || out[0].EntityID != "a" || out[1].EntityID != "b" {
		t.Fatalf("expected input order preserved at window=0, got %+v", out)
	}
	report, ok := tr.Report(StageReranking)
	if !ok {
		t.Fatal("expected a reranking stage report")
	}
	if report.Telemetry["rerankSkipReason"] != "depth_profile_disabled" {
		t.Errorf("expected rerankSkipReason=depth_profile_disabled, got %v", report.Telemetry["rerankSkipReason"])
	}
}

func TestRunRerankingPrefersHighestRelevanceFirstWhenDiversifying(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{
		{EntityType: model.EntityFunction, EntityID: "low", Scores: map[string]float64{"multiVectorScore": 0.1}},
		{EntityType: model.EntityFunction, EntityID: "high", Scores: map[string]float64{"multiVectorScore": 0.9}},
	}
	out := RunReranking(context.Background(), nil, false, "", candidates, 2, 1.0, true, tr)
	if len(out) != 2 || out[0].EntityID != "high" {
		t.Errorf("expected highest-relevance candidate first with lambda=1, got %+v", out)
	}
}

func TestRunRerankingIsNoOpWhenDiversifyFalse(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{
		{EntityType: model.EntityFunction, EntityID: "low", Scores: map[string]float64{"multiVectorScore": 0.1}},
		{EntityType: model.EntityFunction, EntityID: "high", Scores: map[string]float64{"multiVectorScore": 0.9}},
	}
	out := RunReranking(context.Background(), nil, false, "", candidates, 2, 1.0, false, tr)
	if len(out) != 2 || out[0].EntityID != "low" || out[1].EntityID != "high" {
		t.Errorf("expected order preserved when diversify=false, got %+v", out)
	}
	report, _ := tr.Report(StageReranking)
	if report.Telemetry["rerankSkipReason"] != "diversify_disabled" {
		t.Errorf("expected rerankSkipReason=diversify_disabled, got %v", report.Telemetry["rerankSkipReason"])
	}
}

type fakeCrossEncoder struct {
	order []string
	err   error
}

func (f fakeCrossEncoder) RerankCandidates(ctx context.Context, intent string, keys []string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func TestRunRerankingAppliesCrossEncoderOrder(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{
		{EntityType: model.EntityFunction, EntityID: "a"},
		{EntityType: model.EntityFunction, EntityID: "b"},
	}
	ce := fakeCrossEncoder{order: []string{"function:b", "function:a"}}
	out := RunReranking(context.Background(), ce, true, "intent", candidates, 2, DefaultMMRLambda, false, tr)
	if len(out) != 2 || out[0].EntityID != "b" || out[1].EntityID != "a" {
		t.Errorf("expected cross-encoder order applied, got %+v", out)
	}
}

func TestRunRerankingFallsBackWhenCrossEncoderMismatches(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{
		{EntityType: model.EntityFunction, EntityID: "a"},
		{EntityType: model.EntityFunction, EntityID: "b"},
	}
	ce := fakeCrossEncoder{order: []string{"function:a"}} // wrong length
	out := RunReranking(context.Background(), ce, true, "intent", candidates, 2, DefaultMMRLambda, false, tr)
	if len(out) != 2 || out[0].EntityID != "a" || out[1].EntityID != "b" {
		t.Errorf("expected fallback to original order on mismatch, got %+v", out)
	}
	report, _ := tr.Report(StageReranking)
	if len(report.Issues) == 0 {
		t.Error("expected a partial-status issue recorded on cross-encoder fallback")
	}
}

func TestRunRerankingFallsBackWhenCrossEncoderErrors(t *testing.T) {
	tr := NewTracker(nil)
	candidates := []Candidate{{EntityType: model.EntityFunction, EntityID: "a"}}
	ce := fakeCrossEncoder{err: errors.New("provider unavailable")}
	out := RunReranking(context.Background(), ce, true, "intent", candidates, 1, DefaultMMRLambda, false, tr)
	if len(out) != 1 || out[0].EntityID != "a" {
		t.Errorf("expected fallback to original order on provider error, got %+v", out)
	}
}
