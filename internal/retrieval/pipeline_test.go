package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

func TestPipelineRunDirectPacksOnly(t *testing.T) {
	src := newFakeSource()
	src.addPack(model.ContextPack{
		PackID: "p1", PackType: model.PackFunctionContext, TargetID: "fn1",
		RelatedFiles: []string{"a.go"}, Confidence: 0.5, CreatedAt: time.Now().Add(-time.Hour),
		Summary: "handles auth", CodeSnippets: []model.CodeSnippet{{FilePath: "a.go"}},
	})

	p := NewPipeline(src, nil)
	q := Query{Intent: "how does auth work", AffectedFiles: []string{"a.go"}, Depth: DepthL1}

	result := p.Run(context.Background(), q, "", nil, nil)
	if len(result.Packs) == 0 {
		t.Fatal("expected at least one pack from direct_packs path")
	}
	if result.Packs[0].PackID != "p1" {
		t.Errorf("expected p1 to surface, got %+v", result.Packs)
	}
	if result.Tracker == nil {
		t.Fatal("expected a populated tracker")
	}
	reports := result.Tracker.AllReports()
	if len(reports) != len(StageOrder) {
		t.Errorf("expected a report for every stage, got %d", len(reports))
	}
}

func TestPipelineRunAdequacyShortCircuitsAtL0(t *testing.T) {
	src := newFakeSource()
	src.addPack(model.ContextPack{
		PackID: "p1", TargetID: "fn1", RelatedFiles: []string{"a.go"},
		Confidence: 0.9, CreatedAt: time.Now(),
	})

	p := NewPipeline(src, nil)
	q := Query{Intent: "what does this do", AffectedFiles: []string{"a.go"}, Depth: DepthL0}

	result := p.Run(context.Background(), q, "", nil, nil)
	if result.SynthesisMode != "cache" {
		t.Errorf("expected adequacy short-circuit to report synthesisMode=cache, got %s", result.SynthesisMode)
	}
}

func TestPipelineRunFallsBackWhenNothingElseMatches(t *testing.T) {
	src := newFakeSource()
	src.files["f1"] = model.FileRecord{ID: "f1", Path: "auth_handler.go", Summary: "handles authentication"}

	p := NewPipeline(src, nil)
	q := Query{Intent: "auth handler", Depth: DepthL1}

	result := p.Run(context.Background(), q, "", nil, nil)
	report, ok := result.Tracker.Report(StageFallback)
	if !ok || report.Status == StatusSkipped {
		t.Errorf("expected fallback to actually run when no other stage found candidates, got %+v", report)
	}
}

func TestPipelineObserverReceivesStageReports(t *testing.T) {
	src := newFakeSource()
	var seenStages []StageName

	p := NewPipeline(src, nil)
	q := Query{Intent: "anything", Depth: DepthL1}
	p.Run(context.Background(), q, "", nil, func(r StageReport) {
		seenStages = append(seenStages, r.Stage)
	})

	if len(seenStages) == 0 {
		t.Error("expected observer to receive stage reports")
	}
}
