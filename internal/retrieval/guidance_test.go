package retrieval

import (
	"context"
	"testing"
)

type stubGuidanceProvider struct {
	response string
}

func (s *stubGuidanceProvider) Suggest(ctx context.Context, intent string, candidateSummaries []string) (string, error) {
	return s.response, nil
}

func TestRunMethodGuidanceSkipsWithoutLLM(t *testing.T) {
	tr := NewTracker(nil)
	out := RunMethodGuidance(context.Background(), nil, false, "intent", nil, tr)
	if out != "" {
		t.Errorf("expected empty guidance without LLM, got %q", out)
	}
	report, _ := tr.Report(StageMethodGuidance)
	if report.Status != StatusSkipped {
		t.Errorf("expected skipped status, got %s", report.Status)
	}
}

func TestRunMethodGuidanceReturnsProviderOutput(t *testing.T) {
	tr := NewTracker(nil)
	provider := &stubGuidanceProvider{response: "check the call sites"}
	out := RunMethodGuidance(context.Background(), provider, true, "intent", nil, tr)
	if out != "check the call sites" {
		t.Errorf("expected provider output, got %q", out)
	}
}
