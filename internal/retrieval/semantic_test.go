package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nateschmiedehaus/librarian/internal/embedding"
)

// fakeEmbeddingEngine returns a vector that encodes whether the input text
// contains each of a fixed set of marker words, so tests can construct
// predictable similarity relationships.
type fakeEmbeddingEngine struct {
	markers []string
}

func (f *fakeEmbeddingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(f.markers))
	for i, m := range f.markers {
		if strings.Contains(lower, m) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (f *fakeEmbeddingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbeddingEngine) Dimensions() int { return len(f.markers) }
func (f *fakeEmbeddingEngine) Name() string    { return "fake" }

func TestRunSemanticRetrievalRanksByCosineSimilarity(t *testing.T) {
	src := newFakeSource()
	src.embeddings["function:auth_handler"] = []float32{1, 0}
	src.embeddings["function:unrelated"] = []float32{0, 1}

	eng := &fakeEmbeddingEngine{markers: []string{"auth", "unrelated"}}
	tr := NewTracker(nil)
	ec := execContext{ctx: context.Background()}
	q := Query{Intent: "auth", Depth: DepthL1}

	out := RunSemanticRetrieval(ec, q, eng, src, nil, tr)
	if len(out) == 0 {
		t.Fatal("expected at least one semantic candidate")
	}
	if out[0].EntityID != "auth_handler" {
		t.Errorf("expected auth_handler ranked first, got %s", out[0].EntityID)
	}
}

func TestRunSemanticRetrievalNoProviderIsNonSuccessNotFatal(t *testing.T) {
	src := newFakeSource()
	tr := NewTracker(nil)
	ec := execContext{ctx: context.Background()}
	q := Query{Intent: "anything"}

	out := RunSemanticRetrieval(ec, q, nil, src, nil, tr)
	if out != nil {
		t.Error("expected nil candidates with no embedding provider")
	}
	report, ok := tr.Report(StageSemanticRetrieval)
	if !ok || report.Status == StatusSuccess {
		t.Errorf("expected non-success status without a provider, got %+v", report)
	}
}

func TestRunSemanticRetrievalDepthL0HasZeroWindow(t *testing.T) {
	src := newFakeSource()
	src.embeddings["function:x"] = []float32{1}
	eng := &fakeEmbeddingEngine{markers: []string{"x"}}
	tr := NewTracker(nil)
	ec := execContext{ctx: context.Background()}
	q := Query{Intent: "x", Depth: DepthL0}

	out := RunSemanticRetrieval(ec, q, eng, src, nil, tr)
	if len(out) != 0 {
		t.Errorf("expected zero candidates at depth L0, got %d", len(out))
	}
}

var _ embedding.Engine = (*fakeEmbeddingEngine)(nil)

type fakeHyDEProvider struct {
	doc string
	err error
}

func (f fakeHyDEProvider) GenerateHypotheticalDocument(ctx context.Context, intent string) (string, error) {
	return f.doc, f.err
}

func TestHydeExpansionFallsBackWithoutLLM(t *testing.T) {
	tr := NewTracker(nil)
	got := hydeExpansion(context.Background(), fakeHyDEProvider{doc: "should not be used"}, false, "auth flow", tr)
	if !strings.Contains(got, "auth flow") || strings.Contains(got, "should not be used") {
		t.Errorf("expected canned fallback when llmAvailable=false, got %q", got)
	}
}

func TestHydeExpansionStripsCodeFencesAndTruncates(t *testing.T) {
	tr := NewTracker(nil)
	long := strings.Repeat("x", hydeMaxChars+500)
	provider := fakeHyDEProvider{doc: "```go\n" + long + "\n```"}
	got := hydeExpansion(context.Background(), provider, true, "auth flow", tr)
	if strings.Contains(got, "```") {
		t.Errorf("expected code fences stripped, got %q", got[:20])
	}
	if len(got) > hydeMaxChars {
		t.Errorf("expected truncation to %d chars, got %d", hydeMaxChars, len(got))
	}
}

func TestHydeExpansionFallsBackOnProviderError(t *testing.T) {
	tr := NewTracker(nil)
	got := hydeExpansion(context.Background(), fakeHyDEProvider{err: errTestHydeFailure}, true, "auth flow", tr)
	if !strings.Contains(got, "auth flow") {
		t.Errorf("expected canned fallback on provider error, got %q", got)
	}
}

var errTestHydeFailure = errors.New("hyde provider unavailable")
