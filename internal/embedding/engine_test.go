package embedding

import (
	"context"
	"testing"

	"github.com/nateschmiedehaus/librarian/internal/config"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	sim, err := CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("CosineSimilarity: %v", err)
	}
	if sim < 0.999 {
		t.Errorf("expected similarity ~1.0, got %v", sim)
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if err == nil {
		t.Error("expected error on dimension mismatch")
	}
}

func TestFindTopKOrdersDescending(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},
		{1, 0},
		{0.7, 0.7},
	}
	results := FindTopK(query, corpus, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Index != 1 {
		t.Errorf("expected index 1 (exact match) first, got %d", results[0].Index)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("expected descending similarity order")
	}
}

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	chunks := Chunk("short text", 400, 80)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestChunkLongTextOverlaps(t *testing.T) {
	text := make([]rune, 1000)
	for i := range text {
		text[i] = rune('a' + (i % 26))
	}
	chunks := Chunk(string(text), 400, 80)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len([]rune(c)) > 400 {
			t.Errorf("chunk exceeds size: %d runes", len([]rune(c)))
		}
	}
}

func TestMergeMeanDimensionMismatch(t *testing.T) {
	_, err := MergeMean([][]float32{{1, 2}, {1, 2, 3}})
	if err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMergeMeanAverages(t *testing.T) {
	out, err := MergeMean([][]float32{{2, 4}, {4, 8}})
	if err != nil {
		t.Fatalf("MergeMean: %v", err)
	}
	if out[0] != 3 || out[1] != 6 {
		t.Errorf("expected [3 6], got %v", out)
	}
}

func TestNewEngineDisabledIsNoop(t *testing.T) {
	eng, err := NewEngine(config.EmbeddingConfig{Provider: "disabled"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if eng.Dimensions() != 0 {
		t.Errorf("expected noop engine with 0 dimensions, got %d", eng.Dimensions())
	}
	if _, err := eng.Embed(context.Background(), "x"); err == nil {
		t.Error("expected noop engine Embed to error")
	}
}

func TestNewEngineUnsupportedProvider(t *testing.T) {
	_, err := NewEngine(config.EmbeddingConfig{Provider: "bogus"})
	if err == nil {
		t.Error("expected error for unsupported provider")
	}
}
