// Package embedding generates and compares vector embeddings for the
// semantic retrieval stage of the pipeline (§4.E.3).
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/nateschmiedehaus/librarian/internal/config"
	"github.com/nateschmiedehaus/librarian/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is an optional interface an Engine may implement so callers
// can verify availability before a batch operation.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewEngine builds an Engine from EmbeddingConfig. Provider "disabled"
// returns a noopEngine so retrieval can still run with semantic retrieval
// skipped (§4.E.3 degrades gracefully, it does not fail the pipeline).
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	log := logging.Get(logging.CategoryEmbedding)
	log.Info("creating embedding engine provider=%s", cfg.Provider)

	switch cfg.Provider {
	case "", "disabled":
		log.Info("embedding provider disabled, semantic retrieval will be skipped")
		return &noopEngine{}, nil
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	default:
		err := fmt.Errorf("embedding: unsupported provider %q (use \"ollama\" or \"disabled\")", cfg.Provider)
		log.Error("%v", err)
		return nil, err
	}
}

// noopEngine is returned when embeddings are disabled; Dimensions is 0 so
// callers can detect it and skip semantic stages without special-casing.
type noopEngine struct{}

func (noopEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding: provider disabled")
}
func (noopEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding: provider disabled")
}
func (noopEngine) Dimensions() int { return 0 }
func (noopEngine) Name() string    { return "noop" }

// CosineSimilarity computes cosine similarity between two equal-length
// vectors, in [-1, 1]. A dimension mismatch is a provider_invalid_output
// condition per §7/§8 and is reported as an error rather than silently
// truncated.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding: dimension mismatch %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// SimilarityResult is one scored corpus entry from FindTopK.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK ranks corpus vectors against query by cosine similarity and
// returns the top k, descending. Vectors with a dimension mismatch against
// query are skipped rather than aborting the whole search.
func FindTopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		k = 10
	}
	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if len(results) > k {
		results = results[:k]
	}
	return results
}
