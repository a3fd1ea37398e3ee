package embedding

import (
	"context"
	"fmt"
)

// Chunk splits text into overlapping windows of at most size runes, each
// subsequent window starting overlap runes before the previous one ended
// (§4.E.3: long inputs are chunked before embedding rather than truncated).
func Chunk(text string, size, overlap int) []string {
	runes := []rune(text)
	if size <= 0 {
		size = 400
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// MergeMean element-wise averages a set of equal-dimension vectors into
// one, used to collapse per-chunk embeddings back into a single vector for
// a long document. A dimension mismatch among inputs is
// provider_invalid_output (§7, §8) and is returned as an error rather than
// silently ignoring the offending vector.
func MergeMean(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding: provider_invalid_output: no vectors to merge")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("embedding: provider_invalid_output: zero-dimension vector")
	}
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("embedding: provider_invalid_output: dimension mismatch %d != %d", len(v), dim)
		}
		for i, f := range v {
			sum[i] += float64(f)
		}
	}
	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s / float64(len(vectors)))
	}
	return out, nil
}

// EmbedLong chunks text, embeds each chunk, and merges the results into one
// vector representing the whole document (§4.E.3).
func EmbedLong(ctx context.Context, engine Engine, text string, chunkSize, overlap int) ([]float32, error) {
	chunks := Chunk(text, chunkSize, overlap)
	if len(chunks) == 1 {
		return engine.Embed(ctx, chunks[0])
	}
	vectors, err := engine.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return MergeMean(vectors)
}
