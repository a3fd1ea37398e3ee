package retrieval

import (
	"context"
	"math"
)

// DefaultMMRLambda balances relevance against diversity in MMR reranking
// (§4.E.8): higher favors relevance, lower favors diversity.
const DefaultMMRLambda = 0.5

// CrossEncoderProvider reranks the windowed candidates for one query by
// sending their keys to an LLM cross-encoder and returning its preferred
// order (§4.E.8). Implementations may reorder but must never add, drop, or
// duplicate a key; RunReranking rejects any output that does.
type CrossEncoderProvider interface {
	RerankCandidates(ctx context.Context, intent string, keys []string) ([]string, error)
}

// termFrequency is a crude bag-of-words vector derived from a candidate's
// key, used only to estimate similarity between two candidates for MMR
// diversification when no richer text is available.
type termFrequency map[string]float64

func candidateTermFrequency(c Candidate) termFrequency {
	tf := make(termFrequency)
	for _, seg := range segmentIdentifier(c.EntityID) {
		tf[seg]++
	}
	return tf
}

func cosineTF(a, b termFrequency) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k, v := range a {
		dot += v * b[k]
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RunReranking applies the rerank stage's two optional mechanisms over the
// depth's rerank window: an LLM cross-encoder pass, then (when
// query.diversify is set) Maximal Marginal Relevance:
// argmax_i (lambda*relevance_i - (1-lambda)*max_j cosine(tf_i, tf_j)) over
// the already-selected set (§4.E.8). A window of zero means the depth
// profile disables reranking entirely: input order is preserved and the
// stage records rerankSkipReason = "depth_profile_disabled".
func RunReranking(ctx context.Context, crossEncoder CrossEncoderProvider, llmAvailable bool, intent string, candidates []Candidate, windowSize int, lambda float64, diversify bool, tracker *Tracker) []Candidate {
	tracker.Start(StageReranking)

	if windowSize <= 0 || len(candidates) == 0 {
		tracker.Finish(StageReranking, len(candidates), len(candidates), 0, map[string]interface{}{
			"rerankWindow":       windowSize,
			"rerankInputCount":   len(candidates),
			"rerankAppliedCount": len(candidates),
			"rerankSkipReason":   "depth_profile_disabled",
		})
		return candidates
	}

	window := candidates
	var tail []Candidate
	if windowSize < len(candidates) {
		window = candidates[:windowSize]
		tail = candidates[windowSize:]
	}

	out := append([]Candidate{}, window...)
	skipReason := ""

	if llmAvailable && crossEncoder != nil {
		if reordered, ok := runCrossEncoderRerank(ctx, crossEncoder, intent, out, tracker); ok {
			out = reordered
		} else {
			skipReason = "cross_encoder_fallback"
		}
	}

	if diversify {
		out = mmrRerank(out, lambda)
		skipReason = ""
	} else if skipReason == "" {
		skipReason = "diversify_disabled"
	}

	out = append(out, tail...)

	telemetry := map[string]interface{}{
		"rerankWindow":       windowSize,
		"rerankInputCount":   len(candidates),
		"rerankAppliedCount": len(window),
	}
	if skipReason != "" {
		telemetry["rerankSkipReason"] = skipReason
	}
	tracker.Finish(StageReranking, len(candidates), len(out), len(candidates)-len(out), telemetry)
	return out
}

// runCrossEncoderRerank sends the windowed candidates' keys to the LLM
// cross-encoder and applies the order it returns. The result is rejected
// and the caller falls back to its prior order when the cross-encoder
// errors, changes the candidate count, or returns a key the window didn't
// contain (§4.E.8).
func runCrossEncoderRerank(ctx context.Context, provider CrossEncoderProvider, intent string, window []Candidate, tracker *Tracker) ([]Candidate, bool) {
	byKey := make(map[string]Candidate, len(window))
	keys := make([]string, len(window))
	for i, c := range window {
		keys[i] = c.Key()
		byKey[c.Key()] = c
	}

	ordered, err := provider.RerankCandidates(ctx, intent, keys)
	if err != nil || len(ordered) != len(window) {
		tracker.QueueIssue(StageReranking, Issue{Severity: SeverityModerate, Message: "cross-encoder rerank rejected: length mismatch, falling back to prior order"})
		return window, false
	}

	out := make([]Candidate, 0, len(ordered))
	seen := make(map[string]bool, len(ordered))
	for _, key := range ordered {
		c, ok := byKey[key]
		if !ok || seen[key] {
			tracker.QueueIssue(StageReranking, Issue{Severity: SeverityModerate, Message: "cross-encoder rerank rejected: candidate mismatch, falling back to prior order"})
			return window, false
		}
		seen[key] = true
		out = append(out, c)
	}
	return out, true
}

// mmrRerank reorders candidates by Maximal Marginal Relevance: the
// highest-scoring candidate first, then whichever remaining candidate
// maximizes relevance discounted by its similarity to what's already been
// selected (§4.E.8).
func mmrRerank(candidates []Candidate, lambda float64) []Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	tfs := make([]termFrequency, len(candidates))
	for i, c := range candidates {
		tfs[i] = candidateTermFrequency(c)
	}

	relevance := func(c Candidate) float64 {
		if v := c.score("multiVectorScore"); v != 0 {
			return v
		}
		return c.score("multiSignalScore")
	}

	selected := make([]int, 0, len(candidates))
	remaining := make(map[int]bool, len(candidates))
	for i := range candidates {
		remaining[i] = true
	}

	for len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1e18
		for i := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if sim := cosineTF(tfs[i], tfs[s]); sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*relevance(candidates[i]) - (1-lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		selected = append(selected, bestIdx)
		delete(remaining, bestIdx)
	}

	out := make([]Candidate, 0, len(selected))
	for _, idx := range selected {
		out = append(out, candidates[idx])
	}
	return out
}
