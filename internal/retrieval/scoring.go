package retrieval

// scoringDimensions are the dimensions multi-signal scoring merges across
// candidates, keeping the strongest per dimension per entity (§4.E.5).
var scoringDimensions = []string{
	"semanticSimilarity", "graphSimilarity", "cochange", "confidence", "recency", "pagerank", "centrality", "directMatch",
}

// signalWeights is the default linear combination used to produce a single
// multiSignalScore per candidate (§4.E.5).
var signalWeights = map[string]float64{
	"semanticSimilarity": 0.30,
	"graphSimilarity":    0.20,
	"cochange":           0.10,
	"confidence":         0.15,
	"recency":            0.10,
	"pagerank":           0.075,
	"centrality":         0.075,
	"directMatch":        0.40,
}

// MergeCandidates deduplicates candidates from multiple stages by key,
// keeping the strongest signal per dimension (§4.E.5 merge rule).
func MergeCandidates(groups ...[]Candidate) []Candidate {
	merged := make(map[string]*Candidate)
	order := make([]string, 0)

	for _, group := range groups {
		for _, c := range group {
			key := c.Key()
			existing, ok := merged[key]
			if !ok {
				clone := c
				if clone.Scores == nil {
					clone.Scores = make(map[string]float64)
				}
				merged[key] = &clone
				order = append(order, key)
				continue
			}
			for dim, v := range c.Scores {
				existing.setScore(dim, v)
			}
			if existing.PackID == "" && c.PackID != "" {
				existing.PackID = c.PackID
			}
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out
}

// RunMultiSignalScoring computes a single multiSignalScore per candidate as
// a weighted linear combination of its per-dimension signals (§4.E.5).
func RunMultiSignalScoring(candidates []Candidate, tracker *Tracker) []Candidate {
	tracker.Start(StageMultiSignalScoring)

	for i := range candidates {
		var total float64
		for dim, weight := range signalWeights {
			total += candidates[i].score(dim) * weight
		}
		candidates[i].setScore("multiSignalScore", total)
	}

	tracker.Finish(StageMultiSignalScoring, len(candidates), len(candidates), 0, nil)
	return candidates
}

// intentBiasProfiles nudges multiVectorScore toward dimensions that matter
// most for a given intent shape (§4.E.6).
var intentBiasProfiles = map[IntentKind]map[string]float64{
	IntentMeta:       {"graphSimilarity": 1.3, "centrality": 1.4},
	IntentCode:       {"semanticSimilarity": 1.3, "directMatch": 1.2},
	IntentDefinition: {"directMatch": 1.4, "semanticSimilarity": 1.1},
	IntentEntryPoint: {"centrality": 1.5, "pagerank": 1.3},
}

// RunMultiVectorScoring applies an intent-specific bias profile to the
// multi-signal score, producing the final ranking score for this pass
// (§4.E.6).
func RunMultiVectorScoring(candidates []Candidate, intentKind IntentKind, tracker *Tracker) []Candidate {
	tracker.Start(StageMultiVectorScoring)

	profile := intentBiasProfiles[intentKind]
	for i := range candidates {
		base := candidates[i].score("multiSignalScore")
		biased := base
		for dim, mult := range profile {
			if v := candidates[i].score(dim); v > 0 {
				biased += v * (mult - 1) * signalWeights[dim]
			}
		}
		candidates[i].setScore("multiVectorScore", biased)
	}

	tracker.Finish(StageMultiVectorScoring, len(candidates), len(candidates), 0, map[string]interface{}{
		"intentKind": string(intentKind),
	})
	return candidates
}
