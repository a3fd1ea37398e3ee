package retrieval

import "github.com/nateschmiedehaus/librarian/internal/model"

// RunPostProcessing deduplicates packs by PackID (keeping the instance with
// the highest confidence) and orders them by their final ranking score,
// producing the envelope-ready pack list (§4.E.12). Synthesis (§4.E.11)
// runs against the same resolved pack list via dedupePacks directly, since
// the fixed stage order (stages.go) places synthesis before
// post_processing's telemetry even though both consume the same resolution.
func RunPostProcessing(candidates []Candidate, packs map[string]model.ContextPack, tracker *Tracker) []model.ContextPack {
	tracker.Start(StagePostProcessing)

	out := dedupePacks(candidates, packs)

	tracker.Finish(StagePostProcessing, len(candidates), len(out), len(candidates)-len(out), map[string]interface{}{
		"dedupedFrom": len(candidates),
	})
	return out
}

// dedupePacks is RunPostProcessing's resolution logic without tracker side
// effects, so synthesis can consume the final pack list before the
// post_processing stage records its own telemetry.
func dedupePacks(candidates []Candidate, packs map[string]model.ContextPack) []model.ContextPack {
	seen := make(map[string]model.ContextPack)
	order := make([]string, 0, len(candidates))

	for _, c := range candidates {
		if c.PackID == "" {
			continue
		}
		pack, ok := packs[c.PackID]
		if !ok {
			continue
		}
		if existing, exists := seen[c.PackID]; !exists || pack.Confidence > existing.Confidence {
			if !exists {
				order = append(order, c.PackID)
			}
			if pack.Scores == nil {
				pack.Scores = make(map[string]float64)
			}
			for k, v := range c.Scores {
				pack.Scores[k] = v
			}
			seen[c.PackID] = pack
		}
	}

	out := make([]model.ContextPack, 0, len(order))
	for _, id := range order {
		out = append(out, seen[id])
	}

	sortPacksByFinalScore(out)
	return out
}

func sortPacksByFinalScore(packs []model.ContextPack) {
	for i := 1; i < len(packs); i++ {
		j := i
		for j > 0 && finalScore(packs[j]) > finalScore(packs[j-1]) {
			packs[j], packs[j-1] = packs[j-1], packs[j]
			j--
		}
	}
}

func finalScore(p model.ContextPack) float64 {
	if v, ok := p.Scores["multiVectorScore"]; ok {
		discount := 1.0
		if d, ok := p.Scores["defeaterDiscount"]; ok {
			discount = d
		}
		return v * discount
	}
	return p.Confidence
}
