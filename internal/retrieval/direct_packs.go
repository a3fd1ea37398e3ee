package retrieval

import (
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// RunDirectPacks looks up packs directly attached to the query's affected
// files, and seeds additional candidates from prior queries with the same
// normalized intent (§4.E.2).
func RunDirectPacks(ec execContext, q Query, normalizedIntent string, source KnowledgeSource, tracker *Tracker) []Candidate {
	tracker.Start(StageDirectPacks)

	seen := make(map[string]*Candidate)
	inputCount := 0

	for _, file := range q.AffectedFiles {
		packs, err := source.ListPacksByRelatedFile(ec.ctx, file)
		if err != nil {
			tracker.QueueIssue(StageDirectPacks, Issue{Severity: SeverityMinor, Message: "lookup failed for " + file})
			continue
		}
		inputCount += len(packs)
		for _, p := range packs {
			addDirectCandidate(seen, p, 1.0, "direct_pack")
		}
	}

	if normalizedIntent != "" {
		logs, err := source.GetQueryAccessLogsForIntent(ec.ctx, normalizedIntent, 5)
		if err == nil {
			for _, rec := range logs {
				inputCount += len(rec.TargetIDs)
				for _, targetID := range rec.TargetIDs {
					packs, err := source.ListPacksByTarget(ec.ctx, targetID)
					if err != nil {
						continue
					}
					for _, p := range packs {
						addDirectCandidate(seen, p, 0.6, "prior_intent_match")
					}
				}
			}
		}
	}

	out := make([]Candidate, 0, len(seen))
	for _, c := range seen {
		out = append(out, *c)
	}

	tracker.Finish(StageDirectPacks, inputCount, len(out), inputCount-len(out), map[string]interface{}{
		"affectedFileCount": len(q.AffectedFiles),
	})
	return out
}

func addDirectCandidate(seen map[string]*Candidate, p model.ContextPack, score float64, source string) {
	key := string(entityTypeFor(p.PackType)) + ":" + p.TargetID
	c, ok := seen[key]
	if !ok {
		c = &Candidate{EntityType: entityTypeFor(p.PackType), EntityID: p.TargetID, PackID: p.PackID, Source: source}
		seen[key] = c
	}
	c.setScore("directMatch", score)
}

// entityTypeFor maps a pack type to the entity type it describes (also used
// by post_processing, §4.E.12).
func entityTypeFor(pt model.PackType) model.EntityType {
	switch pt {
	case model.PackFunctionContext, model.PackCallFlow, model.PackRelatedFunction:
		return model.EntityFunction
	case model.PackModuleContext, model.PackProjectUnderstanding, model.PackPatternContext:
		return model.EntityModule
	case model.PackDocContext, model.PackChangeImpact, model.PackTestContext:
		return model.EntityFile
	default:
		return model.EntityFile
	}
}
