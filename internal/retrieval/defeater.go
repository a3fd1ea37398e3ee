package retrieval

import (
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// DefeaterKind enumerates the evaluators that can invalidate or discount a
// candidate pack after reranking (§4.E.9).
type DefeaterKind string

const (
	DefeaterStaleness      DefeaterKind = "staleness"
	DefeaterCodeChange     DefeaterKind = "code_change"
	DefeaterContradiction  DefeaterKind = "contradiction"
	DefeaterCoverageGap    DefeaterKind = "coverage_gap"
)

// Defeater is one triggered evaluator against a specific candidate.
type Defeater struct {
	Kind      DefeaterKind
	CandidateKey string
	Message   string
}

// stalenessThreshold is how old a pack's CreatedAt can be before the
// staleness defeater fires (§4.E.9).
const stalenessThreshold = 30 * 24 * time.Hour

// RunDefeaterCheck evaluates each pack-backed candidate against the four
// defeater kinds, discounting confidence for any that trigger rather than
// dropping the candidate outright (§4.E.9: defeaters lower confidence, they
// do not remove evidence).
func RunDefeaterCheck(ec execContext, candidates []Candidate, packs map[string]model.ContextPack, changedFiles map[string]bool, tracker *Tracker) ([]Candidate, []Defeater) {
	tracker.Start(StageDefeaterCheck)

	var fired []Defeater
	for i := range candidates {
		pack, ok := packs[candidates[i].PackID]
		if !ok {
			continue
		}

		discount := 1.0

		if ec.clock().Sub(pack.CreatedAt) > stalenessThreshold {
			fired = append(fired, Defeater{Kind: DefeaterStaleness, CandidateKey: candidates[i].Key(), Message: "pack older than staleness threshold"})
			discount *= 0.85
		}

		for _, rf := range pack.RelatedFiles {
			if changedFiles[rf] {
				fired = append(fired, Defeater{Kind: DefeaterCodeChange, CandidateKey: candidates[i].Key(), Message: "related file changed since pack was created: " + rf})
				discount *= 0.7
				break
			}
		}

		if pack.FailureCount > 0 && pack.FailureCount > pack.SuccessCount {
			fired = append(fired, Defeater{Kind: DefeaterContradiction, CandidateKey: candidates[i].Key(), Message: "pack has more recorded failures than successes"})
			discount *= 0.75
		}

		if len(pack.CodeSnippets) == 0 && len(pack.KeyFacts) == 0 {
			fired = append(fired, Defeater{Kind: DefeaterCoverageGap, CandidateKey: candidates[i].Key(), Message: "pack carries no evidence (no snippets or facts)"})
			discount *= 0.9
		}

		if discount < 1.0 {
			candidates[i].setScore("defeaterDiscount", discount)
		}
	}

	issues := make([]Issue, 0, len(fired))
	affected := make(map[string]bool, len(fired))
	for _, d := range fired {
		issues = append(issues, Issue{Severity: SeverityMinor, Message: string(d.Kind) + ": " + d.Message})
		affected[d.CandidateKey] = true
	}

	tracker.Finish(StageDefeaterCheck, len(candidates), len(candidates), len(affected), map[string]interface{}{
		"defeatersFired": len(fired),
	}, issues...)

	return candidates, fired
}
