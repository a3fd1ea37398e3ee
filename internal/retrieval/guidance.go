package retrieval

import "context"

// MethodGuidanceProvider generates free-text verification/investigation
// guidance for the final candidate set. Implemented by an LLM-backed
// collaborator; satisfied trivially by a nil provider when no LLM is
// configured.
type MethodGuidanceProvider interface {
	Suggest(ctx context.Context, intent string, candidateSummaries []string) (string, error)
}

// RunMethodGuidance asks the method-guidance provider for free-text
// investigation guidance, skipping entirely when no LLM is configured
// (§4.E.10: "skip if disabled or no LLM available" — a skip is not a
// failure).
func RunMethodGuidance(ctx context.Context, provider MethodGuidanceProvider, llmAvailable bool, intent string, candidates []Candidate, tracker *Tracker) string {
	tracker.Start(StageMethodGuidance)

	if !llmAvailable || provider == nil {
		tracker.FinishSkipped(StageMethodGuidance, "no_llm")
		return ""
	}

	summaries := make([]string, 0, len(candidates))
	for _, c := range candidates {
		summaries = append(summaries, c.Key())
	}

	guidance, err := provider.Suggest(ctx, intent, summaries)
	if err != nil {
		tracker.QueueIssue(StageMethodGuidance, Issue{Severity: SeverityMinor, Message: "guidance provider failed: " + err.Error()})
		tracker.Finish(StageMethodGuidance, len(candidates), 0, 0, nil)
		return ""
	}

	tracker.Finish(StageMethodGuidance, len(candidates), 1, 0, nil)
	return guidance
}
