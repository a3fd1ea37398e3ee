package retrieval

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// SynthesisBudget bounds how long the synthesis stage may wait on an LLM,
// independent of the overall per-query deadline (§5: "synthesis bounded at
// 60s independent of query deadline").
const SynthesisBudget = 60 * time.Second

// SynthesisMaxRetries is how many times synthesis retries a malformed LLM
// response before falling back to the heuristic summary (§4.E.11).
const SynthesisMaxRetries = 3

// unverifiedPrefix marks a claim the LLM asserted without grounding it in
// a cited snippet; synthesis strips it rather than rejecting the whole
// response (§4.E.11).
var unverifiedPrefixPattern = regexp.MustCompile(`(?i)unverified_by_trace\([^)]*\)\s*:?\s*`)

// SynthesisProvider produces a natural-language synthesis for a set of
// packs, returning either a JSON object (preferred) or plain text.
type SynthesisProvider interface {
	Synthesize(ctx context.Context, intent string, packs []model.ContextPack) (string, error)
}

// synthesisResponse is the JSON shape a well-behaved LLM synthesis
// provider returns.
type synthesisResponse struct {
	Summary string `json:"summary"`
}

// RunSynthesis produces a final natural-language summary for the selected
// packs: LLM-backed when available, falling back to a heuristic
// concatenation of pack summaries otherwise (§4.E.11).
func RunSynthesis(ctx context.Context, provider SynthesisProvider, llmAvailable bool, intent string, packs []model.ContextPack, tracker *Tracker) (summary string, mode string) {
	tracker.Start(StageSynthesis)

	if !llmAvailable || provider == nil {
		summary = heuristicSynthesis(packs)
		tracker.Finish(StageSynthesis, len(packs), boolToCount(summary != ""), 0, map[string]interface{}{"mode": "heuristic"})
		return summary, "heuristic"
	}

	budgetCtx, cancel := context.WithTimeout(ctx, SynthesisBudget)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= SynthesisMaxRetries; attempt++ {
		raw, err := provider.Synthesize(budgetCtx, intent, packs)
		if err != nil {
			lastErr = err
			continue
		}
		cleaned := cleanSynthesis(raw)
		if cleaned != "" {
			tracker.Finish(StageSynthesis, len(packs), 1, 0, map[string]interface{}{"mode": "llm", "attempts": attempt + 1})
			return cleaned, "llm"
		}
	}

	if lastErr != nil {
		tracker.QueueIssue(StageSynthesis, Issue{Severity: SeverityModerate, Message: "llm synthesis failed after retries: " + lastErr.Error()})
	}

	summary = heuristicSynthesis(packs)
	tracker.Finish(StageSynthesis, len(packs), boolToCount(summary != ""), 0, map[string]interface{}{"mode": "heuristic", "fellBackFromLLM": true})
	return summary, "heuristic"
}

// cleanSynthesis accepts either a JSON {"summary": "..."} object or raw
// plaintext, stripping any unverified_by_trace(...) prefixes (§4.E.11).
func cleanSynthesis(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	text := trimmed
	var parsed synthesisResponse
	if json.Unmarshal([]byte(trimmed), &parsed) == nil && parsed.Summary != "" {
		text = parsed.Summary
	}

	text = unverifiedPrefixPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func heuristicSynthesis(packs []model.ContextPack) string {
	if len(packs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range packs {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(p.Summary)
	}
	return strings.TrimSpace(b.String())
}

func boolToCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
