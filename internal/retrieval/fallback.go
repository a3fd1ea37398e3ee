package retrieval

import (
	"strings"
	"unicode"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// segmentIdentifier splits a camelCase or snake_case identifier into its
// lowercase word segments (§4.E.7 fallback heuristic).
func segmentIdentifier(s string) []string {
	var segments []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '/':
			flush()
		case unicode.IsUpper(r) && i > 0 && !unicode.IsUpper(runes[i-1]):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return segments
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		for _, seg := range segmentIdentifier(word) {
			if len(seg) >= 2 {
				set[seg] = true
			}
		}
	}
	return set
}

func overlapScore(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	hits := 0
	for tok := range a {
		if b[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

// RunFallback is invoked only when earlier stages produced nothing usable:
// it scans every known file by token overlap against the query intent,
// splitting camelCase/snake_case identifiers into segments first (§4.E.7).
func RunFallback(ec execContext, q Query, source KnowledgeSource, tracker *Tracker) []Candidate {
	tracker.Start(StageFallback)

	files, err := source.ListFiles(ec.ctx)
	if err != nil {
		tracker.QueueIssue(StageFallback, Issue{Severity: SeveritySignificant, Message: "file listing failed: " + err.Error()})
		tracker.Finish(StageFallback, 0, 0, 0, nil)
		return nil
	}

	queryTokens := tokenSet(q.Intent)
	var out []Candidate
	for _, f := range files {
		fileTokens := tokenSet(f.Path + " " + f.Summary + " " + strings.Join(f.KeyExports, " "))
		score := overlapScore(queryTokens, fileTokens)
		if score <= 0 {
			continue
		}
		c := Candidate{EntityType: model.EntityFile, EntityID: f.ID, Source: "fallback"}
		c.setScore("tokenOverlap", score)
		out = append(out, c)
	}

	tracker.Finish(StageFallback, len(files), len(out), len(files)-len(out), map[string]interface{}{
		"queryTokenCount": len(queryTokens),
	})
	return out
}
