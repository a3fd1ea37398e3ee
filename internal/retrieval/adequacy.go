package retrieval

import (
	"context"
	"regexp"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// execContext threads the request context and pipeline-wide settings
// through every stage without each stage function needing its own long
// parameter list.
type execContext struct {
	ctx                    context.Context
	freshnessWindow        time.Duration
	now                    func() time.Time
}

func (e execContext) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// shapePattern pairs a query-shape label with the regex bank that detects it
// (§4.E.1). Order matters: first match wins.
type shapePattern struct {
	shape   string
	pattern *regexp.Regexp
}

var shapeBank = []shapePattern{
	{"meta", regexp.MustCompile(`(?i)\b(what is this|overview|how does this (project|repo|codebase) work)\b`)},
	{"why", regexp.MustCompile(`(?i)\bwhy (does|is|did|was)\b`)},
	{"refactor", regexp.MustCompile(`(?i)\b(refactor|clean ?up|simplify)\b`)},
	{"security", regexp.MustCompile(`(?i)\b(vulnerab|exploit|injection|auth bypass|cve)\b`)},
	{"bug_investigation", regexp.MustCompile(`(?i)\b(bug|crash|panic|stack ?trace|regression|broken)\b`)},
	{"test", regexp.MustCompile(`(?i)\b(test|which tests|coverage)\b`)},
	{"review", regexp.MustCompile(`(?i)\b(review|pr feedback|code review)\b`)},
	{"architecture_verification", regexp.MustCompile(`(?i)\b(architecture|design matches|matches the design)\b`)},
	{"feature_location", regexp.MustCompile(`(?i)\b(where is|where does|locate|find the)\b`)},
	{"definition", regexp.MustCompile(`(?i)\b(what is|define|definition of)\b`)},
	{"entry_point", regexp.MustCompile(`(?i)\b(entry ?point|main function|where (do|does) (it|this) start)\b`)},
}

// AdequacyResult is the Adequacy Scan's verdict (§4.E.1).
type AdequacyResult struct {
	Shape           string
	AlreadyAdequate bool
	ExistingPacks   []string // pack IDs judged sufficient without further retrieval
}

// ClassifyShape runs the regex bank against free text, returning the first
// matching shape or "" if none match.
func ClassifyShape(intent string) string {
	for _, sp := range shapeBank {
		if sp.pattern.MatchString(intent) {
			return sp.shape
		}
	}
	return ""
}

// RunAdequacyScan is the pipeline's first stage: it classifies the query's
// shape and checks whether packs already attached to the affected files are
// fresh and confident enough to skip the rest of the pipeline (§4.E.1).
func RunAdequacyScan(ec execContext, q Query, source KnowledgeSource, tracker *Tracker) AdequacyResult {
	tracker.Start(StageAdequacyScan)

	shape := ClassifyShape(q.Intent)

	var existing []string
	inputCount := 0
	for _, file := range q.AffectedFiles {
		packs, err := source.ListPacksByRelatedFile(ec.ctx, file)
		if err != nil {
			tracker.QueueIssue(StageAdequacyScan, Issue{Severity: SeverityMinor, Message: "pack lookup failed for " + file})
			continue
		}
		inputCount += len(packs)
		for _, p := range packs {
			if p.Confidence >= 0.8 && isFresh(ec, p) {
				existing = append(existing, p.PackID)
			}
		}
	}

	adequate := len(existing) > 0 && q.Depth == DepthL0
	tracker.Finish(StageAdequacyScan, inputCount, len(existing), inputCount-len(existing), map[string]interface{}{
		"shape": shape,
	})

	return AdequacyResult{Shape: shape, AlreadyAdequate: adequate, ExistingPacks: existing}
}

// isFresh reports whether a pack was created within the pipeline's
// freshness window (default 60s, §4.B cross-reference).
func isFresh(ec execContext, p model.ContextPack) bool {
	return ec.clock().Sub(p.CreatedAt) <= ec.freshnessWindow
}
