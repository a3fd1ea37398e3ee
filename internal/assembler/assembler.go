// Package assembler implements the Response Assembler (§4.J): it
// materializes the final response envelope from a retrieval result, a
// construction plan, escalation telemetry, and cache metadata, and
// persists the feedback-token-to-pack-ids binding so a later feedback
// submission can resolve it even across a process restart.
package assembler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nateschmiedehaus/librarian/internal/escalation"
	"github.com/nateschmiedehaus/librarian/internal/model"
	"github.com/nateschmiedehaus/librarian/internal/planner"
	"github.com/nateschmiedehaus/librarian/internal/retrieval"
)

// EnvelopeVersion is the response envelope's schema version (§4.J,
// external-interfaces contract).
const EnvelopeVersion = "1"

// confidenceFloor keeps a geometric-mean total confidence from collapsing
// to zero the moment any single pack's confidence is near the floor.
const confidenceFloor = 0.05

// TokenBinder persists feedback-token-to-pack-ids bindings
// via the Knowledge Store's state keys (§4.J).
type TokenBinder interface {
	SetFeedbackTokenBinding(ctx context.Context, binding model.FeedbackTokenBinding) error
}

// Input carries everything one query's Response Assembler invocation
// needs, collected from the earlier pipeline stages.
type Input struct {
	Query           string
	Plan            planner.Plan
	Retrieval       retrieval.Result
	CacheHit        bool
	LatencyMs       int64
	Escalation      *escalation.Decision
	DisableMethodGuidance bool
}

// Envelope is the Response Assembler's output, matching §4.J and §6's
// field list exactly.
type Envelope struct {
	Query                        string                 `json:"query"`
	Packs                        []model.ContextPack    `json:"packs"`
	Disclosures                  []string               `json:"disclosures"`
	TraceID                      string                 `json:"traceId"`
	ConstructionPlan             planner.Plan           `json:"constructionPlan"`
	TotalConfidence              float64                `json:"totalConfidence"`
	CacheHit                     bool                   `json:"cacheHit"`
	LatencyMs                    int64                  `json:"latencyMs"`
	Version                      string                 `json:"version"`
	DrillDownHints               []string               `json:"drillDownHints"`
	CoverageGaps                 []string               `json:"coverageGaps"`
	SynthesisMode                string                 `json:"synthesisMode"`
	RetrievalEntropy             float64                `json:"retrievalEntropy"`
	RetrievalStatus              escalation.Status      `json:"retrievalStatus"`
	RetrievalInsufficient        bool                   `json:"retrievalInsufficient"`
	SuggestedClarifyingQuestions []string               `json:"suggestedClarifyingQuestions"`
	VerificationPlan             []string               `json:"verificationPlan,omitempty"`
	Adequacy                     *retrieval.AdequacyResult `json:"adequacy,omitempty"`
	FeedbackToken                string                 `json:"feedbackToken"`
}

// Assembler builds Envelopes and persists their feedback-token bindings.
type Assembler struct {
	tokens TokenBinder
	now    func() time.Time
	newID  func() string
}

// New constructs an Assembler. tokens may be nil in tests that don't care
// about persistence.
func New(tokens TokenBinder) *Assembler {
	return &Assembler{tokens: tokens, now: time.Now, newID: uuid.NewString}
}

// Assemble materializes the response envelope for one query and persists
// its feedback token binding (§4.J). A persistence failure is surfaced as
// a disclosure rather than failing the whole query: the caller already has
// a perfectly good answer, just without a durable feedback path.
func (a *Assembler) Assemble(ctx context.Context, in Input) Envelope {
	result := in.Retrieval

	confidences := escalation.ConfidencesFromPacks(result.Packs)
	totalConfidence := result.TotalConfidence
	if totalConfidence == 0 {
		totalConfidence = geometricMeanWithFloor(confidences)
	}
	entropy := escalation.Entropy(confidences)
	status := escalation.ClassifyStatus(totalConfidence, len(result.Packs))

	coverage := retrieval.CoverageAssessment{}
	if result.Tracker != nil {
		coverage = result.Tracker.AssessCoverage(totalConfidence)
	}

	disclosures := append([]string{}, result.Disclosures...)
	if in.DisableMethodGuidance {
		disclosures = append(disclosures, "method_guidance_disabled")
	}
	if in.Escalation != nil && in.Escalation.ShouldEscalate {
		disclosures = append(disclosures, fmt.Sprintf("escalated_depth_%d", in.Escalation.NextDepth))
	}

	env := Envelope{
		Query:                 in.Query,
		Packs:                 result.Packs,
		Disclosures:           disclosures,
		TraceID:               a.newID(),
		ConstructionPlan:      in.Plan,
		TotalConfidence:       totalConfidence,
		CacheHit:              in.CacheHit,
		LatencyMs:             in.LatencyMs,
		Version:               EnvelopeVersion,
		DrillDownHints:        coverage.Suggestions,
		CoverageGaps:          coverageGaps(result),
		SynthesisMode:         result.SynthesisMode,
		RetrievalEntropy:      entropy,
		RetrievalStatus:       status,
		RetrievalInsufficient: status == escalation.StatusInsufficient,
		SuggestedClarifyingQuestions: clarifyingQuestions(status, result),
		Adequacy:              result.Adequacy,
		FeedbackToken:         a.newID(),
	}

	if a.tokens != nil {
		packIDs := make([]string, len(result.Packs))
		for i, p := range result.Packs {
			packIDs[i] = p.PackID
		}
		if err := a.tokens.SetFeedbackTokenBinding(ctx, model.FeedbackTokenBinding{
			FeedbackToken: env.FeedbackToken,
			PackIDs:       packIDs,
		}); err != nil {
			env.Disclosures = append(env.Disclosures, "feedback_token_persist_failed")
		}
	}

	return env
}

// geometricMeanWithFloor is the assembler's own confidence aggregate, used
// when the retrieval pipeline didn't already compute one (§4.J: "geometric
// mean... with a small floor"). It matches
// internal/retrieval/pipeline.go's geometricMeanConfidence, kept separate
// since the assembler must not import retrieval's unexported helpers.
func geometricMeanWithFloor(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	product := 1.0
	for _, c := range confidences {
		v := c
		if v < confidenceFloor {
			v = confidenceFloor
		}
		product *= v
	}
	return nthRoot(product, len(confidences))
}

func nthRoot(x float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	if x <= 0 {
		return 0
	}
	return math.Exp(math.Log(x) / float64(n))
}

func coverageGaps(r retrieval.Result) []string {
	var gaps []string
	if r.Tracker == nil {
		return gaps
	}
	for _, report := range r.Tracker.AllReports() {
		for _, issue := range report.Issues {
			if issue.Severity == retrieval.SeveritySignificant {
				gaps = append(gaps, string(report.Stage)+": "+issue.Message)
			}
		}
	}
	return gaps
}

func clarifyingQuestions(status escalation.Status, r retrieval.Result) []string {
	if status != escalation.StatusInsufficient {
		return nil
	}
	if len(r.Packs) == 0 {
		return []string{"Can you point to a specific file, function, or module this question concerns?"}
	}
	return []string{"Could you narrow the scope, e.g. to one file or feature area?"}
}
