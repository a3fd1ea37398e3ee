// Package retrieval implements the Retrieval Engine's twelve-stage
// pipeline (§4.E) and the Stage Tracker that instruments it (§4.F).
package retrieval

import (
	"time"
)

// StageName is one of the twelve fixed pipeline stages, in execution order.
type StageName string

const (
	StageAdequacyScan       StageName = "adequacy_scan"
	StageDirectPacks        StageName = "direct_packs"
	StageSemanticRetrieval  StageName = "semantic_retrieval"
	StageGraphExpansion     StageName = "graph_expansion"
	StageMultiSignalScoring StageName = "multi_signal_scoring"
	StageMultiVectorScoring StageName = "multi_vector_scoring"
	StageFallback           StageName = "fallback"
	StageReranking          StageName = "reranking"
	StageDefeaterCheck      StageName = "defeater_check"
	StageMethodGuidance     StageName = "method_guidance"
	StageSynthesis          StageName = "synthesis"
	StagePostProcessing     StageName = "post_processing"
)

// StageOrder is the fixed, read-only introspection order (§4.E).
var StageOrder = []StageName{
	StageAdequacyScan, StageDirectPacks, StageSemanticRetrieval, StageGraphExpansion,
	StageMultiSignalScoring, StageMultiVectorScoring, StageFallback, StageReranking,
	StageDefeaterCheck, StageMethodGuidance, StageSynthesis, StagePostProcessing,
}

// StageStatus is the terminal state of a stage report.
type StageStatus string

const (
	StatusSuccess  StageStatus = "success"
	StatusPartial  StageStatus = "partial"
	StatusSkipped  StageStatus = "skipped"
	StatusFailed   StageStatus = "failed"
)

// IssueSeverity classifies a stage issue (§4.E header).
type IssueSeverity string

const (
	SeverityMinor       IssueSeverity = "minor"
	SeverityModerate    IssueSeverity = "moderate"
	SeveritySignificant IssueSeverity = "significant"
)

// Issue is one stage-level problem report.
type Issue struct {
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

// StageReport is the per-stage telemetry snapshot delivered to observers
// and stored for coverage assessment (§4.F).
type StageReport struct {
	Stage        StageName              `json:"stage"`
	Status       StageStatus            `json:"status"`
	InputCount   int                    `json:"inputCount"`
	OutputCount  int                    `json:"outputCount"`
	FilteredCount int                   `json:"filteredCount"`
	Telemetry    map[string]interface{} `json:"telemetry,omitempty"`
	Issues       []Issue                `json:"issues,omitempty"`
	StartedAt    time.Time              `json:"startedAt"`
	Duration     time.Duration          `json:"duration"`
}

// clone deep-copies a StageReport so mutations in an observer callback
// cannot affect the stored report (§4.F invariant).
func (r StageReport) clone() StageReport {
	out := r
	if r.Telemetry != nil {
		out.Telemetry = make(map[string]interface{}, len(r.Telemetry))
		for k, v := range r.Telemetry {
			out.Telemetry[k] = v
		}
	}
	if r.Issues != nil {
		out.Issues = append([]Issue{}, r.Issues...)
	}
	return out
}

// Observer receives one immutable StageReport snapshot per stage.
// Observer exceptions (panics) are caught by the tracker and must not
// alter stored reports (§4.E header).
type Observer func(StageReport)

// Tracker queues issues before a stage starts, attaches them, and
// assembles per-stage reports on finish (§4.F).
type Tracker struct {
	reports      map[StageName]StageReport
	queuedIssues map[StageName][]Issue
	observer     Observer
	starts       map[StageName]time.Time
	order        []StageName
}

// NewTracker constructs a Tracker. observer may be nil.
func NewTracker(observer Observer) *Tracker {
	return &Tracker{
		reports:      make(map[StageName]StageReport),
		queuedIssues: make(map[StageName][]Issue),
		starts:       make(map[StageName]time.Time),
		observer:     observer,
	}
}

// QueueIssue attaches an issue to a stage before it starts (§4.F).
func (t *Tracker) QueueIssue(stage StageName, issue Issue) {
	t.queuedIssues[stage] = append(t.queuedIssues[stage], issue)
}

// Start marks a stage as beginning, recording its entry time.
func (t *Tracker) Start(stage StageName) {
	t.starts[stage] = time.Now()
	t.order = append(t.order, stage)
}

// Finish assembles the stage's report from its started time, input/output
// counts, and any additional issues, derives status from the counts
// (§4.F: zero output + queued issues -> failed; zero output, no issues ->
// partial; positive output -> success), notifies the observer, and stores
// the report.
func (t *Tracker) Finish(stage StageName, inputCount, outputCount, filteredCount int, telemetry map[string]interface{}, extraIssues ...Issue) StageReport {
	started, ok := t.starts[stage]
	if !ok {
		started = time.Now()
	}

	issues := append([]Issue{}, t.queuedIssues[stage]...)
	issues = append(issues, extraIssues...)

	status := StatusSuccess
	if outputCount == 0 {
		if len(issues) > 0 {
			status = StatusFailed
		} else {
			status = StatusPartial
		}
	}

	report := StageReport{
		Stage:         stage,
		Status:        status,
		InputCount:    inputCount,
		OutputCount:   outputCount,
		FilteredCount: filteredCount,
		Telemetry:     telemetry,
		Issues:        issues,
		StartedAt:     started,
		Duration:      time.Since(started),
	}

	t.reports[stage] = report
	t.notify(report)
	return report
}

// FinishSkipped records an intentional skip (a stage that chose not to run
// given its inputs, e.g. method_guidance with no LLM configured) rather
// than letting the zero-output count derive a `failed`/`partial` status.
func (t *Tracker) FinishSkipped(stage StageName, reason string) StageReport {
	started, ok := t.starts[stage]
	if !ok {
		started = time.Now()
	}
	report := StageReport{
		Stage:     stage,
		Status:    StatusSkipped,
		Telemetry: map[string]interface{}{"skippedReason": reason},
		StartedAt: started,
		Duration:  time.Since(started),
	}
	t.reports[stage] = report
	t.notify(report)
	return report
}

// FinalizeMissing generates `skipped` entries for any stage in StageOrder
// that never received Start/Finish, carrying forward any queued issues
// (§4.F).
func (t *Tracker) FinalizeMissing() {
	for _, stage := range StageOrder {
		if _, ok := t.reports[stage]; ok {
			continue
		}
		report := StageReport{
			Stage:     stage,
			Status:    StatusSkipped,
			Issues:    append([]Issue{}, t.queuedIssues[stage]...),
			StartedAt: time.Now(),
		}
		t.reports[stage] = report
		t.notify(report)
	}
}

func (t *Tracker) notify(report StageReport) {
	if t.observer == nil {
		return
	}
	defer func() { recover() }()
	t.observer(report.clone())
}

// Report returns the stored report for a stage, if any.
func (t *Tracker) Report(stage StageName) (StageReport, bool) {
	r, ok := t.reports[stage]
	return r, ok
}

// AllReports returns every recorded report in pipeline order.
func (t *Tracker) AllReports() []StageReport {
	out := make([]StageReport, 0, len(StageOrder))
	for _, stage := range StageOrder {
		if r, ok := t.reports[stage]; ok {
			out = append(out, r)
		}
	}
	return out
}

// CoverageAssessment combines stage statuses and total confidence into an
// estimated coverage and suggestions for common gaps (§4.F).
type CoverageAssessment struct {
	EstimatedCoverage float64  `json:"estimatedCoverage"`
	CoverageConfidence float64 `json:"coverageConfidence"`
	Suggestions       []string `json:"suggestions"`
}

// AssessCoverage derives a CoverageAssessment from the tracker's reports
// and the final total confidence.
func (t *Tracker) AssessCoverage(totalConfidence float64) CoverageAssessment {
	successCount := 0
	failedCount := 0
	for _, r := range t.reports {
		switch r.Status {
		case StatusSuccess:
			successCount++
		case StatusFailed:
			failedCount++
		}
	}
	total := len(StageOrder)
	if total == 0 {
		return CoverageAssessment{}
	}

	stageScore := float64(successCount) / float64(total)
	coverage := (stageScore + totalConfidence) / 2
	if coverage > 1 {
		coverage = 1
	}
	if coverage < 0 {
		coverage = 0
	}

	confidence := stageScore
	if failedCount > 0 {
		confidence *= 0.8
	}

	var suggestions []string
	if coverage < 0.5 {
		suggestions = append(suggestions, "Index the project and include affected files to improve coverage.")
	}
	if r, ok := t.reports[StageSemanticRetrieval]; ok && r.Status != StatusSuccess {
		suggestions = append(suggestions, "Enable an embedding provider to improve semantic coverage.")
	}

	return CoverageAssessment{EstimatedCoverage: coverage, CoverageConfidence: confidence, Suggestions: suggestions}
}
