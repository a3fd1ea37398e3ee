package retrieval

import "testing"

func TestTrackerFinishSuccessOnPositiveOutput(t *testing.T) {
	tr := NewTracker(nil)
	tr.Start(StageDirectPacks)
	report := tr.Finish(StageDirectPacks, 10, 3, 7, nil)
	if report.Status != StatusSuccess {
		t.Errorf("expected success, got %s", report.Status)
	}
}

func TestTrackerFinishPartialOnZeroOutputNoIssues(t *testing.T) {
	tr := NewTracker(nil)
	tr.Start(StageFallback)
	report := tr.Finish(StageFallback, 5, 0, 5, nil)
	if report.Status != StatusPartial {
		t.Errorf("expected partial, got %s", report.Status)
	}
}

func TestTrackerFinishFailedOnZeroOutputWithQueuedIssue(t *testing.T) {
	tr := NewTracker(nil)
	tr.QueueIssue(StageSemanticRetrieval, Issue{Severity: SeveritySignificant, Message: "no embedding provider"})
	tr.Start(StageSemanticRetrieval)
	report := tr.Finish(StageSemanticRetrieval, 5, 0, 0, nil)
	if report.Status != StatusFailed {
		t.Errorf("expected failed, got %s", report.Status)
	}
	if len(report.Issues) != 1 {
		t.Errorf("expected 1 queued issue to carry through, got %d", len(report.Issues))
	}
}

func TestTrackerFinalizeMissingMarksSkipped(t *testing.T) {
	tr := NewTracker(nil)
	tr.Start(StageAdequacyScan)
	tr.Finish(StageAdequacyScan, 1, 1, 0, nil)
	tr.FinalizeMissing()

	all := tr.AllReports()
	if len(all) != len(StageOrder) {
		t.Fatalf("expected a report for every stage, got %d", len(all))
	}
	if all[0].Stage != StageAdequacyScan || all[0].Status != StatusSuccess {
		t.Errorf("expected first stage to remain success, got %+v", all[0])
	}
	if all[1].Status != StatusSkipped {
		t.Errorf("expected second stage to be skipped, got %s", all[1].Status)
	}
}

func TestTrackerObserverReceivesClonedReport(t *testing.T) {
	var captured StageReport
	tr := NewTracker(func(r StageReport) { captured = r })
	tr.Start(StageSynthesis)
	tr.Finish(StageSynthesis, 2, 2, 0, map[string]interface{}{"mode": "heuristic"})

	captured.Telemetry["mode"] = "mutated"
	stored, _ := tr.Report(StageSynthesis)
	if stored.Telemetry["mode"] != "heuristic" {
		t.Error("expected stored report telemetry to be unaffected by observer mutation")
	}
}

func TestTrackerObserverPanicDoesNotCorruptReport(t *testing.T) {
	tr := NewTracker(func(r StageReport) { panic("boom") })
	tr.Start(StageDefeaterCheck)
	report := tr.Finish(StageDefeaterCheck, 1, 1, 0, nil)
	if report.Status != StatusSuccess {
		t.Errorf("expected panic in observer not to affect returned report, got %s", report.Status)
	}
}

func TestAssessCoverageLowWithNoSemanticRetrieval(t *testing.T) {
	tr := NewTracker(nil)
	tr.QueueIssue(StageSemanticRetrieval, Issue{Severity: SeverityModerate, Message: "disabled"})
	tr.Start(StageSemanticRetrieval)
	tr.Finish(StageSemanticRetrieval, 3, 0, 0, nil)
	tr.FinalizeMissing()

	cov := tr.AssessCoverage(0.2)
	found := false
	for _, s := range cov.Suggestions {
		if s != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected at least one suggestion for low coverage")
	}
}
