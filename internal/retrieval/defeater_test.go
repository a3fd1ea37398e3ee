package retrieval

import (
	"testing"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

func TestRunDefeaterCheckFlagsStalePack(t *testing.T) {
	tr := NewTracker(nil)
	ec := execContext{now: func() time.Time { return time.Now() }}
	pack := model.ContextPack{PackID: "p1", CreatedAt: time.Now().Add(-60 * 24 * time.Hour), CodeSnippets: []model.CodeSnippet{{}}}
	candidates := []Candidate{{EntityType: model.EntityFunction, EntityID: "f1", PackID: "p1"}}
	packs := map[string]model.ContextPack{"p1": pack}

	_, fired := RunDefeaterCheck(ec, candidates, packs, nil, tr)
	found := false
	for _, d := range fired {
		if d.Kind == DefeaterStaleness {
			found = true
		}
	}
	if !found {
		t.Error("expected staleness defeater to fire for an old pack")
	}
}

func TestRunDefeaterCheckFlagsCodeChange(t *testing.T) {
	tr := NewTracker(nil)
	ec := execContext{now: func() time.Time { return time.Now() }}
	pack := model.ContextPack{PackID: "p1", CreatedAt: time.Now(), RelatedFiles: []string{"a.go"}, CodeSnippets: []model.CodeSnippet{{}}}
	candidates := []Candidate{{EntityType: model.EntityFunction, EntityID: "f1", PackID: "p1"}}
	packs := map[string]model.ContextPack{"p1": pack}
	changed := map[string]bool{"a.go": true}

	_, fired := RunDefeaterCheck(ec, candidates, packs, changed, tr)
	found := false
	for _, d := range fired {
		if d.Kind == DefeaterCodeChange {
			found = true
		}
	}
	if !found {
		t.Error("expected code_change defeater to fire when a related file changed")
	}
}

func TestRunDefeaterCheckFlagsCoverageGap(t *testing.T) {
	tr := NewTracker(nil)
	ec := execContext{now: func() time.Time { return time.Now() }}
	pack := model.ContextPack{PackID: "p1", CreatedAt: time.Now()}
	candidates := []Candidate{{EntityType: model.EntityFunction, EntityID: "f1", PackID: "p1"}}
	packs := map[string]model.ContextPack{"p1": pack}

	_, fired := RunDefeaterCheck(ec, candidates, packs, nil, tr)
	found := false
	for _, d := range fired {
		if d.Kind == DefeaterCoverageGap {
			found = true
		}
	}
	if !found {
		t.Error("expected coverage_gap defeater for a pack with no snippets or facts")
	}
}

func TestRunDefeaterCheckNoDefeatersFiredForHealthyPack(t *testing.T) {
	tr := NewTracker(nil)
	ec := execContext{now: func() time.Time { return time.Now() }}
	pack := model.ContextPack{PackID: "p1", CreatedAt: time.Now(), CodeSnippets: []model.CodeSnippet{{}}, SuccessCount: 5}
	candidates := []Candidate{{EntityType: model.EntityFunction, EntityID: "f1", PackID: "p1"}}
	packs := map[string]model.ContextPack{"p1": pack}

	_, fired := RunDefeaterCheck(ec, candidates, packs, nil, tr)
	if len(fired) != 0 {
		t.Errorf("expected no defeaters for a healthy pack, got %v", fired)
	}
}
