package feedback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/config"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

type fakePackStore struct {
	packs  map[string]model.ContextPack
	events map[[2]string]model.ConfidenceEvent
}

func newFakePackStore() *fakePackStore {
	return &fakePackStore{
		packs:  make(map[string]model.ContextPack),
		events: make(map[[2]string]model.ConfidenceEvent),
	}
}

func (f *fakePackStore) GetPack(ctx context.Context, id string) (model.ContextPack, bool, error) {
	p, ok := f.packs[id]
	return p, ok, nil
}

func (f *fakePackStore) UpdatePackConfidence(ctx context.Context, id string, confidence float64, outcome model.Outcome, successDelta, failureDelta int) error {
	p, ok := f.packs[id]
	if !ok {
		return errors.New("pack not found")
	}
	p.Confidence = model.ClampConfidence(confidence)
	p.LastOutcome = outcome
	p.SuccessCount += successDelta
	p.FailureCount += failureDelta
	f.packs[id] = p
	return nil
}

func (f *fakePackStore) RecordConfidenceEvent(ctx context.Context, ev model.ConfidenceEvent) (bool, error) {
	key := [2]string{ev.QueryID, ev.PackID}
	if _, exists := f.events[key]; exists {
		return false, nil
	}
	f.events[key] = ev
	return true, nil
}

func (f *fakePackStore) HasConfidenceEvent(ctx context.Context, queryID, packID string) (bool, error) {
	_, exists := f.events[[2]string{queryID, packID}]
	return exists, nil
}

func defaultCfg() config.FeedbackConfig {
	return config.FeedbackConfig{PositiveStep: 0.05, NegativeStep: 0.10, MinConfidence: 0.10, MaxConfidence: 0.95, BanditSeed: 1}
}

func TestApplyPositiveFeedbackRaisesConfidence(t *testing.T) {
	store := newFakePackStore()
	store.packs["p1"] = model.ContextPack{PackID: "p1", Confidence: 0.5, CreatedAt: time.Now()}

	loop := New(store, defaultCfg())
	res, err := loop.Apply(context.Background(), Signal{QueryID: "q1", PackID: "p1", Relevant: true, Usefulness: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Applied {
		t.Fatal("expected first application to apply")
	}
	if res.NewConfidence <= res.OldConfidence {
		t.Errorf("expected confidence to rise, old=%f new=%f", res.OldConfidence, res.NewConfidence)
	}
	if got, want := res.NewConfidence, 0.55; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("expected 0.55, got %f", got)
	}
}

func TestApplyNegativeFeedbackLowersConfidence(t *testing.T) {
	store := newFakePackStore()
	store.packs["p1"] = model.ContextPack{PackID: "p1", Confidence: 0.5, CreatedAt: time.Now()}

	loop := New(store, defaultCfg())
	res, err := loop.Apply(context.Background(), Signal{QueryID: "q1", PackID: "p1", Relevant: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := res.NewConfidence, 0.4; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("expected 0.4, got %f", got)
	}
}

func TestApplyClampsToMinConfidence(t *testing.T) {
	store := newFakePackStore()
	store.packs["p1"] = model.ContextPack{PackID: "p1", Confidence: 0.12, CreatedAt: time.Now()}

	loop := New(store, defaultCfg())
	res, err := loop.Apply(context.Background(), Signal{QueryID: "q1", PackID: "p1", Relevant: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewConfidence != 0.10 {
		t.Errorf("expected clamp to floor 0.10, got %f", res.NewConfidence)
	}
}

func TestApplyClampsToMaxConfidence(t *testing.T) {
	store := newFakePackStore()
	store.packs["p1"] = model.ContextPack{PackID: "p1", Confidence: 0.93, CreatedAt: time.Now()}

	loop := New(store, defaultCfg())
	res, err := loop.Apply(context.Background(), Signal{QueryID: "q1", PackID: "p1", Relevant: true, Usefulness: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NewConfidence != 0.95 {
		t.Errorf("expected clamp to ceiling 0.95, got %f", res.NewConfidence)
	}
}

func TestApplyIsIdempotentPerQueryAndPack(t *testing.T) {
	store := newFakePackStore()
	store.packs["p1"] = model.ContextPack{PackID: "p1", Confidence: 0.5, CreatedAt: time.Now()}

	loop := New(store, defaultCfg())
	first, err := loop.Apply(context.Background(), Signal{QueryID: "q1", PackID: "p1", Relevant: true, Usefulness: 1.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Applied {
		t.Fatal("expected first apply to succeed")
	}

	second, err := loop.Apply(context.Background(), Signal{QueryID: "q1", PackID: "p1", Relevant: true, Usefulness: 1.0})
	if err != nil {
		t.Fatalf("unexpected error on duplicate: %v", err)
	}
	if second.Applied {
		t.Error("expected duplicate (queryId, packId) signal to be a no-op")
	}

	p, _, _ := store.GetPack(context.Background(), "p1")
	if p.Confidence != first.NewConfidence {
		t.Errorf("expected confidence unchanged by duplicate apply, got %f want %f", p.Confidence, first.NewConfidence)
	}
}

func TestApplyMissingPackReturnsError(t *testing.T) {
	store := newFakePackStore()
	loop := New(store, defaultCfg())
	if _, err := loop.Apply(context.Background(), Signal{QueryID: "q1", PackID: "missing", Relevant: true}); err == nil {
		t.Error("expected error for missing pack")
	}
}

func TestApplyUsefulnessScalesPositiveStep(t *testing.T) {
	store := newFakePackStore()
	store.packs["p1"] = model.ContextPack{PackID: "p1", Confidence: 0.5, CreatedAt: time.Now()}

	loop := New(store, defaultCfg())
	res, err := loop.Apply(context.Background(), Signal{QueryID: "q1", PackID: "p1", Relevant: true, Usefulness: 0.4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 0.5 + 0.05*0.4
	if res.NewConfidence < want-1e-9 || res.NewConfidence > want+1e-9 {
		t.Errorf("expected %f, got %f", want, res.NewConfidence)
	}
}
