// Package feedback implements the Feedback Loop (§4.H): bounded,
// idempotent confidence adjustments on context packs driven by LLM-reported
// usefulness, plus a Thompson-sampling bandit that learns which retrieval
// strategy arm performs best per intent type.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nateschmiedehaus/librarian/internal/config"
	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// PackStore is the narrow slice of the Knowledge Store the feedback loop
// writes through (§3 Lifecycles: confidence, successCount, failureCount,
// lastOutcome only).
type PackStore interface {
	GetPack(ctx context.Context, id string) (model.ContextPack, bool, error)
	UpdatePackConfidence(ctx context.Context, id string, confidence float64, outcome model.Outcome, successDelta, failureDelta int) error
	RecordConfidenceEvent(ctx context.Context, ev model.ConfidenceEvent) (applied bool, err error)
	HasConfidenceEvent(ctx context.Context, queryID, packID string) (bool, error)
}

// Signal is one piece of LLM-reported feedback about a pack's usefulness
// within a single query.
type Signal struct {
	QueryID    string
	PackID     string
	Relevant   bool
	Usefulness float64 // 0.0-1.0, scales the positive step
}

// ApplyResult reports what the Feedback Loop actually did with a signal.
type ApplyResult struct {
	Applied       bool // false when a duplicate (queryId, packId) was skipped
	OldConfidence float64
	NewConfidence float64
}

// Loop applies bounded confidence adjustments and selects strategy arms via
// Thompson sampling.
type Loop struct {
	store  PackStore
	cfg    config.FeedbackConfig
	bandit *Bandit
}

// New builds a Feedback Loop over the given store, seeding its bandit from
// cfg.BanditSeed for deterministic strategy selection (§4.H, §9).
func New(store PackStore, cfg config.FeedbackConfig) *Loop {
	return &Loop{store: store, cfg: cfg, bandit: NewBandit(cfg.BanditSeed)}
}

// Bandit exposes the Loop's strategy-arm bandit for callers that want to
// record outcomes or inspect selections without routing through Apply.
func (l *Loop) Bandit() *Bandit { return l.bandit }

// Apply adjusts a pack's confidence by the bounded feedback rule: positive
// feedback nudges confidence up by PositiveStep*usefulness, negative
// feedback nudges it down by NegativeStep, always clamped to
// [MinConfidence, MaxConfidence]. Idempotent per (queryId, packId): a
// signal already recorded for that pair is a no-op (§4.H, §8).
func (l *Loop) Apply(ctx context.Context, sig Signal) (ApplyResult, error) {
	log := logging.Get(logging.CategoryFeedback)

	already, err := l.store.HasConfidenceEvent(ctx, sig.QueryID, sig.PackID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("feedback: checking idempotence: %w", err)
	}
	if already {
		log.Debug("feedback: skipping duplicate signal query=%s pack=%s", sig.QueryID, sig.PackID)
		return ApplyResult{Applied: false}, nil
	}

	pack, ok, err := l.store.GetPack(ctx, sig.PackID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("feedback: loading pack %s: %w", sig.PackID, err)
	}
	if !ok {
		return ApplyResult{}, fmt.Errorf("feedback: pack %s not found", sig.PackID)
	}

	old := pack.Confidence
	next := l.adjust(old, sig)

	outcome := model.OutcomeFailure
	successDelta, failureDelta := 0, 1
	if sig.Relevant {
		outcome = model.OutcomeSuccess
		successDelta, failureDelta = 1, 0
	}

	if err := l.store.UpdatePackConfidence(ctx, sig.PackID, next, outcome, successDelta, failureDelta); err != nil {
		return ApplyResult{}, fmt.Errorf("feedback: updating pack %s: %w", sig.PackID, err)
	}

	applied, err := l.store.RecordConfidenceEvent(ctx, model.ConfidenceEvent{
		ID:            uuid.NewString(),
		QueryID:       sig.QueryID,
		PackID:        sig.PackID,
		Relevant:      sig.Relevant,
		Usefulness:    sig.Usefulness,
		OldConfidence: old,
		NewConfidence: next,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return ApplyResult{}, fmt.Errorf("feedback: recording confidence event: %w", err)
	}

	log.Info("feedback: pack=%s confidence %.3f -> %.3f relevant=%v applied=%v", sig.PackID, old, next, sig.Relevant, applied)
	return ApplyResult{Applied: applied, OldConfidence: old, NewConfidence: next}, nil
}

// adjust computes the bounded confidence step without touching the store,
// split out so the arithmetic is independently testable.
func (l *Loop) adjust(confidence float64, sig Signal) float64 {
	if sig.Relevant {
		confidence += l.positiveStep() * clampUnit(sig.Usefulness)
	} else {
		confidence -= l.negativeStep()
	}
	return l.clamp(confidence)
}

func (l *Loop) positiveStep() float64 {
	if l.cfg.PositiveStep > 0 {
		return l.cfg.PositiveStep
	}
	return 0.05
}

func (l *Loop) negativeStep() float64 {
	if l.cfg.NegativeStep > 0 {
		return l.cfg.NegativeStep
	}
	return 0.10
}

func (l *Loop) clamp(c float64) float64 {
	min, max := l.cfg.MinConfidence, l.cfg.MaxConfidence
	if min <= 0 {
		min = model.MinConfidence
	}
	if max <= 0 {
		max = model.MaxConfidence
	}
	if c < min {
		return min
	}
	if c > max {
		return max
	}
	return c
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
