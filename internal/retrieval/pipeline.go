package retrieval

import (
	"context"
	"math"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/embedding"
	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// Pipeline wires the twelve fixed-order stages together over a
// KnowledgeSource, an embedding engine, and optional LLM-backed
// collaborators (§4.E).
type Pipeline struct {
	Source          KnowledgeSource
	Embedding       embedding.Engine
	Guidance        MethodGuidanceProvider
	Synthesis       SynthesisProvider
	CrossEncoder    CrossEncoderProvider
	Hyde            HyDEProvider
	FreshnessWindow time.Duration
	MMRLambda       float64
	Now             func() time.Time
}

// NewPipeline constructs a Pipeline with spec defaults (60s freshness
// window, MMR lambda 0.5).
func NewPipeline(source KnowledgeSource, engine embedding.Engine) *Pipeline {
	return &Pipeline{
		Source:          source,
		Embedding:       engine,
		FreshnessWindow: 60 * time.Second,
		MMRLambda:       DefaultMMRLambda,
	}
}

// Run executes the full retrieval pipeline for one query, returning the
// final Result and a populated Tracker for coverage assessment and
// observability (§4.E, §4.F).
func (p *Pipeline) Run(ctx context.Context, q Query, normalizedIntent string, changedFiles map[string]bool, observer Observer) Result {
	log := logging.Get(logging.CategoryRetrieval)
	timer := logging.StartTimer(logging.CategoryRetrieval, "Pipeline.Run")
	defer timer.Stop()

	tracker := NewTracker(observer)
	ec := execContext{ctx: ctx, freshnessWindow: p.FreshnessWindow, now: p.Now}

	adequacy := RunAdequacyScan(ec, q, p.Source, tracker)
	if adequacy.AlreadyAdequate {
		packs := p.resolvePacks(ec, adequacy.ExistingPacks)
		tracker.FinalizeMissing()
		result := Result{Packs: packs, Tracker: tracker, SynthesisMode: "cache", Adequacy: &adequacy}
		result.TotalConfidence = geometricMeanConfidence(packs)
		log.Info("adequacy scan satisfied query without further retrieval, packs=%d", len(packs))
		return result
	}

	direct := RunDirectPacks(ec, q, normalizedIntent, p.Source, tracker)
	semantic := RunSemanticRetrieval(ec, q, p.Embedding, p.Source, p.Hyde, tracker)
	graphSeeds := MergeCandidates(direct, semantic)
	graph := RunGraphExpansion(ec, graphSeeds, p.Source, q.Depth, tracker)

	merged := MergeCandidates(direct, semantic, graph)
	merged = RunMultiSignalScoring(merged, tracker)
	merged = RunMultiVectorScoring(merged, q.IntentKind, tracker)

	if len(merged) == 0 {
		fallback := RunFallback(ec, q, p.Source, tracker)
		merged = RunMultiSignalScoring(fallback, tracker)
		merged = RunMultiVectorScoring(merged, q.IntentKind, tracker)
	} else {
		tracker.FinishSkipped(StageFallback, "not_needed")
	}

	_, _, rerankWindow := WindowFor(q.Depth)
	lambda := p.MMRLambda
	if q.DiversityLambda > 0 {
		lambda = clampLambda(q.DiversityLambda)
	}
	reranked := RunReranking(ctx, p.CrossEncoder, q.LLMAvailable, q.Intent, merged, rerankWindow, lambda, q.Diversify, tracker)

	p.hydratePackIDs(ec, reranked)
	packsByID := p.loadPacksFor(ec, reranked)

	reranked, _ = RunDefeaterCheck(ec, reranked, packsByID, changedFiles, tracker)

	guidance := RunMethodGuidance(ctx, p.Guidance, q.LLMAvailable, q.Intent, reranked, tracker)
	_ = guidance

	// Synthesis (§4.E.11) precedes post_processing (§4.E.12) in the fixed
	// stage order, so it consumes the resolved pack list directly rather
	// than waiting on RunPostProcessing's own telemetry.
	resolvedPacks := dedupePacks(reranked, packsByID)
	_, mode := RunSynthesis(ctx, p.Synthesis, q.LLMAvailable, q.Intent, resolvedPacks, tracker)

	finalPacks := RunPostProcessing(reranked, packsByID, tracker)

	tracker.FinalizeMissing()

	result := Result{
		Packs:           finalPacks,
		Tracker:         tracker,
		SynthesisMode:   mode,
		TotalConfidence: geometricMeanConfidence(finalPacks),
		Adequacy:        &adequacy,
	}
	log.Info("pipeline complete packs=%d mode=%s confidence=%.3f", len(finalPacks), mode, result.TotalConfidence)
	return result
}

// hydratePackIDs resolves a PackID for any candidate that was discovered
// via graph expansion or fallback and doesn't yet carry one, by looking up
// packs attached to its entity.
func (p *Pipeline) hydratePackIDs(ec execContext, candidates []Candidate) {
	for i := range candidates {
		if candidates[i].PackID != "" {
			continue
		}
		packs, err := p.Source.ListPacksByTarget(ec.ctx, candidates[i].EntityID)
		if err != nil || len(packs) == 0 {
			continue
		}
		best := packs[0]
		for _, pk := range packs[1:] {
			if pk.Confidence > best.Confidence {
				best = pk
			}
		}
		candidates[i].PackID = best.PackID
	}
}

func (p *Pipeline) loadPacksFor(ec execContext, candidates []Candidate) map[string]model.ContextPack {
	out := make(map[string]model.ContextPack, len(candidates))
	for _, c := range candidates {
		if c.PackID == "" || out[c.PackID].PackID != "" {
			continue
		}
		pack, ok, err := p.Source.GetPack(ec.ctx, c.PackID)
		if err != nil || !ok {
			continue
		}
		out[c.PackID] = pack
	}
	return out
}

func (p *Pipeline) resolvePacks(ec execContext, ids []string) []model.ContextPack {
	out := make([]model.ContextPack, 0, len(ids))
	for _, id := range ids {
		pack, ok, err := p.Source.GetPack(ec.ctx, id)
		if err != nil || !ok {
			continue
		}
		out = append(out, pack)
	}
	return out
}

// geometricMeanConfidence computes the geometric mean of pack confidences
// with a floor so a single low-confidence pack cannot zero out the total
// (§4.J cross-reference).
func geometricMeanConfidence(packs []model.ContextPack) float64 {
	if len(packs) == 0 {
		return 0
	}
	product := 1.0
	for _, p := range packs {
		c := p.Confidence
		if c < model.MinConfidence {
			c = model.MinConfidence
		}
		product *= c
	}
	return nthRoot(product, len(packs))
}

// clampLambda bounds a caller-supplied MMR lambda to [0,1] (§4.E.8).
func clampLambda(lambda float64) float64 {
	if lambda < 0 {
		return 0
	}
	if lambda > 1 {
		return 1
	}
	return lambda
}

func nthRoot(x float64, n int) float64 {
	if n <= 0 || x <= 0 {
		return 0
	}
	return math.Pow(x, 1/float64(n))
}
