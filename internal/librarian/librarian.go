package librarian

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/assembler"
	"github.com/nateschmiedehaus/librarian/internal/cache"
	"github.com/nateschmiedehaus/librarian/internal/config"
	"github.com/nateschmiedehaus/librarian/internal/embedding"
	"github.com/nateschmiedehaus/librarian/internal/escalation"
	"github.com/nateschmiedehaus/librarian/internal/feedback"
	"github.com/nateschmiedehaus/librarian/internal/freshness"
	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
	"github.com/nateschmiedehaus/librarian/internal/observability"
	"github.com/nateschmiedehaus/librarian/internal/planner"
	"github.com/nateschmiedehaus/librarian/internal/retrieval"
)

// Store is the full Knowledge Store surface the orchestrator depends on,
// the union of what each wired component needs.
type Store interface {
	freshness.Store
	cache.Store
	retrieval.KnowledgeSource
	observability.StoreAppender
	feedback.PackStore

	SetFeedbackTokenBinding(ctx context.Context, binding model.FeedbackTokenBinding) error
	GetFeedbackTokenBinding(ctx context.Context, token string) (model.FeedbackTokenBinding, bool, error)
	AppendQueryAccessLog(ctx context.Context, rec model.QueryAccessLogRecord) error
}

// RelevanceRating is one pack's feedback within a submission (§6 feedback
// submission shape).
type RelevanceRating struct {
	PackID     string
	Relevant   bool
	Usefulness float64
}

// FeedbackRequest is the feedback submission's input shape (§6). QueryID
// is the feedbackToken handed back with the original response; it
// resolves to the packIds binding recorded at assembly time.
type FeedbackRequest struct {
	QueryID          string
	RelevanceRatings []RelevanceRating
}

// FeedbackResult is the feedback submission's output shape (§6).
type FeedbackResult struct {
	AdjustmentsApplied int
	GapsLogged         int
}

// QueryRequest is the query envelope's input shape (§6).
type QueryRequest struct {
	Intent                string
	Depth                 string // "L0".."L3", default "L1"
	IntentType            string
	UCIDs                 []string
	AffectedFiles         []string
	WorkingFile           string
	Filter                retrieval.Filter
	LLMRequirement        string // "disabled" | "optional" | "required", default "optional"
	EmbeddingRequirement  string
	HydeExpansion         bool
	Diversify             bool
	DiversityLambda       float64
	DisableCache          bool
	DisableMethodGuidance bool
	ForceSummarySynthesis bool
	TimeoutMs             int
}

// Service wires every Librarian component into one query-answering
// surface (§1-§9's "data/control flow" paragraph).
type Service struct {
	store      Store
	gate       *freshness.Gate
	cache      *cache.Cache
	planner    *planner.Planner
	embedding  embedding.Engine
	feedback   *feedback.Loop
	observer   *observability.Recorder
	assembler  *assembler.Assembler
	cfg        config.Config
	workspace  string
	version    model.Version
	now        func() time.Time
}

// New builds a Service from its already-constructed collaborators. Each
// collaborator is itself independently testable; Service only wires them.
func New(store Store, workspace string, version model.Version, cfg config.Config, engine embedding.Engine, observer *observability.Recorder) *Service {
	gate := freshness.NewGate(store, version, time.Duration(cfg.Freshness.ReconcileWindowSeconds)*time.Second, true)
	queryCache := cache.New(store, cfg.Cache.MaxEntries, cfg.Cache.MemoizedCap, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)

	return &Service{
		store:     store,
		gate:      gate,
		cache:     queryCache,
		planner:   planner.New(nil),
		embedding: engine,
		feedback:  feedback.New(store, cfg.Feedback),
		observer:  observer,
		assembler: assembler.New(store),
		cfg:       cfg,
		workspace: workspace,
		version:   version,
		now:       time.Now,
	}
}

// Query answers one query end to end: Freshness Gate, Construction
// Planner, Query Cache, Retrieval Engine (re-entered at a deeper depth by
// the Escalation Controller when the first pass is insufficient), and
// Response Assembler, finishing with a cache upsert (§1 data/control
// flow).
func (s *Service) Query(ctx context.Context, req QueryRequest) (assembler.Envelope, error) {
	log := logging.Get(logging.CategoryRetrieval)
	start := s.now()

	if strings.TrimSpace(req.Intent) == "" {
		return assembler.Envelope{}, newErr(KindInvalidInput, "intent is required", nil)
	}

	decision, err := s.gate.IsBootstrapRequired(ctx, s.workspace, nil, nil)
	if err != nil {
		return assembler.Envelope{}, newErr(KindStorageRecoverable, "checking freshness gate", err)
	}
	if decision.Required {
		return assembler.Envelope{
			Version:     assembler.EnvelopeVersion,
			Query:       req.Intent,
			Disclosures: append([]string{"bootstrap_required:" + decision.Reason}, decision.Disclosures...),
		}, nil
	}

	plan := s.planner.BuildPlan(req.UCIDs, req.Intent, nil)

	normalizedIntent := cache.NormalizeIntent(req.Intent)
	cacheKey := cache.Key(cache.Query{
		VersionKey:     versionKey(s.version),
		LLMRequirement: defaultString(req.LLMRequirement, "optional"),
		HydeExpansion:  req.HydeExpansion,
		Intent:         req.Intent,
		AffectedFiles:  req.AffectedFiles,
		Filter:         toCacheFilter(req.Filter),
		Depth:          int(parseDepth(req.Depth)),
		DisableCache:   req.DisableCache,
	})

	if !req.DisableCache {
		if hit := s.cache.Get(ctx, cacheKey); hit.Hit {
			log.Debug("cache hit tier=%s key=%s", hit.FromTier, cacheKey)
			var env assembler.Envelope
			if err := decodeEnvelope(hit.Response, &env); err == nil {
				return s.hydrateCacheHit(ctx, env, req, plan, start), nil
			}
		}
	}

	depth := parseDepth(req.Depth)
	maxDepth := escalation.MaxDepth(nil, s.cfg.Retrieval)
	attempt := 1
	expandQuery := false

	env := s.runAttempt(ctx, req, plan, normalizedIntent, depth, attempt, expandQuery)
	for {
		confidences := escalation.ConfidencesFromPacks(env.Packs)
		decision := escalation.Decide(escalation.Attempt{
			Depth:       int(depth),
			Confidences: confidences,
			PackCount:   len(env.Packs),
			AttemptNum:  attempt,
		}, maxDepth)
		if !decision.ShouldEscalate {
			break
		}
		depth = retrieval.Depth(decision.NextDepth)
		expandQuery = decision.ExpandQuery
		attempt++
		env = s.runAttempt(ctx, req, plan, normalizedIntent, depth, attempt, expandQuery)
	}

	env.LatencyMs = s.now().Sub(start).Milliseconds()

	if !req.DisableCache {
		if data, err := encodeEnvelope(env); err == nil {
			if err := s.cache.Put(ctx, cacheKey, data); err != nil {
				log.Warn("failed to upsert query cache: %v", err)
			}
		}
	}

	_ = s.store.AppendQueryAccessLog(ctx, model.QueryAccessLogRecord{
		NormalizedIntent: normalizedIntent,
		TargetIDs:        packIDs(env.Packs),
		Timestamp:        s.now(),
	})

	if s.observer != nil {
		s.observer.Record(ctx, model.RetrievalLogRecord{
			QueryHash:        cacheKey,
			Intent:           req.Intent,
			ConfidenceScore:  env.TotalConfidence,
			RetrievalEntropy: env.RetrievalEntropy,
			ReturnedPackIDs:  packIDs(env.Packs),
			Timestamp:        s.now(),
			Attempt:          attempt,
			MaxEscalationDepth: maxDepth,
		})
	}

	return env, nil
}

// SubmitFeedback resolves a feedback token back to its bound packs and
// applies each relevance rating through the Feedback Loop (§6 feedback
// submission). Ratings for packs outside the token's binding are counted
// as gaps rather than failing the whole submission.
func (s *Service) SubmitFeedback(ctx context.Context, req FeedbackRequest) (FeedbackResult, error) {
	binding, ok, err := s.store.GetFeedbackTokenBinding(ctx, req.QueryID)
	if err != nil {
		return FeedbackResult{}, newErr(KindStorageRecoverable, "resolving feedback token", err)
	}
	if !ok {
		return FeedbackResult{}, newErr(KindInvalidInput, "unknown feedback token", nil)
	}

	bound := make(map[string]bool, len(binding.PackIDs))
	for _, id := range binding.PackIDs {
		bound[id] = true
	}

	var result FeedbackResult
	for _, rating := range req.RelevanceRatings {
		if !bound[rating.PackID] {
			result.GapsLogged++
			continue
		}
		usefulness := rating.Usefulness
		if usefulness == 0 {
			usefulness = 1.0
		}
		applied, err := s.feedback.Apply(ctx, feedback.Signal{
			QueryID:    req.QueryID,
			PackID:     rating.PackID,
			Relevant:   rating.Relevant,
			Usefulness: usefulness,
		})
		if err != nil {
			result.GapsLogged++
			continue
		}
		if applied.Applied {
			result.AdjustmentsApplied++
		}
	}
	return result, nil
}

// runAttempt runs one retrieval pass at the given depth. expandQuery is set
// by the Escalation Controller's jump-to-L3 rule (§4.G) and forces HyDE
// query expansion on for this attempt regardless of the caller's original
// hydeExpansion flag.
func (s *Service) runAttempt(ctx context.Context, req QueryRequest, plan planner.Plan, normalizedIntent string, depth retrieval.Depth, attempt int, expandQuery bool) assembler.Envelope {
	pipeline := retrieval.NewPipeline(s.store, s.embedding)
	pipeline.FreshnessWindow = time.Duration(s.cfg.Freshness.ReconcileWindowSeconds) * time.Second

	q := retrieval.Query{
		Intent:          req.Intent,
		IntentKind:      intentKindFor(req.IntentType),
		AffectedFiles:   req.AffectedFiles,
		Filter:          req.Filter,
		Depth:           depth,
		UseHyde:         req.HydeExpansion || expandQuery,
		LLMAvailable:    req.LLMRequirement != "disabled",
		Diversify:       req.Diversify,
		DiversityLambda: req.DiversityLambda,
	}

	result := pipeline.Run(ctx, q, normalizedIntent, nil, nil)

	env := s.assembler.Assemble(ctx, assembler.Input{
		Query:                 req.Intent,
		Plan:                  plan,
		Retrieval:             result,
		DisableMethodGuidance: req.DisableMethodGuidance,
	})
	return env
}

// hydrateCacheHit re-materializes a cached envelope for the current call
// (§4.C): synthesisMode becomes "cache", a fresh traceId and latency are
// assigned, the current call's construction plan replaces the cached one,
// the cached disclosures are kept (with "method_guidance_disabled" appended
// when this call disables method guidance), and a new feedback token is
// bound to the same packs
// rather than reusing the token embedded in the cached envelope.
func (s *Service) hydrateCacheHit(ctx context.Context, env assembler.Envelope, req QueryRequest, plan planner.Plan, start time.Time) assembler.Envelope {
	env.CacheHit = true
	env.SynthesisMode = "cache"
	env.TraceID = newTraceID()
	env.LatencyMs = s.now().Sub(start).Milliseconds()
	env.ConstructionPlan = plan

	disclosures := append([]string{}, env.Disclosures...)
	if req.DisableMethodGuidance {
		disclosures = append(disclosures, "method_guidance_disabled")
	}
	env.Disclosures = disclosures

	token := newFeedbackToken()
	if err := s.store.SetFeedbackTokenBinding(ctx, model.FeedbackTokenBinding{
		FeedbackToken: token,
		PackIDs:       packIDs(env.Packs),
	}); err == nil {
		env.FeedbackToken = token
	}

	return env
}

func versionKey(v model.Version) string {
	return fmt.Sprintf("%d.%d.%s.%s", v.Major, v.Minor, v.QualityTier, v.IndexerVersion)
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func parseDepth(d string) retrieval.Depth {
	switch strings.ToUpper(d) {
	case "L0":
		return retrieval.DepthL0
	case "L2":
		return retrieval.DepthL2
	case "L3":
		return retrieval.DepthL3
	default:
		return retrieval.DepthL1
	}
}

func intentKindFor(intentType string) retrieval.IntentKind {
	switch strings.ToLower(intentType) {
	case "understand", "document":
		return retrieval.IntentMeta
	case "definition":
		return retrieval.IntentDefinition
	case "entry_point":
		return retrieval.IntentEntryPoint
	default:
		return retrieval.IntentCode
	}
}

func toCacheFilter(f retrieval.Filter) cache.Filter {
	return cache.Filter{
		PathPrefix:       f.PathPrefix,
		Language:         f.Language,
		ExcludeTests:     f.ExcludeTests,
		IsExported:       f.IsExported,
		IsPure:           f.IsPure,
		MaxFileSizeBytes: f.MaxFileSizeBytes,
	}
}

func packIDs(packs []model.ContextPack) []string {
	out := make([]string, len(packs))
	for i, p := range packs {
		out[i] = p.PackID
	}
	return out
}
