package retrieval

import (
	"context"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// Depth is the escalation depth the pipeline runs at (§4.E depth table).
type Depth int

const (
	DepthL0 Depth = iota
	DepthL1
	DepthL2
	DepthL3
)

// window holds the candidate budget for a depth: non-meta, meta, and
// rerank-window sizes (§4.E depth table).
type window struct {
	nonMeta int
	meta    int
	rerank  int
}

var depthWindows = map[Depth]window{
	DepthL0: {0, 0, 0},
	DepthL1: {12, 16, 0},
	DepthL2: {16, 20, 10},
	DepthL3: {20, 24, 14},
}

// WindowFor returns the candidate budget for a depth, defaulting to the L1
// window for an out-of-range value.
func WindowFor(d Depth) (nonMeta, meta, rerank int) {
	w, ok := depthWindows[d]
	if !ok {
		w = depthWindows[DepthL1]
	}
	return w.nonMeta, w.meta, w.rerank
}

// IntentKind mirrors internal/cache's classification so scoring stages can
// bias by query shape without importing the cache package.
type IntentKind string

const (
	IntentMeta       IntentKind = "meta"
	IntentCode       IntentKind = "code"
	IntentDefinition IntentKind = "definition"
	IntentEntryPoint IntentKind = "entry_point"
)

// Filter mirrors internal/cache.Filter; duplicated here to avoid a
// retrieval -> cache dependency (cache already depends on nothing retrieval
// needs).
type Filter struct {
	PathPrefix       string
	Language         string
	ExcludeTests     bool
	IsExported       bool
	IsPure           bool
	MaxFileSizeBytes int
}

// Query is the resolved input to the retrieval pipeline.
type Query struct {
	Intent          string
	IntentKind      IntentKind
	AffectedFiles   []string
	Filter          Filter
	Depth           Depth
	UseHyde         bool
	LLMAvailable    bool
	Diversify       bool    // enable MMR diversification in reranking (§4.E.8)
	DiversityLambda float64 // MMR lambda override, clamped to [0,1]; 0 means "use pipeline default"
	Deadline        time.Time
}

// Candidate is one entity under consideration as the pipeline progresses.
// It accumulates per-dimension scores across stages, keyed by
// "entityType:entityId" (§4.E.5 merge key).
type Candidate struct {
	EntityType model.EntityType
	EntityID   string
	PackID     string // populated once a context pack exists for this entity

	Scores map[string]float64 // dimension -> score, e.g. "semanticSimilarity", "graphSimilarity"

	Source string // which stage first introduced this candidate
}

// Key returns the merge key used to deduplicate candidates across stages.
func (c Candidate) Key() string {
	return string(c.EntityType) + ":" + c.EntityID
}

// score returns a named dimension score, defaulting to zero.
func (c Candidate) score(dim string) float64 {
	if c.Scores == nil {
		return 0
	}
	return c.Scores[dim]
}

// setScore keeps the strongest signal per dimension when merging duplicate
// candidates across stages (§4.E.5).
func (c *Candidate) setScore(dim string, v float64) {
	if c.Scores == nil {
		c.Scores = make(map[string]float64)
	}
	if existing, ok := c.Scores[dim]; !ok || v > existing {
		c.Scores[dim] = v
	}
}

// KnowledgeSource is the read-side dependency the pipeline uses to pull
// records, edges, embeddings, and logs. Satisfied by *store.Store.
type KnowledgeSource interface {
	GetFunction(ctx context.Context, id string) (model.FunctionRecord, bool, error)
	GetModule(ctx context.Context, id string) (model.ModuleRecord, bool, error)
	GetFile(ctx context.Context, id string) (model.FileRecord, bool, error)
	GetFileByPath(ctx context.Context, relativePath string) (model.FileRecord, bool, error)
	ListFiles(ctx context.Context) ([]model.FileRecord, error)
	ListFunctionsByFile(ctx context.Context, filePath string) ([]model.FunctionRecord, error)

	GetPack(ctx context.Context, id string) (model.ContextPack, bool, error)
	ListPacksByTarget(ctx context.Context, targetID string) ([]model.ContextPack, error)
	ListPacksByRelatedFile(ctx context.Context, path string) ([]model.ContextPack, error)
	ListAllPacks(ctx context.Context) ([]model.ContextPack, error)

	EdgesFrom(ctx context.Context, sourceID string, edgeType model.EdgeType) ([]model.KnowledgeEdge, error)
	EdgesTo(ctx context.Context, targetID string, edgeType model.EdgeType) ([]model.KnowledgeEdge, error)

	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	ListEmbeddingKeys(ctx context.Context) ([]string, error)

	GetQueryAccessLogsForIntent(ctx context.Context, normalizedIntent string, limit int) ([]model.QueryAccessLogRecord, error)
}

// Result is the pipeline's final output (§4.E post_processing, consumed by
// internal/assembler).
type Result struct {
	Packs           []model.ContextPack
	Disclosures     []string
	Tracker         *Tracker
	SynthesisMode   string // "llm" | "heuristic" | "cache"
	TotalConfidence float64
	Adequacy        *AdequacyResult
}
