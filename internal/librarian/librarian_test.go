package librarian

import (
	"context"
	"testing"
	"time"

	"github.com/nateschmiedehaus/librarian/internal/config"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// fakeStore implements the full librarian.Store surface in memory, enough
// to drive Service.Query end to end without a real sqlite-backed store.
type fakeStore struct {
	state        map[string]string
	packs        map[string]model.ContextPack
	packsByFile  map[string][]string
	files        map[string]model.FileRecord
	cacheEntries map[string]model.QueryCacheEntry
	accessLogs   []model.QueryAccessLogRecord
	retrievalLogs []model.RetrievalLogRecord
	bindings     []model.FeedbackTokenBinding
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		state:        make(map[string]string),
		packs:        make(map[string]model.ContextPack),
		packsByFile:  make(map[string][]string),
		files:        make(map[string]model.FileRecord),
		cacheEntries: make(map[string]model.QueryCacheEntry),
	}
}

func (f *fakeStore) addPack(p model.ContextPack) {
	f.packs[p.PackID] = p
	for _, rf := range p.RelatedFiles {
		f.packsByFile[rf] = append(f.packsByFile[rf], p.PackID)
	}
}

// freshness.Store
func (f *fakeStore) GetState(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.state[key]
	return v, ok, nil
}
func (f *fakeStore) SetState(ctx context.Context, key, valueJSON string) error {
	f.state[key] = valueJSON
	return nil
}
func (f *fakeStore) UpdateWatchState(ctx context.Context, key string, updater func(model.WatchState) model.WatchState) (model.WatchState, error) {
	return updater(model.WatchState{}), nil
}

// cache.Store
func (f *fakeStore) GetQueryCacheEntry(ctx context.Context, hash string) (model.QueryCacheEntry, bool, error) {
	e, ok := f.cacheEntries[hash]
	return e, ok, nil
}
func (f *fakeStore) UpsertQueryCacheEntry(ctx context.Context, entry model.QueryCacheEntry, maxEntries int, maxAge time.Duration) error {
	f.cacheEntries[entry.QueryHash] = entry
	return nil
}
func (f *fakeStore) DeleteQueryCacheEntry(ctx context.Context, hash string) error {
	delete(f.cacheEntries, hash)
	return nil
}

// retrieval.KnowledgeSource
func (f *fakeStore) GetFunction(ctx context.Context, id string) (model.FunctionRecord, bool, error) {
	return model.FunctionRecord{}, false, nil
}
func (f *fakeStore) GetModule(ctx context.Context, id string) (model.ModuleRecord, bool, error) {
	return model.ModuleRecord{}, false, nil
}
func (f *fakeStore) GetFile(ctx context.Context, id string) (model.FileRecord, bool, error) {
	r, ok := f.files[id]
	return r, ok, nil
}
func (f *fakeStore) GetFileByPath(ctx context.Context, relativePath string) (model.FileRecord, bool, error) {
	for _, r := range f.files {
		if r.Path == relativePath {
			return r, true, nil
		}
	}
	return model.FileRecord{}, false, nil
}
func (f *fakeStore) ListFiles(ctx context.Context) ([]model.FileRecord, error) {
	out := make([]model.FileRecord, 0, len(f.files))
	for _, r := range f.files {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeStore) ListFunctionsByFile(ctx context.Context, filePath string) ([]model.FunctionRecord, error) {
	return nil, nil
}
func (f *fakeStore) GetPack(ctx context.Context, id string) (model.ContextPack, bool, error) {
	p, ok := f.packs[id]
	return p, ok, nil
}
func (f *fakeStore) ListPacksByTarget(ctx context.Context, targetID string) ([]model.ContextPack, error) {
	var out []model.ContextPack
	for _, p := range f.packs {
		if p.TargetID == targetID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeStore) ListPacksByRelatedFile(ctx context.Context, path string) ([]model.ContextPack, error) {
	var out []model.ContextPack
	for _, id := range f.packsByFile[path] {
		out = append(out, f.packs[id])
	}
	return out, nil
}
func (f *fakeStore) ListAllPacks(ctx context.Context) ([]model.ContextPack, error) {
	out := make([]model.ContextPack, 0, len(f.packs))
	for _, p := range f.packs {
		out = append(out, p)
	}
	return out, nil
}
func (f *fakeStore) EdgesFrom(ctx context.Context, sourceID string, edgeType model.EdgeType) ([]model.KnowledgeEdge, error) {
	return nil, nil
}
func (f *fakeStore) EdgesTo(ctx context.Context, targetID string, edgeType model.EdgeType) ([]model.KnowledgeEdge, error) {
	return nil, nil
}
func (f *fakeStore) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	return nil, false, nil
}
func (f *fakeStore) ListEmbeddingKeys(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeStore) GetQueryAccessLogsForIntent(ctx context.Context, normalizedIntent string, limit int) ([]model.QueryAccessLogRecord, error) {
	return nil, nil
}

// observability.StoreAppender
func (f *fakeStore) AppendRetrievalConfidenceLog(ctx context.Context, rec model.RetrievalLogRecord) error {
	f.retrievalLogs = append(f.retrievalLogs, rec)
	return nil
}

// feedback.PackStore
func (f *fakeStore) UpdatePackConfidence(ctx context.Context, id string, confidence float64, outcome model.Outcome, successDelta, failureDelta int) error {
	p := f.packs[id]
	p.Confidence = model.ClampConfidence(confidence)
	f.packs[id] = p
	return nil
}
func (f *fakeStore) RecordConfidenceEvent(ctx context.Context, ev model.ConfidenceEvent) (bool, error) {
	return true, nil
}
func (f *fakeStore) HasConfidenceEvent(ctx context.Context, queryID, packID string) (bool, error) {
	return false, nil
}

// Direct librarian.Store additions
func (f *fakeStore) SetFeedbackTokenBinding(ctx context.Context, binding model.FeedbackTokenBinding) error {
	f.bindings = append(f.bindings, binding)
	return nil
}
func (f *fakeStore) GetFeedbackTokenBinding(ctx context.Context, token string) (model.FeedbackTokenBinding, bool, error) {
	for _, b := range f.bindings {
		if b.FeedbackToken == token {
			return b, true, nil
		}
	}
	return model.FeedbackTokenBinding{}, false, nil
}
func (f *fakeStore) AppendQueryAccessLog(ctx context.Context, rec model.QueryAccessLogRecord) error {
	f.accessLogs = append(f.accessLogs, rec)
	return nil
}

func testConfig() config.Config {
	return *config.DefaultConfig()
}

func TestQueryRejectsEmptyIntent(t *testing.T) {
	store := newFakeStore()
	svc := New(store, t.TempDir(), model.Version{Major: 1}, testConfig(), nil, nil)

	_, err := svc.Query(context.Background(), QueryRequest{})
	if err == nil {
		t.Fatal("expected an error for an empty intent")
	}
	var libErr *Error
	if e, ok := err.(*Error); !ok || e.Kind != KindInvalidInput {
		t.Errorf("expected KindInvalidInput, got %v (%T)", err, libErr)
	}
}

func TestQueryReturnsPacksFromDirectMatch(t *testing.T) {
	store := newFakeStore()
	store.addPack(model.ContextPack{
		PackID: "p1", TargetID: "fn1", RelatedFiles: []string{"auth.go"},
		Confidence: 0.6, CreatedAt: time.Now().Add(-time.Hour),
		Summary: "handles authentication",
	})

	svc := New(store, t.TempDir(), model.Version{Major: 1}, testConfig(), nil, nil)
	env, err := svc.Query(context.Background(), QueryRequest{
		Intent:        "how does auth work",
		AffectedFiles: []string{"auth.go"},
		Depth:         "L1",
		DisableCache:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.Packs) == 0 {
		t.Fatal("expected at least one pack in the response")
	}
	if env.TraceID == "" || env.FeedbackToken == "" {
		t.Error("expected trace id and feedback token to be populated")
	}
	if len(store.bindings) != 1 {
		t.Errorf("expected feedback token binding persisted, got %d", len(store.bindings))
	}
}

func TestQueryCachesSecondIdenticalCall(t *testing.T) {
	store := newFakeStore()
	store.addPack(model.ContextPack{
		PackID: "p1", TargetID: "fn1", RelatedFiles: []string{"auth.go"},
		Confidence: 0.6, CreatedAt: time.Now(),
	})
	svc := New(store, t.TempDir(), model.Version{Major: 1}, testConfig(), nil, nil)

	req := QueryRequest{Intent: "how does auth work", AffectedFiles: []string{"auth.go"}, Depth: "L1"}
	first, err := svc.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.CacheHit {
		t.Error("expected first call to be a cache miss")
	}

	second, err := svc.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if !second.CacheHit {
		t.Error("expected second identical call to hit the cache")
	}
	if second.SynthesisMode != "cache" {
		t.Errorf("expected cache hit to report synthesisMode=cache, got %s", second.SynthesisMode)
	}
	if second.TraceID == "" || second.TraceID == first.TraceID {
		t.Errorf("expected a fresh trace id on cache hit, first=%s second=%s", first.TraceID, second.TraceID)
	}
	if second.FeedbackToken == "" || second.FeedbackToken == first.FeedbackToken {
		t.Errorf("expected a new feedback token on cache hit, first=%s second=%s", first.FeedbackToken, second.FeedbackToken)
	}
}

func TestSubmitFeedbackAppliesRatingsForBoundPacks(t *testing.T) {
	store := newFakeStore()
	store.addPack(model.ContextPack{
		PackID: "p1", TargetID: "fn1", RelatedFiles: []string{"auth.go"},
		Confidence: 0.5, CreatedAt: time.Now(),
	})
	svc := New(store, t.TempDir(), model.Version{Major: 1}, testConfig(), nil, nil)

	env, err := svc.Query(context.Background(), QueryRequest{
		Intent: "how does auth work", AffectedFiles: []string{"auth.go"}, Depth: "L1", DisableCache: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.Packs) == 0 {
		t.Fatal("expected at least one pack to provide feedback against")
	}

	result, err := svc.SubmitFeedback(context.Background(), FeedbackRequest{
		QueryID: env.FeedbackToken,
		RelevanceRatings: []RelevanceRating{
			{PackID: env.Packs[0].PackID, Relevant: true, Usefulness: 1.0},
			{PackID: "not-bound", Relevant: false},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AdjustmentsApplied != 1 {
		t.Errorf("expected 1 adjustment applied, got %d", result.AdjustmentsApplied)
	}
	if result.GapsLogged != 1 {
		t.Errorf("expected 1 gap logged for the unbound pack, got %d", result.GapsLogged)
	}
}

func TestSubmitFeedbackRejectsUnknownToken(t *testing.T) {
	store := newFakeStore()
	svc := New(store, t.TempDir(), model.Version{Major: 1}, testConfig(), nil, nil)

	_, err := svc.SubmitFeedback(context.Background(), FeedbackRequest{QueryID: "nonexistent"})
	if err == nil {
		t.Fatal("expected an error for an unknown feedback token")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindInvalidInput {
		t.Errorf("expected KindInvalidInput, got %v", err)
	}
}

func TestQueryEscalatesWhenInsufficient(t *testing.T) {
	store := newFakeStore()
	store.files["f1"] = model.FileRecord{ID: "f1", Path: "orphan.go", Summary: "an unrelated file"}

	svc := New(store, t.TempDir(), model.Version{Major: 1}, testConfig(), nil, nil)
	env, err := svc.Query(context.Background(), QueryRequest{Intent: "something obscure", Depth: "L1", DisableCache: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.RetrievalStatus == "" {
		t.Error("expected a retrieval status to be set")
	}
}
