package retrieval

import (
	"context"
	"errors"

	"github.com/nateschmiedehaus/librarian/internal/model"
)

// fakeSource is an in-memory KnowledgeSource test double.
type fakeSource struct {
	functions   map[string]model.FunctionRecord
	modules     map[string]model.ModuleRecord
	files       map[string]model.FileRecord
	filesByPath map[string]string // path -> id
	packs       map[string]model.ContextPack
	packsByTarget map[string][]string
	packsByFile map[string][]string
	edgesFrom   map[string][]model.KnowledgeEdge
	edgesTo     map[string][]model.KnowledgeEdge
	embeddings  map[string][]float32
	accessLogs  map[string][]model.QueryAccessLogRecord
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		functions:     make(map[string]model.FunctionRecord),
		modules:       make(map[string]model.ModuleRecord),
		files:         make(map[string]model.FileRecord),
		filesByPath:   make(map[string]string),
		packs:         make(map[string]model.ContextPack),
		packsByTarget: make(map[string][]string),
		packsByFile:   make(map[string][]string),
		edgesFrom:     make(map[string][]model.KnowledgeEdge),
		edgesTo:       make(map[string][]model.KnowledgeEdge),
		embeddings:    make(map[string][]float32),
		accessLogs:    make(map[string][]model.QueryAccessLogRecord),
	}
}

func (f *fakeSource) addPack(p model.ContextPack) {
	f.packs[p.PackID] = p
	f.packsByTarget[p.TargetID] = append(f.packsByTarget[p.TargetID], p.PackID)
	for _, rf := range p.RelatedFiles {
		f.packsByFile[rf] = append(f.packsByFile[rf], p.PackID)
	}
}

func (f *fakeSource) addEdge(e model.KnowledgeEdge) {
	f.edgesFrom[e.SourceID] = append(f.edgesFrom[e.SourceID], e)
	f.edgesTo[e.TargetID] = append(f.edgesTo[e.TargetID], e)
}

func (f *fakeSource) GetFunction(ctx context.Context, id string) (model.FunctionRecord, bool, error) {
	r, ok := f.functions[id]
	return r, ok, nil
}
func (f *fakeSource) GetModule(ctx context.Context, id string) (model.ModuleRecord, bool, error) {
	r, ok := f.modules[id]
	return r, ok, nil
}
func (f *fakeSource) GetFile(ctx context.Context, id string) (model.FileRecord, bool, error) {
	r, ok := f.files[id]
	return r, ok, nil
}
func (f *fakeSource) GetFileByPath(ctx context.Context, relativePath string) (model.FileRecord, bool, error) {
	id, ok := f.filesByPath[relativePath]
	if !ok {
		return model.FileRecord{}, false, nil
	}
	r, ok := f.files[id]
	return r, ok, nil
}
func (f *fakeSource) ListFiles(ctx context.Context) ([]model.FileRecord, error) {
	out := make([]model.FileRecord, 0, len(f.files))
	for _, r := range f.files {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeSource) ListFunctionsByFile(ctx context.Context, filePath string) ([]model.FunctionRecord, error) {
	var out []model.FunctionRecord
	for _, r := range f.functions {
		if r.FilePath == filePath {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) GetPack(ctx context.Context, id string) (model.ContextPack, bool, error) {
	p, ok := f.packs[id]
	return p, ok, nil
}
func (f *fakeSource) ListPacksByTarget(ctx context.Context, targetID string) ([]model.ContextPack, error) {
	var out []model.ContextPack
	for _, id := range f.packsByTarget[targetID] {
		out = append(out, f.packs[id])
	}
	return out, nil
}
func (f *fakeSource) ListPacksByRelatedFile(ctx context.Context, path string) ([]model.ContextPack, error) {
	var out []model.ContextPack
	for _, id := range f.packsByFile[path] {
		out = append(out, f.packs[id])
	}
	return out, nil
}
func (f *fakeSource) ListAllPacks(ctx context.Context) ([]model.ContextPack, error) {
	out := make([]model.ContextPack, 0, len(f.packs))
	for _, p := range f.packs {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeSource) EdgesFrom(ctx context.Context, sourceID string, edgeType model.EdgeType) ([]model.KnowledgeEdge, error) {
	var out []model.KnowledgeEdge
	for _, e := range f.edgesFrom[sourceID] {
		if e.EdgeType == edgeType {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeSource) EdgesTo(ctx context.Context, targetID string, edgeType model.EdgeType) ([]model.KnowledgeEdge, error) {
	var out []model.KnowledgeEdge
	for _, e := range f.edgesTo[targetID] {
		if e.EdgeType == edgeType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	v, ok := f.embeddings[key]
	return v, ok, nil
}
func (f *fakeSource) ListEmbeddingKeys(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(f.embeddings))
	for k := range f.embeddings {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeSource) GetQueryAccessLogsForIntent(ctx context.Context, normalizedIntent string, limit int) ([]model.QueryAccessLogRecord, error) {
	logs := f.accessLogs[normalizedIntent]
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// fakeFailingSource wraps fakeSource so individual tests can force errors.
type fakeFailingSource struct {
	*fakeSource
	failFiles bool
}

func (f *fakeFailingSource) ListFiles(ctx context.Context) ([]model.FileRecord, error) {
	if f.failFiles {
		return nil, errors.New("boom")
	}
	return f.fakeSource.ListFiles(ctx)
}
