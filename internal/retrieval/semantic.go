package retrieval

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/nateschmiedehaus/librarian/internal/embedding"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// rrfK is the reciprocal-rank-fusion smoothing constant (§4.E.3).
const rrfK = 60.0

// hydeMaxChars bounds the HyDE synthetic document before it's used as a
// retrieval variant (§4.E.3).
const hydeMaxChars = 1200

var codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n?|```")

// HyDEProvider generates a short hypothetical document answering a query
// intent, used as one extra retrieval variant before fusion (§4.E.3).
// Implemented by an LLM-backed collaborator.
type HyDEProvider interface {
	GenerateHypotheticalDocument(ctx context.Context, intent string) (string, error)
}

// rankedList is one ranked candidate-key list contributed by a single query
// variant (the raw query, the HyDE synthetic document, or one identifier
// expansion) to the fusion step.
type rankedList []string // entity keys ("entityType:entityId"), best first

// fuse combines ranked lists by reciprocal rank: score(id) = sum 1/(k+rank)
// across every list the id appears in (§4.E.3).
func fuse(lists []rankedList, k float64) map[string]float64 {
	scores := make(map[string]float64)
	for _, list := range lists {
		for rank, key := range list {
			scores[key] += 1.0 / (k + float64(rank+1))
		}
	}
	return scores
}

// hydeExpansion synthesizes a short hypothetical-document string from the
// query intent, used as one extra retrieval variant before fusion (§4.E.3).
// It routes through the LLM-backed provider when one is configured,
// stripping markdown code fences and truncating to hydeMaxChars; with no
// LLM available it falls back to a canned expansion instead.
func hydeExpansion(ctx context.Context, provider HyDEProvider, llmAvailable bool, intent string, tracker *Tracker) string {
	if !llmAvailable || provider == nil {
		return "Implementation detail addressing: " + intent
	}

	raw, err := provider.GenerateHypotheticalDocument(ctx, intent)
	if err != nil {
		tracker.QueueIssue(StageSemanticRetrieval, Issue{Severity: SeverityMinor, Message: "hyde expansion failed: " + err.Error()})
		return "Implementation detail addressing: " + intent
	}

	cleaned := strings.TrimSpace(codeFencePattern.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return "Implementation detail addressing: " + intent
	}
	if len(cleaned) > hydeMaxChars {
		cleaned = cleaned[:hydeMaxChars]
	}
	return cleaned
}

// identifierExpansions extracts camelCase/snake_case-ish tokens from the
// intent to use as extra retrieval variants (§4.E.3 identifier expansion).
func identifierExpansions(intent string) []string {
	var out []string
	for _, tok := range strings.Fields(intent) {
		clean := strings.Trim(tok, ".,!?;:'\"()[]{}")
		if len(clean) < 3 {
			continue
		}
		if strings.ContainsAny(clean, "_") || hasInternalUpper(clean) {
			out = append(out, clean)
		}
	}
	return out
}

func hasInternalUpper(s string) bool {
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

// embeddedCorpus is a precomputed key -> vector map, typically loaded once
// per query from the knowledge store's embedding table.
type embeddedCorpus struct {
	keys    []string
	vectors [][]float32
}

func loadCorpus(ec execContext, source KnowledgeSource) (embeddedCorpus, error) {
	keys, err := source.ListEmbeddingKeys(ec.ctx)
	if err != nil {
		return embeddedCorpus{}, err
	}
	corpus := embeddedCorpus{keys: make([]string, 0, len(keys)), vectors: make([][]float32, 0, len(keys))}
	for _, key := range keys {
		vec, ok, err := source.GetEmbedding(ec.ctx, key)
		if err != nil || !ok {
			continue
		}
		corpus.keys = append(corpus.keys, key)
		corpus.vectors = append(corpus.vectors, vec)
	}
	return corpus, nil
}

// rankAgainstCorpus embeds one query variant and ranks the corpus by cosine
// similarity, returning the key order best-first.
func rankAgainstCorpus(ec execContext, engine embedding.Engine, text string, corpus embeddedCorpus, topK int) (rankedList, error) {
	vec, err := engine.Embed(ec.ctx, text)
	if err != nil {
		return nil, err
	}
	results := embedding.FindTopK(vec, corpus.vectors, topK)
	out := make(rankedList, 0, len(results))
	for _, r := range results {
		out = append(out, corpus.keys[r.Index])
	}
	return out, nil
}

// RunSemanticRetrieval embeds the query (and, when enabled, a HyDE synthetic
// document and identifier expansions), ranks the stored embedding corpus
// against each variant, and fuses the ranked lists by reciprocal rank
// (§4.E.3). A nil engine or empty corpus queues an issue and finishes the
// stage with no candidates, which the Tracker reports as `failed`, rather
// than failing the whole pipeline.
func RunSemanticRetrieval(ec execContext, q Query, engine embedding.Engine, source KnowledgeSource, hyde HyDEProvider, tracker *Tracker) []Candidate {
	tracker.Start(StageSemanticRetrieval)

	if engine == nil || engine.Dimensions() == 0 {
		tracker.QueueIssue(StageSemanticRetrieval, Issue{Severity: SeverityModerate, Message: "no embedding provider configured"})
		tracker.Finish(StageSemanticRetrieval, 0, 0, 0, nil)
		return nil
	}

	corpus, err := loadCorpus(ec, source)
	if err != nil || len(corpus.keys) == 0 {
		tracker.QueueIssue(StageSemanticRetrieval, Issue{Severity: SeverityModerate, Message: "embedding corpus unavailable"})
		tracker.Finish(StageSemanticRetrieval, 0, 0, 0, nil)
		return nil
	}

	nonMeta, meta, _ := WindowFor(q.Depth)
	topK := nonMeta
	if q.IntentKind == IntentMeta {
		topK = meta
	}
	if topK <= 0 {
		tracker.Finish(StageSemanticRetrieval, len(corpus.keys), 0, 0, nil)
		return nil
	}

	var lists []rankedList
	if list, err := rankAgainstCorpus(ec, engine, q.Intent, corpus, topK); err == nil {
		lists = append(lists, list)
	} else {
		tracker.QueueIssue(StageSemanticRetrieval, Issue{Severity: SeverityMinor, Message: "query embed failed: " + err.Error()})
	}

	if q.UseHyde {
		hypothetical := hydeExpansion(ec.ctx, hyde, q.LLMAvailable, q.Intent, tracker)
		if list, err := rankAgainstCorpus(ec, engine, hypothetical, corpus, topK); err == nil {
			lists = append(lists, list)
		}
	}

	for _, ident := range identifierExpansions(q.Intent) {
		if list, err := rankAgainstCorpus(ec, engine, ident, corpus, topK); err == nil {
			lists = append(lists, list)
		}
	}

	if len(lists) == 0 {
		tracker.Finish(StageSemanticRetrieval, len(corpus.keys), 0, 0, nil)
		return nil
	}

	fused := fuse(lists, rrfK)
	keys := make([]string, 0, len(fused))
	for k := range fused {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return fused[keys[i]] > fused[keys[j]] })
	if len(keys) > topK {
		keys = keys[:topK]
	}

	out := make([]Candidate, 0, len(keys))
	for _, key := range keys {
		entityType, entityID, ok := splitKey(key)
		if !ok {
			continue
		}
		c := Candidate{EntityType: entityType, EntityID: entityID, Source: "semantic_retrieval"}
		c.setScore("semanticSimilarity", fused[key])
		out = append(out, c)
	}

	tracker.Finish(StageSemanticRetrieval, len(corpus.keys), len(out), len(corpus.keys)-len(out), map[string]interface{}{
		"variantCount": len(lists),
		"topK":         topK,
	})
	return out
}

func splitKey(key string) (entityType model.EntityType, entityID string, ok bool) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return "", "", false
	}
	return model.EntityType(key[:idx]), key[idx+1:], true
}
