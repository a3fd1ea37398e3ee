// Package cache implements the two-tier Query Cache (§4.C): an in-process
// memoized tier backed by a persistent tier in the Knowledge Store, keyed
// by a normalized semantic fingerprint of the query.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Filter mirrors the normalized filter fields that participate in the
// cache key (§4.C).
type Filter struct {
	PathPrefix      string
	Language        string
	ExcludeTests    bool
	IsExported      bool
	IsPure          bool
	MaxFileSizeBytes int
}

// Query is the normalized input to cache-key construction.
type Query struct {
	VersionKey       string // major.minor.qualityTier.indexerVersion
	LLMRequirement   string // "disabled" | "optional" | "required"
	HydeExpansion    bool
	Intent           string
	AffectedFiles    []string
	Filter           Filter
	Depth            int
	DisableCache     bool
}

var synonymClasses = map[string]string{
	"authentication": "auth", "auth method": "auth", "login": "auth", "signin": "auth",
	"method": "function", "function": "function", "routine": "function",
	"how": "workflow", "explain": "workflow", "describe": "workflow", "what": "workflow",
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "of": true, "to": true,
	"for": true, "and": true, "or": true, "in": true, "on": true, "do": true,
	"does": true, "it": true, "this": true,
}

var trailingInterrogatives = []string{"?", "please", "thanks"}

// NormalizeIntent lowercases, strips punctuation, folds synonyms, drops
// stop words and trailing interrogatives, then returns tokens sorted
// lexicographically so paraphrased intents collapse to the same key
// (§4.C Intent normalization).
func NormalizeIntent(intent string) string {
	lower := strings.ToLower(intent)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())

	tokens := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if i+1 < len(fields) {
			if folded, ok := synonymClasses[f+" "+fields[i+1]]; ok {
				tokens = append(tokens, folded)
				i++
				continue
			}
		}
		isInterrogative := false
		for _, suffix := range trailingInterrogatives {
			if f == suffix {
				isInterrogative = true
			}
		}
		if isInterrogative || stopWords[f] {
			continue
		}
		if folded, ok := synonymClasses[f]; ok {
			f = folded
		}
		tokens = append(tokens, f)
	}

	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// classifyIntentKind determines whether the intent text expresses a
// meta/code/definition/entry-point class, one of the key components (§4.C).
func classifyIntentKind(intent string) string {
	lower := strings.ToLower(intent)
	switch {
	case strings.Contains(lower, "entry point") || strings.Contains(lower, "entrypoint") || strings.Contains(lower, "main"):
		return "entry_point"
	case strings.Contains(lower, "define") || strings.Contains(lower, "definition") || strings.Contains(lower, "signature"):
		return "definition"
	case strings.Contains(lower, "meta") || strings.Contains(lower, "overview") || strings.Contains(lower, "architecture"):
		return "meta"
	default:
		return "code"
	}
}

// Key builds the stable cache key hash for a query (§4.C). Bypassed
// entirely by callers when DisableCache is true — this function does not
// check that flag itself, callers gate on it before calling Key.
func Key(q Query) string {
	affected := append([]string{}, q.AffectedFiles...)
	sort.Strings(affected)

	pathPrefix := q.Filter.PathPrefix
	if pathPrefix != "" && !strings.HasSuffix(pathPrefix, "/") {
		pathPrefix += "/"
	}

	payload := struct {
		Version       string   `json:"version"`
		LLM           string   `json:"llm"`
		Hyde          bool     `json:"hyde"`
		Intent        string   `json:"intent"`
		AffectedFiles []string `json:"affectedFiles"`
		PathPrefix    string   `json:"pathPrefix"`
		Language      string   `json:"language"`
		ExcludeTests  bool     `json:"excludeTests"`
		IsExported    bool     `json:"isExported"`
		IsPure        bool     `json:"isPure"`
		MaxFileSize   string   `json:"maxFileSize"`
		Depth         string   `json:"depth"`
		IntentKind    string   `json:"intentKind"`
	}{
		Version:       q.VersionKey,
		LLM:           q.LLMRequirement,
		Hyde:          q.HydeExpansion,
		Intent:        NormalizeIntent(q.Intent),
		AffectedFiles: affected,
		PathPrefix:    pathPrefix,
		Language:      strings.ToLower(q.Filter.Language),
		ExcludeTests:  q.Filter.ExcludeTests,
		IsExported:    q.Filter.IsExported,
		IsPure:        q.Filter.IsPure,
		MaxFileSize:   maxFileSizeToken(q.Filter.MaxFileSizeBytes),
		Depth:         strconv.Itoa(q.Depth),
		IntentKind:    classifyIntentKind(q.Intent),
	}

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func maxFileSizeToken(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
