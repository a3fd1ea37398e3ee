package freshness

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreSet merges .gitignore and .librainian.json ignore patterns so the
// Watcher never walks into vendor/build/index output it would just have to
// debounce away.
type IgnoreSet struct {
	patterns []string
}

// LoadIgnoreSet reads <workspace>/.gitignore and <workspace>/.librainian.json
// (field "ignore") and merges them with a small built-in default
// set. Missing files are not an error.
func LoadIgnoreSet(workspace string) *IgnoreSet {
	patterns := append([]string{}, defaultIgnorePatterns...)

	if f, err := os.Open(filepath.Join(workspace, ".gitignore")); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, line)
		}
		f.Close()
	}

	if data, err := os.ReadFile(filepath.Join(workspace, ".librainian.json")); err == nil {
		extra := extractIgnorePatterns(data)
		patterns = append(patterns, extra...)
	}

	return &IgnoreSet{patterns: patterns}
}

var defaultIgnorePatterns = []string{
	".git", ".librarian", "node_modules", "vendor", "dist", "build", ".cache",
}

// MatchDir reports whether a workspace-relative directory path should be
// skipped entirely (and so never descended into).
func (s *IgnoreSet) MatchDir(rel string) bool {
	return s.match(rel)
}

// MatchFile reports whether a workspace-relative file path should be
// ignored by the watcher's event handling.
func (s *IgnoreSet) MatchFile(rel string) bool {
	return s.match(rel)
}

func (s *IgnoreSet) match(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, p := range s.patterns {
		p = strings.TrimPrefix(strings.TrimSuffix(p, "/"), "/")
		if p == "" {
			continue
		}
		if matched, _ := filepath.Match(p, base); matched {
			return true
		}
		if matched, _ := filepath.Match(p, rel); matched {
			return true
		}
		if strings.HasPrefix(rel, p+"/") || rel == p {
			return true
		}
	}
	return false
}

// extractIgnorePatterns pulls the "ignore" string array out of a
// .librainian.json document without requiring its full schema to be known
// here (kept deliberately tolerant of unrelated fields).
func extractIgnorePatterns(data []byte) []string {
	var doc struct {
		IgnorePatterns []string `json:"ignore"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc.IgnorePatterns
}
