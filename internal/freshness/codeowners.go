package freshness

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// OwnerRule is one compiled CODEOWNERS line: a path pattern and the owners
// responsible for it, in file order (later rules override earlier ones on
// a match, per CODEOWNERS semantics).
type OwnerRule struct {
	Pattern string
	Owners  []string
}

// CompileCodeowners reads the first CODEOWNERS file found at the
// conventional locations (root, .github/, docs/) and parses its rules,
// keeping each pattern as a glob that OwnersFor matches with
// filepath.Match; patterns are not compiled to regular expressions.
// Supplements the spec's ownership record (§3) with the repository's own
// declared ownership; nothing in this module calls it.
func CompileCodeowners(workspace string) ([]OwnerRule, error) {
	for _, rel := range []string{"CODEOWNERS", filepath.Join(".github", "CODEOWNERS"), filepath.Join("docs", "CODEOWNERS")} {
		path := filepath.Join(workspace, rel)
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		defer f.Close()
		return parseCodeowners(f)
	}
	return nil, nil
}

func parseCodeowners(f *os.File) ([]OwnerRule, error) {
	var rules []OwnerRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		rules = append(rules, OwnerRule{Pattern: fields[0], Owners: fields[1:]})
	}
	return rules, scanner.Err()
}

// OwnersFor returns the owners of the last matching rule for a
// workspace-relative path (last match wins, per CODEOWNERS semantics).
func OwnersFor(rules []OwnerRule, relPath string) []string {
	relPath = filepath.ToSlash(relPath)
	var owners []string
	for _, r := range rules {
		pattern := strings.TrimPrefix(r.Pattern, "/")
		if matched, _ := filepath.Match(pattern, relPath); matched {
			owners = r.Owners
			continue
		}
		if strings.HasSuffix(pattern, "/") && strings.HasPrefix(relPath, pattern) {
			owners = r.Owners
		}
	}
	return owners
}
