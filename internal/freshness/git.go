package freshness

import (
	"context"
	"os/exec"
	"strings"

	"github.com/nateschmiedehaus/librarian/internal/logging"
)

// ancestryResult classifies the relationship between the indexed commit
// and the current HEAD for a git cursor (§4.B step 5).
type ancestryResult int

const (
	ancestryDiverged ancestryResult = iota
	ancestryIndexedIsAncestor // HEAD moved forward: index is stale
	ancestryHeadIsAncestor    // HEAD moved backward
)

// gitHeadSHA returns the workspace's current HEAD commit SHA.
func gitHeadSHA(ctx context.Context, workspace string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = workspace
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// gitAncestryOf determines whether indexed is an ancestor of head, head is
// an ancestor of indexed, or the two have diverged.
func gitAncestryOf(ctx context.Context, workspace, indexed, head string) (ancestryResult, error) {
	log := logging.Get(logging.CategoryFreshness)

	if isAncestor(ctx, workspace, indexed, head) {
		return ancestryIndexedIsAncestor, nil
	}
	if isAncestor(ctx, workspace, head, indexed) {
		return ancestryHeadIsAncestor, nil
	}
	log.Debug("git ancestry diverged: indexed=%s head=%s", indexed, head)
	return ancestryDiverged, nil
}

func isAncestor(ctx context.Context, workspace, ancestor, descendant string) bool {
	cmd := exec.CommandContext(ctx, "git", "merge-base", "--is-ancestor", ancestor, descendant)
	cmd.Dir = workspace
	return cmd.Run() == nil
}
