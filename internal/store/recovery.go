package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nateschmiedehaus/librarian/internal/logging"
)

// RecoveryResult reports what attemptStorageRecovery did, mirroring §5's
// "actions: ['removed_workspace_locks:<n>']" contract.
type RecoveryResult struct {
	Recovered bool
	Actions   []string
}

// AttemptRecovery removes stale lock files under <workspace>/.librarian/locks/
// after a recoverable storage error (§5 Recovery, §7 StorageRecoverable). It
// is grounded on the teacher's defensive store-initialization pattern
// (store/local.go NewLocalStore) which treats lock contention as
// non-fatal and retries rather than aborting.
func AttemptRecovery(workspace string) (RecoveryResult, error) {
	locksDir := filepath.Join(workspace, ".librarian", "locks")
	entries, err := os.ReadDir(locksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return RecoveryResult{}, nil
		}
		return RecoveryResult{}, fmt.Errorf("store: read locks dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(locksDir, e.Name())
		if err := os.Remove(path); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to remove lock file %s: %v", path, err)
			continue
		}
		removed++
	}

	if removed == 0 {
		return RecoveryResult{}, nil
	}
	logging.Get(logging.CategoryStore).Info("removed %d stale lock file(s) from %s", removed, locksDir)
	return RecoveryResult{
		Recovered: true,
		Actions:   []string{fmt.Sprintf("removed_workspace_locks:%d", removed)},
	}, nil
}
