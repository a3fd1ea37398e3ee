package freshness

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// RecoverArtifacts handles a stale artifact backup found on gate entry
// (§3 Artifact backup state, §4.B step 4). When restore is true the
// original files are restored atomically (rename backup over original) and
// the caller is expected to delete the backup state afterward; when false
// the backup is discarded without touching the live file.
func RecoverArtifacts(backup model.ArtifactBackupState, restore bool) (bool, error) {
	log := logging.Get(logging.CategoryFreshness)

	if !restore {
		log.Info("discarding stale artifact backup generation=%s (restoreArtifacts=false)", backup.GenerationID)
		return false, nil
	}

	for _, f := range backup.Files {
		if _, err := os.Stat(f.BackupPath); err != nil {
			log.Warn("backup file missing, skipping restore: %s", f.BackupPath)
			continue
		}
		if err := os.Rename(f.BackupPath, f.OriginalPath); err != nil {
			return false, fmt.Errorf("freshness: restore %s: %w", f.OriginalPath, err)
		}
	}
	log.Info("restored %d artifact(s) from backup generation=%s", len(backup.Files), backup.GenerationID)
	return true, nil
}

func unmarshalState(raw string, out interface{}) error {
	if raw == "" {
		return fmt.Errorf("freshness: empty state")
	}
	return json.Unmarshal([]byte(raw), out)
}
