package librarian

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// ManifestKind is the install manifest's discriminator (§6).
const ManifestKind = "LibrainianInstallManifest.v1"

// ManifestFile is the manifest's on-disk path, relative to the workspace
// root.
const ManifestFile = ".librainian-manifest.json"

// Manifest records what bootstrap created or touched, with
// deterministic, workspace-relative paths (§6).
type Manifest struct {
	Kind                string   `json:"kind"`
	CreatedDirectories  []string `json:"createdDirectories"`
	ModifiedFiles       []string `json:"modifiedFiles"`
}

// NewManifest builds a Manifest from absolute paths, converting each to a
// workspace-relative, forward-slashed, sorted form so repeated bootstraps
// of the same workspace produce byte-identical manifests.
func NewManifest(workspace string, createdDirs, modifiedFiles []string) Manifest {
	return Manifest{
		Kind:               ManifestKind,
		CreatedDirectories: relativizeSorted(workspace, createdDirs),
		ModifiedFiles:      relativizeSorted(workspace, modifiedFiles),
	}
}

func relativizeSorted(workspace string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(workspace, p)
		if err != nil {
			rel = p
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return out
}

// WriteManifest serializes m to <workspace>/.librainian-manifest.json.
func WriteManifest(workspace string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return newErr(KindStorageFatal, "marshaling install manifest", err)
	}
	path := filepath.Join(workspace, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newErr(KindStorageFatal, "writing install manifest", err)
	}
	return nil
}

// ReadManifest loads a previously written manifest, returning ok=false if
// none exists yet.
func ReadManifest(workspace string) (Manifest, bool, error) {
	path := filepath.Join(workspace, ManifestFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, false, nil
	}
	if err != nil {
		return Manifest{}, false, newErr(KindStorageFatal, "reading install manifest", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, false, newErr(KindStorageFatal, "parsing install manifest", err)
	}
	return m, true, nil
}
