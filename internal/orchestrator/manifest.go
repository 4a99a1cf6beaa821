package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/codeintel/server/internal/models"
)

// manifestDir and manifestFile locate the advisory hash manifest inside a
// workspace. The manifest exists only to let incremental builds and drift
// detection skip a graph round trip; the graph store's FILE.content_hash
// properties remain authoritative and the manifest is rebuilt from them
// whenever it is missing or unreadable.
const (
	manifestDir  = ".codeintel"
	manifestFile = "manifest.json"
)

// Manifest is the advisory on-disk hash record for one project.
type Manifest struct {
	ProjectID string            `json:"project_id"`
	WrittenAt time.Time         `json:"written_at"`
	Hashes    map[string]string `json:"hashes"` // rel path -> content hash
}

func manifestPath(root string) string {
	return filepath.Join(root, manifestDir, manifestFile)
}

// LoadManifest reads the workspace's manifest. A missing or corrupt file
// returns (nil, nil): callers fall back to the graph store.
func LoadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(manifestPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil
	}
	return &m, nil
}

// WriteManifest persists m under the workspace root.
func WriteManifest(root string, m Manifest) error {
	dir := filepath.Join(root, manifestDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	m.WrittenAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := manifestPath(root) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, manifestPath(root))
}

// RebuildManifest reconstructs the manifest purely from the graph's FILE
// nodes, the recovery path for a missing or unreadable manifest.
func (o *Orchestrator) RebuildManifest(ctx context.Context, pc models.ProjectContext) (*Manifest, error) {
	files, err := o.graph.NodesByLabel(ctx, pc.ProjectID, models.LabelFile)
	if err != nil {
		return nil, err
	}
	m := Manifest{ProjectID: pc.ProjectID, Hashes: make(map[string]string, len(files))}
	for _, f := range files {
		path, _ := f.Properties["path"].(string)
		hash, _ := f.Properties["content_hash"].(string)
		if path != "" && hash != "" {
			m.Hashes[path] = hash
		}
	}
	if err := WriteManifest(pc.RootPath, m); err != nil {
		o.logger.Warn("failed to write rebuilt manifest", "project_id", pc.ProjectID, "error", err)
	}
	return &m, nil
}

// DetectDrift reports how many FILE nodes disagree with the on-disk
// manifest (missing entry or differing hash). A drift count > 0 means an
// incremental build is due. A missing manifest is rebuilt first and so
// never drifts by definition.
func (o *Orchestrator) DetectDrift(ctx context.Context, pc models.ProjectContext) (int, error) {
	m, err := LoadManifest(pc.RootPath)
	if err != nil {
		return 0, err
	}
	if m == nil || m.ProjectID != pc.ProjectID {
		if _, err := o.RebuildManifest(ctx, pc); err != nil {
			return 0, err
		}
		return 0, nil
	}

	files, err := o.graph.NodesByLabel(ctx, pc.ProjectID, models.LabelFile)
	if err != nil {
		return 0, err
	}

	drift := 0
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		path, _ := f.Properties["path"].(string)
		hash, _ := f.Properties["content_hash"].(string)
		if path == "" {
			continue
		}
		seen[path] = true
		if m.Hashes[path] != hash {
			drift++
		}
	}
	for path := range m.Hashes {
		if !seen[path] {
			drift++
		}
	}
	return drift, nil
}

// updateManifest folds one build's FILE hashes into the on-disk manifest.
// Full builds replace it wholesale; incremental builds merge.
func (o *Orchestrator) updateManifest(pc models.ProjectContext, mode Mode, nodes []models.GraphNode) {
	hashes := make(map[string]string)
	if mode == ModeIncremental {
		if existing, err := LoadManifest(pc.RootPath); err == nil && existing != nil && existing.ProjectID == pc.ProjectID {
			hashes = existing.Hashes
		}
	}
	for _, n := range nodes {
		if n.Label != models.LabelFile {
			continue
		}
		path, _ := n.Properties["path"].(string)
		hash, _ := n.Properties["content_hash"].(string)
		if path != "" && hash != "" {
			hashes[path] = hash
		}
	}
	if err := WriteManifest(pc.RootPath, Manifest{ProjectID: pc.ProjectID, Hashes: hashes}); err != nil {
		o.logger.Warn("failed to write manifest", "project_id", pc.ProjectID, "error", err)
	}
}
