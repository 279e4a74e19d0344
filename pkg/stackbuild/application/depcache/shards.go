package depcache

import (
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	tarfs "github.com/nlepage/go-tarfs"
	"github.com/opencontainers/go-digest"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

// Reconcile merges per-worker shard manifests into the owner manifest
// and relocates shard tarballs into the canonical cache path keyed by
// image ID. Runs after all workers have finished; the shard set is
// static. A shard tarball already present at the destination is
// deduplicated, a missing one is a note, not a failure.
func (m *Manager) Reconcile(shardDirs []string) (Manifest, []model.Note, error) {
	merged, err := LoadOrInit(m.ManifestPath(), m.owner)
	if err != nil {
		return Manifest{}, nil, err
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Manifest{}, nil, &model.CacheError{Owner: m.owner, Path: m.dir, Reason: "can not create cache directory", Err: err}
	}

	sorted := make([]string, len(shardDirs))
	copy(sorted, shardDirs)
	sort.Strings(sorted)

	var notes []model.Note
	for _, shardDir := range sorted {
		shard, err := LoadManifest(filepath.Join(shardDir, ManifestFileName))
		if err != nil {
			return Manifest{}, nil, err
		}
		notes = append(notes, merged.Merge(shard)...)
		relocated, err := m.relocateTarballs(shardDir, shard)
		if err != nil {
			return Manifest{}, nil, err
		}
		notes = append(notes, relocated...)
	}
	if err := merged.Save(m.ManifestPath()); err != nil {
		return Manifest{}, nil, err
	}
	return merged, notes, nil
}

func (m *Manager) relocateTarballs(shardDir string, shard Manifest) ([]model.Note, error) {
	var notes []model.Note
	for _, imageID := range shard.ImageIDs() {
		source := TarballPath(shardDir, imageID)
		destination := TarballPath(m.dir, imageID)
		if _, err := os.Stat(destination); err == nil {
			continue
		}
		if _, err := os.Stat(source); os.IsNotExist(err) {
			notes = append(notes, model.WarningNote(
				"shard %v has no tarball for %v", shardDir, imageID))
			continue
		}
		if err := verifyTarball(source, imageID); err != nil {
			return nil, err
		}
		if err := moveFile(source, destination); err != nil {
			return nil, &model.CacheError{Owner: m.owner, Path: source, Reason: "failed to relocate tarball", Err: err}
		}
	}
	return notes, nil
}

// imageTarManifest is the manifest.json entry of a docker-save
// tarball.
type imageTarManifest struct {
	Config string `json:"Config"`
}

// verifyTarball checks that the tarball actually contains the image it
// is filed under before it lands in the owner cache.
func verifyTarball(path, imageID string) error {
	parsed, err := digest.Parse(imageID)
	if err != nil {
		// Not an OCI digest, nothing to cross-check against.
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return &model.CacheError{Path: path, Reason: "unreadable tarball", Err: err}
	}
	defer file.Close()
	decompressor, err := gzip.NewReader(file)
	if err != nil {
		return &model.CacheError{Path: path, Reason: "corrupt tarball", Err: err}
	}
	defer decompressor.Close()
	tfs, err := tarfs.New(noSeek{decompressor})
	if err != nil {
		return &model.CacheError{Path: path, Reason: "corrupt tarball", Err: err}
	}
	body, err := fs.ReadFile(tfs, "manifest.json")
	if err != nil {
		return &model.CacheError{Path: path, Reason: "tarball has no manifest.json", Err: err}
	}
	var entries []imageTarManifest
	if err := json.Unmarshal(body, &entries); err != nil {
		return &model.CacheError{Path: path, Reason: "malformed tarball manifest", Err: err}
	}
	for _, entry := range entries {
		// Both layouts name the config blob by the image digest:
		// "<hex>.json" classically, "blobs/sha256/<hex>" in OCI form.
		if strings.Contains(entry.Config, parsed.Encoded()) {
			return nil
		}
	}
	return &model.CacheError{Path: path, Reason: "tarball does not contain image " + imageID}
}

// noSeek hides any incidental seeking ability so tarfs streams the
// archive sequentially.
type noSeek struct {
	io.Reader
}

func moveFile(source, destination string) error {
	if err := os.Rename(source, destination); err == nil {
		return nil
	}
	// Rename across filesystems fails, fall back to a copy.
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(destination)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(destination)
		return err
	}
	return os.Remove(source)
}
