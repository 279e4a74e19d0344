package depcache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

type Mode string

const (
	// ModeOff disables hash-based skipping entirely.
	ModeOff Mode = "off"
	// ModeSoft skips fresh nodes and rebuilds on miss or stale. The CI
	// default.
	ModeSoft Mode = "soft"
	// ModeStrict fails closed on miss or stale, never rebuilding.
	ModeStrict Mode = "strict"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeOff, ModeSoft, ModeStrict:
		return Mode(value), nil
	default:
		return "", fmt.Errorf("unknown dep-cache mode %q", value)
	}
}

type Decision string

const (
	DecisionBuild Decision = "build"
	DecisionSkip  Decision = "skip"
)

// ImageStore is the slice of the build executor the cache needs:
// presence checks and tarball streaming.
type ImageStore interface {
	Exists(ctx context.Context, ref string) (bool, error)
	SaveTo(ctx context.Context, ref string, w io.Writer) error
	LoadFrom(ctx context.Context, r io.Reader) error
}

func NewManager(owner model.ServiceID, dir string, mode Mode, store ImageStore) *Manager {
	return &Manager{
		owner: owner,
		dir:   dir,
		mode:  mode,
		store: store,
		saved: make(map[string]struct{}),
	}
}

type Manager struct {
	owner model.ServiceID
	dir   string
	mode  Mode
	store ImageStore
	saved map[string]struct{}
}

func (m *Manager) ManifestPath() string {
	return filepath.Join(m.dir, ManifestFileName)
}

// HashRef is the ref under which a node's image is retrievable by
// definition hash, the comparison key for skip decisions.
func HashRef(service model.ServiceID, defHash string) string {
	return service + ":" + defHash
}

// Plan decides whether a node must be rebuilt. A node is fresh when
// the manifest maps it to an image whose refs include the current hash
// ref and the image is actually present in the store.
func (m *Manager) Plan(ctx context.Context, node model.NodeKey, defHash string, manifest Manifest) (Decision, error) {
	if m.mode == ModeOff {
		return DecisionBuild, nil
	}
	hashRef := HashRef(node.Service, defHash)
	stale := "no cached image for " + node.String()
	if imageID, ok := manifest.Nodes[node.String()]; ok {
		if containsRef(manifest.Images[imageID].Refs, hashRef) {
			present, err := m.store.Exists(ctx, hashRef)
			if err != nil {
				return "", err
			}
			if present {
				return DecisionSkip, nil
			}
			stale = "cached image " + imageID + " not present in store"
		} else {
			stale = "cached image " + imageID + " predates definition hash " + defHash
		}
	}
	if m.mode == ModeStrict {
		return "", &model.CacheError{Owner: m.owner, Reason: stale + " (strict mode)"}
	}
	return DecisionBuild, nil
}

// SaveImages writes each unique image's compressed tarball exactly
// once per run, guarded by an existence check, no matter how many
// nodes or refs point at it.
func (m *Manager) SaveImages(ctx context.Context, manifest Manifest) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create cache directory %v", m.dir)
	}
	for _, imageID := range manifest.ImageIDs() {
		if _, done := m.saved[imageID]; done {
			continue
		}
		path := TarballPath(m.dir, imageID)
		if _, err := os.Stat(path); err == nil {
			m.saved[imageID] = struct{}{}
			continue
		}
		if err := m.saveImage(ctx, imageID, path); err != nil {
			return err
		}
		m.saved[imageID] = struct{}{}
	}
	return nil
}

func (m *Manager) saveImage(ctx context.Context, imageID, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return &model.CacheError{Owner: m.owner, Path: path, Reason: "can not create tarball", Err: err}
	}
	compressor := gzip.NewWriter(file)
	if err := m.store.SaveTo(ctx, imageID, compressor); err != nil {
		compressor.Close()
		file.Close()
		os.Remove(path)
		return &model.CacheError{Owner: m.owner, Path: path, Reason: "failed to save image " + imageID, Err: err}
	}
	if err := compressor.Close(); err != nil {
		file.Close()
		os.Remove(path)
		return &model.CacheError{Owner: m.owner, Path: path, Reason: "failed to compress tarball", Err: err}
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return &model.CacheError{Owner: m.owner, Path: path, Reason: "failed to write tarball", Err: err}
	}
	return nil
}

// LoadFailure records one image that could not be restored. Load is
// partially tolerant: a missing tarball fails only that image.
type LoadFailure struct {
	ImageID string
	Err     error
}

// LoadImages restores every cached image into the store. Idempotent:
// images already present by ID are skipped.
func (m *Manager) LoadImages(ctx context.Context, manifest Manifest) ([]LoadFailure, error) {
	var failures []LoadFailure
	for _, imageID := range manifest.ImageIDs() {
		present, err := m.store.Exists(ctx, imageID)
		if err != nil {
			return nil, err
		}
		if present {
			continue
		}
		path := TarballPath(m.dir, imageID)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			failures = append(failures, LoadFailure{
				ImageID: imageID,
				Err:     &model.CacheError{Owner: m.owner, Path: path, Reason: "missing tarball for " + imageID},
			})
			continue
		}
		if err := m.loadImage(ctx, path); err != nil {
			failures = append(failures, LoadFailure{ImageID: imageID, Err: err})
		}
	}
	return failures, nil
}

func (m *Manager) loadImage(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return &model.CacheError{Owner: m.owner, Path: path, Reason: "unreadable tarball", Err: err}
	}
	defer file.Close()
	decompressor, err := gzip.NewReader(file)
	if err != nil {
		return &model.CacheError{Owner: m.owner, Path: path, Reason: "corrupt tarball", Err: err}
	}
	defer decompressor.Close()
	if err := m.store.LoadFrom(ctx, decompressor); err != nil {
		return &model.CacheError{Owner: m.owner, Path: path, Reason: "failed to load image", Err: err}
	}
	return nil
}

// TarballPath keys an image's artifact by its ID. Well-formed OCI
// digests drop the algorithm prefix, anything else is sanitized.
func TarballPath(dir, imageID string) string {
	name := imageID
	if parsed, err := digest.Parse(imageID); err == nil {
		name = parsed.Encoded()
	} else {
		name = strings.ReplaceAll(name, ":", "-")
		name = strings.ReplaceAll(name, "/", "-")
	}
	return filepath.Join(dir, name+".tar.gz")
}

func containsRef(refs []string, ref string) bool {
	for _, candidate := range refs {
		if candidate == ref {
			return true
		}
	}
	return false
}
