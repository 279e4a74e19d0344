package depcache

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

const SchemaVersion = 1

// ManifestFileName is the well-known manifest name inside a cache or
// shard directory.
const ManifestFileName = "depcache.json"

// Manifest is the persistent, content-addressed index of one owner
// service's image cache. Nodes map build targets to image IDs; images
// map each unique ID to every ref that produced it, so bit-identical
// builds share one stored artifact.
type Manifest struct {
	SchemaVersion int                   `json:"schema_version"`
	OwnerService  model.ServiceID       `json:"owner_service"`
	Nodes         map[string]string     `json:"nodes"`
	Images        map[string]ImageEntry `json:"images"`
}

type ImageEntry struct {
	Refs         []string        `json:"refs"`
	OwnerService model.ServiceID `json:"owner_service"`
}

func NewManifest(owner model.ServiceID) Manifest {
	return Manifest{
		SchemaVersion: SchemaVersion,
		OwnerService:  owner,
		Nodes:         make(map[string]string),
		Images:        make(map[string]ImageEntry),
	}
}

func LoadManifest(path string) (Manifest, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, &model.CacheError{Path: path, Reason: "unreadable manifest", Err: err}
	}
	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return Manifest{}, &model.CacheError{Path: path, Reason: "malformed manifest", Err: err}
	}
	if manifest.Nodes == nil {
		manifest.Nodes = make(map[string]string)
	}
	if manifest.Images == nil {
		manifest.Images = make(map[string]ImageEntry)
	}
	return manifest, nil
}

// LoadOrInit tolerates a manifest that does not exist yet.
func LoadOrInit(path string, owner model.ServiceID) (Manifest, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewManifest(owner), nil
	}
	return LoadManifest(path)
}

func (m Manifest) Save(path string) error {
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal dep-cache manifest")
	}
	return errors.Wrapf(os.WriteFile(path, body, 0o644), "failed to write %v", path)
}

// Record registers a built node and unions the refs of its image.
func (m Manifest) Record(node model.NodeKey, imageID string, refs []string) {
	m.Nodes[node.String()] = imageID
	entry := m.Images[imageID]
	if entry.OwnerService == "" {
		entry.OwnerService = m.OwnerService
	}
	entry.Refs = unionRefs(entry.Refs, refs)
	m.Images[imageID] = entry
}

// Merge unions another manifest into this one. Node conflicts keep the
// incoming image and are surfaced as notes; ref lists are deduplicated
// per image, so the result is independent of merge order.
func (m Manifest) Merge(other Manifest) []model.Note {
	var notes []model.Note
	for _, key := range sortedStringKeys(other.Nodes) {
		imageID := other.Nodes[key]
		if existing, ok := m.Nodes[key]; ok && existing != imageID {
			notes = append(notes, model.WarningNote(
				"node %v maps to both %v and %v, keeping %v", key, existing, imageID, imageID))
		}
		m.Nodes[key] = imageID
	}
	for _, imageID := range sortedStringKeys(other.Images) {
		incoming := other.Images[imageID]
		entry := m.Images[imageID]
		if entry.OwnerService == "" {
			entry.OwnerService = incoming.OwnerService
		}
		entry.Refs = unionRefs(entry.Refs, incoming.Refs)
		m.Images[imageID] = entry
	}
	return notes
}

// ImageIDs returns the sorted unique image IDs of the manifest.
func (m Manifest) ImageIDs() []string {
	return sortedStringKeys(m.Images)
}

func unionRefs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, ref := range existing {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		merged = append(merged, ref)
	}
	for _, ref := range incoming {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		merged = append(merged, ref)
	}
	sort.Strings(merged)
	return merged
}

func sortedStringKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
