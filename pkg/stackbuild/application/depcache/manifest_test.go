package depcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

func TestManifest_SaveLoadRoundTrip(t *testing.T) {
	manifest := NewManifest("api")
	manifest.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:abc", []string{"api:v1", "api:latest"})

	path := filepath.Join(t.TempDir(), ManifestFileName)
	require.NoError(t, manifest.Save(path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, manifest, loaded)
	assert.Equal(t, SchemaVersion, loaded.SchemaVersion)
}

func TestLoadOrInit_MissingFileStartsFresh(t *testing.T) {
	manifest, err := LoadOrInit(filepath.Join(t.TempDir(), ManifestFileName), "api")
	require.NoError(t, err)
	assert.Equal(t, model.ServiceID("api"), manifest.OwnerService)
	assert.Empty(t, manifest.Nodes)
	assert.Empty(t, manifest.Images)
}

func TestLoadManifest_MalformedFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadManifest(path)
	require.Error(t, err)
	var cache *model.CacheError
	require.ErrorAs(t, err, &cache)
	assert.Equal(t, path, cache.Path)
}

func TestRecord_UnionsRefsOfSharedImage(t *testing.T) {
	manifest := NewManifest("api")
	manifest.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:abc", []string{"api:v1"})
	manifest.Record(model.NodeKey{Service: "api", Version: "v2"}, "sha256:abc", []string{"api:v2", "api:v1"})

	require.Len(t, manifest.Images, 1)
	assert.Equal(t, []string{"api:v1", "api:v2"}, manifest.Images["sha256:abc"].Refs)
	assert.Equal(t, model.ServiceID("api"), manifest.Images["sha256:abc"].OwnerService)
}

func TestMerge_RefUnionIndependentOfOrder(t *testing.T) {
	shard := func(ref string) Manifest {
		m := NewManifest("api")
		m.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:abc", []string{ref})
		return m
	}

	forward := NewManifest("api")
	forward.Merge(shard("api:r1"))
	forward.Merge(shard("api:r2"))

	backward := NewManifest("api")
	backward.Merge(shard("api:r2"))
	backward.Merge(shard("api:r1"))

	assert.Equal(t, []string{"api:r1", "api:r2"}, forward.Images["sha256:abc"].Refs)
	assert.Equal(t, forward, backward)
}

func TestMerge_NodeConflictKeepsIncomingWithWarning(t *testing.T) {
	target := NewManifest("api")
	target.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:old", []string{"api:v1"})

	incoming := NewManifest("api")
	incoming.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:new", []string{"api:v1"})

	notes := target.Merge(incoming)
	require.Len(t, notes, 1)
	assert.Equal(t, model.NoteWarning, notes[0].Level)
	assert.Equal(t, "sha256:new", target.Nodes["api:v1"])
}

func TestMerge_OwnerPreservedAcrossShards(t *testing.T) {
	incoming := NewManifest("worker")
	incoming.Record(model.NodeKey{Service: "worker", Version: "v1"}, "sha256:abc", []string{"worker:v1"})

	target := NewManifest("api")
	notes := target.Merge(incoming)
	assert.Empty(t, notes)
	assert.Equal(t, model.ServiceID("worker"), target.Images["sha256:abc"].OwnerService)
}
