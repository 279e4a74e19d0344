package depcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

type fakeImageStore struct {
	present map[string]string
	saves   map[string]int
	loads   int
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{
		present: make(map[string]string),
		saves:   make(map[string]int),
	}
}

func (s *fakeImageStore) Exists(_ context.Context, ref string) (bool, error) {
	_, ok := s.present[ref]
	return ok, nil
}

func (s *fakeImageStore) SaveTo(_ context.Context, ref string, w io.Writer) error {
	s.saves[ref]++
	_, err := w.Write([]byte(s.present[ref]))
	return err
}

func (s *fakeImageStore) LoadFrom(_ context.Context, r io.Reader) error {
	if _, err := io.ReadAll(r); err != nil {
		return err
	}
	s.loads++
	return nil
}

func freshManifest(node model.NodeKey, imageID string, refs []string) Manifest {
	manifest := NewManifest(node.Service)
	manifest.Record(node, imageID, refs)
	return manifest
}

func TestPlan_OffAlwaysBuilds(t *testing.T) {
	node := model.NodeKey{Service: "api", Version: "v1"}
	hashRef := HashRef("api", "deadbeef")
	store := newFakeImageStore()
	store.present[hashRef] = "image"
	manager := NewManager("api", t.TempDir(), ModeOff, store)

	decision, err := manager.Plan(context.Background(), node, "deadbeef",
		freshManifest(node, "sha256:abc", []string{hashRef}))
	require.NoError(t, err)
	assert.Equal(t, DecisionBuild, decision)
}

func TestPlan_SoftSkipsFreshNode(t *testing.T) {
	node := model.NodeKey{Service: "api", Version: "v1"}
	hashRef := HashRef("api", "deadbeef")
	store := newFakeImageStore()
	store.present[hashRef] = "image"
	manager := NewManager("api", t.TempDir(), ModeSoft, store)

	decision, err := manager.Plan(context.Background(), node, "deadbeef",
		freshManifest(node, "sha256:abc", []string{hashRef}))
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, decision)
}

func TestPlan_SoftRebuildsOnMissStaleOrAbsentImage(t *testing.T) {
	node := model.NodeKey{Service: "api", Version: "v1"}
	hashRef := HashRef("api", "deadbeef")

	cases := map[string]struct {
		manifest Manifest
		present  bool
	}{
		"node never built": {
			manifest: NewManifest("api"),
		},
		"hash ref predated": {
			manifest: freshManifest(node, "sha256:abc", []string{HashRef("api", "0ldhash0")}),
			present:  true,
		},
		"image gone from store": {
			manifest: freshManifest(node, "sha256:abc", []string{hashRef}),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := newFakeImageStore()
			if tc.present {
				store.present[hashRef] = "image"
			}
			manager := NewManager("api", t.TempDir(), ModeSoft, store)

			decision, err := manager.Plan(context.Background(), node, "deadbeef", tc.manifest)
			require.NoError(t, err)
			assert.Equal(t, DecisionBuild, decision)
		})
	}
}

func TestPlan_StrictSkipsFreshNode(t *testing.T) {
	node := model.NodeKey{Service: "api", Version: "v1"}
	hashRef := HashRef("api", "deadbeef")
	store := newFakeImageStore()
	store.present[hashRef] = "image"
	manager := NewManager("api", t.TempDir(), ModeStrict, store)

	decision, err := manager.Plan(context.Background(), node, "deadbeef",
		freshManifest(node, "sha256:abc", []string{hashRef}))
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, decision)
}

func TestPlan_StrictFailsClosedOnMissOrStale(t *testing.T) {
	node := model.NodeKey{Service: "api", Version: "v1"}
	hashRef := HashRef("api", "deadbeef")

	cases := map[string]struct {
		manifest Manifest
		present  bool
	}{
		"node never built": {
			manifest: NewManifest("api"),
		},
		"hash ref predated": {
			manifest: freshManifest(node, "sha256:abc", []string{HashRef("api", "0ldhash0")}),
			present:  true,
		},
		"image gone from store": {
			manifest: freshManifest(node, "sha256:abc", []string{hashRef}),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := newFakeImageStore()
			if tc.present {
				store.present[hashRef] = "image"
			}
			manager := NewManager("api", t.TempDir(), ModeStrict, store)

			_, err := manager.Plan(context.Background(), node, "deadbeef", tc.manifest)
			require.Error(t, err)
			var cache *model.CacheError
			require.ErrorAs(t, err, &cache)
			assert.Equal(t, model.ServiceID("api"), cache.Owner)
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, value := range []string{"off", "soft", "strict"} {
		mode, err := ParseMode(value)
		require.NoError(t, err)
		assert.Equal(t, Mode(value), mode)
	}
	_, err := ParseMode("aggressive")
	assert.Error(t, err)
}

func TestSaveImages_EachImageSavedOnce(t *testing.T) {
	manifest := NewManifest("api")
	manifest.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:abc", []string{"api:v1"})
	manifest.Record(model.NodeKey{Service: "api", Version: "v2"}, "sha256:abc", []string{"api:v2"})
	manifest.Record(model.NodeKey{Service: "web", Version: "v1"}, "sha256:def", []string{"web:v1"})

	store := newFakeImageStore()
	store.present["sha256:abc"] = "first image"
	store.present["sha256:def"] = "second image"
	dir := t.TempDir()
	manager := NewManager("api", dir, ModeSoft, store)

	require.NoError(t, manager.SaveImages(context.Background(), manifest))
	require.NoError(t, manager.SaveImages(context.Background(), manifest))

	assert.Equal(t, 1, store.saves["sha256:abc"])
	assert.Equal(t, 1, store.saves["sha256:def"])
	assert.FileExists(t, TarballPath(dir, "sha256:abc"))
	assert.FileExists(t, TarballPath(dir, "sha256:def"))
}

func TestSaveImages_ExistingTarballSkipped(t *testing.T) {
	manifest := NewManifest("api")
	manifest.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:abc", []string{"api:v1"})

	store := newFakeImageStore()
	store.present["sha256:abc"] = "image"
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(TarballPath(dir, "sha256:abc"), []byte("already here"), 0o644))

	manager := NewManager("api", dir, ModeSoft, store)
	require.NoError(t, manager.SaveImages(context.Background(), manifest))
	assert.Zero(t, store.saves["sha256:abc"])
}

func TestLoadImages_RestoresOnlyAbsentImages(t *testing.T) {
	manifest := NewManifest("api")
	manifest.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:abc", []string{"api:v1"})
	manifest.Record(model.NodeKey{Service: "web", Version: "v1"}, "sha256:def", []string{"web:v1"})

	store := newFakeImageStore()
	store.present["sha256:abc"] = "first image"
	store.present["sha256:def"] = "second image"
	dir := t.TempDir()
	manager := NewManager("api", dir, ModeSoft, store)
	require.NoError(t, manager.SaveImages(context.Background(), manifest))

	// One image disappears from the store, the other stays.
	delete(store.present, "sha256:abc")

	failures, err := manager.LoadImages(context.Background(), manifest)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, 1, store.loads)
}

func TestLoadImages_MissingTarballIsNonFatal(t *testing.T) {
	manifest := NewManifest("api")
	manifest.Record(model.NodeKey{Service: "api", Version: "v1"}, "sha256:abc", []string{"api:v1"})
	manifest.Record(model.NodeKey{Service: "web", Version: "v1"}, "sha256:def", []string{"web:v1"})

	store := newFakeImageStore()
	dir := t.TempDir()
	manager := NewManager("api", dir, ModeSoft, store)

	// Only one of the two tarballs exists on disk.
	store.present["sha256:def"] = "second image"
	require.NoError(t, manager.SaveImages(context.Background(), Manifest{
		OwnerService: "api",
		Nodes:        map[string]string{"web:v1": "sha256:def"},
		Images:       map[string]ImageEntry{"sha256:def": {Refs: []string{"web:v1"}}},
	}))
	delete(store.present, "sha256:def")

	failures, err := manager.LoadImages(context.Background(), manifest)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "sha256:abc", failures[0].ImageID)
	var cache *model.CacheError
	require.ErrorAs(t, failures[0].Err, &cache)
	assert.Equal(t, 1, store.loads)
}

func TestTarballPath(t *testing.T) {
	digestID := "sha256:6c3c624b58dbbcd3c0dd82b4c53f04194d1247c6eebdaab7c610cf7d66709b3b"
	assert.Equal(t,
		filepath.Join("cache", "6c3c624b58dbbcd3c0dd82b4c53f04194d1247c6eebdaab7c610cf7d66709b3b.tar.gz"),
		TarballPath("cache", digestID))
	assert.Equal(t,
		filepath.Join("cache", "registry.local-api-v1.tar.gz"),
		TarballPath("cache", "registry.local/api:v1"))
}
