package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

func platformsManifest() model.PlatformsManifest {
	return model.PlatformsManifest{
		Default: "debian",
		Platforms: []model.PlatformSpec{
			{Name: "debian", Dockerfile: "Dockerfile.debian"},
			{Name: "alpine", Dockerfile: "Dockerfile.alpine"},
		},
	}
}

func TestExpand_OneVariantPerPlatform(t *testing.T) {
	variants, err := Expand(model.VersionSpec{Name: "v1"}, platformsManifest())
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, "debian", variants[0].Platform)
	assert.True(t, variants[0].Default)
	assert.Equal(t, "alpine", variants[1].Platform)
	assert.False(t, variants[1].Default)
}

func TestExpand_DefaultPlatformGetsBareTags(t *testing.T) {
	variants, err := Expand(model.VersionSpec{Name: "v1", Latest: true, Tags: []string{"stable"}}, platformsManifest())
	require.NoError(t, err)

	byPlatform := make(map[model.PlatformID]Variant)
	for _, variant := range variants {
		byPlatform[variant.Platform] = variant
	}
	assert.ElementsMatch(t,
		[]string{"v1-debian", "v1", "stable-debian", "stable", "latest-debian", "latest"},
		byPlatform["debian"].Tags)
	assert.ElementsMatch(t,
		[]string{"v1-alpine", "stable-alpine", "latest-alpine"},
		byPlatform["alpine"].Tags)
}

func TestExpand_PlatformDockerfileAndScopedOverrides(t *testing.T) {
	spec := model.VersionSpec{
		Name: "v1",
		Overrides: model.Overrides{
			Sources: map[string]model.Source{"app": {URL: "U", Ref: "R"}},
			Platforms: map[model.PlatformID]model.Overrides{
				"alpine": {Sources: map[string]model.Source{"app": {Ref: "R-alpine"}}},
			},
		},
	}
	variants, err := Expand(spec, platformsManifest())
	require.NoError(t, err)

	byPlatform := make(map[model.PlatformID]Variant)
	for _, variant := range variants {
		byPlatform[variant.Platform] = variant
	}
	require.NotNil(t, byPlatform["debian"].Overrides.Dockerfile)
	assert.Equal(t, "Dockerfile.debian", *byPlatform["debian"].Overrides.Dockerfile)
	assert.Equal(t, model.Source{URL: "U", Ref: "R"}, byPlatform["debian"].Overrides.Sources["app"])
	assert.Equal(t, model.Source{URL: "U", Ref: "R-alpine"}, byPlatform["alpine"].Overrides.Sources["app"])
	assert.Nil(t, byPlatform["alpine"].Overrides.Platforms)
}

func TestExpand_ManifestDefaultsReachEveryVariant(t *testing.T) {
	manifest := platformsManifest()
	manifest.Defaults = model.Overrides{
		ExternalImages: map[string]model.ExternalImage{
			"golang": {Name: "golang", Tag: "1.21", BuildArg: "GOLANG_IMAGE"},
		},
		Dependencies: map[string]model.Dependency{
			"base": {Version: "v1", BuildArg: "BASE_IMAGE"},
		},
	}

	variants, err := Expand(model.VersionSpec{Name: "v1"}, manifest)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	for _, variant := range variants {
		assert.Contains(t, variant.Overrides.ExternalImages, "golang")
		assert.Equal(t, "v1", variant.Overrides.Dependencies["base"].Version)
	}
}

func TestExpand_PlatformSpecWinsOverManifestDefaults(t *testing.T) {
	manifest := platformsManifest()
	manifest.Defaults = model.Overrides{
		ExternalImages: map[string]model.ExternalImage{
			"golang": {Name: "golang", Tag: "1.21", BuildArg: "GOLANG_IMAGE"},
		},
	}
	manifest.Platforms[1].ExternalImages = map[string]model.ExternalImage{
		"golang": {Tag: "1.21-alpine"},
	}

	variants, err := Expand(model.VersionSpec{Name: "v1"}, manifest)
	require.NoError(t, err)

	byPlatform := make(map[model.PlatformID]Variant)
	for _, variant := range variants {
		byPlatform[variant.Platform] = variant
	}
	assert.Equal(t, "1.21", byPlatform["debian"].Overrides.ExternalImages["golang"].Tag)
	alpine := byPlatform["alpine"].Overrides.ExternalImages["golang"]
	assert.Equal(t, "1.21-alpine", alpine.Tag)
	// Unset fields of the platform spec's entry inherit.
	assert.Equal(t, "golang", alpine.Name)
	assert.Equal(t, "GOLANG_IMAGE", alpine.BuildArg)
}

func TestExpand_DuplicatePlatformComposite(t *testing.T) {
	manifest := model.PlatformsManifest{
		Default: "debian",
		Platforms: []model.PlatformSpec{
			{Name: "debian", Dockerfile: "Dockerfile.debian"},
			{Name: "debian", Dockerfile: "Dockerfile.other"},
		},
	}
	_, err := Expand(model.VersionSpec{Name: "v1"}, manifest)
	require.Error(t, err)
	var collision *model.CollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "platform composite", collision.Kind)
}

func TestTags_Platformless(t *testing.T) {
	tags := Tags(model.VersionSpec{Name: "v2", Latest: true, Tags: []string{"lts"}})
	assert.Equal(t, []string{"v2", "lts", "latest"}, tags)
}

func TestValidateTagSets_ReportsEveryCollision(t *testing.T) {
	manifest := platformsManifest()
	v1, err := Expand(model.VersionSpec{Name: "v1", Tags: []string{"stable"}}, manifest)
	require.NoError(t, err)
	v2, err := Expand(model.VersionSpec{Name: "v2", Tags: []string{"stable", "v1"}}, manifest)
	require.NoError(t, err)

	err = ValidateTagSets("api", append(v1, v2...))
	require.Error(t, err)
	// Both the shared "stable" tag and v2's "v1" alias collide, on
	// every platform, and every instance names both versions.
	assert.Contains(t, err.Error(), "stable")
	assert.Contains(t, err.Error(), "v1-alpine")
	assert.Contains(t, err.Error(), "v1, v2")
}

func TestValidateTagSets_DisjointSetsPass(t *testing.T) {
	manifest := platformsManifest()
	v1, err := Expand(model.VersionSpec{Name: "v1"}, manifest)
	require.NoError(t, err)
	v2, err := Expand(model.VersionSpec{Name: "v2", Latest: true}, manifest)
	require.NoError(t, err)

	assert.NoError(t, ValidateTagSets("api", append(v1, v2...)))
}
