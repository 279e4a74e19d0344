package expand

import (
	"errors"
	"sort"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
	"github.com/stackbuild/tools/pkg/stackbuild/application/override"
)

// Variant is one (version, platform) expansion of a version spec,
// carrying the fully merged overrides for that platform and the final
// tag set.
type Variant struct {
	Version   model.Version
	Platform  model.PlatformID
	Default   bool
	Overrides model.Overrides
	Tags      []string
}

// Expand produces one variant per declared platform. The overrides of
// a variant compose, innermost last: the version-level fragment, the
// platform manifest's defaults, the platform spec itself, then the
// version's platform-scoped fragment.
func Expand(spec model.VersionSpec, platforms model.PlatformsManifest) ([]Variant, error) {
	seen := make(map[model.PlatformID][]model.Version)
	variants := make([]Variant, 0, len(platforms.Platforms))
	for _, platformSpec := range platforms.Platforms {
		seen[platformSpec.Name] = append(seen[platformSpec.Name], spec.Name)
		fragment := override.Merge(platforms.Defaults, fromPlatformSpec(platformSpec))
		merged := override.Merge(spec.Overrides, fragment)
		merged = override.Merge(merged, spec.Overrides.Platforms[platformSpec.Name])
		merged.Platforms = nil
		isDefault := platformSpec.Name == platforms.Default
		variants = append(variants, Variant{
			Version:   spec.Name,
			Platform:  platformSpec.Name,
			Default:   isDefault,
			Overrides: merged,
			Tags:      platformTags(spec, platformSpec.Name, isDefault),
		})
	}
	var collisions []error
	for _, name := range sortedPlatformNames(seen) {
		if len(seen[name]) > 1 {
			collisions = append(collisions, &model.CollisionError{
				Kind:     "platform composite",
				Value:    name,
				Versions: seen[name],
			})
		}
	}
	if len(collisions) > 0 {
		return nil, errors.Join(collisions...)
	}
	return variants, nil
}

// Tags derives the tag set of a platformless service version.
func Tags(spec model.VersionSpec) []string {
	tags := []string{spec.Name}
	tags = append(tags, spec.Tags...)
	if spec.Latest {
		tags = append(tags, "latest")
	}
	return tags
}

// platformTags suffixes every tag with the platform name. Only the
// default platform additionally keeps the bare forms.
func platformTags(spec model.VersionSpec, platform model.PlatformID, isDefault bool) []string {
	var tags []string
	for _, tag := range Tags(spec) {
		tags = append(tags, tag+"-"+platform)
		if isDefault {
			tags = append(tags, tag)
		}
	}
	return tags
}

// ValidateTagSets checks that no two versions produce the same final
// tag on the same platform. Every collision is reported, not just the
// first.
func ValidateTagSets(service model.ServiceID, variants []Variant) error {
	type slot struct {
		platform model.PlatformID
		tag      string
	}
	owners := make(map[slot][]model.Version)
	for _, variant := range variants {
		for _, tag := range variant.Tags {
			key := slot{platform: variant.Platform, tag: tag}
			owners[key] = append(owners[key], variant.Version)
		}
	}
	slots := make([]slot, 0, len(owners))
	for key := range owners {
		slots = append(slots, key)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].platform != slots[j].platform {
			return slots[i].platform < slots[j].platform
		}
		return slots[i].tag < slots[j].tag
	})
	var collisions []error
	for _, key := range slots {
		versions := dedupeVersions(owners[key])
		if len(versions) > 1 {
			collisions = append(collisions, &model.CollisionError{
				Service:  service,
				Platform: key.platform,
				Kind:     "tag",
				Value:    key.tag,
				Versions: versions,
			})
		}
	}
	if len(collisions) > 0 {
		return errors.Join(collisions...)
	}
	return nil
}

func fromPlatformSpec(spec model.PlatformSpec) model.Overrides {
	fragment := model.Overrides{
		ExternalImages: spec.ExternalImages,
		Dependencies:   spec.Dependencies,
	}
	if spec.Dockerfile != "" {
		fragment.Dockerfile = &spec.Dockerfile
	}
	return fragment
}

func sortedPlatformNames(seen map[model.PlatformID][]model.Version) []model.PlatformID {
	names := make([]model.PlatformID, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func dedupeVersions(versions []model.Version) []model.Version {
	seen := make(map[model.Version]struct{}, len(versions))
	result := make([]model.Version, 0, len(versions))
	for _, version := range versions {
		if _, ok := seen[version]; ok {
			continue
		}
		seen[version] = struct{}{}
		result = append(result, version)
	}
	return result
}
