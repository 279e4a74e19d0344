package override

import (
	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

// Merge deep-merges defaults into an overriding fragment and returns
// the composed fragment. Every field merges recursively except
// sources, which follow a type-aware replacement policy:
//
//   - an override that fully specifies a git source, or is a path
//     source, replaces the default entry wholesale;
//   - a partial git fragment over a git default merges field by field;
//   - switching type (path to git or git to path) always replaces
//     wholesale, so no field of the replaced type leaks through;
//   - a key absent from the override is inherited verbatim.
func Merge(defaults, overrides model.Overrides) model.Overrides {
	return model.Overrides{
		Context:        mergeString(defaults.Context, overrides.Context),
		Dockerfile:     mergeString(defaults.Dockerfile, overrides.Dockerfile),
		Sources:        mergeSources(defaults.Sources, overrides.Sources),
		ExternalImages: mergeExternalImages(defaults.ExternalImages, overrides.ExternalImages),
		Dependencies:   mergeDependencies(defaults.Dependencies, overrides.Dependencies),
		TLS:            mergeTLS(defaults.TLS, overrides.TLS),
		Platforms:      mergePlatforms(defaults.Platforms, overrides.Platforms),
	}
}

// Apply composes the final configuration of one node from its base
// document and an already-merged overrides fragment. The base acts as
// the outermost layer of defaults, under the same merge policy.
func Apply(base model.ServiceConfig, overrides model.Overrides) model.MergedConfig {
	fragment := model.Overrides{
		Sources:        base.Sources,
		ExternalImages: base.ExternalImages,
		Dependencies:   base.Dependencies,
		TLS:            base.TLS,
	}
	if base.Context != "" {
		fragment.Context = &base.Context
	}
	if base.Dockerfile != "" {
		fragment.Dockerfile = &base.Dockerfile
	}
	merged := Merge(fragment, overrides)
	return model.MergedConfig{
		Name:           base.Name,
		Context:        stringValue(merged.Context),
		Dockerfile:     stringValue(merged.Dockerfile),
		Sources:        merged.Sources,
		ExternalImages: merged.ExternalImages,
		Dependencies:   merged.Dependencies,
		TLS:            merged.TLS,
	}
}

func mergeString(defaultValue, overrideValue *string) *string {
	if overrideValue != nil {
		value := *overrideValue
		return &value
	}
	if defaultValue != nil {
		value := *defaultValue
		return &value
	}
	return nil
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func mergeSources(defaults, overrides map[string]model.Source) map[string]model.Source {
	if defaults == nil && overrides == nil {
		return nil
	}
	merged := make(map[string]model.Source, len(defaults)+len(overrides))
	for key, source := range defaults {
		merged[key] = source
	}
	for key, source := range overrides {
		base, exists := merged[key]
		if !exists {
			merged[key] = source
			continue
		}
		merged[key] = mergeSource(base, source)
	}
	return merged
}

func mergeSource(base, override model.Source) model.Source {
	if override.IsPath() || override.CompleteGit() {
		return override
	}
	if !override.IsGit() {
		return base
	}
	if base.IsPath() {
		// Type switch, partial or not the override stands alone.
		return override
	}
	merged := base
	if override.URL != "" {
		merged.URL = override.URL
	}
	if override.Ref != "" {
		merged.Ref = override.Ref
	}
	return merged
}

func mergeExternalImages(defaults, overrides map[string]model.ExternalImage) map[string]model.ExternalImage {
	if defaults == nil && overrides == nil {
		return nil
	}
	merged := make(map[string]model.ExternalImage, len(defaults)+len(overrides))
	for key, image := range defaults {
		merged[key] = image
	}
	for key, image := range overrides {
		base, exists := merged[key]
		if !exists {
			merged[key] = image
			continue
		}
		if image.Name != "" {
			base.Name = image.Name
		}
		if image.Tag != "" {
			base.Tag = image.Tag
		}
		if image.BuildArg != "" {
			base.BuildArg = image.BuildArg
		}
		merged[key] = base
	}
	return merged
}

func mergeDependencies(defaults, overrides map[string]model.Dependency) map[string]model.Dependency {
	if defaults == nil && overrides == nil {
		return nil
	}
	merged := make(map[string]model.Dependency, len(defaults)+len(overrides))
	for key, dependency := range defaults {
		merged[key] = dependency
	}
	for key, dependency := range overrides {
		base, exists := merged[key]
		if !exists {
			merged[key] = dependency
			continue
		}
		if dependency.Service != "" {
			base.Service = dependency.Service
		}
		if dependency.Version != "" {
			base.Version = dependency.Version
		}
		if dependency.SinglePlatform != nil {
			value := *dependency.SinglePlatform
			base.SinglePlatform = &value
		}
		if dependency.BuildArg != "" {
			base.BuildArg = dependency.BuildArg
		}
		merged[key] = base
	}
	return merged
}

// mergeTLS replaces wholesale: enabled is a bare bool, so a field-wise
// merge could not distinguish "disable" from "unset".
func mergeTLS(defaultValue, overrideValue *model.TLSConfig) *model.TLSConfig {
	source := defaultValue
	if overrideValue != nil {
		source = overrideValue
	}
	if source == nil {
		return nil
	}
	value := *source
	return &value
}

func mergePlatforms(defaults, overrides map[model.PlatformID]model.Overrides) map[model.PlatformID]model.Overrides {
	if defaults == nil && overrides == nil {
		return nil
	}
	merged := make(map[model.PlatformID]model.Overrides, len(defaults)+len(overrides))
	for name, fragment := range defaults {
		merged[name] = fragment
	}
	for name, fragment := range overrides {
		base, exists := merged[name]
		if !exists {
			merged[name] = fragment
			continue
		}
		merged[name] = Merge(base, fragment)
	}
	return merged
}
