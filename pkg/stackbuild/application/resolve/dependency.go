package resolve

import (
	"sort"
	"strings"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

// PlatformRegistry answers what platforms a dependency service itself
// declares. Injected so resolution never consults ambient state.
type PlatformRegistry interface {
	Platforms(service model.ServiceID) ([]model.PlatformID, error)
}

// Parent is the already-resolved context a dependency is declared in.
type Parent struct {
	Service  model.ServiceID
	Version  model.Version
	Platform model.PlatformID
}

func NewResolver(registry PlatformRegistry) *Resolver {
	return &Resolver{registry: registry}
}

type Resolver struct {
	registry PlatformRegistry
}

// Resolve determines the effective (version, platform) of one
// dependency declaration. The declaration's service field, when
// present, is authoritative; otherwise the lookup key names the
// service. Decision order:
//
//  1. an explicit version carrying a recognized platform suffix wins
//     outright, including over single_platform;
//  2. single_platform resolves to an empty platform even when the
//     dependency declares its own platforms;
//  3. a multi-platform parent passes its platform through, degrading
//     to an empty platform when the dependency is platformless;
//  4. a missing version inherits the parent's;
//  5. no version anywhere is a resolution failure.
func (r *Resolver) Resolve(key string, dependency model.Dependency, parent Parent) (model.NodeKey, []model.Note, error) {
	service := dependency.Service
	if service == "" {
		service = key
	}
	platforms, err := r.registry.Platforms(service)
	if err != nil {
		return model.NodeKey{}, nil, err
	}
	hasPlatforms := len(platforms) > 0

	var notes []model.Note
	version := dependency.Version
	if version == "" {
		if parent.Version == "" {
			return model.NodeKey{}, nil, &model.ResolutionError{
				Service:    parent.Service,
				Version:    parent.Version,
				Platform:   parent.Platform,
				Dependency: key,
				Missing:    "version",
				Reason:     "dependency must declare a version or have a versioned parent",
			}
		}
		version = parent.Version
	}

	if dependency.Version != "" {
		if trimmed, platform, ok := splitPlatformSuffix(dependency.Version, platforms); ok {
			if dependency.SinglePlatform != nil {
				notes = append(notes, model.WarningNote(
					"dependency %q of %v: version %q carries platform suffix %q, single_platform ignored",
					key, parent.Service, dependency.Version, platform))
			}
			return model.NodeKey{Service: service, Version: trimmed, Platform: platform}, notes, nil
		}
	}

	if dependency.IsSinglePlatform() {
		if hasPlatforms {
			notes = append(notes, model.WarningNote(
				"dependency %q of %v declares platforms but is pinned single_platform, resolving %q without platform",
				key, parent.Service, version))
		}
		return model.NodeKey{Service: service, Version: version}, notes, nil
	}

	if parent.Platform != "" {
		if !hasPlatforms {
			notes = append(notes, model.InfoNote(
				"dependency %q of %v has no platform manifest, version %q applies to all platforms",
				key, parent.Service, version))
			return model.NodeKey{Service: service, Version: version}, notes, nil
		}
		return model.NodeKey{Service: service, Version: version, Platform: parent.Platform}, notes, nil
	}

	return model.NodeKey{Service: service, Version: version}, notes, nil
}

// splitPlatformSuffix recognizes a "-<platform>" suffix against the
// dependency's own platform set, longest platform name first.
func splitPlatformSuffix(version model.Version, platforms []model.PlatformID) (model.Version, model.PlatformID, bool) {
	sorted := make([]model.PlatformID, len(platforms))
	copy(sorted, platforms)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, platform := range sorted {
		suffix := "-" + platform
		if strings.HasSuffix(version, suffix) && len(version) > len(suffix) {
			return strings.TrimSuffix(version, suffix), platform, true
		}
	}
	return "", "", false
}
