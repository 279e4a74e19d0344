package model

type VersionSpec struct {
	Name      Version
	Latest    bool
	Tags      []string
	Overrides Overrides
}

type Manifest struct {
	Default  Version
	Defaults Overrides
	Versions []VersionSpec
}

func (m Manifest) Version(name Version) (VersionSpec, bool) {
	for _, spec := range m.Versions {
		if spec.Name == name {
			return spec, true
		}
	}
	return VersionSpec{}, false
}

func (m Manifest) LatestVersion() (VersionSpec, bool) {
	for _, spec := range m.Versions {
		if spec.Latest {
			return spec, true
		}
	}
	return VersionSpec{}, false
}

// PlatformSpec never carries sources or tls, those belong to version
// manifests only.
type PlatformSpec struct {
	Name           PlatformID
	Dockerfile     string
	ExternalImages map[string]ExternalImage
	Dependencies   map[string]Dependency
}

type PlatformsManifest struct {
	Default   PlatformID
	Defaults  Overrides
	Platforms []PlatformSpec
}

func (m PlatformsManifest) Platform(name PlatformID) (PlatformSpec, bool) {
	for _, spec := range m.Platforms {
		if spec.Name == name {
			return spec, true
		}
	}
	return PlatformSpec{}, false
}

func (m PlatformsManifest) Names() []PlatformID {
	names := make([]PlatformID, 0, len(m.Platforms))
	for _, spec := range m.Platforms {
		names = append(names, spec.Name)
	}
	return names
}
