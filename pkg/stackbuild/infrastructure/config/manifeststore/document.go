package manifeststore

import (
	"errors"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

type sourceDoc struct {
	URL  string `json:"url,omitempty"`
	Ref  string `json:"ref,omitempty"`
	Path string `json:"path,omitempty"`
}

type externalImageDoc struct {
	Name     string `json:"name,omitempty"`
	Tag      string `json:"tag,omitempty"`
	BuildArg string `json:"build_arg,omitempty"`
}

type dependencyDoc struct {
	Service        string `json:"service,omitempty"`
	Version        string `json:"version,omitempty"`
	SinglePlatform *bool  `json:"single_platform,omitempty"`
	BuildArg       string `json:"build_arg,omitempty"`
}

type tlsDoc struct {
	Enabled  bool   `json:"enabled"`
	Mode     string `json:"mode,omitempty"`
	CertName string `json:"cert_name,omitempty"`
}

type overridesDoc struct {
	Context        *string                     `json:"context,omitempty"`
	Dockerfile     *string                     `json:"dockerfile,omitempty"`
	Sources        map[string]sourceDoc        `json:"sources,omitempty"`
	ExternalImages map[string]externalImageDoc `json:"external_images,omitempty"`
	Dependencies   map[string]dependencyDoc    `json:"dependencies,omitempty"`
	TLS            *tlsDoc                     `json:"tls,omitempty"`
	Platforms      map[string]overridesDoc     `json:"platforms,omitempty"`
}

type serviceDoc struct {
	Name           string                      `json:"name,omitempty"`
	Context        string                      `json:"context,omitempty"`
	Dockerfile     string                      `json:"dockerfile,omitempty"`
	Sources        map[string]sourceDoc        `json:"sources,omitempty"`
	ExternalImages map[string]externalImageDoc `json:"external_images,omitempty"`
	Dependencies   map[string]dependencyDoc    `json:"dependencies,omitempty"`
	TLS            *tlsDoc                     `json:"tls,omitempty"`
}

type versionSpecDoc struct {
	Name      string       `json:"name"`
	Latest    bool         `json:"latest,omitempty"`
	Tags      []string     `json:"tags,omitempty"`
	Overrides overridesDoc `json:"overrides,omitempty"`
}

type manifestDoc struct {
	Default  string           `json:"default"`
	Defaults overridesDoc     `json:"defaults,omitempty"`
	Versions []versionSpecDoc `json:"versions"`
}

// platformSpecDoc declares sources and tls only to reject them:
// those fields live in version manifests exclusively.
type platformSpecDoc struct {
	Name           string                      `json:"name"`
	Dockerfile     string                      `json:"dockerfile"`
	ExternalImages map[string]externalImageDoc `json:"external_images,omitempty"`
	Dependencies   map[string]dependencyDoc    `json:"dependencies,omitempty"`
	Sources        map[string]sourceDoc        `json:"sources,omitempty"`
	TLS            *tlsDoc                     `json:"tls,omitempty"`
}

type platformsManifestDoc struct {
	Default   string            `json:"default"`
	Defaults  overridesDoc      `json:"defaults,omitempty"`
	Platforms []platformSpecDoc `json:"platforms"`
}

func mapServiceConfig(service model.ServiceID, doc serviceDoc) (model.ServiceConfig, error) {
	name := doc.Name
	if name == "" {
		name = service
	}
	context := doc.Context
	if context == "" {
		context = "."
	}
	if doc.TLS != nil {
		if err := assertTLSMode(service, doc.TLS.Mode); err != nil {
			return model.ServiceConfig{}, err
		}
	}
	for key, source := range doc.Sources {
		if err := assertSource(service, key, source); err != nil {
			return model.ServiceConfig{}, err
		}
	}
	return model.ServiceConfig{
		Name:           name,
		Context:        context,
		Dockerfile:     doc.Dockerfile,
		Sources:        mapSources(doc.Sources),
		ExternalImages: mapExternalImages(doc.ExternalImages),
		Dependencies:   mapDependencies(doc.Dependencies),
		TLS:            mapTLS(doc.TLS),
	}, nil
}

func mapManifest(service model.ServiceID, doc manifestDoc) (model.Manifest, error) {
	if err := assertManifest(service, doc); err != nil {
		return model.Manifest{}, err
	}
	versions := make([]model.VersionSpec, 0, len(doc.Versions))
	for _, spec := range doc.Versions {
		versions = append(versions, model.VersionSpec{
			Name:      spec.Name,
			Latest:    spec.Latest,
			Tags:      spec.Tags,
			Overrides: mapOverrides(spec.Overrides),
		})
	}
	return model.Manifest{
		Default:  doc.Default,
		Defaults: mapOverrides(doc.Defaults),
		Versions: versions,
	}, nil
}

func mapPlatformsManifest(service model.ServiceID, doc platformsManifestDoc) (model.PlatformsManifest, error) {
	if err := assertPlatformsManifest(service, doc); err != nil {
		return model.PlatformsManifest{}, err
	}
	platforms := make([]model.PlatformSpec, 0, len(doc.Platforms))
	for _, spec := range doc.Platforms {
		platforms = append(platforms, model.PlatformSpec{
			Name:           spec.Name,
			Dockerfile:     spec.Dockerfile,
			ExternalImages: mapExternalImages(spec.ExternalImages),
			Dependencies:   mapDependencies(spec.Dependencies),
		})
	}
	return model.PlatformsManifest{
		Default:   doc.Default,
		Defaults:  mapOverrides(doc.Defaults),
		Platforms: platforms,
	}, nil
}

func mapOverrides(doc overridesDoc) model.Overrides {
	overrides := model.Overrides{
		Context:        doc.Context,
		Dockerfile:     doc.Dockerfile,
		Sources:        mapSources(doc.Sources),
		ExternalImages: mapExternalImages(doc.ExternalImages),
		Dependencies:   mapDependencies(doc.Dependencies),
		TLS:            mapTLS(doc.TLS),
	}
	if len(doc.Platforms) > 0 {
		overrides.Platforms = make(map[model.PlatformID]model.Overrides, len(doc.Platforms))
		for name, fragment := range doc.Platforms {
			overrides.Platforms[name] = mapOverrides(fragment)
		}
	}
	return overrides
}

func mapSources(docs map[string]sourceDoc) map[string]model.Source {
	if docs == nil {
		return nil
	}
	sources := make(map[string]model.Source, len(docs))
	for key, doc := range docs {
		sources[key] = model.Source{URL: doc.URL, Ref: doc.Ref, Path: doc.Path}
	}
	return sources
}

func mapExternalImages(docs map[string]externalImageDoc) map[string]model.ExternalImage {
	if docs == nil {
		return nil
	}
	images := make(map[string]model.ExternalImage, len(docs))
	for key, doc := range docs {
		images[key] = model.ExternalImage{Name: doc.Name, Tag: doc.Tag, BuildArg: doc.BuildArg}
	}
	return images
}

func mapDependencies(docs map[string]dependencyDoc) map[string]model.Dependency {
	if docs == nil {
		return nil
	}
	dependencies := make(map[string]model.Dependency, len(docs))
	for key, doc := range docs {
		dependencies[key] = model.Dependency{
			Service:        doc.Service,
			Version:        doc.Version,
			SinglePlatform: doc.SinglePlatform,
			BuildArg:       doc.BuildArg,
		}
	}
	return dependencies
}

func mapTLS(doc *tlsDoc) *model.TLSConfig {
	if doc == nil {
		return nil
	}
	return &model.TLSConfig{
		Enabled:  doc.Enabled,
		Mode:     doc.Mode,
		CertName: doc.CertName,
	}
}

func assertManifest(service model.ServiceID, doc manifestDoc) error {
	if doc.Default == "" {
		return &model.ConfigurationError{
			Service: service,
			Field:   "default",
			Reason:  "version manifest must declare a default version",
		}
	}
	var collisions []error
	seen := make(map[string][]model.Version)
	latest := make([]model.Version, 0, 1)
	defaultDeclared := false
	for _, spec := range doc.Versions {
		if spec.Name == "" {
			return &model.ConfigurationError{
				Service: service,
				Field:   "versions.name",
				Reason:  "version name can not be empty",
			}
		}
		seen[spec.Name] = append(seen[spec.Name], spec.Name)
		if spec.Name == doc.Default {
			defaultDeclared = true
		}
		if spec.Latest {
			latest = append(latest, spec.Name)
		}
	}
	for name, owners := range seen {
		if len(owners) > 1 {
			collisions = append(collisions, &model.CollisionError{
				Service:  service,
				Kind:     "version name",
				Value:    name,
				Versions: owners,
			})
		}
	}
	if len(collisions) > 0 {
		return errors.Join(collisions...)
	}
	if !defaultDeclared {
		return &model.ConfigurationError{
			Service: service,
			Version: doc.Default,
			Field:   "default",
			Reason:  "default version not declared in manifest",
		}
	}
	if len(latest) > 1 {
		return &model.CollisionError{
			Service:  service,
			Kind:     "latest flag",
			Value:    "latest",
			Versions: latest,
		}
	}
	return nil
}

func assertPlatformsManifest(service model.ServiceID, doc platformsManifestDoc) error {
	if doc.Default == "" {
		return &model.ConfigurationError{
			Service: service,
			Field:   "default",
			Reason:  "platform manifest must declare a default platform",
		}
	}
	if err := assertPlatformFragment(service, "defaults", doc.Defaults); err != nil {
		return err
	}
	defaultDeclared := false
	seen := make(map[string]struct{})
	for _, spec := range doc.Platforms {
		if spec.Name == "" {
			return &model.ConfigurationError{
				Service: service,
				Field:   "platforms.name",
				Reason:  "platform name can not be empty",
			}
		}
		if len(spec.Sources) > 0 || spec.TLS != nil {
			return &model.ConfigurationError{
				Service:  service,
				Platform: spec.Name,
				Field:    "platforms",
				Reason:   "sources and tls are forbidden in platform manifests",
			}
		}
		if spec.Dockerfile == "" {
			return &model.ConfigurationError{
				Service:  service,
				Platform: spec.Name,
				Field:    "dockerfile",
				Reason:   "platform must declare a dockerfile",
			}
		}
		if _, duplicate := seen[spec.Name]; duplicate {
			return &model.CollisionError{
				Service: service,
				Kind:    "platform name",
				Value:   spec.Name,
			}
		}
		seen[spec.Name] = struct{}{}
		if spec.Name == doc.Default {
			defaultDeclared = true
		}
	}
	if !defaultDeclared {
		return &model.ConfigurationError{
			Service:  service,
			Platform: doc.Default,
			Field:    "default",
			Reason:   "default platform not declared in manifest",
		}
	}
	return nil
}

// assertPlatformFragment rejects sources and tls anywhere inside a
// platform manifest's defaults, nested platform fragments included.
func assertPlatformFragment(service model.ServiceID, field string, doc overridesDoc) error {
	if len(doc.Sources) > 0 || doc.TLS != nil {
		return &model.ConfigurationError{
			Service: service,
			Field:   field,
			Reason:  "sources and tls are forbidden in platform manifests",
		}
	}
	for name, fragment := range doc.Platforms {
		if err := assertPlatformFragment(service, field+".platforms."+name, fragment); err != nil {
			return err
		}
	}
	return nil
}

func assertSource(service model.ServiceID, key string, doc sourceDoc) error {
	if doc.Path != "" && (doc.URL != "" || doc.Ref != "") {
		return &model.ConfigurationError{
			Service: service,
			Field:   "sources." + key,
			Reason:  "source is either a git source or a path source, not both",
		}
	}
	if doc.Path == "" && doc.URL == "" && doc.Ref == "" {
		return &model.ConfigurationError{
			Service: service,
			Field:   "sources." + key,
			Reason:  "source must declare url/ref or path",
		}
	}
	return nil
}

func assertTLSMode(service model.ServiceID, mode string) error {
	switch mode {
	case model.TLSModeCAOnly, model.TLSModeCAAndCert, model.TLSModeCertOnly:
		return nil
	default:
		return &model.ConfigurationError{
			Service: service,
			Field:   "tls.mode",
			Reason:  "mode must be one of ca-only, ca-and-cert, cert-only",
		}
	}
}
