package manifeststore

import (
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

const (
	serviceFileName   = "service.yaml"
	versionsFileName  = "versions.yaml"
	platformsFileName = "platforms.yaml"

	cacheSize = 128
)

// Loader reads manifest documents from <root>/<service>/ and caches
// parsed results. Pure I/O and structural validation, no merge logic.
type Loader struct {
	root string

	services  *lru.Cache[string, model.ServiceConfig]
	manifests *lru.Cache[string, model.Manifest]
	platforms *lru.Cache[string, platformsEntry]
}

type platformsEntry struct {
	manifest model.PlatformsManifest
	declared bool
}

func NewLoader(root string) (*Loader, error) {
	services, err := lru.New[string, model.ServiceConfig](cacheSize)
	if err != nil {
		return nil, err
	}
	manifests, err := lru.New[string, model.Manifest](cacheSize)
	if err != nil {
		return nil, err
	}
	platforms, err := lru.New[string, platformsEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Loader{
		root:      root,
		services:  services,
		manifests: manifests,
		platforms: platforms,
	}, nil
}

func (l *Loader) ServiceConfig(service model.ServiceID) (model.ServiceConfig, error) {
	if config, ok := l.services.Get(service); ok {
		return config, nil
	}
	path := filepath.Join(l.root, service, serviceFileName)
	body, err := os.ReadFile(path)
	if err != nil {
		return model.ServiceConfig{}, &model.ConfigurationError{
			Service: service,
			Reason:  "can not read " + path + ": " + err.Error(),
		}
	}
	var doc serviceDoc
	if err := yaml.UnmarshalStrict(body, &doc); err != nil {
		return model.ServiceConfig{}, &model.ConfigurationError{
			Service: service,
			Reason:  "malformed " + serviceFileName + ": " + err.Error(),
		}
	}
	config, err := mapServiceConfig(service, doc)
	if err != nil {
		return model.ServiceConfig{}, err
	}
	l.services.Add(service, config)
	return config, nil
}

func (l *Loader) VersionManifest(service model.ServiceID) (model.Manifest, error) {
	if manifest, ok := l.manifests.Get(service); ok {
		return manifest, nil
	}
	path := filepath.Join(l.root, service, versionsFileName)
	body, err := os.ReadFile(path)
	if err != nil {
		return model.Manifest{}, &model.ConfigurationError{
			Service: service,
			Reason:  "can not read " + path + ": " + err.Error(),
		}
	}
	var doc manifestDoc
	if err := yaml.UnmarshalStrict(body, &doc); err != nil {
		return model.Manifest{}, &model.ConfigurationError{
			Service: service,
			Reason:  "malformed " + versionsFileName + ": " + err.Error(),
		}
	}
	manifest, err := mapManifest(service, doc)
	if err != nil {
		return model.Manifest{}, err
	}
	l.manifests.Add(service, manifest)
	return manifest, nil
}

func (l *Loader) PlatformsManifest(service model.ServiceID) (model.PlatformsManifest, bool, error) {
	if entry, ok := l.platforms.Get(service); ok {
		return entry.manifest, entry.declared, nil
	}
	path := filepath.Join(l.root, service, platformsFileName)
	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		l.platforms.Add(service, platformsEntry{})
		return model.PlatformsManifest{}, false, nil
	}
	if err != nil {
		return model.PlatformsManifest{}, false, errors.Wrapf(err, "failed to read %v", path)
	}
	var doc platformsManifestDoc
	if err := yaml.UnmarshalStrict(body, &doc); err != nil {
		return model.PlatformsManifest{}, false, &model.ConfigurationError{
			Service: service,
			Reason:  "malformed " + platformsFileName + ": " + err.Error(),
		}
	}
	manifest, err := mapPlatformsManifest(service, doc)
	if err != nil {
		return model.PlatformsManifest{}, false, err
	}
	l.platforms.Add(service, platformsEntry{manifest: manifest, declared: true})
	return manifest, true, nil
}
