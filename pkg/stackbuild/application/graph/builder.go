package graph

import (
	"sort"

	"github.com/stackbuild/tools/pkg/stackbuild/application/expand"
	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
	"github.com/stackbuild/tools/pkg/stackbuild/application/override"
	"github.com/stackbuild/tools/pkg/stackbuild/application/resolve"
)

// ManifestStore gives the builder structural access to manifest
// documents. Implementations may cache; the builder never re-reads a
// node's configuration within one run regardless.
type ManifestStore interface {
	ServiceConfig(service model.ServiceID) (model.ServiceConfig, error)
	VersionManifest(service model.ServiceID) (model.Manifest, error)
	// PlatformsManifest reports false when the service declares no
	// platforms at all.
	PlatformsManifest(service model.ServiceID) (model.PlatformsManifest, bool, error)
}

// Result carries the dependency graph, the run-scoped configuration
// cache and the derived tag sets of every discovered node.
type Result struct {
	Graph   *model.Graph
	Configs map[model.NodeKey]model.MergedConfig
	Tags    map[model.NodeKey][]string
	// Deps maps each node's dependency lookup keys to the resolved
	// node keys, for build-arg wiring. Graph identity never uses the
	// lookup key.
	Deps  map[model.NodeKey]map[string]model.NodeKey
	Notes []model.Note
}

func NewBuilder(store ManifestStore) *Builder {
	return &Builder{store: store}
}

type Builder struct {
	store ManifestStore
}

// Build constructs the full dependency graph rooted at the requested
// target over an explicit worklist. Diamond dependencies converge to
// one node. Any failure aborts with no partial graph.
func (b *Builder) Build(root model.NodeKey) (*Result, error) {
	r := &run{
		store:     b.store,
		resolver:  resolve.NewResolver(storeRegistry{store: b.store}),
		graph:     model.NewGraph(),
		configs:   make(map[model.NodeKey]model.MergedConfig),
		tags:      make(map[model.NodeKey][]string),
		deps:      make(map[model.NodeKey]map[string]model.NodeKey),
		validated: make(map[model.ServiceID]struct{}),
	}
	root, err := r.normalize(root)
	if err != nil {
		return nil, err
	}
	r.graph.AddNode(root)
	worklist := []model.NodeKey{root}
	for len(worklist) > 0 {
		node := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		config, err := r.configFor(node)
		if err != nil {
			return nil, err
		}
		for _, key := range sortedKeys(config.Dependencies) {
			dependency := config.Dependencies[key]
			depKey, notes, err := r.resolver.Resolve(key, dependency, resolve.Parent{
				Service:  node.Service,
				Version:  node.Version,
				Platform: node.Platform,
			})
			if err != nil {
				return nil, err
			}
			r.notes = append(r.notes, notes...)
			if r.deps[node] == nil {
				r.deps[node] = make(map[string]model.NodeKey)
			}
			r.deps[node][key] = depKey
			if !r.graph.HasNode(depKey) {
				r.graph.AddNode(depKey)
				worklist = append(worklist, depKey)
			}
			if err := r.graph.AddEdge(node, depKey); err != nil {
				return nil, err
			}
		}
	}
	return &Result{Graph: r.graph, Configs: r.configs, Tags: r.tags, Deps: r.deps, Notes: r.notes}, nil
}

type run struct {
	store     ManifestStore
	resolver  *resolve.Resolver
	graph     *model.Graph
	configs   map[model.NodeKey]model.MergedConfig
	tags      map[model.NodeKey][]string
	deps      map[model.NodeKey]map[string]model.NodeKey
	notes     []model.Note
	validated map[model.ServiceID]struct{}
}

// normalize fills the requested target's empty version and platform
// from the manifest defaults. Dependency keys are never normalized,
// the resolver produces them fully determined.
func (r *run) normalize(root model.NodeKey) (model.NodeKey, error) {
	if root.Version == "" {
		manifest, err := r.store.VersionManifest(root.Service)
		if err != nil {
			return model.NodeKey{}, err
		}
		root.Version = manifest.Default
	}
	if root.Platform == "" {
		platforms, ok, err := r.store.PlatformsManifest(root.Service)
		if err != nil {
			return model.NodeKey{}, err
		}
		if ok {
			root.Platform = platforms.Default
		}
	}
	return root, nil
}

func (r *run) configFor(node model.NodeKey) (model.MergedConfig, error) {
	if config, ok := r.configs[node]; ok {
		return config, nil
	}
	base, err := r.store.ServiceConfig(node.Service)
	if err != nil {
		return model.MergedConfig{}, err
	}
	manifest, err := r.store.VersionManifest(node.Service)
	if err != nil {
		return model.MergedConfig{}, err
	}
	spec, ok := manifest.Version(node.Version)
	if !ok {
		return model.MergedConfig{}, &model.ConfigurationError{
			Service: node.Service,
			Version: node.Version,
			Reason:  "version not declared in manifest",
		}
	}
	platforms, hasPlatforms, err := r.store.PlatformsManifest(node.Service)
	if err != nil {
		return model.MergedConfig{}, err
	}
	if err := r.validateService(node.Service, manifest, platforms, hasPlatforms); err != nil {
		return model.MergedConfig{}, err
	}

	spec.Overrides = override.Merge(manifest.Defaults, spec.Overrides)

	var config model.MergedConfig
	if node.Platform == "" {
		fragment := spec.Overrides
		fragment.Platforms = nil
		config = override.Apply(base, fragment)
		r.tags[node] = expand.Tags(spec)
	} else {
		if !hasPlatforms {
			return model.MergedConfig{}, &model.ConfigurationError{
				Service:  node.Service,
				Version:  node.Version,
				Platform: node.Platform,
				Reason:   "service declares no platform manifest",
			}
		}
		variants, err := expand.Expand(spec, platforms)
		if err != nil {
			return model.MergedConfig{}, err
		}
		variant, ok := findVariant(variants, node.Platform)
		if !ok {
			return model.MergedConfig{}, &model.ConfigurationError{
				Service:  node.Service,
				Version:  node.Version,
				Platform: node.Platform,
				Field:    "platforms",
				Reason:   "platform not declared in platform manifest",
			}
		}
		config = override.Apply(base, variant.Overrides)
		r.tags[node] = variant.Tags
	}
	if config.Dockerfile == "" {
		return model.MergedConfig{}, &model.ConfigurationError{
			Service:  node.Service,
			Version:  node.Version,
			Platform: node.Platform,
			Field:    "dockerfile",
			Reason:   "no dockerfile after merge",
		}
	}
	r.configs[node] = config
	return config, nil
}

// validateService runs the post-expansion collision checks once per
// service per run: unique (version, platform) composites and disjoint
// per-platform tag sets across every version.
func (r *run) validateService(
	service model.ServiceID,
	manifest model.Manifest,
	platforms model.PlatformsManifest,
	hasPlatforms bool,
) error {
	if _, done := r.validated[service]; done {
		return nil
	}
	var variants []expand.Variant
	for _, spec := range manifest.Versions {
		spec.Overrides = override.Merge(manifest.Defaults, spec.Overrides)
		if !hasPlatforms {
			variants = append(variants, expand.Variant{
				Version: spec.Name,
				Tags:    expand.Tags(spec),
			})
			continue
		}
		expanded, err := expand.Expand(spec, platforms)
		if err != nil {
			return err
		}
		variants = append(variants, expanded...)
	}
	if err := expand.ValidateTagSets(service, variants); err != nil {
		return err
	}
	r.validated[service] = struct{}{}
	return nil
}

type storeRegistry struct {
	store ManifestStore
}

func (r storeRegistry) Platforms(service model.ServiceID) ([]model.PlatformID, error) {
	platforms, ok, err := r.store.PlatformsManifest(service)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return platforms.Names(), nil
}

func findVariant(variants []expand.Variant, platform model.PlatformID) (expand.Variant, bool) {
	for _, variant := range variants {
		if variant.Platform == platform {
			return variant, true
		}
	}
	return expand.Variant{}, false
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
