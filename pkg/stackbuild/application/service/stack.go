package service

import (
	"context"
	"fmt"
	"time"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/stackbuild/tools/pkg/stackbuild/application/defhash"
	"github.com/stackbuild/tools/pkg/stackbuild/application/depcache"
	"github.com/stackbuild/tools/pkg/stackbuild/application/graph"
	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

// CacheBustArg is injected into every build so the executor treats a
// node as changed whenever its definition hash changes.
const CacheBustArg = "STACKBUILD_DEF_HASH"

// BuildRequest is what the external build executor needs for one node.
type BuildRequest struct {
	Node      model.NodeKey
	Config    model.MergedConfig
	BuildArgs map[string]string
}

// ImageExecutor is the build-executor collaborator: it can answer
// whether an image exists and build a node into an image ID.
type ImageExecutor interface {
	Exists(ctx context.Context, ref string) (bool, error)
	Build(ctx context.Context, request BuildRequest) (string, error)
	Tag(ctx context.Context, imageID, ref string) error
	Push(ctx context.Context, ref string) error
}

// SourceResolver resolves a git source declaration to a commit SHA.
// Path sources resolve to an empty SHA.
type SourceResolver interface {
	SHA(ctx context.Context, source model.Source) (string, error)
}

// Prepuller warms local image state before a build run. Internal
// warm-up is best-effort; external base-image pulls fail fast with
// every failure aggregated.
type Prepuller interface {
	WarmInternal(ctx context.Context, refs []string) []model.Note
	PullExternal(ctx context.Context, refs []string) error
}

type BuildOptions struct {
	PushImages bool
}

type Stack interface {
	Order(ctx context.Context, target model.NodeKey) ([]model.NodeKey, error)
	Build(ctx context.Context, target model.NodeKey, options BuildOptions) error
	Warm(ctx context.Context, target model.NodeKey) error
	MergeShards(ctx context.Context, shardDirs []string) error
	LoadCache(ctx context.Context) error
}

func NewStackService(
	registry string,
	logger applogger.Logger,
	store graph.ManifestStore,
	executor ImageExecutor,
	sources SourceResolver,
	prepuller Prepuller,
	cache *depcache.Manager,
) Stack {
	return &stack{
		registry:  registry,
		logger:    logger,
		builder:   graph.NewBuilder(store),
		executor:  executor,
		sources:   sources,
		prepuller: prepuller,
		cache:     cache,
	}
}

type stack struct {
	registry string

	logger    applogger.Logger
	builder   *graph.Builder
	executor  ImageExecutor
	sources   SourceResolver
	prepuller Prepuller
	cache     *depcache.Manager
}

func (s stack) Order(ctx context.Context, target model.NodeKey) ([]model.NodeKey, error) {
	result, err := s.builder.Build(target)
	if err != nil {
		return nil, err
	}
	s.logNotes(result.Notes)
	return graph.Sort(result.Graph)
}

func (s stack) Build(ctx context.Context, target model.NodeKey, options BuildOptions) error {
	result, err := s.builder.Build(target)
	if err != nil {
		return err
	}
	s.logNotes(result.Notes)
	order, err := graph.Sort(result.Graph)
	if err != nil {
		return err
	}
	if err := s.prepuller.PullExternal(ctx, externalRefs(result)); err != nil {
		return err
	}
	manifest, err := depcache.LoadOrInit(s.cache.ManifestPath(), target.Service)
	if err != nil {
		return err
	}
	s.logNotes(s.prepuller.WarmInternal(ctx, cachedRefs(manifest, order)))

	hashes := make(map[model.NodeKey]string, len(order))
	for _, node := range order {
		hash, err := s.hashNode(ctx, node, result, hashes)
		if err != nil {
			return err
		}
		hashes[node] = hash
		if err := s.buildNode(ctx, node, hashes, result, manifest, options); err != nil {
			return err
		}
	}
	if err := s.cache.SaveImages(ctx, manifest); err != nil {
		return err
	}
	return manifest.Save(s.cache.ManifestPath())
}

func (s stack) buildNode(
	ctx context.Context,
	node model.NodeKey,
	hashes map[model.NodeKey]string,
	result *graph.Result,
	manifest depcache.Manifest,
	options BuildOptions,
) error {
	hash := hashes[node]
	hashRef := depcache.HashRef(node.Service, hash)
	decision, err := s.cache.Plan(ctx, node, hash, manifest)
	if err != nil {
		return err
	}
	if decision == depcache.DecisionSkip {
		s.logger.Info(fmt.Sprintf("skip build of %v, image %v is up to date", node, hashRef))
		return nil
	}

	s.logger.Info(fmt.Sprintf("start build of %v...", node))
	start := time.Now()
	defer func() {
		s.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	}()

	config := result.Configs[node]
	imageID, err := s.executor.Build(ctx, BuildRequest{
		Node:      node,
		Config:    config,
		BuildArgs: s.buildArgs(node, hash, result, hashes),
	})
	if err != nil {
		return err
	}
	refs := []string{hashRef}
	for _, tag := range result.Tags[node] {
		refs = append(refs, s.taggedRef(node.Service, tag))
	}
	for _, ref := range refs {
		if err := s.executor.Tag(ctx, imageID, ref); err != nil {
			return err
		}
		if options.PushImages {
			if err := s.executor.Push(ctx, ref); err != nil {
				return err
			}
		}
	}
	manifest.Record(node, imageID, refs)
	return nil
}

func (s stack) hashNode(
	ctx context.Context,
	node model.NodeKey,
	result *graph.Result,
	hashes map[model.NodeKey]string,
) (string, error) {
	config := result.Configs[node]
	sourceSHAs := make(map[string]string, len(config.Sources))
	for key, source := range config.Sources {
		if !source.IsGit() {
			continue
		}
		sha, err := s.sources.SHA(ctx, source)
		if err != nil {
			return "", err
		}
		sourceSHAs[key] = sha
	}
	dependencyHashes := make(map[model.NodeKey]string)
	for _, dependency := range result.Graph.DependenciesOf(node) {
		dependencyHashes[dependency] = hashes[dependency]
	}
	return defhash.Hash(defhash.Input{
		Service:          node.Service,
		Version:          node.Version,
		Platform:         node.Platform,
		Config:           config,
		SourceSHAs:       sourceSHAs,
		DependencyHashes: dependencyHashes,
	}), nil
}

// buildArgs wires the cache-bust token, every external image and
// every dependency's hash ref into the executor's build arguments.
func (s stack) buildArgs(
	node model.NodeKey,
	hash string,
	result *graph.Result,
	hashes map[model.NodeKey]string,
) map[string]string {
	config := result.Configs[node]
	args := map[string]string{CacheBustArg: hash}
	for _, image := range config.ExternalImages {
		if image.BuildArg != "" {
			args[image.BuildArg] = image.Reference()
		}
	}
	for key, dependency := range config.Dependencies {
		if dependency.BuildArg == "" {
			continue
		}
		depKey, ok := result.Deps[node][key]
		if !ok {
			continue
		}
		args[dependency.BuildArg] = depcache.HashRef(depKey.Service, hashes[depKey])
	}
	return args
}

func (s stack) Warm(ctx context.Context, target model.NodeKey) error {
	result, err := s.builder.Build(target)
	if err != nil {
		return err
	}
	s.logNotes(result.Notes)
	order, err := graph.Sort(result.Graph)
	if err != nil {
		return err
	}
	if err := s.prepuller.PullExternal(ctx, externalRefs(result)); err != nil {
		return err
	}
	manifest, err := depcache.LoadOrInit(s.cache.ManifestPath(), target.Service)
	if err != nil {
		return err
	}
	s.logNotes(s.prepuller.WarmInternal(ctx, cachedRefs(manifest, order)))
	return nil
}

func (s stack) MergeShards(ctx context.Context, shardDirs []string) error {
	s.logger.Info(fmt.Sprintf("merge %d dep-cache shards...", len(shardDirs)))
	start := time.Now()
	defer func() {
		s.logger.Info(fmt.Sprintf("done in %v", time.Since(start).String()))
	}()
	_, notes, err := s.cache.Reconcile(shardDirs)
	if err != nil {
		return err
	}
	s.logNotes(notes)
	return nil
}

func (s stack) LoadCache(ctx context.Context) error {
	manifest, err := depcache.LoadOrInit(s.cache.ManifestPath(), "")
	if err != nil {
		return err
	}
	failures, err := s.cache.LoadImages(ctx, manifest)
	if err != nil {
		return err
	}
	for _, failure := range failures {
		s.logger.Error(failure.Err, fmt.Sprintf("failed to restore image %v", failure.ImageID))
	}
	return nil
}

func (s stack) taggedRef(service model.ServiceID, tag string) string {
	if s.registry == "" {
		return service + ":" + tag
	}
	return s.registry + "/" + service + ":" + tag
}

func (s stack) logNotes(notes []model.Note) {
	for _, note := range notes {
		s.logger.Info(fmt.Sprintf("%v: %v", note.Level, note.Message))
	}
}

func externalRefs(result *graph.Result) []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, node := range result.Graph.Nodes() {
		for _, image := range result.Configs[node].ExternalImages {
			ref := image.Reference()
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	return refs
}

func cachedRefs(manifest depcache.Manifest, order []model.NodeKey) []string {
	seen := make(map[string]struct{})
	var refs []string
	for _, node := range order {
		imageID, ok := manifest.Nodes[node.String()]
		if !ok {
			continue
		}
		for _, ref := range manifest.Images[imageID].Refs {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	return refs
}
