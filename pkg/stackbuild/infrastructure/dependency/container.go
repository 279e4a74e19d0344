package dependency

import (
	"context"
	"errors"

	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/stackbuild/tools/pkg/stackbuild/application/depcache"
	"github.com/stackbuild/tools/pkg/stackbuild/application/graph"
	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
	"github.com/stackbuild/tools/pkg/stackbuild/application/service"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/command"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/config/manifeststore"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/imagestore"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/prepull"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/sourceresolver"
)

var dependencyContainer = struct{}{}

type Config struct {
	Root      string
	Registry  string
	CacheDir  string
	CacheMode depcache.Mode
	Owner     model.ServiceID
}

type Container interface {
	Stack() service.Stack
	ManifestStore() graph.ManifestStore
}

func NewDependencyContainer(
	logger applogger.Logger,
	config Config,
	silentMode bool,
) (Container, error) {
	runner := command.NewCommandRunner(logger, silentMode)
	store, err := manifeststore.NewLoader(config.Root)
	if err != nil {
		return nil, err
	}
	docker := imagestore.NewDockerStore(runner)
	cache := depcache.NewManager(config.Owner, config.CacheDir, config.CacheMode, docker)
	stackService := service.NewStackService(
		config.Registry,
		logger,
		store,
		docker,
		sourceresolver.NewGitResolver(runner),
		prepull.NewPuller(docker),
		cache,
	)
	return &container{
		stack: stackService,
		store: store,
	}, nil
}

type container struct {
	stack service.Stack
	store graph.ManifestStore
}

func (c *container) Stack() service.Stack {
	return c.stack
}

func (c *container) ManifestStore() graph.ManifestStore {
	return c.store
}

func ContainerFromContext(ctx context.Context) (Container, error) {
	v := ctx.Value(dependencyContainer)
	if c, ok := v.(Container); ok {
		return c, nil
	}
	return nil, errors.New("dependency container not found")
}

func ContainerToContext(ctx context.Context, c Container) context.Context {
	return context.WithValue(ctx, dependencyContainer, c)
}
