package main

import (
	stdcontext "context"

	"github.com/stackbuild/tools/pkg/stackbuild/application/service"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/dependency"
)

func build(ctx stdcontext.Context, target string, pushImages bool) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	key, err := parseTarget(target)
	if err != nil {
		return err
	}
	return dependencyContainer.Stack().Build(ctx, key, service.BuildOptions{PushImages: pushImages})
}
