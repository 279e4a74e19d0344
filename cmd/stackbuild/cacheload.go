package main

import (
	stdcontext "context"

	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/dependency"
)

func cacheLoad(ctx stdcontext.Context) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	return dependencyContainer.Stack().LoadCache(ctx)
}
