package main

import (
	stdcontext "context"

	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/dependency"
)

func warm(ctx stdcontext.Context, target string) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	key, err := parseTarget(target)
	if err != nil {
		return err
	}
	return dependencyContainer.Stack().Warm(ctx, key)
}
