package main

import (
	stdcontext "context"
	"errors"

	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/dependency"
)

func cacheMerge(ctx stdcontext.Context, shardDirs []string) error {
	if len(shardDirs) == 0 {
		return errors.New("shard directories not provided")
	}
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	return dependencyContainer.Stack().MergeShards(ctx, shardDirs)
}
