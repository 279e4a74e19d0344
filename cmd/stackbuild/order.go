package main

import (
	stdcontext "context"
	"fmt"

	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/dependency"
)

func printOrder(ctx stdcontext.Context, target string) error {
	dependencyContainer, err := dependency.ContainerFromContext(ctx)
	if err != nil {
		return err
	}
	key, err := parseTarget(target)
	if err != nil {
		return err
	}
	order, err := dependencyContainer.Stack().Order(ctx, key)
	if err != nil {
		return err
	}
	for _, node := range order {
		fmt.Println(node.String())
	}
	return nil
}
