package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tss-calculator/go-lib/pkg/infrastructure/logger"

	"github.com/stackbuild/tools/pkg/stackbuild/application/depcache"
	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
	"github.com/stackbuild/tools/pkg/stackbuild/infrastructure/dependency"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	ctx = listenOSKillSignalsContext(ctx)
	mainLogger := logger.NewTextLogger()

	app := &cli.App{
		Name: "stackbuild",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "target",
				Usage:    "build target as service[:version[:platform]]",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "root",
				Value: ".",
			},
			&cli.StringFlag{
				Name: "registry",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Value: ".stackbuild/depcache",
			},
			&cli.StringFlag{
				Name:  "cache-mode",
				Value: string(depcache.ModeSoft),
			},
		},
		Before: func(c *cli.Context) error {
			target, err := parseTarget(c.String("target"))
			if err != nil {
				return err
			}
			cacheMode, err := depcache.ParseMode(c.String("cache-mode"))
			if err != nil {
				return err
			}
			container, err := dependency.NewDependencyContainer(mainLogger, dependency.Config{
				Root:      c.String("root"),
				Registry:  c.String("registry"),
				CacheDir:  c.String("cache-dir"),
				CacheMode: cacheMode,
				Owner:     target.Service,
			}, os.Getenv("SILENT") != "")
			if err != nil {
				return err
			}
			c.Context = dependency.ContainerToContext(c.Context, container)
			return nil
		},
		Commands: cli.Commands{
			&cli.Command{
				Name: "order",
				Action: func(c *cli.Context) error {
					return printOrder(c.Context, c.String("target"))
				},
			},
			&cli.Command{
				Name: "build",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name: "push-images",
					},
				},
				Action: func(c *cli.Context) error {
					return build(c.Context, c.String("target"), c.Bool("push-images"))
				},
			},
			&cli.Command{
				Name: "warm",
				Action: func(c *cli.Context) error {
					return warm(c.Context, c.String("target"))
				},
			},
			&cli.Command{
				Name: "cache-load",
				Action: func(c *cli.Context) error {
					return cacheLoad(c.Context)
				},
			},
			&cli.Command{
				Name: "cache-merge",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "shards",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					return cacheMerge(c.Context, c.StringSlice("shards"))
				},
			},
		},
	}
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		mainLogger.FatalError(err, "failed execute command "+strings.Join(os.Args, " "))
	}
}

func parseTarget(value string) (model.NodeKey, error) {
	if !strings.Contains(value, ":") {
		return model.NodeKey{Service: value}, nil
	}
	return model.ParseNodeKey(value)
}

func listenOSKillSignalsContext(ctx context.Context) context.Context {
	var cancelFunc context.CancelFunc
	ctx, cancelFunc = context.WithCancel(ctx)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-ch:
			cancelFunc()
		case <-ctx.Done():
			return
		}
	}()
	return ctx
}
