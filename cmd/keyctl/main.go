package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/memorybank/keyctl/internal/cli"
	"github.com/memorybank/keyctl/pkg/config"
	"github.com/memorybank/keyctl/pkg/logger"
	"github.com/memorybank/keyctl/services/key"
)

func main() {
	exitCode := 0

	app := fx.New(
		fx.NopLogger,
		config.Module,
		logger.Module,
		key.Module,
		fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, svc *key.Service) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go func() {
						if err := cli.Run(context.Background(), svc, os.Args[1:], os.Stdout); err != nil {
							fmt.Fprintln(os.Stderr, "keyctl:", err)
							exitCode = 1
						}
						_ = shutdowner.Shutdown()
					}()
					return nil
				},
			})
		}),
	)

	app.Run()

	if err := app.Err(); err != nil {
		zap.L().Error("failed to start", zap.Error(err))
		exitCode = 1
	}
	os.Exit(exitCode)
}
