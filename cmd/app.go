package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/DALE-GH/location-tracker/internal/components"
	"github.com/DALE-GH/location-tracker/internal/config"
)

func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		components.SetupLogger("local").Error("load config failed", "err", err)
		return err
	}
	logger := components.SetupLogger(cfg.LogEnv)

	comps, err := components.InitComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("could not init components", "err", err)
		return err
	}
	defer comps.ShutdownAll()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer logger.Info("http server stopped")
		return comps.HttpServer.Run(gctx)
	})

	if comps.WebhookSender != nil {
		g.Go(func() error {
			comps.WebhookSender.Run(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "err", err)
		return err
	}

	logger.Info("gracefully shut down")
	return nil
}
