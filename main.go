// Command euclidbot runs the adaptive swap bot against the Euclid
// aggregator. It alternates between the two swap directions, tunes the
// swap amount from observed failures and optionally serves a status
// dashboard.
//
// Usage:
//
//	euclidbot --config config.yaml
//	euclidbot (runs the interactive setup wizard when no config exists)
//
// The wallet private key is taken from the EUCLIDBOT_PRIVATE_KEY
// environment variable.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/euclidbot/config"
	"github.com/vadiminshakov/euclidbot/dashboard"
	"github.com/vadiminshakov/euclidbot/internal/app"
	"github.com/vadiminshakov/euclidbot/internal/setup"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	bot, err := app.NewSwapBot(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create swap bot", zap.Error(err))
	}
	defer bot.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bot.Run(ctx)
	})

	if cfg.Dashboard.Enabled {
		server := dashboard.NewServer(cfg.Dashboard.ListenAddr, bot, bot)
		g.Go(func() error {
			if cfg.Dashboard.Domain != "" {
				return server.StartWithAutoTLS(ctx, []string{cfg.Dashboard.Domain}, "cert-cache")
			}
			return server.Start(ctx)
		})
		logger.Info("dashboard enabled",
			zap.String("addr", cfg.Dashboard.ListenAddr),
			zap.String("domain", cfg.Dashboard.Domain))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("swap bot stopped", zap.Error(err))
	}
	logger.Info("swap bot stopped")
}

// loadConfig reads the configured yaml file, falling back to the setup
// wizard when none exists yet.
func loadConfig() (config.Config, error) {
	cfg, err := config.Get()
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}

	if err := setup.RunTUI(); err != nil {
		return config.Config{}, err
	}
	return config.FromFile(setup.GeneratedConfigFile)
}
