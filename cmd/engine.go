package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/deskclaw/internal/bridge"
	"github.com/nextlevelbuilder/deskclaw/internal/config"
	"github.com/nextlevelbuilder/deskclaw/internal/engine"
	"github.com/nextlevelbuilder/deskclaw/internal/store"
	"github.com/nextlevelbuilder/deskclaw/internal/store/file"
	"github.com/nextlevelbuilder/deskclaw/internal/store/pg"
)

func runEngine() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	stores, err := buildStores(cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	// Handlers can only be bound once the engine exists, and the engine
	// needs the client as its provider; SetHandlers closes the cycle.
	client := bridge.NewClient(cfg.Bridge, bridge.Handlers{})
	eng := engine.New(cfg, stores, client)
	client.SetHandlers(eng.PushHandlers())
	eng.BindPush(client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		// Push is an optimization; the poll backstop carries the load.
		slog.Warn("push channel unavailable, polling only", "error", err)
	} else {
		defer client.Stop()
	}

	mode := "standalone"
	if cfg.IsManagedMode() {
		mode = "managed"
	}
	slog.Info("deskclaw engine starting", "version", Version, "mode", mode, "bridge", cfg.Bridge.URL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		slog.Error("engine stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("deskclaw engine stopped")
}

// buildStores selects the backend: Postgres in managed mode, the local
// file store otherwise.
func buildStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		return pg.NewStores(store.Config{PostgresDSN: cfg.Database.PostgresDSN})
	}
	return file.NewStores(config.ExpandPath(cfg.Storage.DataDir))
}
