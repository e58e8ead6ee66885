package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dominioncraft/dominion/internal/access"
	"github.com/dominioncraft/dominion/internal/claim"
	"github.com/dominioncraft/dominion/internal/config"
	"github.com/dominioncraft/dominion/internal/db"
	"github.com/dominioncraft/dominion/internal/economy"
	"github.com/dominioncraft/dominion/internal/event"
	"github.com/dominioncraft/dominion/internal/model"
	"github.com/dominioncraft/dominion/internal/territory"
)

const ConfigPath = "config/dominion.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config FIRST to determine log level
	cfgPath := ConfigPath
	if p := os.Getenv("DOMINION_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("dominion server starting", "log_level", cfg.LogLevel)

	snapshot := config.NewSnapshot(cfg)

	// SIGHUP reloads the config file in place
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			if err := snapshot.Reload(cfgPath); err != nil {
				slog.Error("reloading config", "path", cfgPath, "err", err)
				continue
			}
			slog.Info("config reloaded", "path", cfgPath)
		}
	}()

	// Connect to database
	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// Create repositories
	territoryRepo := db.NewTerritoryRepository(database.Pool())
	chunkRepo := db.NewChunkRepository(database.Pool())
	playerRepo := db.NewPlayerRepository(database.Pool())
	transactionRepo := db.NewTransactionRepository(database.Pool())

	// Core state
	bus := event.NewBus()
	players := model.NewRegistry()
	table := territory.NewTable(bus)
	engine := claim.NewEngine(snapshot, nil, bus, nil)
	table.SetChunkReleaser(engine)

	loader := territory.NewLoader(territoryRepo,
		cfg.TerritoryCache.MaxSize, cfg.TerritoryCache.IdleTimeout)

	cache := access.NewCache(cfg.PermissionCache.TTL, cfg.PermissionCache.SoftCap)
	authorizer := access.NewAuthorizer(cache, table, players, loader, engine)
	authorizer.WireEvents(bus)

	economyMgr := economy.NewManager(snapshot, table, engine, players, transactionRepo, nil)

	persister := db.NewWorldPersistenceService(
		territoryRepo, chunkRepo, playerRepo,
		table, engine, players, cfg.Database.FlushInterval)

	if err := persister.LoadWorld(ctx); err != nil {
		return fmt.Errorf("loading world: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting economy cycle", "interval", cfg.Economy.TickInterval)
		if err := economyMgr.Start(gctx); err != nil {
			return fmt.Errorf("economy cycle: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting territory cache sweeper", "interval", cfg.TerritoryCache.SweepInterval)
		if err := loader.Start(gctx, cfg.TerritoryCache.SweepInterval); err != nil {
			return fmt.Errorf("territory cache sweeper: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting permission cache sweeper", "interval", cfg.PermissionCache.SweepInterval)
		if err := cache.Start(gctx, cfg.PermissionCache.SweepInterval); err != nil {
			return fmt.Errorf("permission cache sweeper: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting world persistence", "interval", cfg.Database.FlushInterval)
		if err := persister.Start(gctx); err != nil {
			return fmt.Errorf("world persistence: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
