// Command etssim hosts one emissions trading simulation behind an HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/omakhlouk/ets-simulation/internal/api"
	"github.com/omakhlouk/ets-simulation/internal/catalog"
	"github.com/omakhlouk/ets-simulation/internal/config"
	"github.com/omakhlouk/ets-simulation/internal/engine"
	"github.com/omakhlouk/ets-simulation/internal/entropy"
	"github.com/omakhlouk/ets-simulation/internal/ledger"
	"github.com/omakhlouk/ets-simulation/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("ETS simulation starting",
		"rounds", cfg.Settings.TotalRounds,
		"reserve_price", cfg.Settings.ReservePrice,
		"penalty", cfg.Settings.Penalty,
	)

	// ── Database ──────────────────────────────────────────────────────
	dialect := persistence.Dialect(cfg.DBDialect)
	if dialect == persistence.SQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			slog.Error("failed to create data directory", "error", err)
			os.Exit(1)
		}
	}
	db, err := persistence.Open(dialect, cfg.DSN())
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// ── Randomness ────────────────────────────────────────────────────
	seed := cfg.Seed
	if seed == 0 {
		seed = entropy.NewClient(cfg.RandomOrgKey).Seed(ctx)
	}
	slog.Info("random source seeded", "seed", seed)

	// ── Game ──────────────────────────────────────────────────────────
	hub := api.NewHub()
	go hub.Run(ctx)

	archive := make(chan engine.LogEntry, archiveQueue)
	game := engine.NewGame(engine.Options{
		Catalog:    catalog.Default(),
		Defaults:   cfg.Settings,
		Store:      db,
		Rand:       rand.New(rand.NewSource(seed)),
		PhaseDelay: cfg.PhaseDelay,
		TradeDelay: cfg.TradeDelay,
		OnLog: func(e engine.LogEntry) {
			hub.Publish(e)
			select {
			case archive <- e:
			default:
				slog.Warn("log archive queue full, dropping entry", "id", e.ID)
			}
		},
	})

	data, err := db.LoadState(ctx)
	switch {
	case errors.Is(err, persistence.ErrNoState):
		slog.Info("no saved game found")
		if cfg.DemoSession {
			if err := game.Initialize(engine.DemoSessionID, nil); err != nil {
				slog.Error("demo session failed", "error", err)
			}
		}
	case err != nil:
		slog.Error("failed to load game state", "error", err)
		os.Exit(1)
	default:
		if err := game.Restore(data); err != nil {
			slog.Error("saved game state is corrupt, starting fresh", "error", err)
		}
	}

	archived := make(chan struct{})
	go func() {
		archiveLogs(ctx, db, game, archive)
		close(archived)
	}()

	st := game.State()
	slog.Info("game ready",
		"session", st.SessionID,
		"round", st.CurrentRound,
		"phase", st.CurrentPhase,
		"players", len(st.Players),
	)

	// ── Phase clock ───────────────────────────────────────────────────
	clock := engine.NewClock(game)
	clock.Interval = cfg.ClockInterval
	clock.OnAdvance = func(phase ledger.Phase, round int) {
		slog.Info("phase timer advanced the game", "phase", phase, "round", round)
	}
	go clock.Run(ctx)

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("ETSSIM_ADMIN_KEY not set, facilitator endpoints disabled")
	}
	apiServer := &api.Server{
		Game:     game,
		Hub:      hub,
		Archive:  db,
		Limiter:  api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Port:     cfg.Port,
		AdminKey: cfg.AdminKey,
	}
	apiServer.Start(ctx)

	fmt.Printf("\nETS simulation ready: session %q, round %d, phase %s.\n", st.SessionID, st.CurrentRound, st.CurrentPhase)
	fmt.Printf("API: http://localhost:%d/api/v1/state\n", cfg.Port)

	<-ctx.Done()
	slog.Info("shutting down")

	game.PauseSimulation()
	<-archived
	data, err = game.Snapshot()
	if err == nil {
		err = db.SaveState(context.Background(), data)
	}
	if err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. Game state saved.")
}
