// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command sweeper deletes expired sessions once and exits.
//
// It is meant to be run by an external periodic trigger (cron, a Kubernetes
// CronJob). The authentication request path never sweeps.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/taibuivan/warden/internal/platform/config"
	pgstore "github.com/taibuivan/warden/internal/platform/postgres"
	"github.com/taibuivan/warden/internal/users/auth"
)

// runTimeout bounds the whole sweep including the connection.
const runTimeout = 2 * time.Minute

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With(slog.String("app", "warden-sweeper"))
	slog.SetDefault(log)

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.LoadSweeper()
	if err != nil {
		log.Error("startup failure", slog.String("context", "load configuration"), slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Debug {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})).With(slog.String("app", "warden-sweeper"))
		slog.SetDefault(log)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("startup failure", slog.String("context", "connect to postgres"), slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// ── 4. Sweep ──────────────────────────────────────────────────────────
	registry := auth.NewSessionRegistry(auth.NewSessionRepository(pool, cfg.StoreTimeout), nil)

	started := time.Now()
	count, err := registry.SweepExpired(ctx)
	if err != nil {
		log.Error("session_sweep_failed", slog.Any("error", err))
		pool.Close()
		os.Exit(1)
	}

	log.Info("session_sweep_completed",
		slog.Int64("deleted", count),
		slog.Duration("elapsed", time.Since(started)),
	)
}
