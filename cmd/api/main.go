// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Warden HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Start tracing (no-op without an OTLP endpoint).
//  4. Connect to PostgreSQL (pgxpool).
//  5. Connect to Redis.
//  6. Run database migrations (idempotent).
//  7. Build the security primitives (signer, envelope cipher, TOTP).
//  8. Open the audit sink and register metrics.
//  9. Wire the authentication core and HTTP handlers.
//  10. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/warden/internal/api"
	"github.com/taibuivan/warden/internal/platform/audit"
	"github.com/taibuivan/warden/internal/platform/config"
	"github.com/taibuivan/warden/internal/platform/constants"
	"github.com/taibuivan/warden/internal/platform/envelope"
	"github.com/taibuivan/warden/internal/platform/metrics"
	"github.com/taibuivan/warden/internal/platform/migration"
	"github.com/taibuivan/warden/internal/platform/otp"
	pgstore "github.com/taibuivan/warden/internal/platform/postgres"
	redisstore "github.com/taibuivan/warden/internal/platform/redis"
	"github.com/taibuivan/warden/internal/platform/sec"
	"github.com/taibuivan/warden/internal/platform/telemetry"
	"github.com/taibuivan/warden/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "warden"))
	slog.SetDefault(log)

	log.Info("[Warden] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "warden"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("jwt_mode", cfg.JWTMode),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. Tracing ────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(startupCtx, telemetry.Settings{
		ServiceName:    constants.AppName,
		ServiceVersion: constants.AppVersion,
		Endpoint:       cfg.OTLPEndpoint,
		SamplingRate:   cfg.SamplingRate,
	})
	must(log, err, "start tracing")
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("tracing shutdown error", slog.Any("error", err))
		}
	}()

	// ── 4. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 5. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 6. Migrations ─────────────────────────────────────────────────────
	_, err = migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log)
	must(log, err, "run migrations")

	// ── 7. Security Primitives ────────────────────────────────────────────
	signer, jwks, err := newSigner(cfg)
	must(log, err, "initialize token signer")
	tokens := sec.NewTokenService(signer, cfg.JWTIssuer)

	keyring, err := envelope.ParseKeyring(cfg.EnvelopeMasterKeys, cfg.EnvelopeActiveVersion)
	must(log, err, "load envelope master keys")
	cipher := envelope.NewCipher(keyring)

	authenticator := otp.NewAuthenticator(cfg.TOTPIssuer)

	// ── 8. Audit + Metrics ────────────────────────────────────────────────
	var sink audit.Sink = audit.NewLogSink()
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := audit.NewKafkaProducer(cfg.KafkaBrokers)
		must(log, err, "connect to kafka")

		kafkaSink := audit.NewKafkaSink(producer, cfg.AuditTopic, log)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				log.Error("audit sink close error", slog.Any("error", err))
			}
		}()
		sink = kafkaSink
	}

	registry := metrics.NewRegistry()
	authMetrics, err := metrics.NewAuth(registry)
	must(log, err, "register metrics")

	// ── 9. Domain Wiring ──────────────────────────────────────────────────
	authService := auth.NewService(auth.Deps{
		Accounts:      auth.NewAccountRepository(pool, cfg.StoreTimeout),
		Sessions:      auth.NewSessionRepository(pool, cfg.StoreTimeout),
		Tenants:       auth.NewTenantDirectory(pool, cfg.StoreTimeout),
		Ephemeral:     auth.NewEphemeralStore(rdb, cfg.StoreTimeout),
		Tokens:        tokens,
		Cipher:        cipher,
		Authenticator: authenticator,
		Audit:         sink,
		Metrics:       authMetrics,
	})
	authHandler := auth.NewHandler(authService)

	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		},
		CheckCache: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		},
	}, log)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Metrics:   metrics.Handler(registry),
		Auth:      authHandler,
	}
	if jwks != nil {
		handlers.JWKS = api.JWKSHandler(jwks)
	}

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	server := api.NewServer(serverCtx, ":"+cfg.ServerPort, cfg, log, authService, handlers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// newSigner selects the signing strategy once, from configuration.
// The RSA signer is also returned when JWKS should be published.
func newSigner(cfg *config.Config) (sec.Signer, *sec.RSASigner, error) {
	switch cfg.JWTMode {
	case config.JWTModeRS256:
		signer, err := sec.NewRSASigner(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath)
		if err != nil {
			return nil, nil, err
		}
		return signer, signer, nil
	case config.JWTModeHS256:
		signer, err := sec.NewHMACSigner(cfg.JWTSecret)
		if err != nil {
			return nil, nil, err
		}
		return signer, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown jwt mode %q", cfg.JWTMode)
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
