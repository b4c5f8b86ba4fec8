// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package migration applies the SQL files under data/migrations with
// golang-migrate before the API accepts traffic.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Registers the "pgx5" database scheme.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// Registers the "file" source scheme.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrDirty is returned when a previous run failed half way. An operator must
// fix the schema and force the version before the service can start.
var ErrDirty = errors.New("migration: database is dirty")

// Result reports the schema version before and after a run.
type Result struct {
	From    uint
	To      uint
	Applied bool
}

/*
RunUp applies every pending UP migration.

Parameters:
  - dsn: postgres:// or postgresql:// URL (pgx5:// is accepted as is)
  - migrationsPath: Directory holding the NNNNNN_name.up.sql files
  - logger: *slog.Logger

Returns:
  - *Result: Versions before and after
  - error: ErrDirty, source / driver errors, or a failing migration
*/
func RunUp(dsn, migrationsPath string, logger *slog.Logger) (*Result, error) {
	migrator, err := migrate.New("file://"+migrationsPath, pgx5URL(dsn))
	if err != nil {
		return nil, fmt.Errorf("migration: init: %w", err)
	}
	defer closeMigrator(migrator, logger)

	migrator.Log = slogBridge{logger: logger}

	from, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("migration: read version: %w", err)
	}
	if dirty {
		return nil, fmt.Errorf("%w at version %d", ErrDirty, from)
	}

	result := &Result{From: from, To: from}

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema_up_to_date", slog.Uint64("version", uint64(from)))
			return result, nil
		}
		return nil, fmt.Errorf("migration: up from %d: %w", from, err)
	}

	if to, _, err := migrator.Version(); err == nil {
		result.To = to
	}
	result.Applied = true

	logger.Info("schema_migrated",
		slog.Uint64("from_version", uint64(result.From)),
		slog.Uint64("to_version", uint64(result.To)),
	)

	return result, nil
}

// pgx5URL rewrites a libpq URL into the scheme the pgx/v5 driver registers.
func pgx5URL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return dsn
}

func closeMigrator(migrator *migrate.Migrate, logger *slog.Logger) {
	sourceErr, databaseErr := migrator.Close()
	if sourceErr != nil {
		logger.Warn("migration_source_close_failed", slog.Any("error", sourceErr))
	}
	if databaseErr != nil {
		logger.Warn("migration_database_close_failed", slog.Any("error", databaseErr))
	}
}

// slogBridge implements migrate.Logger on top of slog at debug level.
type slogBridge struct {
	logger *slog.Logger
}

func (b slogBridge) Printf(format string, args ...any) {
	b.logger.Debug("migrate", slog.String("message", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

func (b slogBridge) Verbose() bool {
	return b.logger.Enabled(context.Background(), slog.LevelDebug)
}
