// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/database/schema"
	"github.com/taibuivan/warden/internal/platform/dberr"
	"github.com/taibuivan/warden/internal/platform/envelope"
	"github.com/taibuivan/warden/internal/platform/postgres"
)

// # Account Repository

// accountLookup selects a live account by one column.
func accountLookup(column string) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND %s IS NULL`,
		strings.Join(schema.UserAccount.Columns(), ", "),
		schema.UserAccount.Table, column, schema.UserAccount.DeletedAt,
	)
}

// PostgresAccountRepository implements [AccountRepository] on users.account.
type PostgresAccountRepository struct {
	db      postgres.Executor
	timeout time.Duration
}

// NewAccountRepository creates a PostgreSQL implementation of the AccountRepository.
func NewAccountRepository(db postgres.Executor, timeout time.Duration) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db, timeout: timeout}
}

/*
FindByEmail retrieves an account by its normalized email address.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Account: Hydrated account entity
  - error: dberr.ErrNotFound or database errors
*/
func (repository *PostgresAccountRepository) FindByEmail(context context.Context, email string) (*Account, error) {
	query := accountLookup(schema.UserAccount.Email)

	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	account, err := scanAccount(repository.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, dberr.Wrap(err, "postgres_account_repo_find_by_email_failed")
	}

	return account, nil
}

/*
FindByID retrieves an account by its ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Account: Hydrated account entity
  - error: dberr.ErrNotFound or database errors
*/
func (repository *PostgresAccountRepository) FindByID(context context.Context, id string) (*Account, error) {
	query := accountLookup(schema.UserAccount.ID)

	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	account, err := scanAccount(repository.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, dberr.Wrap(err, "postgres_account_repo_find_by_id_failed")
	}

	return account, nil
}

/*
RecordFailure increments failedattempts in a single UPDATE.

Description: The row lock taken by UPDATE serializes concurrent failures on the
same account, and the SET expressions read the latest committed counter, so no
failure is lost. The lockout engages in the same statement.

Parameters:
  - context: context.Context
  - id: string
  - threshold: int
  - lockedUntil: time.Time
  - now: time.Time

Returns:
  - *FailureState: Counter values after the update
  - error: dberr.ErrNotFound or database errors
*/
func (repository *PostgresAccountRepository) RecordFailure(context context.Context, id string, threshold int, lockedUntil, now time.Time) (*FailureState, error) {
	const query = `
		UPDATE users.account
		SET failedattempts = failedattempts + 1,
		    lockeduntil = CASE WHEN failedattempts + 1 >= $2 THEN $3::timestamptz ELSE NULL END,
		    updatedat = $4
		WHERE id = $1
		RETURNING failedattempts, lockeduntil`

	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	state := &FailureState{}
	err := repository.db.QueryRow(ctx, query, id, threshold, lockedUntil, now).Scan(
		&state.Attempts,
		&state.LockedUntil,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "postgres_account_repo_record_failure_failed")
	}

	return state, nil
}

// RecordSuccess resets the lockout bookkeeping after a correct password.
// The reset only applies while the row is unlocked, so a lock committed by a
// concurrent failure after the lookup is never erased.
func (repository *PostgresAccountRepository) RecordSuccess(context context.Context, id string, now time.Time) error {
	const query = `
		UPDATE users.account
		SET failedattempts = 0, lockeduntil = NULL, lastloginat = $2, updatedat = $2
		WHERE id = $1 AND (lockeduntil IS NULL OR lockeduntil <= $2)`

	err := repository.exec(context, "postgres_account_repo_record_success_failed", query, id, now)
	if errors.Is(err, dberr.ErrNotFound) {
		return fmt.Errorf("postgres_account_repo_record_success_locked: %w", apperr.ErrAccountLocked)
	}
	return err
}

// SetTwoFactorSecret stores the encrypted secret. twofactorenabled is left untouched.
func (repository *PostgresAccountRepository) SetTwoFactorSecret(context context.Context, id string, secret *envelope.Payload) error {
	const query = `
		UPDATE users.account
		SET twofactorsecret = $2, updatedat = NOW()
		WHERE id = $1`

	encoded, err := json.Marshal(secret)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_encode_secret_failed: %w", err)
	}

	return repository.exec(context, "postgres_account_repo_set_two_factor_secret_failed", query, id, encoded)
}

// EnableTwoFactor turns 2FA on for an account that already holds a secret.
func (repository *PostgresAccountRepository) EnableTwoFactor(context context.Context, id string) error {
	const query = `
		UPDATE users.account
		SET twofactorenabled = TRUE, updatedat = NOW()
		WHERE id = $1 AND twofactorsecret IS NOT NULL`

	return repository.exec(context, "postgres_account_repo_enable_two_factor_failed", query, id)
}

// DisableTwoFactor clears the flag and the secret together.
func (repository *PostgresAccountRepository) DisableTwoFactor(context context.Context, id string) error {
	const query = `
		UPDATE users.account
		SET twofactorenabled = FALSE, twofactorsecret = NULL, updatedat = NOW()
		WHERE id = $1`

	return repository.exec(context, "postgres_account_repo_disable_two_factor_failed", query, id)
}

// exec runs a single-row UPDATE and reports a missing row as not found.
func (repository *PostgresAccountRepository) exec(context context.Context, action, query string, args ...any) error {
	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	tag, err := repository.db.Exec(ctx, query, args...)
	if err != nil {
		return dberr.Wrap(err, action)
	}

	if tag.RowsAffected() == 0 {
		return dberr.ErrNotFound
	}

	return nil
}

// scanAccount hydrates one account row in [schema.UserAccountTable.Columns] order.
func scanAccount(row pgx.Row) (*Account, error) {
	account := &Account{}
	var secret []byte

	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.TenantID,
		&account.FailedAttempts,
		&account.LockedUntil,
		&account.TwoFactorEnabled,
		&secret,
		&account.LastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(secret) > 0 {
		account.TwoFactorSecret = &envelope.Payload{}
		if err := json.Unmarshal(secret, account.TwoFactorSecret); err != nil {
			return nil, fmt.Errorf("decode two-factor secret: %w", err)
		}
	}

	return account, nil
}

// # Session Repository

// PostgresSessionRepository implements [SessionRepository] on users.session.
type PostgresSessionRepository struct {
	db      postgres.Executor
	builder sq.StatementBuilderType
	timeout time.Duration
}

// NewSessionRepository creates a PostgreSQL implementation of the SessionRepository.
func NewSessionRepository(db postgres.Executor, timeout time.Duration) *PostgresSessionRepository {
	return &PostgresSessionRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		timeout: timeout,
	}
}

/*
Create persists a new session record into the users.session table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	query, args, err := repository.builder.Insert(schema.UserSession.Table).
		Columns(schema.UserSession.Columns()...).
		Values(
			session.ID,
			session.UserID,
			session.TokenHash,
			session.Fingerprint,
			session.IPAddress,
			session.UserAgent,
			session.CreatedAt,
			session.ExpiresAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres_session_repo_build_create_failed: %w", err)
	}

	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	if _, err := repository.db.Exec(ctx, query, args...); err != nil {
		return dberr.Wrap(err, "postgres_session_repo_create_failed")
	}

	return nil
}

/*
FindActiveByTokenHash retrieves the non-expired session bound to tokenHash.

Parameters:
  - context: context.Context
  - tokenHash: string
  - now: time.Time

Returns:
  - *Session: Hydrated entity
  - error: dberr.ErrNotFound or database errors
*/
func (repository *PostgresSessionRepository) FindActiveByTokenHash(context context.Context, tokenHash string, now time.Time) (*Session, error) {
	query, args, err := repository.builder.Select(schema.UserSession.Columns()...).
		From(schema.UserSession.Table).
		Where(sq.Eq{schema.UserSession.TokenHash: tokenHash}).
		Where(sq.Gt{schema.UserSession.ExpiresAt: now}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_build_find_failed: %w", err)
	}

	return repository.findOne(context, "postgres_session_repo_find_by_token_failed", query, args...)
}

// FindByID retrieves a session by ID regardless of expiry.
func (repository *PostgresSessionRepository) FindByID(context context.Context, id string) (*Session, error) {
	query, args, err := repository.builder.Select(schema.UserSession.Columns()...).
		From(schema.UserSession.Table).
		Where(sq.Eq{schema.UserSession.ID: id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_build_find_failed: %w", err)
	}

	return repository.findOne(context, "postgres_session_repo_find_by_id_failed", query, args...)
}

/*
ListActiveByUser returns the user's non-expired sessions ordered newest first.

Parameters:
  - context: context.Context
  - userID: string
  - now: time.Time

Returns:
  - []*Session: Possibly empty list
  - error: Database errors
*/
func (repository *PostgresSessionRepository) ListActiveByUser(context context.Context, userID string, now time.Time) ([]*Session, error) {
	query, args, err := repository.builder.Select(schema.UserSession.Columns()...).
		From(schema.UserSession.Table).
		Where(sq.Eq{schema.UserSession.UserID: userID}).
		Where(sq.Gt{schema.UserSession.ExpiresAt: now}).
		OrderBy(schema.UserSession.CreatedAt + " DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_build_list_failed: %w", err)
	}

	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	rows, err := repository.db.Query(ctx, query, args...)
	if err != nil {
		return nil, dberr.Wrap(err, "postgres_session_repo_list_failed")
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, dberr.Wrap(err, "postgres_session_repo_scan_failed")
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(err, "postgres_session_repo_list_failed")
	}

	return sessions, nil
}

// Delete removes a single session by ID.
func (repository *PostgresSessionRepository) Delete(context context.Context, id string) error {
	_, err := repository.delete(context, "postgres_session_repo_delete_failed",
		repository.builder.Delete(schema.UserSession.Table).Where(sq.Eq{schema.UserSession.ID: id}))
	return err
}

// DeleteByTokenHash removes the user's session bound to tokenHash.
func (repository *PostgresSessionRepository) DeleteByTokenHash(context context.Context, userID, tokenHash string) error {
	_, err := repository.delete(context, "postgres_session_repo_delete_by_token_failed",
		repository.builder.Delete(schema.UserSession.Table).Where(sq.Eq{schema.UserSession.UserID: userID, schema.UserSession.TokenHash: tokenHash}))
	return err
}

/*
DeleteAllForUser removes every session of userID, optionally keeping one.

Parameters:
  - context: context.Context
  - userID: string
  - exceptTokenHash: string (empty removes all)

Returns:
  - int64: Number of rows removed
  - error: Database errors
*/
func (repository *PostgresSessionRepository) DeleteAllForUser(context context.Context, userID, exceptTokenHash string) (int64, error) {
	statement := repository.builder.Delete(schema.UserSession.Table).Where(sq.Eq{schema.UserSession.UserID: userID})
	if exceptTokenHash != "" {
		statement = statement.Where(sq.NotEq{schema.UserSession.TokenHash: exceptTokenHash})
	}

	return repository.delete(context, "postgres_session_repo_delete_all_failed", statement)
}

// DeleteExpired removes sessions whose expiry is before now.
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	return repository.delete(context, "postgres_session_repo_delete_expired_failed",
		repository.builder.Delete(schema.UserSession.Table).Where(sq.Lt{schema.UserSession.ExpiresAt: now}))
}

func (repository *PostgresSessionRepository) delete(context context.Context, action string, statement sq.DeleteBuilder) (int64, error) {
	query, args, err := statement.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: build: %w", action, err)
	}

	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	tag, err := repository.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, dberr.Wrap(err, action)
	}

	return tag.RowsAffected(), nil
}

func (repository *PostgresSessionRepository) findOne(context context.Context, action, query string, args ...any) (*Session, error) {
	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	session, err := scanSession(repository.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, dberr.Wrap(err, action)
	}

	return session, nil
}

// scanSession hydrates one session row in [schema.UserSessionTable.Columns] order.
func scanSession(row pgx.Row) (*Session, error) {
	session := &Session{}
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.Fingerprint,
		&session.IPAddress,
		&session.UserAgent,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// # Tenant Directory

// PostgresTenantDirectory implements [TenantDirectory] on tenants.tenant.
type PostgresTenantDirectory struct {
	db      postgres.Executor
	timeout time.Duration
}

// NewTenantDirectory creates a PostgreSQL implementation of the TenantDirectory.
func NewTenantDirectory(db postgres.Executor, timeout time.Duration) *PostgresTenantDirectory {
	return &PostgresTenantDirectory{db: db, timeout: timeout}
}

// Exists reports whether an active tenant with tenantID exists.
func (directory *PostgresTenantDirectory) Exists(context context.Context, tenantID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s IS NULL)`,
		schema.Tenant.Table, schema.Tenant.ID, schema.Tenant.DeletedAt,
	)

	ctx, cancel := dberr.WithTimeout(context, directory.timeout)
	defer cancel()

	var exists bool
	if err := directory.db.QueryRow(ctx, query, tenantID).Scan(&exists); err != nil {
		return false, dberr.Wrap(err, "postgres_tenant_directory_exists_failed")
	}

	return exists, nil
}
