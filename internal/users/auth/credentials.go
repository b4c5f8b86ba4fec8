// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/ctxutil"
	"github.com/taibuivan/warden/internal/platform/dberr"
	"github.com/taibuivan/warden/internal/platform/sec"
	"github.com/taibuivan/warden/pkg/normalize"
	"github.com/taibuivan/warden/pkg/pointer"
)

// CredentialStore verifies passwords and owns the lockout counters.
type CredentialStore struct {
	accounts AccountRepository
	now      func() time.Time
}

// NewCredentialStore creates a CredentialStore. A nil clock means [time.Now].
func NewCredentialStore(accounts AccountRepository, clock func() time.Time) *CredentialStore {
	if clock == nil {
		clock = time.Now
	}
	return &CredentialStore{accounts: accounts, now: clock}
}

/*
Verify checks a password against the account registered under email.

Description: An unknown email and a wrong password are indistinguishable to the
caller. A locked account is rejected before the password is compared and its
counters are left alone. A wrong password increments the failure counter
atomically; the attempt that reaches [MaxFailedAttempts] already reports
ErrAccountLocked. A correct password resets the counters.

Parameters:
  - context: context.Context
  - email: string (normalized here)
  - password: string

Returns:
  - *Account: The verified account
  - error: ErrInvalidCredentials, ErrAccountLocked or storage failures
*/
func (store *CredentialStore) Verify(context context.Context, email, password string) (*Account, error) {
	logger := ctxutil.GetLogger(context)

	account, err := store.accounts.FindByEmail(context, normalize.Email(email))
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			// Spend the same bcrypt time as a real comparison
			sec.DummyPasswordCheck(password)
			return nil, fmt.Errorf("credentials: unknown email: %w", apperr.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("credentials: lookup: %w", err)
	}

	now := store.now()

	// 1. Lockout gate. No comparison, no counter change.
	if account.IsLocked(now) {
		return nil, fmt.Errorf("credentials: locked until %s: %w",
			pointer.Val(account.LockedUntil).UTC().Format(time.RFC3339), apperr.ErrAccountLocked)
	}

	// 2. Wrong password
	if !sec.CheckPasswordHash(password, account.PasswordHash) {
		state, err := store.accounts.RecordFailure(context, account.ID, MaxFailedAttempts, now.Add(LockoutDuration), now)
		if err != nil {
			return nil, fmt.Errorf("credentials: record failure: %w", err)
		}

		logger.Debug("credential_failure_recorded",
			slog.String("user_id", account.ID),
			slog.Int("failed_attempts", state.Attempts),
		)

		if state.LockedUntil != nil && state.LockedUntil.After(now) {
			return nil, fmt.Errorf("credentials: lockout engaged after %d failures: %w", state.Attempts, apperr.ErrAccountLocked)
		}
		return nil, fmt.Errorf("credentials: wrong password: %w", apperr.ErrInvalidCredentials)
	}

	// 3. Correct password
	// A failure racing this request may have engaged the lock after the gate.
	if err := store.accounts.RecordSuccess(context, account.ID, now); err != nil {
		if errors.Is(err, apperr.ErrAccountLocked) {
			return nil, fmt.Errorf("credentials: locked concurrently: %w", apperr.ErrAccountLocked)
		}
		return nil, fmt.Errorf("credentials: record success: %w", err)
	}

	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = pointer.To(now)

	return account, nil
}
