// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/warden/internal/platform/envelope"
)

// # Account Data Access

// AccountRepository defines the data access contract for credential-bearing accounts.
//
// Lookups that find nothing return [dberr.ErrNotFound].
type AccountRepository interface {

	/*
		FindByEmail returns the account with the given normalized email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *Account: Hydrated entity
		  - error: dberr.ErrNotFound or storage failures
	*/
	FindByEmail(context context.Context, email string) (*Account, error)

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Account: Hydrated entity
		  - error: dberr.ErrNotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*Account, error)

	/*
		RecordFailure increments the failed-attempt counter in one atomic update and
		sets lockedUntil when the new count reaches threshold.

		Parameters:
		  - context: context.Context
		  - id: string
		  - threshold: int
		  - lockedUntil: time.Time (applied only when the threshold is reached)
		  - now: time.Time

		Returns:
		  - *FailureState: Counter values after the update
		  - error: Persistence failures
	*/
	RecordFailure(context context.Context, id string, threshold int, lockedUntil, now time.Time) (*FailureState, error)

	/*
		RecordSuccess resets the counter, clears the lockout and stamps lastLoginAt.
		The reset must be conditional on the row being unlocked at now.

		Parameters:
		  - context: context.Context
		  - id: string
		  - now: time.Time

		Returns:
		  - error: apperr.ErrAccountLocked if a lock is active, or persistence failures
	*/
	RecordSuccess(context context.Context, id string, now time.Time) error

	// SetTwoFactorSecret stores an encrypted secret without enabling 2FA.
	SetTwoFactorSecret(context context.Context, id string, secret *envelope.Payload) error

	// EnableTwoFactor flips twoFactorEnabled on. The secret must already be stored.
	EnableTwoFactor(context context.Context, id string) error

	// DisableTwoFactor clears both the flag and the encrypted secret.
	DisableTwoFactor(context context.Context, id string) error
}

// # Session Data Access

// SessionRepository defines the data access contract for hashed-token sessions.
type SessionRepository interface {

	/*
		Create persists a new session record.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindActiveByTokenHash returns the session with tokenHash that has not expired at now.

		Parameters:
		  - context: context.Context
		  - tokenHash: string
		  - now: time.Time

		Returns:
		  - *Session: Hydrated entity
		  - error: dberr.ErrNotFound or storage failures
	*/
	FindActiveByTokenHash(context context.Context, tokenHash string, now time.Time) (*Session, error)

	// FindByID returns a session regardless of its expiry.
	FindByID(context context.Context, id string) (*Session, error)

	// ListActiveByUser returns the user's non-expired sessions, newest first.
	ListActiveByUser(context context.Context, userID string, now time.Time) ([]*Session, error)

	// Delete removes one session. Deleting a missing session is not an error.
	Delete(context context.Context, id string) error

	// DeleteByTokenHash removes the user's session bound to tokenHash.
	DeleteByTokenHash(context context.Context, userID, tokenHash string) error

	/*
		DeleteAllForUser removes every session of userID except the one bound to
		exceptTokenHash. An empty exceptTokenHash removes them all.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - exceptTokenHash: string

		Returns:
		  - int64: Number of sessions removed
		  - error: Persistence failures
	*/
	DeleteAllForUser(context context.Context, userID, exceptTokenHash string) (int64, error)

	// DeleteExpired physically removes sessions whose expiry is before now.
	DeleteExpired(context context.Context, now time.Time) (int64, error)
}

// # Tenant Data Access

// TenantDirectory answers the only tenant question this core asks.
type TenantDirectory interface {
	Exists(context context.Context, tenantID string) (bool, error)
}

// # Volatile Data Access

// EphemeralStore is a key-value store with TTL and atomic read-and-delete.
type EphemeralStore interface {

	/*
		Set stores value under (purpose, token) for ttl.

		Parameters:
		  - context: context.Context
		  - purpose: string
		  - token: string
		  - value: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, purpose, token, value string, ttl time.Duration) error

	/*
		GetDel returns the value under (purpose, token) and removes it in the same step.
		Exactly one concurrent caller observes the value.

		Parameters:
		  - context: context.Context
		  - purpose: string
		  - token: string

		Returns:
		  - string: Stored value
		  - error: dberr.ErrNotFound when absent, expired or already taken
	*/
	GetDel(context context.Context, purpose, token string) (string, error)
}
