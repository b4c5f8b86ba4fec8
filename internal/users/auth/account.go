// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the authentication and session-security core.

It verifies credentials with lockout, issues bearer tokens, tracks hashed-token
sessions, enrolls TOTP second factors and drives the login / 2FA / impersonation
state machine.

# Architecture

  - Components: [CredentialStore], [SessionRegistry], [TwoFactorEnrollment] and
    [EphemeralTokenBroker] each own one concern.
  - Orchestrator: [Service] composes them and is the only type the HTTP layer sees.
  - Repositories: narrow interfaces (store.go) with PostgreSQL and Redis implementations.

Every component receives its collaborators through its constructor. Nothing in
this package holds global state.
*/
package auth

import (
	"time"

	"github.com/taibuivan/warden/internal/platform/envelope"
	"github.com/taibuivan/warden/internal/platform/sec"
)

// # Domain Entities

// Account is the credential-bearing view of a user.
type Account struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Role         sec.UserRole `json:"role"`
	TenantID     string       `json:"tenantId"`

	// Lockout bookkeeping. LockedUntil is non-nil only inside a lockout window.
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`

	// TwoFactorSecret may exist while TwoFactorEnabled is false (enrollment pending).
	TwoFactorEnabled bool              `json:"twoFactorEnabled"`
	TwoFactorSecret  *envelope.Payload `json:"-"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsLocked reports whether the account is inside its lockout window at now.
func (account *Account) IsLocked(now time.Time) bool {
	return account.LockedUntil != nil && account.LockedUntil.After(now)
}

// subject returns the token subject scoped to the account's own tenant.
func (account *Account) subject() sec.Subject {
	return sec.Subject{
		UserID:   account.ID,
		Email:    account.Email,
		Role:     account.Role,
		TenantID: account.TenantID,
	}
}

// FailureState is the counter pair returned by an atomic failure update.
type FailureState struct {
	Attempts    int
	LockedUntil *time.Time
}

// Session is one authenticated access token, stored by digest only.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	TokenHash   string    `json:"-"`
	Fingerprint string    `json:"-"`
	IPAddress   string    `json:"ipAddress"`
	UserAgent   string    `json:"userAgent"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`

	// Current is set when listing, for the session that made the request.
	Current bool `json:"current"`
}

// ClientMeta is the request metadata recorded on a new session.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// # Field Identifiers

// Field names for validation and response payloads in the authentication domain.
const (
	FieldEmail             = "email"
	FieldPassword          = "password"
	FieldTempToken         = "tempToken"
	FieldTwoFactorToken    = "twoFactorToken"
	FieldRefreshToken      = "refreshToken"
	FieldSessionID         = "sessionId"
	FieldToken             = "token"
	FieldTenantID          = "id"
	FieldRevoked           = "revoked"
	FieldMessage           = "message"
	FieldRequiresTwoFactor = "requiresTwoFactor"
)
