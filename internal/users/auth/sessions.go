// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/dberr"
	"github.com/taibuivan/warden/internal/platform/sec"
	"github.com/taibuivan/warden/pkg/uuid"
)

// errSessionNotFound is returned when a caller names a session it does not own.
var errSessionNotFound = apperr.NotFound("Session")

// SessionRegistry creates, validates and revokes sessions keyed by token digest.
//
// The raw access token never reaches storage. Validation is independent of the
// token signature check, so a revoked but well-signed token is still rejected.
type SessionRegistry struct {
	sessions SessionRepository
	now      func() time.Time
}

// NewSessionRegistry creates a SessionRegistry. A nil clock means [time.Now].
func NewSessionRegistry(sessions SessionRepository, clock func() time.Time) *SessionRegistry {
	if clock == nil {
		clock = time.Now
	}
	return &SessionRegistry{sessions: sessions, now: clock}
}

/*
Create records a new session for accessToken.

Parameters:
  - context: context.Context
  - userID: string
  - accessToken: string
  - meta: ClientMeta

Returns:
  - *Session: The stored session
  - error: Persistence failures
*/
func (registry *SessionRegistry) Create(context context.Context, userID, accessToken string, meta ClientMeta) (*Session, error) {
	now := registry.now().UTC()

	session := &Session{
		ID:          uuid.New(),
		UserID:      userID,
		TokenHash:   sec.HashToken(accessToken),
		Fingerprint: sec.Fingerprint(meta.IPAddress, meta.UserAgent),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
		ExpiresAt:   now.Add(SessionTTL),
	}

	if err := registry.sessions.Create(context, session); err != nil {
		return nil, fmt.Errorf("sessions: create: %w", err)
	}

	return session, nil
}

/*
Validate resolves the live session bound to accessToken.

Description: The fingerprint is recorded for forensics and is not compared here.

Parameters:
  - context: context.Context
  - accessToken: string

Returns:
  - *Session: The matching, non-expired session
  - error: ErrSessionRevoked or storage failures
*/
func (registry *SessionRegistry) Validate(context context.Context, accessToken string) (*Session, error) {
	session, err := registry.sessions.FindActiveByTokenHash(context, sec.HashToken(accessToken), registry.now().UTC())
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, fmt.Errorf("sessions: no live session: %w", apperr.ErrSessionRevoked)
		}
		return nil, fmt.Errorf("sessions: validate: %w", err)
	}

	return session, nil
}

// Revoke deletes a session by ID.
func (registry *SessionRegistry) Revoke(context context.Context, sessionID string) error {
	if err := registry.sessions.Delete(context, sessionID); err != nil {
		return fmt.Errorf("sessions: revoke: %w", err)
	}
	return nil
}

/*
RevokeOwned deletes sessionID only when it belongs to userID.

Description: A session owned by someone else is reported exactly like a missing
one, so IDs cannot be probed.

Parameters:
  - context: context.Context
  - userID: string
  - sessionID: string

Returns:
  - error: NotFound or storage failures
*/
func (registry *SessionRegistry) RevokeOwned(context context.Context, userID, sessionID string) error {
	session, err := registry.sessions.FindByID(context, sessionID)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return errSessionNotFound
		}
		return fmt.Errorf("sessions: find: %w", err)
	}

	if session.UserID != userID {
		return errSessionNotFound
	}

	return registry.Revoke(context, sessionID)
}

// RevokeByToken deletes the user's session bound to accessToken.
func (registry *SessionRegistry) RevokeByToken(context context.Context, userID, accessToken string) error {
	if err := registry.sessions.DeleteByTokenHash(context, userID, sec.HashToken(accessToken)); err != nil {
		return fmt.Errorf("sessions: revoke by token: %w", err)
	}
	return nil
}

/*
RevokeAll deletes every session of userID except the one bound to exceptToken.

Parameters:
  - context: context.Context
  - userID: string
  - exceptToken: string (empty revokes everything)

Returns:
  - int64: Number of sessions revoked
  - error: Persistence failures
*/
func (registry *SessionRegistry) RevokeAll(context context.Context, userID, exceptToken string) (int64, error) {
	exceptHash := ""
	if exceptToken != "" {
		exceptHash = sec.HashToken(exceptToken)
	}

	count, err := registry.sessions.DeleteAllForUser(context, userID, exceptHash)
	if err != nil {
		return 0, fmt.Errorf("sessions: revoke all: %w", err)
	}

	return count, nil
}

// List returns the user's live sessions and flags the one bound to currentToken.
func (registry *SessionRegistry) List(context context.Context, userID, currentToken string) ([]*Session, error) {
	sessions, err := registry.sessions.ListActiveByUser(context, userID, registry.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("sessions: list: %w", err)
	}

	currentHash := sec.HashToken(currentToken)
	for _, session := range sessions {
		session.Current = currentToken != "" && session.TokenHash == currentHash
	}

	return sessions, nil
}

// SweepExpired deletes every session past its expiry and returns how many went.
func (registry *SessionRegistry) SweepExpired(context context.Context) (int64, error) {
	count, err := registry.sessions.DeleteExpired(context, registry.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sessions: sweep: %w", err)
	}
	return count, nil
}
