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
)

// EphemeralTokenBroker issues purpose-scoped, single-use, short-lived tokens.
type EphemeralTokenBroker struct {
	store EphemeralStore
}

// NewEphemeralTokenBroker creates a broker over store.
func NewEphemeralTokenBroker(store EphemeralStore) *EphemeralTokenBroker {
	return &EphemeralTokenBroker{store: store}
}

/*
Issue mints an opaque token for subjectUserID that lives for ttl.

Parameters:
  - context: context.Context
  - purpose: string
  - subjectUserID: string
  - ttl: time.Duration

Returns:
  - string: The raw token to hand to the client
  - error: Generation or persistence failures
*/
func (broker *EphemeralTokenBroker) Issue(context context.Context, purpose, subjectUserID string, ttl time.Duration) (string, error) {
	token, err := sec.GenerateSecureToken(EphemeralTokenLength)
	if err != nil {
		return "", fmt.Errorf("ephemeral: generate: %w", err)
	}

	if err := broker.store.Set(context, purpose, token, subjectUserID, ttl); err != nil {
		return "", fmt.Errorf("ephemeral: store: %w", err)
	}

	return token, nil
}

/*
Consume redeems token for purpose. The token is gone after this call whatever
the caller does next.

Parameters:
  - context: context.Context
  - purpose: string
  - token: string

Returns:
  - string: The subject user ID
  - error: ErrEphemeralTokenExpiredOrConsumed or storage failures
*/
func (broker *EphemeralTokenBroker) Consume(context context.Context, purpose, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("ephemeral: empty token: %w", apperr.ErrEphemeralTokenExpiredOrConsumed)
	}

	subject, err := broker.store.GetDel(context, purpose, token)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return "", fmt.Errorf("ephemeral: %s: %w", purpose, apperr.ErrEphemeralTokenExpiredOrConsumed)
		}
		return "", fmt.Errorf("ephemeral: consume: %w", err)
	}

	return subject, nil
}
