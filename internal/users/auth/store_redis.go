// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/warden/internal/platform/constants"
	"github.com/taibuivan/warden/internal/platform/dberr"
	"github.com/taibuivan/warden/internal/platform/sec"
)

// RedisEphemeralStore implements [EphemeralStore] using Redis SET EX and GETDEL.
type RedisEphemeralStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewEphemeralStore creates a new Redis-backed EphemeralStore.
func NewEphemeralStore(client *redis.Client, timeout time.Duration) *RedisEphemeralStore {
	return &RedisEphemeralStore{client: client, timeout: timeout}
}

/*
Set stores value under the purpose-scoped key for ttl.

Parameters:
  - context: context.Context
  - purpose: string
  - token: string
  - value: string
  - ttl: time.Duration

Returns:
  - error: Execution errors
*/
func (repository *RedisEphemeralStore) Set(context context.Context, purpose, token, value string, ttl time.Duration) error {
	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	if err := repository.client.Set(ctx, ephemeralKey(purpose, token), value, ttl).Err(); err != nil {
		return dberr.Wrap(err, "redis_ephemeral_set_failed")
	}

	return nil
}

/*
GetDel reads and removes the value in one GETDEL round trip.

Description: Returns dberr.ErrNotFound if the key is absent, expired or was
already taken by another caller.

Parameters:
  - context: context.Context
  - purpose: string
  - token: string

Returns:
  - string: Stored value
  - error: dberr.ErrNotFound or connectivity errors
*/
func (repository *RedisEphemeralStore) GetDel(context context.Context, purpose, token string) (string, error) {
	ctx, cancel := dberr.WithTimeout(context, repository.timeout)
	defer cancel()

	value, err := repository.client.GetDel(ctx, ephemeralKey(purpose, token)).Result()
	if err != nil {
		return "", dberr.Wrap(err, "redis_ephemeral_getdel_failed")
	}

	return value, nil
}

// ephemeralKey stores the token digest, never the raw token.
func ephemeralKey(purpose, token string) string {
	return constants.RedisPrefixEphemeral + purpose + ":" + sec.HashToken(token)
}
