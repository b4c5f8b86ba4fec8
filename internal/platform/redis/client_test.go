// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package redis_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformredis "github.com/taibuivan/warden/internal/platform/redis"
)

/*
TestOptions parses the URL and applies the tuning.
*/
func TestOptions(t *testing.T) {
	options, err := platformredis.Options("redis://:secret@cache:6379/3")
	require.NoError(t, err)

	assert.Equal(t, "cache:6379", options.Addr)
	assert.Equal(t, "secret", options.Password)
	assert.Equal(t, 3, options.DB)
	assert.Equal(t, 10, options.PoolSize)

	_, err = platformredis.Options("http://cache")
	assert.ErrorContains(t, err, "redis: parse url")
}

/*
TestNewClient connects, then reports a dead server through Ping.
*/
func TestNewClient(t *testing.T) {
	server := miniredis.RunT(t)
	logger := slog.New(slog.DiscardHandler)

	client, err := platformredis.NewClient(context.Background(), "redis://"+server.Addr(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, platformredis.Ping(context.Background(), client))

	server.Close()
	assert.ErrorContains(t, platformredis.Ping(context.Background(), client), "redis: ping")
}
