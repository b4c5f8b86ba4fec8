// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/warden/internal/platform/telemetry"
)

/*
TestSetup_Disabled returns a harmless shutdown when no endpoint is configured.
*/
func TestSetup_Disabled(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), telemetry.Settings{ServiceName: "warden-api"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

/*
TestSetup_Enabled builds a provider without contacting the collector.
*/
func TestSetup_Enabled(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), telemetry.Settings{
		ServiceName:  "warden-api",
		Endpoint:     "127.0.0.1:4318",
		SamplingRate: 0,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
