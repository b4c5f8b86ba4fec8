// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants holds process-wide values shared by the server, the
middleware chain and the stores.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "warden-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	DefaultReadTimeout       = 5 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the chi request deadline and the postgres
	// statement_timeout.
	GlobalRequestTimeout = 15 * time.Second

	// DefaultWriteTimeout outlives GlobalRequestTimeout so a handler that hits
	// the request deadline can still write its error body.
	DefaultWriteTimeout = GlobalRequestTimeout + 5*time.Second

	// ShutdownTimeout is how long in-flight requests may drain.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the per-IP refill rate.
	DefaultRateLimitRPS = 20.0
	// DefaultRateLimitBurst is the per-IP bucket size.
	DefaultRateLimitBurst = 40

	RateLimitCleanupInterval = time.Minute
	// RateLimitClientTTL is the idle time after which a bucket is evicted.
	RateLimitClientTTL = 3 * time.Minute
)

// # HTTP

const (
	// BearerScheme is compared case-insensitively.
	BearerScheme = "bearer"

	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderAuthorization = "Authorization"

	FieldStatus = "status"
	FieldChecks = "checks"
)

// # Redis

// RedisPrefixEphemeral namespaces single-use tokens. Keys are
// prefix + purpose + ":" + sha256(token).
const RedisPrefixEphemeral = "auth:ephemeral:"
