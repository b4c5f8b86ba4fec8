// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"time"

	"github.com/taibuivan/warden/internal/platform/sec"
)

// # Authentication Constraints

const (
	// MaxFailedAttempts is the failure count that engages the lockout.
	MaxFailedAttempts = 5

	// LockoutDuration is the fixed lockout window. There is no exponential backoff.
	LockoutDuration = 15 * time.Minute

	// SessionTTL matches the access token lifetime. Refresh creates a new session.
	SessionTTL = sec.AccessTokenTTL

	// PendingTwoFactorTTL bounds the gap between password check and OTP submission.
	PendingTwoFactorTTL = 5 * time.Minute

	// EphemeralTokenLength is the byte length of a random ephemeral token.
	EphemeralTokenLength = 32

	// TwoFactorCodeLength is the number of digits in an OTP.
	TwoFactorCodeLength = 6
)

// # Ephemeral Token Purposes

const (
	// PurposePendingTwoFactor scopes tokens that bridge a password check to its OTP step.
	PurposePendingTwoFactor = "pending-2fa"
)
