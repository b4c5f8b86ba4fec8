// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr

import "net/http"

// # Authentication Taxonomy
//
// Every authentication failure is one of the sentinels below. Callers compare
// with [errors.Is] and wrap with fmt.Errorf("...: %w", sentinel). The sentinels
// are shared values and must never be mutated.
//
// Credential-class and token-class entries deliberately render identically so
// that a client cannot tell which check failed. The Kind field is what the
// server logs.

const (
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeInvalidToken       = "INVALID_TOKEN"

	msgInvalidCredentials = "Invalid credentials"
	msgInvalidToken       = "Invalid token"
)

var (
	// ErrInvalidCredentials covers both "no such account" and "wrong password".
	ErrInvalidCredentials = &AppError{
		Code:       codeInvalidCredentials,
		Message:    msgInvalidCredentials,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       "InvalidCredentials",
	}

	// ErrAccountLocked is returned while lockedUntil is in the future.
	ErrAccountLocked = &AppError{
		Code:       codeInvalidCredentials,
		Message:    msgInvalidCredentials,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       "AccountLocked",
	}

	// ErrTwoFactorRequired marks an account that must complete the OTP step.
	ErrTwoFactorRequired = &AppError{
		Code:       codeInvalidCredentials,
		Message:    msgInvalidCredentials,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       "TwoFactorRequired",
	}

	// ErrTwoFactorInvalid is returned for a wrong or stale OTP.
	ErrTwoFactorInvalid = &AppError{
		Code:       codeInvalidCredentials,
		Message:    msgInvalidCredentials,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       "TwoFactorInvalid",
	}

	// ErrEphemeralTokenExpiredOrConsumed is returned when a pending-2FA token
	// is unknown, expired or already used.
	ErrEphemeralTokenExpiredOrConsumed = &AppError{
		Code:       codeInvalidToken,
		Message:    msgInvalidToken,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       "EphemeralTokenExpiredOrConsumed",
	}

	// ErrTokenExpired is returned for a well-signed bearer token past its expiry.
	ErrTokenExpired = &AppError{
		Code:       codeInvalidToken,
		Message:    msgInvalidToken,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       "TokenExpired",
	}

	// ErrTokenInvalidSignature covers bad signatures, malformed tokens and
	// claims that fail validation.
	ErrTokenInvalidSignature = &AppError{
		Code:       codeInvalidToken,
		Message:    msgInvalidToken,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       "TokenInvalidSignature",
	}

	// ErrSessionRevoked is returned when a signature-valid token has no live session.
	ErrSessionRevoked = &AppError{
		Code:       codeInvalidToken,
		Message:    msgInvalidToken,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       "SessionRevoked",
	}

	// ErrEncryptionKeyMismatch is an operational failure: the master key for a
	// payload is missing or the payload does not authenticate.
	ErrEncryptionKeyMismatch = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Kind:       "EncryptionKeyMismatch",
	}

	// ErrInfrastructureTimeout is returned when a store call exceeds its deadline.
	ErrInfrastructureTimeout = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Service temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Kind:       "InfrastructureTimeout",
	}
)

// KindOf returns the taxonomy kind carried by err, or "" when err carries none.
func KindOf(err error) string {
	if ae := As(err); ae != nil {
		return ae.Kind
	}
	return ""
}
