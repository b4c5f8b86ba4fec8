// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/ctxutil"
	"github.com/taibuivan/warden/internal/platform/envelope"
	"github.com/taibuivan/warden/internal/platform/otp"
)

var (
	errTwoFactorAlreadyEnabled = apperr.Conflict("Two-factor authentication is already enabled")
	errTwoFactorNotStarted     = apperr.Conflict("Two-factor enrollment has not been started")
	errTwoFactorNotEnabled     = apperr.Conflict("Two-factor authentication is not enabled")
)

// TwoFactorEnrollment manages TOTP secrets, which are only ever stored encrypted.
//
// # State Machine
//
//	NOT_ENROLLED -> SECRET_GENERATED -> ENABLED -> NOT_ENROLLED (via Disable)
//
// Until the first successful [TwoFactorEnrollment.VerifyAndEnable] the account
// logs in with its password alone.
type TwoFactorEnrollment struct {
	accounts      AccountRepository
	cipher        *envelope.Cipher
	authenticator *otp.Authenticator
	now           func() time.Time
}

// NewTwoFactorEnrollment creates a TwoFactorEnrollment. A nil clock means [time.Now].
func NewTwoFactorEnrollment(accounts AccountRepository, cipher *envelope.Cipher, authenticator *otp.Authenticator, clock func() time.Time) *TwoFactorEnrollment {
	if clock == nil {
		clock = time.Now
	}
	return &TwoFactorEnrollment{
		accounts:      accounts,
		cipher:        cipher,
		authenticator: authenticator,
		now:           clock,
	}
}

/*
Generate creates a fresh secret for account and stores it encrypted.

Description: Calling it again before enabling replaces the pending secret.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - *otp.Enrollment: Secret, otpauth URL and QR code for the authenticator app
  - error: Conflict if 2FA is already enabled, or encryption / storage failures
*/
func (enrollment *TwoFactorEnrollment) Generate(context context.Context, account *Account) (*otp.Enrollment, error) {
	if account.TwoFactorEnabled {
		return nil, errTwoFactorAlreadyEnabled
	}

	generated, err := enrollment.authenticator.Generate(account.Email)
	if err != nil {
		return nil, fmt.Errorf("two_factor: generate: %w", err)
	}

	// Encrypt before the first write so no plaintext secret ever reaches storage
	payload, err := enrollment.cipher.Encrypt([]byte(generated.Secret))
	if err != nil {
		return nil, fmt.Errorf("two_factor: encrypt: %w", err)
	}

	if err := enrollment.accounts.SetTwoFactorSecret(context, account.ID, payload); err != nil {
		return nil, fmt.Errorf("two_factor: store secret: %w", err)
	}

	account.TwoFactorSecret = payload
	return generated, nil
}

/*
VerifyAndEnable confirms the pending secret with code and turns 2FA on.

Parameters:
  - context: context.Context
  - userID: string
  - code: string

Returns:
  - error: Conflict for a wrong state, ErrTwoFactorInvalid for a wrong code
*/
func (enrollment *TwoFactorEnrollment) VerifyAndEnable(context context.Context, userID, code string) error {
	account, err := enrollment.accounts.FindByID(context, userID)
	if err != nil {
		return fmt.Errorf("two_factor: load account: %w", err)
	}

	if account.TwoFactorEnabled {
		return errTwoFactorAlreadyEnabled
	}
	if account.TwoFactorSecret == nil {
		return errTwoFactorNotStarted
	}

	if err := enrollment.check(context, account, code); err != nil {
		return err
	}

	if err := enrollment.accounts.EnableTwoFactor(context, account.ID); err != nil {
		return fmt.Errorf("two_factor: enable: %w", err)
	}

	account.TwoFactorEnabled = true
	return nil
}

/*
Verify checks code against the enabled secret of account.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - error: ErrTwoFactorInvalid, ErrEncryptionKeyMismatch or storage failures
*/
func (enrollment *TwoFactorEnrollment) Verify(context context.Context, account *Account, code string) error {
	if !account.TwoFactorEnabled || account.TwoFactorSecret == nil {
		return fmt.Errorf("two_factor: account not enrolled: %w", apperr.ErrTwoFactorInvalid)
	}
	return enrollment.check(context, account, code)
}

/*
Disable clears 2FA after proof of possession of the current secret.

Parameters:
  - context: context.Context
  - userID: string
  - code: string

Returns:
  - error: Conflict if 2FA is off, ErrTwoFactorInvalid for a wrong code
*/
func (enrollment *TwoFactorEnrollment) Disable(context context.Context, userID, code string) error {
	account, err := enrollment.accounts.FindByID(context, userID)
	if err != nil {
		return fmt.Errorf("two_factor: load account: %w", err)
	}

	if !account.TwoFactorEnabled {
		return errTwoFactorNotEnabled
	}

	if err := enrollment.check(context, account, code); err != nil {
		return err
	}

	if err := enrollment.accounts.DisableTwoFactor(context, account.ID); err != nil {
		return fmt.Errorf("two_factor: disable: %w", err)
	}

	account.TwoFactorEnabled = false
	account.TwoFactorSecret = nil
	return nil
}

// check decrypts the stored secret and validates code at the current instant.
func (enrollment *TwoFactorEnrollment) check(context context.Context, account *Account, code string) error {
	secret, err := enrollment.secret(context, account)
	if err != nil {
		return err
	}

	if !enrollment.authenticator.Verify(secret, code, enrollment.now()) {
		return fmt.Errorf("two_factor: code rejected: %w", apperr.ErrTwoFactorInvalid)
	}

	return nil
}

// secret decrypts the stored secret and re-wraps it when its master key is retired.
func (enrollment *TwoFactorEnrollment) secret(context context.Context, account *Account) (string, error) {
	plaintext, err := enrollment.cipher.Decrypt(account.TwoFactorSecret)
	if err != nil {
		return "", fmt.Errorf("two_factor: decrypt secret of %s: %w", account.ID, err)
	}

	if enrollment.cipher.NeedsRewrap(account.TwoFactorSecret) {
		enrollment.rewrap(context, account)
	}

	return string(plaintext), nil
}

// rewrap moves the secret to the active master key. Failure only costs a retry next time.
func (enrollment *TwoFactorEnrollment) rewrap(context context.Context, account *Account) {
	logger := ctxutil.GetLogger(context)

	rewrapped, err := enrollment.cipher.Rewrap(account.TwoFactorSecret)
	if err == nil {
		err = enrollment.accounts.SetTwoFactorSecret(context, account.ID, rewrapped)
	}
	if err != nil {
		logger.Warn("two_factor_rewrap_failed", slog.String("user_id", account.ID), slog.Any("error", err))
		return
	}

	logger.Info("two_factor_secret_rewrapped",
		slog.String("user_id", account.ID),
		slog.Int("key_version", rewrapped.KeyVersion),
	)
	account.TwoFactorSecret = rewrapped
}
