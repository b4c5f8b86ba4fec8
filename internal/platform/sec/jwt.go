// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small interfaces.
//
// # Signing Modes
//
// A [Signer] strategy is chosen once at startup: [RSASigner] (RS256, private key
// signs, public key / JWKS verifies) or [HMACSigner] (HS256, one shared secret).
// [TokenService] never branches on the mode per call.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/taibuivan/warden/internal/platform/apperr"
)

// # Token Lifetimes

const (
	// AccessTokenTTL is the lifetime of an access token. Sessions share it.
	AccessTokenTTL = 15 * time.Minute

	// RefreshTokenTTL is the lifetime of a refresh token.
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenType distinguishes access tokens from refresh tokens inside the claims.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the closed claim set carried by every token Warden issues.
//
// Custom application claims are abbreviated to keep the JWT payload small.
type Claims struct {
	jwt.RegisteredClaims

	Email    string    `json:"eml"`
	Role     string    `json:"rol"`
	TenantID string    `json:"tid"`
	Type     TokenType `json:"typ"`

	// Impersonation claims. Both set or both empty.
	Impersonated     bool   `json:"imp,omitempty"`
	OriginalTenantID string `json:"otid,omitempty"`
}

// validate enforces the closed structure after the signature has been checked.
func (c *Claims) validate(expected TokenType) error {
	switch {
	case c.Subject == "":
		return errors.New("missing subject")
	case c.TenantID == "":
		return errors.New("missing tenant")
	case c.Type != expected:
		return fmt.Errorf("token type %q, want %q", c.Type, expected)
	case c.Impersonated != (c.OriginalTenantID != ""):
		return errors.New("inconsistent impersonation claims")
	case c.ExpiresAt == nil:
		return errors.New("missing expiry")
	}
	return nil
}

// Subject describes who a token pair is minted for.
type Subject struct {
	UserID   string
	Email    string
	Role     UserRole
	TenantID string

	// OriginalTenantID is set only for an impersonation pivot.
	OriginalTenantID string
}

// TokenPair is the result of a successful issue.
type TokenPair struct {
	AccessToken      string    `json:"access"`
	RefreshToken     string    `json:"refresh"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// # Token Service

// TokenService issues and verifies access / refresh tokens with one [Signer].
type TokenService struct {
	signer Signer
	issuer string
	now    func() time.Time
}

// NewTokenService creates a new TokenService bound to a signing strategy.
func NewTokenService(signer Signer, issuer string) *TokenService {
	return &TokenService{signer: signer, issuer: issuer, now: time.Now}
}

// WithClock returns a copy of the service that reads time from now. Used by tests.
func (service *TokenService) WithClock(now func() time.Time) *TokenService {
	clone := *service
	clone.now = now
	return &clone
}

// Signer exposes the configured signing strategy (used by the JWKS endpoint).
func (service *TokenService) Signer() Signer {
	return service.signer
}

// Issue mints an access / refresh pair for subject.
func (service *TokenService) Issue(subject Subject) (*TokenPair, error) {
	issuedAt := service.now()

	access, accessExpiry, err := service.sign(subject, TokenTypeAccess, issuedAt, AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refresh, refreshExpiry, err := service.sign(subject, TokenTypeRefresh, issuedAt, RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// VerifyAccess checks an access token. It fails closed with
// [apperr.ErrTokenExpired] or [apperr.ErrTokenInvalidSignature].
func (service *TokenService) VerifyAccess(token string) (*Claims, error) {
	return service.verify(token, TokenTypeAccess)
}

// VerifyRefresh checks a refresh token with the same guarantees as [VerifyAccess].
func (service *TokenService) VerifyRefresh(token string) (*Claims, error) {
	return service.verify(token, TokenTypeRefresh)
}

func (service *TokenService) sign(subject Subject, tokenType TokenType, issuedAt time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := issuedAt.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.UserID,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:            subject.Email,
		Role:             string(subject.Role),
		TenantID:         subject.TenantID,
		Type:             tokenType,
		Impersonated:     subject.OriginalTenantID != "",
		OriginalTenantID: subject.OriginalTenantID,
	}

	token := jwt.NewWithClaims(service.signer.Method(), claims)
	if keyID := service.signer.KeyID(); keyID != "" {
		token.Header["kid"] = keyID
	}

	signed, err := token.SignedString(service.signer.SigningKey())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sec: failed to sign %s token: %w", tokenType, err)
	}

	return signed, expiresAt, nil
}

func (service *TokenService) verify(tokenString string, expected TokenType) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{service.signer.Method().Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(service.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return service.signer.VerificationKey(), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("sec: %w", apperr.ErrTokenExpired)
		}
		return nil, fmt.Errorf("sec: %w: %v", apperr.ErrTokenInvalidSignature, err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("sec: %w", apperr.ErrTokenInvalidSignature)
	}

	if err := claims.validate(expected); err != nil {
		return nil, fmt.Errorf("sec: %w: %v", apperr.ErrTokenInvalidSignature, err)
	}

	return claims, nil
}
