// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/warden/internal/platform/audit"
	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/dberr"
	"github.com/taibuivan/warden/internal/platform/envelope"
	"github.com/taibuivan/warden/internal/platform/metrics"
	"github.com/taibuivan/warden/internal/platform/otp"
	"github.com/taibuivan/warden/internal/platform/sec"
	"github.com/taibuivan/warden/internal/users/auth"
	"github.com/taibuivan/warden/pkg/pointer"
	"github.com/taibuivan/warden/pkg/uuid"
)

const (
	testPassword = "correct horse battery staple"
	testSecret   = "0123456789abcdef0123456789abcdef"
	testIssuer   = "warden-test"
)

// # Clock

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// # Accounts

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: map[string]*auth.Account{}}
}

func (f *fakeAccounts) add(account *auth.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.ID] = account
}

// get returns a snapshot of the stored row.
func (f *fakeAccounts) get(id string) auth.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.accounts[id]
}

func (f *fakeAccounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Email == email {
			clone := *account
			return &clone, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeAccounts) FindByID(_ context.Context, id string) (*auth.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, dberr.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (f *fakeAccounts) RecordFailure(_ context.Context, id string, threshold int, lockedUntil, _ time.Time) (*auth.FailureState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, dberr.ErrNotFound
	}

	account.FailedAttempts++
	account.LockedUntil = nil
	if account.FailedAttempts >= threshold {
		account.LockedUntil = pointer.To(lockedUntil)
	}
	return &auth.FailureState{Attempts: account.FailedAttempts, LockedUntil: account.LockedUntil}, nil
}

func (f *fakeAccounts) RecordSuccess(_ context.Context, id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return dberr.ErrNotFound
	}
	if account.IsLocked(now) {
		return apperr.ErrAccountLocked
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = pointer.To(now)
	return nil
}

func (f *fakeAccounts) SetTwoFactorSecret(_ context.Context, id string, secret *envelope.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return dberr.ErrNotFound
	}
	account.TwoFactorSecret = secret
	return nil
}

func (f *fakeAccounts) EnableTwoFactor(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok || account.TwoFactorSecret == nil {
		return dberr.ErrNotFound
	}
	account.TwoFactorEnabled = true
	return nil
}

func (f *fakeAccounts) DisableTwoFactor(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return dberr.ErrNotFound
	}
	account.TwoFactorEnabled = false
	account.TwoFactorSecret = nil
	return nil
}

// # Sessions

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
	err      error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*auth.Session{}}
}

func (f *fakeSessions) forUser(userID string) []auth.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []auth.Session
	for _, session := range f.sessions {
		if session.UserID == userID {
			result = append(result, *session)
		}
	}
	return result
}

func (f *fakeSessions) Create(_ context.Context, session *auth.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	clone := *session
	f.sessions[session.ID] = &clone
	return nil
}

func (f *fakeSessions) FindActiveByTokenHash(_ context.Context, tokenHash string, now time.Time) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, session := range f.sessions {
		if session.TokenHash == tokenHash && session.ExpiresAt.After(now) {
			clone := *session
			return &clone, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (f *fakeSessions) FindByID(_ context.Context, id string) (*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, dberr.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (f *fakeSessions) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]*auth.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := []*auth.Session{}
	for _, session := range f.sessions {
		if session.UserID == userID && session.ExpiresAt.After(now) {
			clone := *session
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessions) DeleteByTokenHash(_ context.Context, userID, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, session := range f.sessions {
		if session.UserID == userID && session.TokenHash == tokenHash {
			delete(f.sessions, id)
		}
	}
	return nil
}

func (f *fakeSessions) DeleteAllForUser(_ context.Context, userID, exceptTokenHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for id, session := range f.sessions {
		if session.UserID != userID || (exceptTokenHash != "" && session.TokenHash == exceptTokenHash) {
			continue
		}
		delete(f.sessions, id)
		count++
	}
	return count, nil
}

func (f *fakeSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for id, session := range f.sessions {
		if session.ExpiresAt.Before(now) {
			delete(f.sessions, id)
			count++
		}
	}
	return count, nil
}

// # Tenants

type fakeTenants map[string]bool

func (f fakeTenants) Exists(_ context.Context, tenantID string) (bool, error) {
	return f[tenantID], nil
}

// # Audit

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *recordingSink) Emit(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) actions() []audit.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]audit.Action, 0, len(s.events))
	for _, event := range s.events {
		actions = append(actions, event.Action)
	}
	return actions
}

// # Fixture

type fixture struct {
	service       *auth.Service
	accounts      *fakeAccounts
	sessions      *fakeSessions
	tenants       fakeTenants
	tokens        *sec.TokenService
	cipher        *envelope.Cipher
	authenticator *otp.Authenticator
	sink          *recordingSink
	metrics       *metrics.Auth
	clock         *fakeClock
	redis         *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	signer, err := sec.NewHMACSigner(testSecret)
	require.NoError(t, err)

	keyring, err := envelope.NewKeyring(map[int][]byte{1: bytes.Repeat([]byte{7}, envelope.KeySize)}, 1)
	require.NoError(t, err)

	f := &fixture{
		accounts:      newFakeAccounts(),
		sessions:      newFakeSessions(),
		tenants:       fakeTenants{},
		tokens:        sec.NewTokenService(signer, testIssuer),
		cipher:        envelope.NewCipher(keyring),
		authenticator: otp.NewAuthenticator("Warden"),
		sink:          &recordingSink{},
		metrics:       metrics.NewNopAuth(),
		clock:         newFakeClock(),
		redis:         server,
	}

	f.service = auth.NewService(auth.Deps{
		Accounts:      f.accounts,
		Sessions:      f.sessions,
		Tenants:       f.tenants,
		Ephemeral:     auth.NewEphemeralStore(client, time.Second),
		Tokens:        f.tokens,
		Cipher:        f.cipher,
		Authenticator: f.authenticator,
		Audit:         f.sink,
		Metrics:       f.metrics,
		Clock:         f.clock.Now,
	})

	return f
}

// addAccount stores an account whose password is [testPassword].
func (f *fixture) addAccount(t *testing.T, email string, role sec.UserRole) *auth.Account {
	t.Helper()

	hash, err := sec.HashPassword(testPassword)
	require.NoError(t, err)

	tenantID := uuid.New()
	f.tenants[tenantID] = true

	account := &auth.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		TenantID:     tenantID,
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	f.accounts.add(account)

	clone := *account
	return &clone
}

// enrollTwoFactor runs generate + enable and returns the plaintext secret.
func (f *fixture) enrollTwoFactor(t *testing.T, account *auth.Account) string {
	t.Helper()

	principal := &sec.Principal{ID: account.ID, Email: account.Email, Role: account.Role, TenantID: account.TenantID}

	enrollment, err := f.service.GenerateTwoFactor(context.Background(), principal)
	require.NoError(t, err)

	require.NoError(t, f.service.EnableTwoFactor(context.Background(), principal, f.code(t, enrollment.Secret)))
	return enrollment.Secret
}

// code returns the OTP for secret at the fixture clock.
func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := f.authenticator.Code(secret, f.clock.Now())
	require.NoError(t, err)
	return code
}

// login performs a password login expected to succeed without 2FA.
func (f *fixture) login(t *testing.T, email string) *auth.AuthResult {
	t.Helper()
	result, err := f.service.Login(context.Background(), auth.LoginInput{
		Email:    email,
		Password: testPassword,
		Meta:     auth.ClientMeta{IPAddress: "203.0.113.7", UserAgent: "warden-test"},
	})
	require.NoError(t, err)
	require.False(t, result.RequiresTwoFactor)
	return result.AuthResult
}

// principal resolves accessToken exactly as the middleware would.
func (f *fixture) principal(t *testing.T, accessToken string) *sec.Principal {
	t.Helper()
	principal, err := f.service.Authenticate(context.Background(), accessToken)
	require.NoError(t, err)
	return principal
}

var errSinkDown = errors.New("sink down")
