// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/audit"
	"github.com/taibuivan/warden/internal/platform/metrics"
	"github.com/taibuivan/warden/internal/platform/sec"
	"github.com/taibuivan/warden/internal/users/auth"
	"github.com/taibuivan/warden/pkg/uuid"
)

// # Login

/*
TestService_Login_CreatesSession binds a session to the digest of the new access token.
*/
func TestService_Login_CreatesSession(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "alice@example.com", sec.RoleMember)

	result := f.login(t, "alice@example.com")

	require.NotNil(t, result.Tokens)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.Equal(t, account.ID, result.Account.ID)

	sessions := f.sessions.forUser(account.ID)
	require.Len(t, sessions, 1)
	assert.Equal(t, sec.HashToken(result.Tokens.AccessToken), sessions[0].TokenHash)
	assert.Equal(t, "203.0.113.7", sessions[0].IPAddress)

	claims, err := f.tokens.VerifyAccess(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.Subject)
	assert.Equal(t, account.TenantID, claims.TenantID)
	assert.False(t, claims.Impersonated)

	assert.Contains(t, f.sink.actions(), audit.ActionLoginSucceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginTotal.WithLabelValues(metrics.OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionsCreated.WithLabelValues(metrics.ReasonLogin)))
}

/*
TestService_Login_Lockout locks after five failures and refuses the right password.
*/
func TestService_Login_Lockout(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "bob@example.com", sec.RoleMember)
	ctx := context.Background()

	login := func(password string) error {
		_, err := f.service.Login(ctx, auth.LoginInput{Email: "bob@example.com", Password: password})
		return err
	}

	for i := 1; i < auth.MaxFailedAttempts; i++ {
		require.ErrorIs(t, login("wrong"), apperr.ErrInvalidCredentials)
	}
	require.ErrorIs(t, login("wrong"), apperr.ErrAccountLocked)

	// Correct password inside the window: still locked, no session
	require.ErrorIs(t, login(testPassword), apperr.ErrAccountLocked)
	assert.Empty(t, f.sessions.forUser(account.ID))

	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.LoginTotal.WithLabelValues(metrics.OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LoginTotal.WithLabelValues(metrics.OutcomeLocked)))
	assert.Contains(t, f.sink.actions(), audit.ActionLoginLocked)

	// Window elapses
	f.clock.Advance(auth.LockoutDuration + time.Second)
	require.NoError(t, login(testPassword))
	assert.Zero(t, f.accounts.get(account.ID).FailedAttempts)
}

/*
TestService_Login_ErrorsLookAlike renders unknown email, wrong password and lockout identically.
*/
func TestService_Login_ErrorsLookAlike(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "carol@example.com", sec.RoleMember)
	ctx := context.Background()

	_, unknown := f.service.Login(ctx, auth.LoginInput{Email: "nobody@example.com", Password: testPassword})
	_, wrong := f.service.Login(ctx, auth.LoginInput{Email: "carol@example.com", Password: "wrong"})
	for i := 0; i < auth.MaxFailedAttempts; i++ {
		_, _ = f.service.Login(ctx, auth.LoginInput{Email: "carol@example.com", Password: "wrong"})
	}
	_, locked := f.service.Login(ctx, auth.LoginInput{Email: "carol@example.com", Password: testPassword})

	require.ErrorIs(t, unknown, apperr.ErrInvalidCredentials)
	require.ErrorIs(t, wrong, apperr.ErrInvalidCredentials)
	require.ErrorIs(t, locked, apperr.ErrAccountLocked)

	for _, err := range []error{unknown, wrong, locked} {
		rendered := apperr.As(err)
		require.NotNil(t, rendered)
		assert.Equal(t, http.StatusUnauthorized, rendered.HTTPStatus)
		assert.Equal(t, apperr.As(unknown).Code, rendered.Code)
		assert.Equal(t, apperr.As(unknown).Message, rendered.Message)
	}
}

// # Second Factor

/*
TestService_TwoFactorLogin hands out a single-use pending token instead of a session.
*/
func TestService_TwoFactorLogin(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "dave@example.com", sec.RoleMember)
	secret := f.enrollTwoFactor(t, account)
	ctx := context.Background()

	// 1. Password step opens a challenge only
	challenge, err := f.service.Login(ctx, auth.LoginInput{Email: "dave@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.True(t, challenge.RequiresTwoFactor)
	assert.NotEmpty(t, challenge.TempToken)
	assert.Nil(t, challenge.AuthResult)
	assert.Empty(t, f.sessions.forUser(account.ID))

	// 2. Second step authenticates
	result, err := f.service.CompleteTwoFactor(ctx, auth.CompleteTwoFactorInput{
		TempToken: challenge.TempToken,
		Code:      f.code(t, secret),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.Len(t, f.sessions.forUser(account.ID), 1)

	// 3. Replaying the pending token fails even with a fresh valid code
	_, err = f.service.CompleteTwoFactor(ctx, auth.CompleteTwoFactorInput{
		TempToken: challenge.TempToken,
		Code:      f.code(t, secret),
	})
	assert.ErrorIs(t, err, apperr.ErrEphemeralTokenExpiredOrConsumed)
	assert.Equal(t, "INVALID_TOKEN", apperr.As(err).Code)
}

/*
TestService_TwoFactorLogin_WrongCodeBurnsToken forces a fresh login after a bad code.
*/
func TestService_TwoFactorLogin_WrongCodeBurnsToken(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "erin@example.com", sec.RoleMember)
	secret := f.enrollTwoFactor(t, account)
	ctx := context.Background()

	challenge, err := f.service.Login(ctx, auth.LoginInput{Email: "erin@example.com", Password: testPassword})
	require.NoError(t, err)

	_, err = f.service.CompleteTwoFactor(ctx, auth.CompleteTwoFactorInput{TempToken: challenge.TempToken, Code: "000000x"})
	require.ErrorIs(t, err, apperr.ErrTwoFactorInvalid)
	assert.Equal(t, "INVALID_CREDENTIALS", apperr.As(err).Code)

	_, err = f.service.CompleteTwoFactor(ctx, auth.CompleteTwoFactorInput{TempToken: challenge.TempToken, Code: f.code(t, secret)})
	assert.ErrorIs(t, err, apperr.ErrEphemeralTokenExpiredOrConsumed)
	assert.Contains(t, f.sink.actions(), audit.ActionTwoFactorFailed)
}

/*
TestService_TwoFactorLogin_Expired rejects a pending token after its TTL.
*/
func TestService_TwoFactorLogin_Expired(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "frank@example.com", sec.RoleMember)
	secret := f.enrollTwoFactor(t, account)
	ctx := context.Background()

	challenge, err := f.service.Login(ctx, auth.LoginInput{Email: "frank@example.com", Password: testPassword})
	require.NoError(t, err)

	f.redis.FastForward(auth.PendingTwoFactorTTL + time.Second)

	_, err = f.service.CompleteTwoFactor(ctx, auth.CompleteTwoFactorInput{TempToken: challenge.TempToken, Code: f.code(t, secret)})
	assert.ErrorIs(t, err, apperr.ErrEphemeralTokenExpiredOrConsumed)
}

/*
TestService_DisableTwoFactor restores password-only login.
*/
func TestService_DisableTwoFactor(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "gina@example.com", sec.RoleMember)
	secret := f.enrollTwoFactor(t, account)
	ctx := context.Background()
	principal := &sec.Principal{ID: account.ID, TenantID: account.TenantID}

	err := f.service.DisableTwoFactor(ctx, principal, "999999x")
	require.ErrorIs(t, err, apperr.ErrTwoFactorInvalid)

	require.NoError(t, f.service.DisableTwoFactor(ctx, principal, f.code(t, secret)))
	f.login(t, "gina@example.com")

	actions := f.sink.actions()
	assert.Contains(t, actions, audit.ActionTwoFactorEnabled)
	assert.Contains(t, actions, audit.ActionTwoFactorDisabled)
}

// # Sessions

/*
TestService_Authenticate_RevokedSession rejects a still-valid JWT after logout.
*/
func TestService_Authenticate_RevokedSession(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "hank@example.com", sec.RoleMember)
	ctx := context.Background()

	result := f.login(t, "hank@example.com")
	principal := f.principal(t, result.Tokens.AccessToken)
	assert.Equal(t, result.Session.ID, principal.SessionID)

	require.NoError(t, f.service.Logout(ctx, principal))

	// The signature still verifies...
	_, err := f.tokens.VerifyAccess(result.Tokens.AccessToken)
	require.NoError(t, err)

	// ...but the session is gone
	_, err = f.service.Authenticate(ctx, result.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrSessionRevoked)
}

/*
TestService_Authenticate_BadTokens fails closed on tampered and refresh tokens.
*/
func TestService_Authenticate_BadTokens(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "ivy@example.com", sec.RoleMember)
	result := f.login(t, "ivy@example.com")

	tampered := []byte(result.Tokens.AccessToken)
	tampered[len(tampered)-2] ^= 0x01

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"tampered", string(tampered)},
		{"refresh token", result.Tokens.RefreshToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Authenticate(context.Background(), tt.token)
			require.Error(t, err)
			assert.Equal(t, "INVALID_TOKEN", apperr.As(err).Code)
		})
	}
}

/*
TestService_RevokeAllSessions keeps only the calling session.
*/
func TestService_RevokeAllSessions(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "jade@example.com", sec.RoleMember)
	ctx := context.Background()

	first := f.login(t, "jade@example.com")
	current := f.login(t, "jade@example.com")
	third := f.login(t, "jade@example.com")
	require.Len(t, f.sessions.forUser(account.ID), 3)

	count, err := f.service.RevokeAllSessions(ctx, f.principal(t, current.Tokens.AccessToken))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	remaining := f.sessions.forUser(account.ID)
	require.Len(t, remaining, 1)
	assert.Equal(t, sec.HashToken(current.Tokens.AccessToken), remaining[0].TokenHash)

	for _, revoked := range []*auth.AuthResult{first, third} {
		_, err := f.service.Authenticate(ctx, revoked.Tokens.AccessToken)
		assert.ErrorIs(t, err, apperr.ErrSessionRevoked)
	}
	f.principal(t, current.Tokens.AccessToken)
}

/*
TestService_RevokeSession only reaches the caller's own sessions.
*/
func TestService_RevokeSession(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "kim@example.com", sec.RoleMember)
	f.addAccount(t, "lee@example.com", sec.RoleMember)
	ctx := context.Background()

	kim := f.login(t, "kim@example.com")
	kimOther := f.login(t, "kim@example.com")
	lee := f.login(t, "lee@example.com")
	principal := f.principal(t, kim.Tokens.AccessToken)

	err := f.service.RevokeSession(ctx, principal, lee.Session.ID)
	assert.Equal(t, http.StatusNotFound, apperr.As(err).HTTPStatus)
	f.principal(t, lee.Tokens.AccessToken)

	require.NoError(t, f.service.RevokeSession(ctx, principal, kimOther.Session.ID))
	_, err = f.service.Authenticate(ctx, kimOther.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrSessionRevoked)
}

/*
TestService_ListSessions marks the current session.
*/
func TestService_ListSessions(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "max@example.com", sec.RoleMember)

	f.login(t, "max@example.com")
	current := f.login(t, "max@example.com")

	sessions, err := f.service.ListSessions(context.Background(), f.principal(t, current.Tokens.AccessToken))
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	var flagged int
	for _, session := range sessions {
		if session.Current {
			flagged++
			assert.Equal(t, current.Session.ID, session.ID)
		}
	}
	assert.Equal(t, 1, flagged)
}

/*
TestService_Refresh issues a new pair and session without touching the old one.
*/
func TestService_Refresh(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "nina@example.com", sec.RoleMember)
	ctx := context.Background()

	initial := f.login(t, "nina@example.com")

	refreshed, err := f.service.Refresh(ctx, initial.Tokens.RefreshToken, testMeta)
	require.NoError(t, err)
	assert.NotEqual(t, initial.Tokens.AccessToken, refreshed.Tokens.AccessToken)
	assert.Len(t, f.sessions.forUser(account.ID), 2)
	f.principal(t, refreshed.Tokens.AccessToken)

	_, err = f.service.Refresh(ctx, initial.Tokens.AccessToken, testMeta)
	assert.Equal(t, "INVALID_TOKEN", apperr.As(err).Code)
}

/*
TestService_SweepExpired removes sessions past their expiry.
*/
func TestService_SweepExpired(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "omar@example.com", sec.RoleMember)

	f.login(t, "omar@example.com")
	f.clock.Advance(auth.SessionTTL + time.Minute)
	f.login(t, "omar@example.com")

	count, err := f.service.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Len(t, f.sessions.forUser(account.ID), 1)
}

// # Impersonation

/*
TestService_Impersonation pivots a staff member and restores the home tenant.
*/
func TestService_Impersonation(t *testing.T) {
	f := newFixture(t)
	staff := f.addAccount(t, "staff@example.com", sec.RoleStaff)
	ctx := context.Background()

	tenantB, tenantC := uuid.New(), uuid.New()
	f.tenants[tenantB] = true
	f.tenants[tenantC] = true

	home := f.principal(t, f.login(t, "staff@example.com").Tokens.AccessToken)

	// 1. Pivot into B
	intoB, err := f.service.Impersonate(ctx, home, tenantB, testMeta)
	require.NoError(t, err)

	asB := f.principal(t, intoB.Tokens.AccessToken)
	assert.Equal(t, tenantB, asB.TenantID)
	assert.True(t, asB.Impersonated)
	assert.Equal(t, staff.TenantID, asB.OriginalTenantID)

	// 2. Pivot from B into C keeps the first home
	intoC, err := f.service.Impersonate(ctx, asB, tenantC, testMeta)
	require.NoError(t, err)

	asC := f.principal(t, intoC.Tokens.AccessToken)
	assert.Equal(t, tenantC, asC.TenantID)
	assert.Equal(t, staff.TenantID, asC.OriginalTenantID)

	// 3. Stop restores home and retires the impersonation session
	restored, err := f.service.StopImpersonation(ctx, asC, testMeta)
	require.NoError(t, err)

	back := f.principal(t, restored.Tokens.AccessToken)
	assert.Equal(t, staff.TenantID, back.TenantID)
	assert.False(t, back.Impersonated)
	assert.Empty(t, back.OriginalTenantID)

	_, err = f.service.Authenticate(ctx, intoC.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrSessionRevoked)

	actions := f.sink.actions()
	assert.Contains(t, actions, audit.ActionImpersonationStarted)
	assert.Contains(t, actions, audit.ActionImpersonationStopped)
}

/*
TestService_Impersonation_PivotHome yields a plain pair when returning to the home tenant.
*/
func TestService_Impersonation_PivotHome(t *testing.T) {
	f := newFixture(t)
	staff := f.addAccount(t, "pivot@example.com", sec.RoleStaff)
	ctx := context.Background()

	tenantB := uuid.New()
	f.tenants[tenantB] = true

	home := f.principal(t, f.login(t, "pivot@example.com").Tokens.AccessToken)
	intoB, err := f.service.Impersonate(ctx, home, tenantB, testMeta)
	require.NoError(t, err)

	backHome, err := f.service.Impersonate(ctx, f.principal(t, intoB.Tokens.AccessToken), staff.TenantID, testMeta)
	require.NoError(t, err)

	principal := f.principal(t, backHome.Tokens.AccessToken)
	assert.Equal(t, staff.TenantID, principal.TenantID)
	assert.False(t, principal.Impersonated)
}

/*
TestService_Impersonation_Refused covers role, target and state checks.
*/
func TestService_Impersonation_Refused(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "member@example.com", sec.RoleMember)
	staff := f.addAccount(t, "ops@example.com", sec.RoleStaff)
	ctx := context.Background()

	member := f.principal(t, f.login(t, "member@example.com").Tokens.AccessToken)
	operator := f.principal(t, f.login(t, "ops@example.com").Tokens.AccessToken)

	existing := uuid.New()
	f.tenants[existing] = true

	tests := []struct {
		name       string
		principal  *sec.Principal
		tenantID   string
		wantStatus int
	}{
		{"member", member, existing, http.StatusForbidden},
		{"unknown tenant", operator, uuid.New(), http.StatusNotFound},
		{"own tenant", operator, staff.TenantID, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Impersonate(ctx, tt.principal, tt.tenantID, testMeta)
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, apperr.As(err).HTTPStatus)
		})
	}

	t.Run("stop without impersonating", func(t *testing.T) {
		_, err := f.service.StopImpersonation(ctx, operator, testMeta)
		assert.Equal(t, http.StatusForbidden, apperr.As(err).HTTPStatus)
	})
}

/*
TestService_Impersonation_DemotedStaff uses the stored role, not the token role.
*/
func TestService_Impersonation_DemotedStaff(t *testing.T) {
	f := newFixture(t)
	staff := f.addAccount(t, "former@example.com", sec.RoleStaff)
	ctx := context.Background()

	principal := f.principal(t, f.login(t, "former@example.com").Tokens.AccessToken)
	require.Equal(t, sec.RoleStaff, principal.Role)

	demoted := f.accounts.get(staff.ID)
	demoted.Role = sec.RoleMember
	f.accounts.add(&demoted)

	target := uuid.New()
	f.tenants[target] = true

	_, err := f.service.Impersonate(ctx, principal, target, testMeta)
	assert.Equal(t, http.StatusForbidden, apperr.As(err).HTTPStatus)
}

/*
TestService_Refresh_DemotedStaffLosesPivot scopes a refreshed pair back home
once the stored role is no longer staff.
*/
func TestService_Refresh_DemotedStaffLosesPivot(t *testing.T) {
	f := newFixture(t)
	staff := f.addAccount(t, "pivot@example.com", sec.RoleStaff)
	ctx := context.Background()

	target := uuid.New()
	f.tenants[target] = true

	principal := f.principal(t, f.login(t, "pivot@example.com").Tokens.AccessToken)
	pivoted, err := f.service.Impersonate(ctx, principal, target, testMeta)
	require.NoError(t, err)

	// Still staff: the pivot survives a refresh.
	kept, err := f.service.Refresh(ctx, pivoted.Tokens.RefreshToken, testMeta)
	require.NoError(t, err)
	keptPrincipal := f.principal(t, kept.Tokens.AccessToken)
	assert.True(t, keptPrincipal.Impersonated)
	assert.Equal(t, target, keptPrincipal.TenantID)

	demoted := f.accounts.get(staff.ID)
	demoted.Role = sec.RoleMember
	f.accounts.add(&demoted)

	refreshed, err := f.service.Refresh(ctx, kept.Tokens.RefreshToken, testMeta)
	require.NoError(t, err)

	home := f.principal(t, refreshed.Tokens.AccessToken)
	assert.False(t, home.Impersonated)
	assert.Empty(t, home.OriginalTenantID)
	assert.Equal(t, staff.TenantID, home.TenantID)
	assert.Equal(t, sec.RoleMember, home.Role)

	claims, err := f.tokens.VerifyRefresh(refreshed.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.False(t, claims.Impersonated)
	assert.Equal(t, staff.TenantID, claims.TenantID)
}

// # Ambient

/*
TestService_AuditFailureIsSwallowed keeps authentication working when the sink is down.
*/
func TestService_AuditFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errSinkDown
	f.addAccount(t, "quinn@example.com", sec.RoleMember)

	f.login(t, "quinn@example.com")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuditFailures))
}

/*
TestService_StoreTimeout surfaces as an infrastructure error, not an auth failure.
*/
func TestService_StoreTimeout(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "rosa@example.com", sec.RoleMember)
	result := f.login(t, "rosa@example.com")

	f.sessions.err = apperr.ErrInfrastructureTimeout

	_, err := f.service.Authenticate(context.Background(), result.Tokens.AccessToken)
	require.ErrorIs(t, err, apperr.ErrInfrastructureTimeout)
	assert.NotErrorIs(t, err, apperr.ErrSessionRevoked)
	assert.Equal(t, http.StatusServiceUnavailable, apperr.As(err).HTTPStatus)
}
