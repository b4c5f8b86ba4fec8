// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/audit"
	"github.com/taibuivan/warden/internal/platform/ctxutil"
	"github.com/taibuivan/warden/internal/platform/dberr"
	"github.com/taibuivan/warden/internal/platform/envelope"
	"github.com/taibuivan/warden/internal/platform/metrics"
	"github.com/taibuivan/warden/internal/platform/otp"
	"github.com/taibuivan/warden/internal/platform/sec"
)

const tracerName = "github.com/taibuivan/warden/internal/users/auth"

// # Dependencies

// Deps lists everything the orchestrator is assembled from.
type Deps struct {
	Accounts  AccountRepository
	Sessions  SessionRepository
	Tenants   TenantDirectory
	Ephemeral EphemeralStore

	Tokens        *sec.TokenService
	Cipher        *envelope.Cipher
	Authenticator *otp.Authenticator

	Audit   audit.Sink
	Metrics *metrics.Auth

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service drives the authentication state machine.
//
// # States
//
//	START -> CREDENTIALS_CHECKED -> AUTHENTICATED
//	START -> CREDENTIALS_CHECKED -> TWO_FACTOR_PENDING -> AUTHENTICATED
//
// Nothing is retried. Every failure is terminal for its request.
type Service struct {
	accounts    AccountRepository
	tenants     TenantDirectory
	credentials *CredentialStore
	sessions    *SessionRegistry
	twoFactor   *TwoFactorEnrollment
	ephemeral   *EphemeralTokenBroker
	tokens      *sec.TokenService
	audit       audit.Sink
	metrics     *metrics.Auth
	tracer      trace.Tracer
	now         func() time.Time
}

// NewService constructs the orchestrator and its components from deps.
func NewService(deps Deps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	sink := deps.Audit
	if sink == nil {
		sink = audit.NewLogSink()
	}

	counters := deps.Metrics
	if counters == nil {
		counters = metrics.NewNopAuth()
	}

	return &Service{
		accounts:    deps.Accounts,
		tenants:     deps.Tenants,
		credentials: NewCredentialStore(deps.Accounts, clock),
		sessions:    NewSessionRegistry(deps.Sessions, clock),
		twoFactor:   NewTwoFactorEnrollment(deps.Accounts, deps.Cipher, deps.Authenticator, clock),
		ephemeral:   NewEphemeralTokenBroker(deps.Ephemeral),
		tokens:      deps.Tokens,
		audit:       sink,
		metrics:     counters,
		tracer:      otel.Tracer(tracerName),
		now:         clock,
	}
}

// Sessions exposes the registry for maintenance jobs such as the sweeper.
func (service *Service) Sessions() *SessionRegistry {
	return service.sessions
}

// # Results

// AuthResult is the terminal AUTHENTICATED payload.
type AuthResult struct {
	Tokens  *sec.TokenPair
	Account *Account
	Session *Session
}

// LoginResult is either an [AuthResult] or a pending second-factor challenge.
type LoginResult struct {
	*AuthResult

	RequiresTwoFactor bool
	TempToken         string
}

// # Login Flow

// LoginInput holds the credentials of one login attempt.
type LoginInput struct {
	Email    string
	Password string
	Meta     ClientMeta
}

/*
Login verifies credentials and either authenticates or opens a 2FA challenge.

Description: On success without 2FA a token pair and a session are created. With
2FA enabled only a pending token is returned; no tokens, no session.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginResult: Tokens or a pending challenge
  - error: ErrInvalidCredentials, ErrAccountLocked or infrastructure failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (result *LoginResult, err error) {
	ctx, span := service.tracer.Start(context, "auth.Login")
	defer func() { finishSpan(span, err) }()

	// 1. Password + lockout
	account, err := service.credentials.Verify(ctx, input.Email, input.Password)
	if err != nil {
		service.recordLoginFailure(ctx, input.Email, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("user.id", account.ID))

	// 2. Second factor required: hand out a pending token instead of a session
	if account.TwoFactorEnabled {
		tempToken, err := service.ephemeral.Issue(ctx, PurposePendingTwoFactor, account.ID, PendingTwoFactorTTL)
		if err != nil {
			service.metrics.LoginTotal.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, fmt.Errorf("auth_service_pending_token_failed: %w", err)
		}

		service.metrics.LoginTotal.WithLabelValues(metrics.OutcomeTwoFactorNeeded).Inc()
		service.emit(ctx, audit.Event{
			Action:   audit.ActionTwoFactorChallenge,
			UserID:   account.ID,
			TenantID: account.TenantID,
		})

		return &LoginResult{RequiresTwoFactor: true, TempToken: tempToken}, nil
	}

	// 3. Authenticated
	authenticated, err := service.establish(ctx, account, account.subject(), input.Meta, metrics.ReasonLogin)
	if err != nil {
		service.metrics.LoginTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}

	service.metrics.LoginTotal.WithLabelValues(metrics.OutcomeSucceeded).Inc()
	service.emit(ctx, audit.Event{
		Action:   audit.ActionLoginSucceeded,
		UserID:   account.ID,
		TenantID: account.TenantID,
		Metadata: map[string]any{"method": "password", "ip": input.Meta.IPAddress},
	})

	return &LoginResult{AuthResult: authenticated}, nil
}

// CompleteTwoFactorInput is the second request of a 2FA login.
type CompleteTwoFactorInput struct {
	TempToken string
	Code      string
	Meta      ClientMeta
}

/*
CompleteTwoFactor redeems a pending token together with an OTP.

Description: The pending token is consumed before the OTP is checked, so a
mistyped code forces a fresh login. A token can never be presented twice.

Parameters:
  - context: context.Context
  - input: CompleteTwoFactorInput

Returns:
  - *AuthResult: Tokens, account and the new session
  - error: ErrEphemeralTokenExpiredOrConsumed, ErrTwoFactorInvalid or infrastructure failures
*/
func (service *Service) CompleteTwoFactor(context context.Context, input CompleteTwoFactorInput) (result *AuthResult, err error) {
	ctx, span := service.tracer.Start(context, "auth.CompleteTwoFactor")
	defer func() { finishSpan(span, err) }()

	// 1. Single-use handoff
	userID, err := service.ephemeral.Consume(ctx, PurposePendingTwoFactor, input.TempToken)
	if err != nil {
		return nil, err
	}

	account, err := service.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, fmt.Errorf("auth_service_pending_account_gone: %w", apperr.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("auth_service_pending_account_lookup_failed: %w", err)
	}

	if account.IsLocked(service.now()) {
		return nil, fmt.Errorf("auth_service_pending_account_locked: %w", apperr.ErrAccountLocked)
	}

	// 2. Proof of possession
	if err := service.twoFactor.Verify(ctx, account, input.Code); err != nil {
		if errors.Is(err, apperr.ErrTwoFactorInvalid) {
			service.metrics.LoginTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			service.emit(ctx, audit.Event{
				Action:   audit.ActionTwoFactorFailed,
				UserID:   account.ID,
				TenantID: account.TenantID,
				Metadata: map[string]any{"stage": "login"},
			})
		}
		return nil, err
	}

	// 3. Authenticated
	authenticated, err := service.establish(ctx, account, account.subject(), input.Meta, metrics.ReasonTwoFactor)
	if err != nil {
		return nil, err
	}

	service.metrics.LoginTotal.WithLabelValues(metrics.OutcomeSucceeded).Inc()
	service.emit(ctx, audit.Event{
		Action:   audit.ActionLoginSucceeded,
		UserID:   account.ID,
		TenantID: account.TenantID,
		Metadata: map[string]any{"method": "two_factor", "ip": input.Meta.IPAddress},
	})

	return authenticated, nil
}

/*
Refresh exchanges a refresh token for a new pair bound to a new session.

Description: The previous session is not revoked; it expires on its own. An
impersonation scope is carried over only while the stored account is still
staff. Otherwise the new pair is scoped back to the account's own tenant.

Parameters:
  - context: context.Context
  - refreshToken: string
  - meta: ClientMeta

Returns:
  - *AuthResult: New tokens and session
  - error: Token-class errors or infrastructure failures
*/
func (service *Service) Refresh(context context.Context, refreshToken string, meta ClientMeta) (result *AuthResult, err error) {
	ctx, span := service.tracer.Start(context, "auth.Refresh")
	defer func() { finishSpan(span, err) }()

	claims, err := service.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	account, err := service.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, dberr.ErrNotFound) {
			return nil, fmt.Errorf("auth_service_refresh_account_gone: %w", apperr.ErrTokenInvalidSignature)
		}
		return nil, fmt.Errorf("auth_service_refresh_account_lookup_failed: %w", err)
	}

	if account.IsLocked(service.now()) {
		return nil, fmt.Errorf("auth_service_refresh_account_locked: %w", apperr.ErrAccountLocked)
	}

	subject := account.subject()
	if claims.Impersonated {
		if account.Role.AtLeast(sec.RoleStaff) {
			subject.TenantID = claims.TenantID
			subject.OriginalTenantID = claims.OriginalTenantID
		} else {
			ctxutil.GetLogger(ctx).Warn("impersonation_dropped_on_refresh",
				slog.String("user_id", account.ID),
				slog.String("tenant_id", claims.TenantID),
				slog.String("role", string(account.Role)),
			)
		}
	}

	authenticated, err := service.establish(ctx, account, subject, meta, metrics.ReasonRefresh)
	if err != nil {
		return nil, err
	}

	service.emit(ctx, audit.Event{
		Action:   audit.ActionTokenRefreshed,
		UserID:   account.ID,
		TenantID: subject.TenantID,
	})

	return authenticated, nil
}

// Logout revokes the session bound to the caller's access token.
func (service *Service) Logout(context context.Context, principal *sec.Principal) error {
	if err := service.sessions.RevokeByToken(context, principal.ID, principal.AccessToken); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	service.emit(context, audit.Event{
		Action:   audit.ActionLogout,
		UserID:   principal.ID,
		TenantID: principal.TenantID,
	})

	return nil
}

// # Session Management

// ListSessions returns the caller's live sessions with the current one flagged.
func (service *Service) ListSessions(context context.Context, principal *sec.Principal) ([]*Session, error) {
	return service.sessions.List(context, principal.ID, principal.AccessToken)
}

// RevokeSession deletes one of the caller's own sessions.
func (service *Service) RevokeSession(context context.Context, principal *sec.Principal, sessionID string) error {
	if err := service.sessions.RevokeOwned(context, principal.ID, sessionID); err != nil {
		return err
	}

	service.emit(context, audit.Event{
		Action:   audit.ActionSessionRevoked,
		UserID:   principal.ID,
		TenantID: principal.TenantID,
		Metadata: map[string]any{"session_id": sessionID},
	})

	return nil
}

// RevokeAllSessions deletes every session of the caller except the current one.
func (service *Service) RevokeAllSessions(context context.Context, principal *sec.Principal) (int64, error) {
	count, err := service.sessions.RevokeAll(context, principal.ID, principal.AccessToken)
	if err != nil {
		return 0, err
	}

	service.emit(context, audit.Event{
		Action:   audit.ActionSessionsRevokedAll,
		UserID:   principal.ID,
		TenantID: principal.TenantID,
		Metadata: map[string]any{"revoked": count},
	})

	return count, nil
}

// # Second Factor

// GenerateTwoFactor starts (or restarts) enrollment for the caller.
func (service *Service) GenerateTwoFactor(context context.Context, principal *sec.Principal) (*otp.Enrollment, error) {
	account, err := service.accounts.FindByID(context, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_two_factor_account_lookup_failed: %w", err)
	}

	return service.twoFactor.Generate(context, account)
}

// EnableTwoFactor confirms the pending secret with code.
func (service *Service) EnableTwoFactor(context context.Context, principal *sec.Principal, code string) error {
	if err := service.twoFactor.VerifyAndEnable(context, principal.ID, code); err != nil {
		service.auditTwoFactorFailure(context, principal, "enable", err)
		return err
	}

	service.emit(context, audit.Event{
		Action:   audit.ActionTwoFactorEnabled,
		UserID:   principal.ID,
		TenantID: principal.TenantID,
	})

	return nil
}

// DisableTwoFactor turns 2FA off after a valid code.
func (service *Service) DisableTwoFactor(context context.Context, principal *sec.Principal, code string) error {
	if err := service.twoFactor.Disable(context, principal.ID, code); err != nil {
		service.auditTwoFactorFailure(context, principal, "disable", err)
		return err
	}

	service.emit(context, audit.Event{
		Action:   audit.ActionTwoFactorDisabled,
		UserID:   principal.ID,
		TenantID: principal.TenantID,
	})

	return nil
}

// # Impersonation

/*
Impersonate pivots a staff principal into tenantID.

Description: The new pair carries the target tenant and the tenant to return
to. Pivoting while already impersonating keeps the first original tenant.
Pivoting back into the original tenant yields a plain, non-impersonated pair.

Parameters:
  - context: context.Context
  - principal: *sec.Principal (acting staff member)
  - tenantID: string
  - meta: ClientMeta

Returns:
  - *AuthResult: Tokens and the new session
  - error: Forbidden, NotFound, Conflict or infrastructure failures
*/
func (service *Service) Impersonate(context context.Context, principal *sec.Principal, tenantID string, meta ClientMeta) (result *AuthResult, err error) {
	ctx, span := service.tracer.Start(context, "auth.Impersonate",
		trace.WithAttributes(attribute.String("tenant.target", tenantID)))
	defer func() { finishSpan(span, err) }()

	account, err := service.accounts.FindByID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_impersonate_account_lookup_failed: %w", err)
	}

	// The current role is authoritative, not the one frozen into the token
	if !account.Role.AtLeast(sec.RoleStaff) {
		return nil, apperr.Forbidden("Impersonation requires staff privileges")
	}

	if tenantID == principal.TenantID {
		return nil, apperr.Conflict("Already scoped to this tenant")
	}

	exists, err := service.tenants.Exists(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_impersonate_tenant_lookup_failed: %w", err)
	}
	if !exists {
		return nil, apperr.NotFound("Tenant")
	}

	home := principal.TenantID
	if principal.Impersonated {
		home = principal.OriginalTenantID
	}

	subject := account.subject()
	subject.TenantID = tenantID
	if tenantID != home {
		subject.OriginalTenantID = home
	}

	authenticated, err := service.establish(ctx, account, subject, meta, metrics.ReasonImpersonation)
	if err != nil {
		return nil, err
	}

	service.emit(ctx, audit.Event{
		Action:   audit.ActionImpersonationStarted,
		UserID:   account.ID,
		TenantID: tenantID,
		Metadata: map[string]any{"original_tenant_id": home},
	})

	return authenticated, nil
}

/*
StopImpersonation revokes the impersonation session and restores the original tenant.

Parameters:
  - context: context.Context
  - principal: *sec.Principal (must carry the impersonation claims)
  - meta: ClientMeta

Returns:
  - *AuthResult: Tokens scoped back to the original tenant
  - error: Forbidden when not impersonating, or infrastructure failures
*/
func (service *Service) StopImpersonation(context context.Context, principal *sec.Principal, meta ClientMeta) (result *AuthResult, err error) {
	ctx, span := service.tracer.Start(context, "auth.StopImpersonation")
	defer func() { finishSpan(span, err) }()

	if !principal.Impersonated || principal.OriginalTenantID == "" {
		return nil, apperr.Forbidden("Session is not impersonating a tenant")
	}

	account, err := service.accounts.FindByID(ctx, principal.ID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_restore_account_lookup_failed: %w", err)
	}

	if err := service.sessions.RevokeByToken(ctx, principal.ID, principal.AccessToken); err != nil {
		return nil, fmt.Errorf("auth_service_restore_revoke_failed: %w", err)
	}

	subject := account.subject()
	subject.TenantID = principal.OriginalTenantID

	authenticated, err := service.establish(ctx, account, subject, meta, metrics.ReasonRestore)
	if err != nil {
		return nil, err
	}

	service.emit(ctx, audit.Event{
		Action:   audit.ActionImpersonationStopped,
		UserID:   account.ID,
		TenantID: principal.OriginalTenantID,
		Metadata: map[string]any{"impersonated_tenant_id": principal.TenantID},
	})

	return authenticated, nil
}

// # Request Authentication

/*
Authenticate resolves a bearer token into a principal.

Description: Both the signature and a live session are required. A well-signed
token whose session is gone is rejected with ErrSessionRevoked.

Parameters:
  - context: context.Context
  - accessToken: string

Returns:
  - *sec.Principal: Identity for downstream handlers
  - error: Token-class errors or infrastructure failures
*/
func (service *Service) Authenticate(context context.Context, accessToken string) (*sec.Principal, error) {
	claims, err := service.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	session, err := service.sessions.Validate(context, accessToken)
	if err != nil {
		return nil, err
	}

	if session.UserID != claims.Subject {
		return nil, fmt.Errorf("auth_service_session_owner_mismatch: %w", apperr.ErrSessionRevoked)
	}

	principal := sec.PrincipalFromClaims(claims)
	principal.SessionID = session.ID
	principal.AccessToken = accessToken

	return principal, nil
}

// SweepExpired removes expired sessions. Called by an external periodic trigger.
func (service *Service) SweepExpired(context context.Context) (int64, error) {
	return service.sessions.SweepExpired(context)
}

// # Internal Helpers

// establish issues a token pair for subject and persists its session.
func (service *Service) establish(context context.Context, account *Account, subject sec.Subject, meta ClientMeta, reason string) (*AuthResult, error) {
	pair, err := service.tokens.Issue(subject)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_issue_failed: %w", err)
	}

	session, err := service.sessions.Create(context, account.ID, pair.AccessToken, meta)
	if err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	service.metrics.SessionsCreated.WithLabelValues(reason).Inc()

	return &AuthResult{Tokens: pair, Account: account, Session: session}, nil
}

// recordLoginFailure classifies a failed Login for metrics, audit and logs.
func (service *Service) recordLoginFailure(context context.Context, email string, err error) {
	var action audit.Action
	var outcome string

	switch {
	case errors.Is(err, apperr.ErrAccountLocked):
		action, outcome = audit.ActionLoginLocked, metrics.OutcomeLocked
	case errors.Is(err, apperr.ErrInvalidCredentials):
		action, outcome = audit.ActionLoginFailed, metrics.OutcomeFailed
	default:
		service.metrics.LoginTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return
	}

	service.metrics.LoginTotal.WithLabelValues(outcome).Inc()

	ctxutil.GetLogger(context).Warn("login_failed",
		slog.String("kind", apperr.KindOf(err)),
		slog.String("email_fingerprint", sec.HashToken(email)[:16]),
	)

	service.emit(context, audit.Event{
		Action:   action,
		Metadata: map[string]any{"kind": apperr.KindOf(err)},
	})
}

// auditTwoFactorFailure records a rejected code during enable / disable.
func (service *Service) auditTwoFactorFailure(context context.Context, principal *sec.Principal, stage string, err error) {
	if !errors.Is(err, apperr.ErrTwoFactorInvalid) {
		return
	}

	service.emit(context, audit.Event{
		Action:   audit.ActionTwoFactorFailed,
		UserID:   principal.ID,
		TenantID: principal.TenantID,
		Metadata: map[string]any{"stage": stage},
	})
}

// emit forwards event to the sink. Sink failures are logged and counted, never returned.
func (service *Service) emit(context context.Context, event audit.Event) {
	if err := service.audit.Emit(context, event); err != nil {
		service.metrics.AuditFailures.Inc()
		ctxutil.GetLogger(context).Warn("audit_emit_failed",
			slog.String("action", string(event.Action)),
			slog.Any("error", err),
		)
	}
}

// finishSpan marks span failed with the taxonomy kind of err, then ends it.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		kind := apperr.KindOf(err)
		if kind == "" {
			kind = "error"
		}
		span.SetStatus(codes.Error, kind)
	}
	span.End()
}
