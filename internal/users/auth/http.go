// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/warden/internal/platform/middleware"
	requestutil "github.com/taibuivan/warden/internal/platform/request"
	"github.com/taibuivan/warden/internal/platform/respond"
	"github.com/taibuivan/warden/internal/platform/sec"
	"github.com/taibuivan/warden/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements the authentication HTTP endpoints.
//
// # Scope
//
// Credential and token failures are rendered generically by [respond.Error];
// the precise taxonomy kind only reaches the server log.
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] for the /auth prefix.
//
// # Endpoints
//   - POST /login               : Password step, returns tokens or a 2FA challenge.
//   - POST /2fa/login           : OTP step of a challenged login.
//   - POST /refresh             : Exchanges a refresh token for a new pair.
//   - POST /logout              : Revokes the presented session.
//   - GET  /sessions            : Lists the caller's sessions.
//   - POST /sessions/revoke     : Revokes one of the caller's sessions.
//   - POST /sessions/revoke-all : Revokes every other session.
//   - POST /2fa/generate|enable|disable : Second-factor enrollment.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/login", handler.login)
	router.Post("/2fa/login", handler.completeTwoFactor)
	router.Post("/refresh", handler.refresh)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Get("/sessions", handler.listSessions)
		r.Post("/sessions/revoke", handler.revokeSession)
		r.Post("/sessions/revoke-all", handler.revokeAllSessions)
		r.Post("/2fa/generate", handler.generateTwoFactor)
		r.Post("/2fa/enable", handler.enableTwoFactor)
		r.Post("/2fa/disable", handler.disableTwoFactor)
	})

	return router
}

// TenantRoutes returns a [chi.Router] for the /tenants prefix.
//
// # Endpoints
//   - POST /{id}/impersonate : Staff pivot into another tenant.
//   - POST /impersonate/stop : Restores the original tenant.
func (handler *Handler) TenantRoutes() chi.Router {
	router := chi.NewRouter()

	router.With(middleware.RequireRole(sec.RoleStaff)).Post("/{id}/impersonate", handler.impersonate)
	router.With(middleware.RequireAuth).Post("/impersonate/stop", handler.stopImpersonation)

	return router
}

// # Request Payloads

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type completeTwoFactorRequest struct {
	TempToken      string `json:"tempToken"`
	TwoFactorToken string `json:"twoFactorToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type revokeSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type twoFactorCodeRequest struct {
	Token string `json:"token"`
}

// # Response Payloads

type authResponse struct {
	Access  string   `json:"access"`
	Refresh string   `json:"refresh"`
	User    *Account `json:"user,omitempty"`
}

type challengeResponse struct {
	RequiresTwoFactor bool   `json:"requiresTwoFactor"`
	TempToken         string `json:"tempToken"`
}

type enrollmentResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`
	QRCode string `json:"qrCode"`
}

func newAuthResponse(result *AuthResult, withUser bool) authResponse {
	response := authResponse{
		Access:  result.Tokens.AccessToken,
		Refresh: result.Tokens.RefreshToken,
	}
	if withUser {
		response.User = result.Account
	}
	return response
}

/*
Login authenticates with email and password.

POST /api/v1/auth/login

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: authResponse or challengeResponse
  - 400: ErrInvalidJSON / VALIDATION_ERROR
  - 401: INVALID_CREDENTIALS (wrong password, unknown email or locked)
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Login(request.Context(), LoginInput{
		Email:    input.Email,
		Password: input.Password,
		Meta:     clientMeta(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if result.RequiresTwoFactor {
		respond.OK(writer, challengeResponse{RequiresTwoFactor: true, TempToken: result.TempToken})
		return
	}

	respond.OK(writer, newAuthResponse(result.AuthResult, true))
}

/*
CompleteTwoFactor finishes a challenged login.

POST /api/v1/auth/2fa/login

Request:
  - Body: completeTwoFactorRequest (TempToken, TwoFactorToken)

Response:
  - 200: authResponse
  - 401: INVALID_TOKEN (pending token reused or expired) / INVALID_CREDENTIALS (wrong code)
*/
func (handler *Handler) completeTwoFactor(writer http.ResponseWriter, request *http.Request) {
	var input completeTwoFactorRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldTempToken, input.TempToken).
		Required(FieldTwoFactorToken, input.TwoFactorToken)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.CompleteTwoFactor(request.Context(), CompleteTwoFactorInput{
		TempToken: input.TempToken,
		Code:      input.TwoFactorToken,
		Meta:      clientMeta(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newAuthResponse(result, true))
}

/*
Refresh exchanges a refresh token for a new pair.

POST /api/v1/auth/refresh

Response:
  - 200: authResponse (without user)
  - 401: INVALID_TOKEN
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	if input.RefreshToken == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRefreshToken, "is required"))
		return
	}

	result, err := handler.authService.Refresh(request.Context(), input.RefreshToken, clientMeta(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newAuthResponse(result, false))
}

/*
Logout revokes the session bound to the presented bearer token.

POST /api/v1/auth/logout

Response:
  - 204: No Content
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Logout(request.Context(), principal); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ListSessions returns the caller's live sessions.

GET /api/v1/auth/sessions

Response:
  - 200: []Session (the calling session has current=true)
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessions, err := handler.authService.ListSessions(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
RevokeSession revokes one session owned by the caller.

POST /api/v1/auth/sessions/revoke

Response:
  - 204: No Content
  - 404: NOT_FOUND (missing or owned by someone else)
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input revokeSessionRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldSessionID, input.SessionID).UUID(FieldSessionID, input.SessionID)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RevokeSession(request.Context(), principal, input.SessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
RevokeAllSessions revokes every session of the caller except the current one.

POST /api/v1/auth/sessions/revoke-all

Response:
  - 200: {revoked: n}
*/
func (handler *Handler) revokeAllSessions(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	count, err := handler.authService.RevokeAllSessions(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]int64{FieldRevoked: count})
}

/*
GenerateTwoFactor starts enrollment and returns the secret and its QR code.

POST /api/v1/auth/2fa/generate

Response:
  - 200: enrollmentResponse
  - 409: CONFLICT (already enabled)
*/
func (handler *Handler) generateTwoFactor(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	enrollment, err := handler.authService.GenerateTwoFactor(request.Context(), principal)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, enrollmentResponse{
		Secret: enrollment.Secret,
		URL:    enrollment.URL,
		QRCode: enrollment.QRCode,
	})
}

/*
EnableTwoFactor confirms enrollment with a code from the authenticator app.

POST /api/v1/auth/2fa/enable

Response:
  - 200: {message}
  - 401: INVALID_CREDENTIALS (wrong code)
  - 409: CONFLICT (not started or already enabled)
*/
func (handler *Handler) enableTwoFactor(writer http.ResponseWriter, request *http.Request) {
	principal, code, ok := handler.decodeCode(writer, request)
	if !ok {
		return
	}

	if err := handler.authService.EnableTwoFactor(request.Context(), principal, code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Two-factor authentication enabled"})
}

/*
DisableTwoFactor turns 2FA off after a valid code.

POST /api/v1/auth/2fa/disable

Response:
  - 200: {message}
  - 401: INVALID_CREDENTIALS (wrong code)
  - 409: CONFLICT (not enabled)
*/
func (handler *Handler) disableTwoFactor(writer http.ResponseWriter, request *http.Request) {
	principal, code, ok := handler.decodeCode(writer, request)
	if !ok {
		return
	}

	if err := handler.authService.DisableTwoFactor(request.Context(), principal, code); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Two-factor authentication disabled"})
}

/*
Impersonate pivots a staff member into another tenant.

POST /api/v1/tenants/{id}/impersonate

Response:
  - 200: authResponse
  - 403: FORBIDDEN (not staff)
  - 404: NOT_FOUND (unknown tenant)
*/
func (handler *Handler) impersonate(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	tenantID := requestutil.Param(request, FieldTenantID)

	validator := &validate.Validator{}
	validator.Required(FieldTenantID, tenantID).UUID(FieldTenantID, tenantID)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.Impersonate(request.Context(), principal, tenantID, clientMeta(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newAuthResponse(result, false))
}

/*
StopImpersonation restores the original tenant.

POST /api/v1/tenants/impersonate/stop

Response:
  - 200: authResponse
  - 403: FORBIDDEN (token is not impersonating)
*/
func (handler *Handler) stopImpersonation(writer http.ResponseWriter, request *http.Request) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.authService.StopImpersonation(request.Context(), principal, clientMeta(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, newAuthResponse(result, false))
}

// decodeCode reads and validates the {token} body shared by enable and disable.
func (handler *Handler) decodeCode(writer http.ResponseWriter, request *http.Request) (*sec.Principal, string, bool) {
	principal, err := requestutil.RequiredPrincipal(request)
	if err != nil {
		respond.Error(writer, request, err)
		return nil, "", false
	}

	var input twoFactorCodeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return nil, "", false
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token).Digits(FieldToken, input.Token, TwoFactorCodeLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return nil, "", false
	}

	return principal, input.Token, true
}

// clientMeta captures what a new session records about its client.
func clientMeta(request *http.Request) ClientMeta {
	ip, userAgent := requestutil.ClientMeta(request, middleware.RealIP)
	return ClientMeta{IPAddress: ip, UserAgent: userAgent}
}
