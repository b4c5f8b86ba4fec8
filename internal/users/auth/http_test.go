// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/warden/internal/platform/middleware"
	"github.com/taibuivan/warden/internal/platform/sec"
	"github.com/taibuivan/warden/internal/users/auth"
	"github.com/taibuivan/warden/pkg/uuid"
)

type apiBody struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

type tokensBody struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func newRouter(f *fixture) http.Handler {
	handler := auth.NewHandler(f.service)

	router := chi.NewRouter()
	router.Use(middleware.Authenticate(f.service))
	router.Mount("/auth", handler.Routes())
	router.Mount("/tenants", handler.TenantRoutes())
	return router
}

func call(t *testing.T, router http.Handler, method, path, bearer string, body any) (*httptest.ResponseRecorder, apiBody) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", "warden-http-test")
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	var decoded apiBody
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	}
	return recorder, decoded
}

func decodeData[T any](t *testing.T, body apiBody) T {
	t.Helper()
	var value T
	require.NoError(t, json.Unmarshal(body.Data, &value))
	return value
}

/*
TestHandler_Login returns tokens and the public user fields.
*/
func TestHandler_Login(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "web@example.com", sec.RoleMember)
	router := newRouter(f)

	recorder, body := call(t, router, http.MethodPost, "/auth/login", "",
		map[string]string{"email": "web@example.com", "password": testPassword})

	require.Equal(t, http.StatusOK, recorder.Code)
	tokens := decodeData[tokensBody](t, body)
	assert.NotEmpty(t, tokens.Access)
	assert.NotEmpty(t, tokens.Refresh)
	require.NotNil(t, tokens.User)
	assert.Equal(t, account.ID, tokens.User.ID)
	assert.NotContains(t, string(body.Data), "passwordHash")
	assert.NotContains(t, recorder.Body.String(), account.PasswordHash)
}

/*
TestHandler_Login_Failures renders every credential failure identically.
*/
func TestHandler_Login_Failures(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "web@example.com", sec.RoleMember)
	f.addAccount(t, "locked@example.com", sec.RoleMember)
	router := newRouter(f)

	for i := 0; i < auth.MaxFailedAttempts; i++ {
		call(t, router, http.MethodPost, "/auth/login", "",
			map[string]string{"email": "locked@example.com", "password": "wrong"})
	}

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "web@example.com", "wrong"},
		{"unknown email", "ghost@example.com", testPassword},
		{"locked account", "locked@example.com", testPassword},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, body := call(t, router, http.MethodPost, "/auth/login", "",
				map[string]string{"email": tt.email, "password": tt.password})

			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
			assert.Equal(t, "INVALID_CREDENTIALS", body.Code)
			bodies = append(bodies, recorder.Body.String())
		})
	}

	require.Len(t, bodies, len(tests))
	for _, rendered := range bodies[1:] {
		assert.Equal(t, bodies[0], rendered)
	}
}

/*
TestHandler_Login_Validation rejects malformed input before any lookup.
*/
func TestHandler_Login_Validation(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	tests := []struct {
		name string
		body any
	}{
		{"missing password", map[string]string{"email": "web@example.com"}},
		{"bad email", map[string]string{"email": "not-an-email", "password": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, body := call(t, router, http.MethodPost, "/auth/login", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Equal(t, "VALIDATION_ERROR", body.Code)
		})
	}
}

/*
TestHandler_TwoFactorFlow drives the challenge and its single-use token over HTTP.
*/
func TestHandler_TwoFactorFlow(t *testing.T) {
	f := newFixture(t)
	account := f.addAccount(t, "otp@example.com", sec.RoleMember)
	secret := f.enrollTwoFactor(t, account)
	router := newRouter(f)

	recorder, body := call(t, router, http.MethodPost, "/auth/login", "",
		map[string]string{"email": "otp@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, recorder.Code)

	challenge := decodeData[struct {
		RequiresTwoFactor bool   `json:"requiresTwoFactor"`
		TempToken         string `json:"tempToken"`
		Access            string `json:"access"`
	}](t, body)
	assert.True(t, challenge.RequiresTwoFactor)
	assert.NotEmpty(t, challenge.TempToken)
	assert.Empty(t, challenge.Access)

	second := map[string]string{"tempToken": challenge.TempToken, "twoFactorToken": f.code(t, secret)}

	recorder, body = call(t, router, http.MethodPost, "/auth/2fa/login", "", second)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, decodeData[tokensBody](t, body).Access)

	recorder, body = call(t, router, http.MethodPost, "/auth/2fa/login", "", second)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Code)
}

/*
TestHandler_Sessions covers listing, revoke-all and logout.
*/
func TestHandler_Sessions(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "multi@example.com", sec.RoleMember)
	router := newRouter(f)

	other := f.login(t, "multi@example.com")
	current := f.login(t, "multi@example.com")

	// 1. Anonymous callers are refused
	recorder, _ := call(t, router, http.MethodGet, "/auth/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// 2. Listing flags the current session
	recorder, body := call(t, router, http.MethodGet, "/auth/sessions", current.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	sessions := decodeData[[]struct {
		ID      string `json:"id"`
		Current bool   `json:"current"`
	}](t, body)
	require.Len(t, sessions, 2)
	for _, session := range sessions {
		assert.Equal(t, session.ID == current.Session.ID, session.Current)
	}

	// 3. Revoke-all keeps the caller
	recorder, body = call(t, router, http.MethodPost, "/auth/sessions/revoke-all", current.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, int64(1), decodeData[map[string]int64](t, body)["revoked"])

	recorder, body = call(t, router, http.MethodGet, "/auth/sessions", other.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Code)

	// 4. Logout kills the caller's own token
	recorder, _ = call(t, router, http.MethodPost, "/auth/logout", current.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder, _ = call(t, router, http.MethodGet, "/auth/sessions", current.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestHandler_RevokeSession validates the ID and hides foreign sessions.
*/
func TestHandler_RevokeSession(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "a@example.com", sec.RoleMember)
	f.addAccount(t, "b@example.com", sec.RoleMember)
	router := newRouter(f)

	mine := f.login(t, "a@example.com")
	theirs := f.login(t, "b@example.com")

	recorder, body := call(t, router, http.MethodPost, "/auth/sessions/revoke", mine.Tokens.AccessToken,
		map[string]string{"sessionId": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)

	recorder, body = call(t, router, http.MethodPost, "/auth/sessions/revoke", mine.Tokens.AccessToken,
		map[string]string{"sessionId": theirs.Session.ID})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "NOT_FOUND", body.Code)
}

/*
TestHandler_Refresh issues a new pair without the user payload.
*/
func TestHandler_Refresh(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "refresh@example.com", sec.RoleMember)
	router := newRouter(f)
	initial := f.login(t, "refresh@example.com")

	recorder, body := call(t, router, http.MethodPost, "/auth/refresh", "",
		map[string]string{"refreshToken": initial.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, recorder.Code)

	tokens := decodeData[tokensBody](t, body)
	assert.NotEmpty(t, tokens.Access)
	assert.Nil(t, tokens.User)

	recorder, body = call(t, router, http.MethodPost, "/auth/refresh", "",
		map[string]string{"refreshToken": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Equal(t, "INVALID_TOKEN", body.Code)
}

/*
TestHandler_Impersonate enforces the staff role at the route.
*/
func TestHandler_Impersonate(t *testing.T) {
	f := newFixture(t)
	f.addAccount(t, "member@example.com", sec.RoleMember)
	f.addAccount(t, "staff@example.com", sec.RoleStaff)
	router := newRouter(f)

	target := uuid.New()
	f.tenants[target] = true

	member := f.login(t, "member@example.com")
	staff := f.login(t, "staff@example.com")

	recorder, body := call(t, router, http.MethodPost, "/tenants/"+target+"/impersonate", member.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, "FORBIDDEN", body.Code)

	recorder, body = call(t, router, http.MethodPost, "/tenants/"+target+"/impersonate", staff.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	impersonating := decodeData[tokensBody](t, body)

	principal := f.principal(t, impersonating.Access)
	assert.Equal(t, target, principal.TenantID)
	assert.True(t, principal.Impersonated)

	recorder, body = call(t, router, http.MethodPost, "/tenants/impersonate/stop", impersonating.Access, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.False(t, f.principal(t, decodeData[tokensBody](t, body).Access).Impersonated)
}
