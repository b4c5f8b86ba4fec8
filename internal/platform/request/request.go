// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package requestutil reads auth request bodies, route params, the resolved
principal and the client metadata recorded on sessions.
*/
package requestutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/warden/internal/platform/apperr"
	"github.com/taibuivan/warden/internal/platform/ctxutil"
	"github.com/taibuivan/warden/internal/platform/sec"
	"github.com/taibuivan/warden/internal/platform/validate"
)

const (
	// maxBodyBytes bounds every auth payload. The largest is a login body.
	maxBodyBytes = 16 << 10
	// maxUserAgentRunes bounds the user agent stored on a session.
	maxUserAgentRunes = 512
)

/*
DecodeJSON decodes exactly one JSON value from the body into target.

An empty body decodes as {} so bodiless POSTs validate normally.

Returns:
  - error: validate.ErrInvalidJSON for oversized, malformed or trailing input
*/
func DecodeJSON(request *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(request.Body, maxBodyBytes+1))

	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return validate.ErrInvalidJSON
	}

	if decoder.InputOffset() > maxBodyBytes || decoder.More() {
		return validate.ErrInvalidJSON
	}
	return nil
}

// Param returns a chi route parameter.
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
RequiredPrincipal returns the principal resolved by the Authenticate middleware.

Returns:
  - *sec.Principal: Identity backed by a valid token and a live session
  - error: apperr.Unauthorized for anonymous requests
*/
func RequiredPrincipal(request *http.Request) (*sec.Principal, error) {
	principal := ctxutil.GetPrincipal(request.Context())
	if principal == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}
	return principal, nil
}

// ClientMeta returns the caller IP and a bounded user agent for session records.
func ClientMeta(request *http.Request, realIP func(*http.Request) string) (ip, userAgent string) {
	userAgent = request.UserAgent()
	if utf8.RuneCountInString(userAgent) > maxUserAgentRunes {
		userAgent = string([]rune(userAgent)[:maxUserAgentRunes])
	}
	return realIP(request), userAgent
}
