// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package otp wraps RFC 6238 time-based one-time passwords.

The rest of Warden only sees [Authenticator]: secret generation, code
verification inside a skew window, and QR rendering of the otpauth:// URI.
The algorithm itself is delegated to github.com/pquerna/otp.
*/
package otp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// # Parameters

const (
	// Period is the length of one time step.
	Period = 30

	// Skew is how many steps on either side of "now" are accepted (±60s).
	Skew = 2

	// qrSize is the edge length in pixels of the rendered QR code.
	qrSize = 200
)

// Enrollment is what a user needs to register the secret in an authenticator app.
type Enrollment struct {
	Secret string
	URL    string
	// QRCode is a data:image/png;base64 URL ready for an <img> tag.
	QRCode string
}

// Authenticator generates and checks TOTP secrets for one issuer.
type Authenticator struct {
	issuer string
}

// NewAuthenticator creates an Authenticator that labels secrets with issuer.
func NewAuthenticator(issuer string) *Authenticator {
	return &Authenticator{issuer: issuer}
}

// Generate creates a new random base32 secret for accountName.
func (a *Authenticator) Generate(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.issuer,
		AccountName: accountName,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("otp: generate secret: %w", err)
	}

	qr, err := RenderQR(key.URL())
	if err != nil {
		return nil, err
	}

	return &Enrollment{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRCode: qr,
	}, nil
}

// Verify reports whether code is valid for secret at the given instant,
// tolerating [Skew] steps of clock drift in either direction.
func (a *Authenticator) Verify(secret, code string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at.UTC(), validateOpts)
	if err != nil {
		return false
	}
	return valid
}

// Code computes the current code for secret. Used by tests and tooling.
func (a *Authenticator) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at.UTC(), validateOpts)
}

var validateOpts = totp.ValidateOpts{
	Period:    Period,
	Skew:      Skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// RenderQR encodes an otpauth:// URI as a PNG data URL.
func RenderQR(uri string) (string, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", fmt.Errorf("otp: parse key url: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("otp: render qr: %w", err)
	}

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		return "", fmt.Errorf("otp: encode png: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}
