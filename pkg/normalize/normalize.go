// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package normalize canonicalizes user-supplied identifiers before lookup.
//
// # Usage
//
// Emails are the login key, so "User@Example.com", " user@example.com" and the
// full-width "ｕｓｅｒ@example.com" must all resolve to the same account row.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Email returns the canonical form of an email address.
//
// # Transformation Pipeline
//
// 1. Trims surrounding whitespace.
// 2. Normalizes to NFKC (compatibility forms such as full-width letters fold to ASCII).
// 3. Applies Unicode case folding (stronger than ToLower for non-ASCII scripts).
func Email(s string) string {
	// 1. Trim
	result := strings.TrimSpace(s)

	// 2. Compatibility normalization
	result = norm.NFKC.String(result)

	// 3. Case folding. A Caser is stateful, so one is built per call.
	return cases.Fold().String(result)
}
